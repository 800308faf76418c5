package framework

import (
	"context"
	"fmt"
)

// StageFunc 阶段处理函数类型
type StageFunc func(ctx context.Context) error

// Stage 具名阶段
type Stage struct {
	Name string
	Run  StageFunc
}

// StageChain 阶段函数链
// 按声明顺序串行执行，任一阶段返回 error 立即停止
type StageChain struct {
	stages []Stage
}

// NewStageChain 创建阶段函数链
func NewStageChain(stages []Stage) *StageChain {
	return &StageChain{
		stages: stages,
	}
}

// Run 执行函数链
// 每个阶段执行前检查 Context 是否已取消
func (c *StageChain) Run(ctx context.Context) error {
	for _, stage := range c.stages {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("stage %s skipped: %w", stage.Name, err)
		}
		if err := stage.Run(ctx); err != nil {
			return fmt.Errorf("stage %s failed: %w", stage.Name, err)
		}
	}
	return nil
}
