package errorx

import (
	"context"
	"errors"
	"fmt"
)

// 定义业务错误
var (
	ErrInvalidOrder     = errors.New("invalid order")
	ErrOrderNotFound    = errors.New("order not found")
	ErrTemplateNotFound = errors.New("prompt template not found")
	ErrCancelled        = errors.New("processing cancelled")
	ErrAlreadyRunning   = errors.New("order is already being processed")
	ErrOrderTerminal    = errors.New("order is in a terminal state")
)

// CollaboratorError 协作方调用错误
// 包装生成/查重/改写/优化/拟人化/评分任一环节的底层错误
type CollaboratorError struct {
	Stage string // 出错环节（generation/uniqueness-check/rewrite/seo-optimize/humanize/quality-score）
	Err   error  // 底层错误
}

// Error 实现 error 接口
func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("collaborator %s failed: %v", e.Stage, e.Err)
}

// Unwrap 返回底层错误
func (e *CollaboratorError) Unwrap() error {
	return e.Err
}

// NewCollaboratorError 创建协作方错误
func NewCollaboratorError(stage string, err error) *CollaboratorError {
	return &CollaboratorError{
		Stage: stage,
		Err:   err,
	}
}

// InvalidOrder 创建带原因的参数错误
func InvalidOrder(reason string) error {
	return fmt.Errorf("%w: %s", ErrInvalidOrder, reason)
}

// IsCancelled 判断错误链中是否包含取消（业务取消或运行级 Context 取消）
// 协作方单次调用超时不算取消，归类为协作方故障
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled)
}
