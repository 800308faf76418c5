package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cgp/internal/app/domains/entity/etorder"
	"cgp/internal/app/domains/entity/etservice"
	"cgp/internal/app/domains/modules/mdprogress"
	"cgp/internal/app/domains/repo/rporder"
	"cgp/internal/app/domains/repo/rpservice"
	"cgp/internal/app/pkg/errorx"
	"cgp/internal/app/pkg/idgen"
	"cgp/internal/app/pkg/logger"
	"cgp/internal/pipeline/framework"
	"cgp/internal/pipeline/ports"
	"cgp/internal/pipeline/quality"
	"cgp/internal/pipeline/template"
)

// 查重未达标时只执行一次 改写->复查 循环，第二次得分无条件接受
// （沿用既有产品行为，未经确认不得改为循环重试）
const maxRewriteCycles = 1

// 各阶段进度点（进入时写入）
const (
	progressStarted          = 10
	progressTemplateResolved = 20
	progressGenerated        = 40
	progressRewriting        = 50
	progressGatePassed       = 70
	progressSEOApplied       = 85
	progressHumanized        = 95
)

// Orchestrator 流水线编排器
// 驱动单个订单走完 生成->查重->优化->评分 状态机，
// 状态变更全部经订单仓储原子落盘，并推送进度快照
type Orchestrator struct {
	orders     rporder.OrderRepository
	services   rpservice.ServiceConfigRepository
	collab     ports.Collaborators
	progress   *mdprogress.ProgressModule
	stageLimit time.Duration // 单个协作方调用超时
	logger     logger.Logger
}

// NewOrchestrator 创建编排器
func NewOrchestrator(
	orders rporder.OrderRepository,
	services rpservice.ServiceConfigRepository,
	collab ports.Collaborators,
	progress *mdprogress.ProgressModule,
	stageLimit time.Duration,
	log logger.Logger,
) *Orchestrator {
	if stageLimit <= 0 {
		stageLimit = 60 * time.Second
	}
	return &Orchestrator{
		orders:     orders,
		services:   services,
		collab:     collab,
		progress:   progress,
		stageLimit: stageLimit,
		logger:     log,
	}
}

// Run 执行一个订单的完整流水线
// 阻塞直到订单进入终态；ctx 取消会以 Cancelled 终止订单
func (o *Orchestrator) Run(ctx context.Context, orderID string) error {
	ctx = context.WithValue(ctx, logger.CtxKeyOrderID, orderID)

	order, err := o.orders.GetByID(ctx, orderID)
	if err != nil {
		return err
	}
	if order.IsTerminal() {
		return errorx.ErrOrderTerminal
	}

	startTime := time.Now()
	o.logger.Infof(ctx, "[Pipeline] Run started: service_id=%s", order.ServiceID)

	// 前置：解析服务配置，未知 service_id 不发起任何外部调用，进度保持 0
	svc, ok := o.services.GetByID(ctx, order.ServiceID)
	if !ok {
		err := fmt.Errorf("%w: service_id=%s", errorx.ErrTemplateNotFound, order.ServiceID)
		o.fail(ctx, orderID, err)
		return err
	}

	run := &pipelineRun{
		orch:    o,
		orderID: orderID,
		order:   order,
		svc:     svc,
	}

	chain := framework.NewStageChain([]framework.Stage{
		{Name: "resolve-template", Run: run.resolveTemplate},
		{Name: "generation", Run: run.generate},
		{Name: "uniqueness-check", Run: run.checkUniqueness},
		{Name: "seo-optimize", Run: run.optimizeSEO},
		{Name: "humanize", Run: run.humanize},
		{Name: "quality-score", Run: run.score},
	})

	if err := chain.Run(ctx); err != nil {
		o.fail(ctx, orderID, err)
		return err
	}

	snap, err := o.orders.Complete(ctx, orderID, run.text, run.metrics, "processing completed")
	if err != nil {
		return err
	}
	o.progress.Publish(ctx, mdprogress.FromOrder(snap, "processing completed"))

	o.logger.Infof(ctx, "[Pipeline] Run completed: duration=%v, uniqueness=%.1f",
		time.Since(startTime), run.metrics.Uniqueness)

	return nil
}

// fail 将订单标记为失败并推送终态快照
// 进度保持最后一次成功值（前置的模板缺失场景下为 0）
func (o *Orchestrator) fail(ctx context.Context, orderID string, cause error) {
	errMessage := cause.Error()
	if errorx.IsCancelled(cause) {
		errMessage = fmt.Sprintf("%s: %v", errorx.ErrCancelled.Error(), cause)
	}

	snap, err := o.orders.Fail(ctx, orderID, errMessage, "processing failed: "+errMessage)
	if err != nil {
		o.logger.Errorf(ctx, "[Pipeline] Mark failed error: %v (cause: %v)", err, cause)
		return
	}

	o.progress.Publish(ctx, mdprogress.FromOrder(snap, "processing failed"))
	o.logger.Warnf(ctx, "[Pipeline] Run failed at progress %d: %v", snap.Progress, cause)
}

// pipelineRun 单次流水线运行的中间状态
type pipelineRun struct {
	orch    *Orchestrator
	orderID string
	order   *etorder.Order
	svc     *etservice.ServiceConfig

	prompt  string
	text    string
	metrics etorder.QualityMetrics
}

// transition 应用一次状态迁移并推送快照
func (r *pipelineRun) transition(ctx context.Context, status etorder.OrderStatus, progress int, message string) error {
	snap, err := r.orch.orders.ApplyTransition(ctx, r.orderID, status, progress, message)
	if err != nil {
		return err
	}
	r.orch.progress.Publish(ctx, mdprogress.FromOrder(snap, message))
	return nil
}

// invoke 带超时与日志关联地调用一个协作方端口
func (r *pipelineRun) invoke(ctx context.Context, stage string, fn func(ctx context.Context) error) error {
	callCtx, cancel := context.WithTimeout(ctx, r.orch.stageLimit)
	defer cancel()

	callCtx = context.WithValue(callCtx, logger.CtxKeyStage, stage)
	callCtx = context.WithValue(callCtx, logger.CtxKeyRequestID, idgen.GenerateID())

	startTime := time.Now()
	err := fn(callCtx)
	duration := time.Since(startTime)

	if err != nil {
		// 运行级 Context 的取消归类为取消；单次调用超时仍视作协作方故障
		if ctx.Err() != nil || (errors.Is(err, context.Canceled) && callCtx.Err() == nil) {
			r.orch.logger.Warnf(callCtx, "[Pipeline] Collaborator call cancelled: duration=%v", duration)
			return fmt.Errorf("%w: %s: %v", errorx.ErrCancelled, stage, err)
		}
		r.orch.logger.Errorf(callCtx, "[Pipeline] Collaborator call failed: duration=%v, error=%v", duration, err)
		return errorx.NewCollaboratorError(stage, err)
	}

	r.orch.logger.Debugf(callCtx, "[Pipeline] Collaborator call ok: duration=%v", duration)
	return nil
}

// resolveTemplate 阶段一：插值提示词模板
func (r *pipelineRun) resolveTemplate(ctx context.Context) error {
	if err := r.transition(ctx, etorder.OrderStatusGenerating, progressStarted, "processing started"); err != nil {
		return err
	}

	r.prompt = template.Resolve(r.svc.PromptTemplate, r.order.Parameters.TemplateVars())

	return r.transition(ctx, etorder.OrderStatusGenerating, progressTemplateResolved, "prompt template resolved")
}

// generate 阶段二：文本生成
func (r *pipelineRun) generate(ctx context.Context) error {
	constraints := ports.GenerationConstraints{
		Length:   r.order.Parameters.Length,
		Tone:     r.order.Parameters.Tone,
		Audience: r.order.Parameters.Audience,
		Keywords: r.order.Parameters.Keywords,
	}

	err := r.invoke(ctx, "generation", func(callCtx context.Context) error {
		text, err := r.orch.collab.Generator.Generate(callCtx, r.prompt, constraints)
		if err != nil {
			return err
		}
		r.text = text
		return nil
	})
	if err != nil {
		return err
	}

	return r.transition(ctx, etorder.OrderStatusChecking, progressGenerated, "text generated")
}

// checkUniqueness 阶段三：查重与门控
// 未达标时执行一次 改写->复查，第二次得分无条件接受
func (r *pipelineRun) checkUniqueness(ctx context.Context) error {
	report, err := r.check(ctx)
	if err != nil {
		return err
	}

	for cycle := 0; cycle < maxRewriteCycles && quality.Decide(report.Score, r.svc.UniquenessThreshold) == quality.DecisionRewrite; cycle++ {
		message := fmt.Sprintf("uniqueness %.1f below threshold %.1f, rewriting", report.Score, r.svc.UniquenessThreshold)
		if err := r.transition(ctx, etorder.OrderStatusChecking, progressRewriting, message); err != nil {
			return err
		}

		if err := r.invoke(ctx, "rewrite", func(callCtx context.Context) error {
			text, err := r.orch.collab.Rewriter.Rewrite(callCtx, r.text, report.DuplicateFragments)
			if err != nil {
				return err
			}
			r.text = text
			return nil
		}); err != nil {
			return err
		}

		report, err = r.check(ctx)
		if err != nil {
			return err
		}
	}

	message := fmt.Sprintf("uniqueness gate passed: score %.1f (threshold %.1f)", report.Score, r.svc.UniquenessThreshold)
	return r.transition(ctx, etorder.OrderStatusOptimizing, progressGatePassed, message)
}

// check 调用查重端口
func (r *pipelineRun) check(ctx context.Context) (*ports.UniquenessReport, error) {
	var report *ports.UniquenessReport
	err := r.invoke(ctx, "uniqueness-check", func(callCtx context.Context) error {
		rep, err := r.orch.collab.Checker.Check(callCtx, r.text)
		if err != nil {
			return err
		}
		report = rep
		return nil
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

// optimizeSEO 阶段四：SEO 优化（按服务配置可跳过）
func (r *pipelineRun) optimizeSEO(ctx context.Context) error {
	if !r.svc.SEO.Enabled {
		return nil
	}

	params := ports.SEOParams{
		Keywords:          r.order.Parameters.Keywords,
		KeywordDensity:    r.svc.SEO.KeywordDensity,
		AddHeadings:       r.svc.SEO.AddHeadings,
		InternalLinkCount: r.svc.SEO.InternalLinkCount,
	}

	err := r.invoke(ctx, "seo-optimize", func(callCtx context.Context) error {
		text, err := r.orch.collab.SEO.Optimize(callCtx, r.text, params)
		if err != nil {
			return err
		}
		r.text = text
		return nil
	})
	if err != nil {
		return err
	}

	return r.transition(ctx, etorder.OrderStatusOptimizing, progressSEOApplied, "seo optimization applied")
}

// humanize 阶段五：拟人化（按服务配置可跳过，作用于 SEO 优化后的文本）
func (r *pipelineRun) humanize(ctx context.Context) error {
	if !r.svc.Humanize.Enabled {
		return nil
	}

	settings := ports.HumanizeSettings{
		Level:       ports.HumanizeLevel(r.svc.Humanize.Level),
		Variability: r.svc.Humanize.Variability,
	}

	err := r.invoke(ctx, "humanize", func(callCtx context.Context) error {
		text, err := r.orch.collab.Humanizer.Humanize(callCtx, r.text, settings)
		if err != nil {
			return err
		}
		r.text = text
		return nil
	})
	if err != nil {
		return err
	}

	return r.transition(ctx, etorder.OrderStatusOptimizing, progressHumanized, "humanization applied")
}

// score 阶段六：最终质量评分
func (r *pipelineRun) score(ctx context.Context) error {
	return r.invoke(ctx, "quality-score", func(callCtx context.Context) error {
		metrics, err := r.orch.collab.Scorer.Score(callCtx, r.text, r.order.Parameters.Keywords)
		if err != nil {
			return err
		}
		r.metrics = etorder.QualityMetrics{
			Uniqueness:       metrics.Uniqueness,
			Readability:      metrics.Readability,
			SEOScore:         metrics.SEOScore,
			GrammarScore:     metrics.GrammarScore,
			AIDetectionScore: metrics.AIDetectionScore,
		}
		return nil
	})
}
