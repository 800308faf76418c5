package svorder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"cgp/internal/app/domains/entity/etorder"
	"cgp/internal/app/domains/modules/mdprogress"
	"cgp/internal/app/domains/repo/rporder"
	"cgp/internal/app/pkg/errorx"
	"cgp/internal/app/pkg/logger"
	"cgp/internal/pipeline/orchestrator"
	"cgp/internal/pipeline/runner"
)

// Observer 单订单进度观察者回调
// 在 StartProcessing 时绑定，按迁移顺序逐条收到快照
type Observer func(snapshot mdprogress.Snapshot)

// OrderService 订单服务，负责订单业务编排
// 对接入层暴露 创建/启动处理/取消/查询/等待结果
type OrderService struct {
	orders   rporder.OrderRepository
	orch     *orchestrator.Orchestrator
	runner   *runner.Manager
	progress *mdprogress.ProgressModule
	logger   logger.Logger
}

// NewOrderService 创建订单服务实例
func NewOrderService(
	orders rporder.OrderRepository,
	orch *orchestrator.Orchestrator,
	run *runner.Manager,
	progress *mdprogress.ProgressModule,
	log logger.Logger,
) *OrderService {
	return &OrderService{
		orders:   orders,
		orch:     orch,
		runner:   run,
		progress: progress,
		logger:   log,
	}
}

// CreateOrder 创建订单
// 参数非法时同步返回 InvalidOrder，订单不会进入流水线；
// service_id 是否存在延迟到处理启动时校验（与模板解析同处）
func (s *OrderService) CreateOrder(ctx context.Context, userID, serviceID string, params etorder.Parameters) (*etorder.Order, error) {
	order, err := etorder.NewOrder(uuid.New().String(), userID, serviceID, params)
	if err != nil {
		return nil, errorx.InvalidOrder(err.Error())
	}

	if err := s.orders.Create(ctx, order); err != nil {
		return nil, fmt.Errorf("save order failed: %w", err)
	}

	s.logger.Infof(ctx, "[OrderService] Order created: order_id=%s, service_id=%s", order.ID, serviceID)

	return order.Clone(), nil
}

// StartProcessing 启动订单异步处理，立即返回
// observer 可为 nil；非 nil 时在运行启动前完成订阅，
// 保证观察者看到本次运行的每一次迁移
func (s *OrderService) StartProcessing(ctx context.Context, orderID string, observer Observer) error {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return err
	}
	if order.IsTerminal() {
		return errorx.ErrOrderTerminal
	}

	var sub *mdprogress.Subscription
	if observer != nil {
		sub = s.progress.Subscribe(orderID)
	}

	err = s.runner.StartRun(orderID, func(runCtx context.Context) {
		runCtx = context.WithValue(runCtx, logger.CtxKeyTraceID, uuid.New().String())
		if err := s.orch.Run(runCtx, orderID); err != nil {
			// 终态与原因已由编排器落盘，这里只记录
			s.logger.Debugf(runCtx, "[OrderService] Run finished with error: order_id=%s, error=%v", orderID, err)
		}
	})
	if err != nil {
		if sub != nil {
			sub.Cancel()
		}
		return err
	}

	if sub != nil {
		// 转发协程：通道关闭（终态）后自然退出
		go func() {
			for snap := range sub.C {
				observer(snap)
			}
		}()
	}

	s.logger.Infof(ctx, "[OrderService] Processing started: order_id=%s", orderID)

	return nil
}

// CancelProcessing 取消订单的在途处理
// 无在途运行时返回 ErrOrderNotFound 或 ErrOrderTerminal
func (s *OrderService) CancelProcessing(ctx context.Context, orderID string) error {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return err
	}
	if order.IsTerminal() {
		return errorx.ErrOrderTerminal
	}

	if !s.runner.Cancel(orderID) {
		return fmt.Errorf("no active run for order %s", orderID)
	}

	return nil
}

// GetOrder 查询订单快照
func (s *OrderService) GetOrder(ctx context.Context, orderID string) (*etorder.Order, error) {
	return s.orders.GetByID(ctx, orderID)
}

// ListOrders 查询订单列表（创建时间倒序）
func (s *OrderService) ListOrders(ctx context.Context) ([]*etorder.Order, error) {
	return s.orders.List(ctx)
}

// WaitForResult 等待订单终态（Smart Wait）
// 返回终态订单快照；超时返回 context.DeadlineExceeded，订单继续处理
func (s *OrderService) WaitForResult(ctx context.Context, orderID string, timeout time.Duration) (*etorder.Order, error) {
	// 先订阅再查快照，避免订阅前一刻到达终态导致漏等
	sub := s.progress.Subscribe(orderID)
	defer sub.Cancel()

	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.IsTerminal() {
		return order, nil
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	for {
		select {
		case snap, ok := <-sub.C:
			if !ok || snap.Terminal {
				return s.orders.GetByID(ctx, orderID)
			}
		case <-timeoutCtx.Done():
			return nil, timeoutCtx.Err()
		}
	}
}

// IsNotFound 判断错误是否为订单不存在
func IsNotFound(err error) bool {
	return errors.Is(err, errorx.ErrOrderNotFound)
}
