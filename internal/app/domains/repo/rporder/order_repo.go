package rporder

import (
	"context"

	"cgp/internal/app/domains/entity/etorder"
)

// OrderRepository 订单仓储接口
// 订单是系统内唯一共享可变资源，状态/进度/日志只能通过仓储的原子方法变更
type OrderRepository interface {
	// Create 注册订单，ID 重复时返回错误
	Create(ctx context.Context, order *etorder.Order) error

	// GetByID 查询订单，返回只读快照
	GetByID(ctx context.Context, orderID string) (*etorder.Order, error)

	// List 查询全部订单（按创建时间倒序），快照语义
	List(ctx context.Context) ([]*etorder.Order, error)

	// ApplyTransition 原子应用一次非终态状态迁移，返回迁移后的快照
	ApplyTransition(ctx context.Context, orderID string, status etorder.OrderStatus, progress int, message string) (*etorder.Order, error)

	// Complete 原子标记完成，返回终态快照
	Complete(ctx context.Context, orderID string, result string, metrics etorder.QualityMetrics, message string) (*etorder.Order, error)

	// Fail 原子标记失败，返回终态快照
	Fail(ctx context.Context, orderID string, errMessage string, message string) (*etorder.Order, error)
}
