package rporder

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"cgp/internal/app/domains/entity/etorder"
	"cgp/internal/app/pkg/errorx"
)

// MemoryOrderRepository 内存订单仓储实现
// 单进程编排器的唯一数据源，所有读写经 RWMutex 串行化，
// 读取一律返回深拷贝快照，调用方拿不到共享可变引用
type MemoryOrderRepository struct {
	mu     sync.RWMutex
	orders map[string]*orderRecord
	seq    int64 // 插入序号（List 排序的同刻订单决胜键）
}

var _ OrderRepository = (*MemoryOrderRepository)(nil)

// orderRecord 仓储内部记录
type orderRecord struct {
	order *etorder.Order
	seq   int64
}

// NewMemoryOrderRepository 创建内存订单仓储
func NewMemoryOrderRepository() *MemoryOrderRepository {
	return &MemoryOrderRepository{
		orders: make(map[string]*orderRecord),
	}
}

// Create 注册订单
func (r *MemoryOrderRepository) Create(ctx context.Context, order *etorder.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.orders[order.ID]; exists {
		return fmt.Errorf("order already exists: id=%s", order.ID)
	}

	r.seq++
	r.orders[order.ID] = &orderRecord{
		order: order.Clone(),
		seq:   r.seq,
	}

	return nil
}

// GetByID 查询订单快照
func (r *MemoryOrderRepository) GetByID(ctx context.Context, orderID string) (*etorder.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.orders[orderID]
	if !ok {
		return nil, errorx.ErrOrderNotFound
	}

	return rec.order.Clone(), nil
}

// List 查询全部订单快照（创建时间倒序）
func (r *MemoryOrderRepository) List(ctx context.Context) ([]*etorder.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	records := make([]*orderRecord, 0, len(r.orders))
	for _, rec := range r.orders {
		records = append(records, rec)
	}

	// 创建时间倒序，同刻按插入序号倒序保证稳定
	sort.Slice(records, func(i, j int) bool {
		if records[i].order.CreatedAt.Equal(records[j].order.CreatedAt) {
			return records[i].seq > records[j].seq
		}
		return records[i].order.CreatedAt.After(records[j].order.CreatedAt)
	})

	out := make([]*etorder.Order, 0, len(records))
	for _, rec := range records {
		out = append(out, rec.order.Clone())
	}

	return out, nil
}

// ApplyTransition 原子应用状态迁移
func (r *MemoryOrderRepository) ApplyTransition(ctx context.Context, orderID string, status etorder.OrderStatus, progress int, message string) (*etorder.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.orders[orderID]
	if !ok {
		return nil, errorx.ErrOrderNotFound
	}

	rec.order.ApplyTransition(status, progress, message)

	return rec.order.Clone(), nil
}

// Complete 原子标记完成
func (r *MemoryOrderRepository) Complete(ctx context.Context, orderID string, result string, metrics etorder.QualityMetrics, message string) (*etorder.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.orders[orderID]
	if !ok {
		return nil, errorx.ErrOrderNotFound
	}

	rec.order.Complete(result, metrics, message)

	return rec.order.Clone(), nil
}

// Fail 原子标记失败
func (r *MemoryOrderRepository) Fail(ctx context.Context, orderID string, errMessage string, message string) (*etorder.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.orders[orderID]
	if !ok {
		return nil, errorx.ErrOrderNotFound
	}

	rec.order.Fail(errMessage, message)

	return rec.order.Clone(), nil
}
