package mdprogress

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"cgp/internal/app/domains/entity/etorder"
	"cgp/internal/app/pkg/logger"
)

// 单次流水线最多产生 9 次迁移，缓冲取 16 保证发布端不被慢观察者阻塞
const subscriptionBuffer = 16

// Snapshot 单次状态迁移后的订单快照（推送给观察者）
type Snapshot struct {
	OrderID      string              `json:"order_id"`
	Status       etorder.OrderStatus `json:"status"`
	Progress     int                 `json:"progress"`
	Message      string              `json:"message"`
	Terminal     bool                `json:"terminal"`
	ErrorMessage string              `json:"error_message,omitempty"`
	Timestamp    time.Time           `json:"timestamp"`
}

// FromOrder 从订单快照构造进度快照
func FromOrder(order *etorder.Order, message string) Snapshot {
	return Snapshot{
		OrderID:      order.ID,
		Status:       order.Status,
		Progress:     order.Progress,
		Message:      message,
		Terminal:     order.IsTerminal(),
		ErrorMessage: order.ErrorMessage,
		Timestamp:    time.Now(),
	}
}

// Notifier 外部广播接口（Redis 桥等，可选）
type Notifier interface {
	Publish(ctx context.Context, channel string, message string) error
}

// Subscription 单个订单的进度订阅
// 终态快照送达后 C 会被关闭
type Subscription struct {
	C      <-chan Snapshot
	cancel func()
}

// Cancel 取消订阅（幂等）
func (s *Subscription) Cancel() {
	s.cancel()
}

// ProgressModule 进度发布模块
// 职责：
// 1. 按订单维护进度订阅，保证观察者按应用顺序收到每次迁移
// 2. 迟到的订阅者只收到其后的迁移（不回放历史）
// 3. 可选地将快照 JSON 广播到外部 Redis 频道
type ProgressModule struct {
	mu       sync.RWMutex
	subs     map[string]map[int64]chan Snapshot // orderID -> 订阅集合
	nextID   int64
	notifier Notifier
	logger   logger.Logger
}

// NewProgressModule 创建进度发布模块
// notifier 可为 nil（未配置 Redis 时进程内交付不受影响）
func NewProgressModule(log logger.Logger, notifier Notifier) *ProgressModule {
	return &ProgressModule{
		subs:     make(map[string]map[int64]chan Snapshot),
		notifier: notifier,
		logger:   log,
	}
}

// ChannelFor 订单进度的外部广播频道命名规则
func ChannelFor(orderID string) string {
	return fmt.Sprintf("content:progress:%s", orderID)
}

// Subscribe 订阅指定订单的后续进度
// 订阅时刻之前已应用的迁移不会补发
func (m *ProgressModule) Subscribe(orderID string) *Subscription {
	ch := make(chan Snapshot, subscriptionBuffer)

	m.mu.Lock()
	m.nextID++
	id := m.nextID
	if m.subs[orderID] == nil {
		m.subs[orderID] = make(map[int64]chan Snapshot)
	}
	m.subs[orderID][id] = ch
	m.mu.Unlock()

	// 只摘除不关闭：关闭动作只属于发布方（终态时），避免与在途发送竞争
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			m.mu.Lock()
			if set, ok := m.subs[orderID]; ok {
				delete(set, id)
				if len(set) == 0 {
					delete(m.subs, orderID)
				}
			}
			m.mu.Unlock()
		})
	}

	return &Subscription{
		C:      ch,
		cancel: cancel,
	}
}

// Publish 推送一次迁移快照
// 同一订单的发布方是串行的流水线协程，通道交付即保证顺序；
// 观察者缓冲占满时丢弃该快照并告警，绝不阻塞流水线
func (m *ProgressModule) Publish(ctx context.Context, snap Snapshot) {
	m.mu.RLock()
	channels := make([]chan Snapshot, 0, len(m.subs[snap.OrderID]))
	for _, ch := range m.subs[snap.OrderID] {
		channels = append(channels, ch)
	}
	m.mu.RUnlock()

	for _, ch := range channels {
		select {
		case ch <- snap:
		default:
			m.logger.Warnf(ctx, "[Progress] Observer buffer full, snapshot dropped: order_id=%s, status=%s, progress=%d",
				snap.OrderID, snap.Status, snap.Progress)
		}
	}

	// 外部广播（尽力而为）
	if m.notifier != nil {
		payload, err := json.Marshal(snap)
		if err != nil {
			m.logger.Errorf(ctx, "[Progress] Marshal snapshot failed: %v", err)
		} else if err := m.notifier.Publish(ctx, ChannelFor(snap.OrderID), string(payload)); err != nil {
			m.logger.Warnf(ctx, "[Progress] External notify failed: order_id=%s, error=%v", snap.OrderID, err)
		}
	}

	// 终态后关闭并移除该订单的所有订阅
	if snap.Terminal {
		m.closeOrder(snap.OrderID)
	}
}

// closeOrder 关闭订单的全部订阅通道
func (m *ProgressModule) closeOrder(orderID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, ch := range m.subs[orderID] {
		delete(m.subs[orderID], id)
		close(ch)
	}
	delete(m.subs, orderID)
}
