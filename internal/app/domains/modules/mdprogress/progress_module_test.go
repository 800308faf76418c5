package mdprogress

import (
	"context"
	"errors"
	"testing"
	"time"

	"cgp/internal/app/domains/entity/etorder"
	"cgp/internal/app/pkg/logger"
)

func snapshot(orderID string, status etorder.OrderStatus, progress int, terminal bool) Snapshot {
	return Snapshot{
		OrderID:   orderID,
		Status:    status,
		Progress:  progress,
		Terminal:  terminal,
		Timestamp: time.Now(),
	}
}

func TestPublish_OrderedDelivery(t *testing.T) {
	t.Parallel()

	m := NewProgressModule(logger.NopLogger{}, nil)
	sub := m.Subscribe("o1")

	ctx := context.Background()
	sequence := []Snapshot{
		snapshot("o1", etorder.OrderStatusGenerating, 10, false),
		snapshot("o1", etorder.OrderStatusGenerating, 20, false),
		snapshot("o1", etorder.OrderStatusChecking, 40, false),
		snapshot("o1", etorder.OrderStatusOptimizing, 70, false),
		snapshot("o1", etorder.OrderStatusCompleted, 100, true),
	}
	for _, s := range sequence {
		m.Publish(ctx, s)
	}

	// 同一订单串行发布，接收顺序必须与发布顺序一致
	for i, want := range sequence {
		got, ok := <-sub.C
		if !ok {
			t.Fatalf("channel closed early at index %d", i)
		}
		if got.Progress != want.Progress || got.Status != want.Status {
			t.Fatalf("snapshot %d out of order: got %s/%d, want %s/%d",
				i, got.Status, got.Progress, want.Status, want.Progress)
		}
	}

	// 终态送达后通道关闭
	if _, ok := <-sub.C; ok {
		t.Fatal("channel must be closed after terminal snapshot")
	}
}

func TestSubscribe_LateSubscriberMissesEarlierTransitions(t *testing.T) {
	t.Parallel()

	m := NewProgressModule(logger.NopLogger{}, nil)
	ctx := context.Background()

	m.Publish(ctx, snapshot("o1", etorder.OrderStatusGenerating, 10, false))
	m.Publish(ctx, snapshot("o1", etorder.OrderStatusGenerating, 20, false))

	sub := m.Subscribe("o1")
	m.Publish(ctx, snapshot("o1", etorder.OrderStatusChecking, 40, false))
	m.Publish(ctx, snapshot("o1", etorder.OrderStatusCompleted, 100, true))

	var got []int
	for snap := range sub.C {
		got = append(got, snap.Progress)
	}
	if len(got) != 2 || got[0] != 40 || got[1] != 100 {
		t.Fatalf("late subscriber must only see subsequent transitions, got %v", got)
	}
}

func TestSubscription_CancelStopsDelivery(t *testing.T) {
	t.Parallel()

	m := NewProgressModule(logger.NopLogger{}, nil)
	ctx := context.Background()

	sub := m.Subscribe("o1")
	m.Publish(ctx, snapshot("o1", etorder.OrderStatusGenerating, 10, false))
	sub.Cancel()
	sub.Cancel() // 幂等
	m.Publish(ctx, snapshot("o1", etorder.OrderStatusGenerating, 20, false))

	got := <-sub.C
	if got.Progress != 10 {
		t.Fatalf("expected buffered snapshot 10, got %d", got.Progress)
	}
	select {
	case snap, ok := <-sub.C:
		if ok {
			t.Fatalf("cancelled subscription received snapshot: %+v", snap)
		}
	default:
	}
}

func TestPublish_NoSubscribers(t *testing.T) {
	t.Parallel()

	m := NewProgressModule(logger.NopLogger{}, nil)

	// 无订阅者时发布不得阻塞或崩溃
	m.Publish(context.Background(), snapshot("o1", etorder.OrderStatusCompleted, 100, true))
}

func TestPublish_IsolatesOrders(t *testing.T) {
	t.Parallel()

	m := NewProgressModule(logger.NopLogger{}, nil)
	ctx := context.Background()

	subA := m.Subscribe("a")
	subB := m.Subscribe("b")

	m.Publish(ctx, snapshot("a", etorder.OrderStatusGenerating, 10, false))
	m.Publish(ctx, snapshot("b", etorder.OrderStatusFailed, 0, true))

	got := <-subA.C
	if got.OrderID != "a" || got.Progress != 10 {
		t.Fatalf("order a observer got wrong snapshot: %+v", got)
	}
	select {
	case snap := <-subA.C:
		t.Fatalf("order a observer leaked snapshot from another order: %+v", snap)
	default:
	}

	got = <-subB.C
	if got.OrderID != "b" || !got.Terminal {
		t.Fatalf("order b observer got wrong snapshot: %+v", got)
	}
	if _, ok := <-subB.C; ok {
		t.Fatal("order b channel must close after terminal snapshot")
	}
}

type recordingNotifier struct {
	channels []string
	payloads []string
	err      error
}

func (n *recordingNotifier) Publish(ctx context.Context, channel string, message string) error {
	n.channels = append(n.channels, channel)
	n.payloads = append(n.payloads, message)
	return n.err
}

func TestPublish_ExternalNotifier(t *testing.T) {
	t.Parallel()

	notifier := &recordingNotifier{}
	m := NewProgressModule(logger.NopLogger{}, notifier)

	m.Publish(context.Background(), snapshot("o1", etorder.OrderStatusGenerating, 10, false))

	if len(notifier.channels) != 1 {
		t.Fatalf("expected 1 external notification, got %d", len(notifier.channels))
	}
	if notifier.channels[0] != "content:progress:o1" {
		t.Fatalf("unexpected channel: %s", notifier.channels[0])
	}
	if notifier.payloads[0] == "" {
		t.Fatal("expected JSON payload")
	}
}

func TestPublish_NotifierFailureDoesNotBlockDelivery(t *testing.T) {
	t.Parallel()

	notifier := &recordingNotifier{err: errors.New("redis down")}
	m := NewProgressModule(logger.NopLogger{}, notifier)
	sub := m.Subscribe("o1")

	m.Publish(context.Background(), snapshot("o1", etorder.OrderStatusGenerating, 10, false))

	select {
	case got := <-sub.C:
		if got.Progress != 10 {
			t.Fatalf("unexpected snapshot: %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("in-process delivery must not depend on the external notifier")
	}
}
