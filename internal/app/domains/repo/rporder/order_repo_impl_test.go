package rporder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"cgp/internal/app/domains/entity/etorder"
	"cgp/internal/app/pkg/errorx"
)

func newOrder(t *testing.T, id string) *etorder.Order {
	t.Helper()
	order, err := etorder.NewOrder(id, "u1", "svc", etorder.Parameters{Length: 1000})
	if err != nil {
		t.Fatalf("new order: %v", err)
	}
	return order
}

func TestCreate_RejectsDuplicateID(t *testing.T) {
	t.Parallel()

	repo := NewMemoryOrderRepository()
	ctx := context.Background()

	if err := repo.Create(ctx, newOrder(t, "o1")); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if err := repo.Create(ctx, newOrder(t, "o1")); err == nil {
		t.Fatal("duplicate id must be rejected")
	}
}

func TestGetByID_NotFound(t *testing.T) {
	t.Parallel()

	repo := NewMemoryOrderRepository()
	if _, err := repo.GetByID(context.Background(), "missing"); !errors.Is(err, errorx.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestGetByID_ReturnsSnapshot(t *testing.T) {
	t.Parallel()

	repo := NewMemoryOrderRepository()
	ctx := context.Background()
	if err := repo.Create(ctx, newOrder(t, "o1")); err != nil {
		t.Fatal(err)
	}

	first, _ := repo.GetByID(ctx, "o1")
	first.Progress = 77
	first.ProcessingSteps = append(first.ProcessingSteps, etorder.Step{Message: "tampered"})

	second, _ := repo.GetByID(ctx, "o1")
	if second.Progress != 0 || len(second.ProcessingSteps) != 0 {
		t.Fatal("snapshot mutation must not affect the stored order")
	}
}

func TestList_NewestFirst(t *testing.T) {
	t.Parallel()

	repo := NewMemoryOrderRepository()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		order := newOrder(t, fmt.Sprintf("o%d", i))
		if err := repo.Create(ctx, order); err != nil {
			t.Fatal(err)
		}
	}

	orders, err := repo.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(orders) != 5 {
		t.Fatalf("expected 5 orders, got %d", len(orders))
	}

	// 同刻创建的订单按插入序号倒序（最新在前）
	for i := 0; i < len(orders)-1; i++ {
		if orders[i].CreatedAt.Before(orders[i+1].CreatedAt) {
			t.Fatalf("list must be newest first: %s before %s", orders[i].ID, orders[i+1].ID)
		}
	}
	if orders[0].ID != "o4" {
		t.Fatalf("expected newest order o4 first, got %s", orders[0].ID)
	}
}

func TestApplyTransition_AtomicSnapshotReturn(t *testing.T) {
	t.Parallel()

	repo := NewMemoryOrderRepository()
	ctx := context.Background()
	if err := repo.Create(ctx, newOrder(t, "o1")); err != nil {
		t.Fatal(err)
	}

	snap, err := repo.ApplyTransition(ctx, "o1", etorder.OrderStatusGenerating, 10, "processing started")
	if err != nil {
		t.Fatal(err)
	}
	if snap.Status != etorder.OrderStatusGenerating || snap.Progress != 10 {
		t.Fatalf("returned snapshot out of date: %s/%d", snap.Status, snap.Progress)
	}
	if len(snap.ProcessingSteps) != 1 {
		t.Fatalf("expected 1 step in snapshot, got %d", len(snap.ProcessingSteps))
	}
}

func TestApplyTransition_UnknownOrder(t *testing.T) {
	t.Parallel()

	repo := NewMemoryOrderRepository()
	_, err := repo.ApplyTransition(context.Background(), "missing", etorder.OrderStatusGenerating, 10, "x")
	if !errors.Is(err, errorx.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestCompleteAndFail_TerminalInvariants(t *testing.T) {
	t.Parallel()

	repo := NewMemoryOrderRepository()
	ctx := context.Background()
	repo.Create(ctx, newOrder(t, "ok"))
	repo.Create(ctx, newOrder(t, "bad"))

	done, err := repo.Complete(ctx, "ok", "text", etorder.QualityMetrics{Uniqueness: 90}, "completed")
	if err != nil {
		t.Fatal(err)
	}
	if done.Status != etorder.OrderStatusCompleted || done.Result != "text" || done.QualityMetrics == nil {
		t.Fatalf("unexpected completed snapshot: %+v", done)
	}
	if done.ErrorMessage != "" {
		t.Fatal("completed order must not have error message")
	}

	failed, err := repo.Fail(ctx, "bad", "upstream down", "processing failed")
	if err != nil {
		t.Fatal(err)
	}
	if failed.Status != etorder.OrderStatusFailed || failed.ErrorMessage != "upstream down" {
		t.Fatalf("unexpected failed snapshot: %+v", failed)
	}
	if failed.Result != "" || failed.QualityMetrics != nil {
		t.Fatal("failed order must not have result or metrics")
	}
}

// 并发写不同订单、并发读全量列表，不应出现竞态或撕裂快照
func TestConcurrentTransitions(t *testing.T) {
	t.Parallel()

	repo := NewMemoryOrderRepository()
	ctx := context.Background()

	const orders = 8
	for i := 0; i < orders; i++ {
		if err := repo.Create(ctx, newOrder(t, fmt.Sprintf("o%d", i))); err != nil {
			t.Fatal(err)
		}
	}

	var wg sync.WaitGroup
	for i := 0; i < orders; i++ {
		orderID := fmt.Sprintf("o%d", i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			steps := []struct {
				status   etorder.OrderStatus
				progress int
			}{
				{etorder.OrderStatusGenerating, 10},
				{etorder.OrderStatusGenerating, 20},
				{etorder.OrderStatusChecking, 40},
				{etorder.OrderStatusOptimizing, 70},
			}
			for _, s := range steps {
				if _, err := repo.ApplyTransition(ctx, orderID, s.status, s.progress, "step"); err != nil {
					t.Errorf("transition %s: %v", orderID, err)
					return
				}
				time.Sleep(time.Millisecond)
			}
		}()
	}

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		for i := 0; i < 50; i++ {
			list, err := repo.List(ctx)
			if err != nil {
				t.Errorf("list: %v", err)
				return
			}
			for _, o := range list {
				// 快照内进度与日志必须自洽（进度回退视为撕裂）
				last := 0
				for range o.ProcessingSteps {
					last++
				}
				if o.Progress < 0 || last > 4 {
					t.Errorf("torn snapshot: %s progress=%d steps=%d", o.ID, o.Progress, last)
					return
				}
			}
			time.Sleep(time.Millisecond)
		}
	}()

	wg.Wait()
	<-readDone

	for i := 0; i < orders; i++ {
		o, err := repo.GetByID(ctx, fmt.Sprintf("o%d", i))
		if err != nil {
			t.Fatal(err)
		}
		if o.Progress != 70 || len(o.ProcessingSteps) != 4 {
			t.Fatalf("order %s final state wrong: progress=%d steps=%d", o.ID, o.Progress, len(o.ProcessingSteps))
		}
	}
}
