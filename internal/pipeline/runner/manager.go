package runner

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/atomic"
	"golang.org/x/sync/semaphore"

	"cgp/internal/app/pkg/errorx"
	"cgp/internal/app/pkg/logger"
)

// RunFunc 单次流水线运行函数
type RunFunc func(ctx context.Context)

// Manager 运行管理器
// 职责：
// 1. 每个订单一个独立协程 + 可取消 Context（调用方持有取消句柄）
// 2. 同一订单不允许并发运行
// 3. 信号量限制同时运行的流水线数量
// 4. 优雅退出：取消全部在途运行并等待收尾
type Manager struct {
	ctx     context.Context
	sem     *semaphore.Weighted
	mu      sync.Mutex
	runs    map[string]*run
	closing *atomic.Bool
	wg      sync.WaitGroup
	logger  logger.Logger
}

// run 单个在途运行
type run struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// NewManager 创建运行管理器
// maxConcurrent 为同时运行的流水线数量上限
func NewManager(maxConcurrent int64, log logger.Logger) *Manager {
	if maxConcurrent <= 0 {
		maxConcurrent = 32
	}
	return &Manager{
		ctx:     context.Background(),
		sem:     semaphore.NewWeighted(maxConcurrent),
		runs:    make(map[string]*run),
		closing: atomic.NewBool(false),
		logger:  log,
	}
}

// StartRun 启动一次订单运行，立即返回
// 同一订单已有在途运行时返回 ErrAlreadyRunning
func (m *Manager) StartRun(orderID string, fn RunFunc) error {
	if m.closing.Load() {
		return fmt.Errorf("runner is shutting down")
	}

	runCtx, cancel := context.WithCancel(m.ctx)

	m.mu.Lock()
	if _, exists := m.runs[orderID]; exists {
		m.mu.Unlock()
		cancel()
		return errorx.ErrAlreadyRunning
	}
	r := &run{
		cancel: cancel,
		done:   make(chan struct{}),
	}
	m.runs[orderID] = r
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer close(r.done)
		defer cancel()
		defer func() {
			m.mu.Lock()
			delete(m.runs, orderID)
			m.mu.Unlock()
		}()

		// 并发上限：取消发生在排队期间时直接放弃
		if err := m.sem.Acquire(runCtx, 1); err != nil {
			m.logger.Warnf(runCtx, "[Runner] Run aborted while queued: order_id=%s, error=%v", orderID, err)
			fn(runCtx) // 仍调用一次，让流水线以 Cancelled 终态落库
			return
		}
		defer m.sem.Release(1)

		fn(runCtx)
	}()

	return nil
}

// Cancel 取消指定订单的在途运行
// 返回是否存在在途运行
func (m *Manager) Cancel(orderID string) bool {
	m.mu.Lock()
	r, ok := m.runs[orderID]
	m.mu.Unlock()

	if !ok {
		return false
	}

	m.logger.Infof(context.Background(), "[Runner] Cancelling run: order_id=%s", orderID)
	r.cancel()
	return true
}

// IsRunning 指定订单是否有在途运行
func (m *Manager) IsRunning(orderID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.runs[orderID]
	return ok
}

// Wait 等待指定订单的在途运行结束（无在途运行时立即返回）
func (m *Manager) Wait(orderID string) {
	m.mu.Lock()
	r, ok := m.runs[orderID]
	m.mu.Unlock()

	if ok {
		<-r.done
	}
}

// Shutdown 优雅退出
// 原子翻转 closing，取消全部在途运行并等待收尾
func (m *Manager) Shutdown() {
	if !m.closing.CAS(false, true) {
		return
	}

	m.logger.Infof(context.Background(), "[Runner] Began to close")

	m.mu.Lock()
	for orderID, r := range m.runs {
		m.logger.Infof(context.Background(), "[Runner] Cancelling run for shutdown: order_id=%s", orderID)
		r.cancel()
	}
	m.mu.Unlock()

	m.wg.Wait()
	m.logger.Infof(context.Background(), "[Runner] Shutdown complete")
}
