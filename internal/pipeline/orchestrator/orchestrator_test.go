package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"cgp/internal/app/config"
	"cgp/internal/app/domains/entity/etorder"
	"cgp/internal/app/domains/modules/mdprogress"
	"cgp/internal/app/domains/repo/rporder"
	"cgp/internal/app/domains/repo/rpservice"
	"cgp/internal/app/pkg/errorx"
	"cgp/internal/app/pkg/logger"
	"cgp/internal/pipeline/ports"
)

// stubCollaborators 计数型协作方桩
// 查重得分按 checkScores 逐次返回，耗尽后重复最后一个
type stubCollaborators struct {
	mu sync.Mutex

	generateCalls int
	checkCalls    int
	rewriteCalls  int
	seoCalls      int
	humanizeCalls int
	scoreCalls    int

	checkScores []float64
	generateErr error
	checkErr    error
	rewriteErr  error

	// 生成阶段阻塞直到该通道关闭（取消测试用），nil 表示不阻塞
	generateGate chan struct{}
}

func (s *stubCollaborators) Generate(ctx context.Context, prompt string, constraints ports.GenerationConstraints) (string, error) {
	s.mu.Lock()
	s.generateCalls++
	gate := s.generateGate
	err := s.generateErr
	s.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err != nil {
		return "", err
	}
	return "generated:" + prompt, nil
}

func (s *stubCollaborators) Check(ctx context.Context, text string) (*ports.UniquenessReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.checkErr != nil {
		s.checkCalls++
		return nil, s.checkErr
	}

	idx := s.checkCalls
	if idx >= len(s.checkScores) {
		idx = len(s.checkScores) - 1
	}
	s.checkCalls++

	return &ports.UniquenessReport{
		Score: s.checkScores[idx],
		DuplicateFragments: []ports.Fragment{
			{Text: "duplicated passage", Sources: []string{"https://example.com/a"}},
		},
	}, nil
}

func (s *stubCollaborators) Rewrite(ctx context.Context, text string, fragments []ports.Fragment) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rewriteCalls++
	if s.rewriteErr != nil {
		return "", s.rewriteErr
	}
	return "rewritten:" + text, nil
}

func (s *stubCollaborators) Optimize(ctx context.Context, text string, params ports.SEOParams) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seoCalls++
	return "seo:" + text, nil
}

func (s *stubCollaborators) Humanize(ctx context.Context, text string, settings ports.HumanizeSettings) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.humanizeCalls++
	return "human:" + text, nil
}

func (s *stubCollaborators) Score(ctx context.Context, text string, keywords string) (*ports.QualityMetrics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scoreCalls++
	return &ports.QualityMetrics{
		Uniqueness:       91,
		Readability:      88,
		SEOScore:         76,
		GrammarScore:     95,
		AIDetectionScore: 30,
	}, nil
}

func (s *stubCollaborators) counts() (generate, check, rewrite, seo, humanize, score int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generateCalls, s.checkCalls, s.rewriteCalls, s.seoCalls, s.humanizeCalls, s.scoreCalls
}

// testEnv 流水线测试夹具
type testEnv struct {
	orders   *rporder.MemoryOrderRepository
	progress *mdprogress.ProgressModule
	collab   *stubCollaborators
	orch     *Orchestrator
}

func newTestEnv(t *testing.T, collab *stubCollaborators) *testEnv {
	t.Helper()

	services := rpservice.NewConfigServiceRepository([]config.ServiceConfig{
		{
			ID:                  "seo-article",
			Name:                "SEO长文",
			PromptTemplate:      "Write about {topic} in {tone} tone, {length} characters",
			UniquenessThreshold: 85,
			SEO:                 config.SEOConfig{Enabled: true, KeywordDensity: 2.5, AddHeadings: true, InternalLinkCount: 2},
			Humanize:            config.HumanizeConfig{Enabled: true, Level: "medium", Variability: 0.5},
		},
		{
			ID:                  "plain-text",
			Name:                "纯文本",
			PromptTemplate:      "Write about {topic}",
			UniquenessThreshold: 85,
		},
	})

	orders := rporder.NewMemoryOrderRepository()
	progress := mdprogress.NewProgressModule(logger.NopLogger{}, nil)

	return &testEnv{
		orders:   orders,
		progress: progress,
		collab:   collab,
		orch: NewOrchestrator(orders, services, ports.Collaborators{
			Generator: collab,
			Checker:   collab,
			Rewriter:  collab,
			SEO:       collab,
			Humanizer: collab,
			Scorer:    collab,
		}, progress, 5*time.Second, logger.NopLogger{}),
	}
}

func (e *testEnv) createOrder(t *testing.T, id, serviceID string) {
	t.Helper()
	order, err := etorder.NewOrder(id, "u1", serviceID, etorder.Parameters{
		Topic:    "go concurrency",
		Length:   2000,
		Tone:     "professional",
		Keywords: "goroutine,channel",
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := e.orders.Create(context.Background(), order); err != nil {
		t.Fatal(err)
	}
}

func collectSnapshots(sub *mdprogress.Subscription) []mdprogress.Snapshot {
	var out []mdprogress.Snapshot
	for snap := range sub.C {
		out = append(out, snap)
	}
	return out
}

func TestRun_HappyPathProgressSequence(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, &stubCollaborators{checkScores: []float64{92}})
	env.createOrder(t, "o1", "seo-article")
	sub := env.progress.Subscribe("o1")

	if err := env.orch.Run(context.Background(), "o1"); err != nil {
		t.Fatalf("run: %v", err)
	}

	snaps := collectSnapshots(sub)
	wantProgress := []int{10, 20, 40, 70, 85, 95, 100}
	if len(snaps) != len(wantProgress) {
		t.Fatalf("expected %d snapshots, got %d: %+v", len(wantProgress), len(snaps), snaps)
	}
	for i, want := range wantProgress {
		if snaps[i].Progress != want {
			t.Fatalf("snapshot %d: progress %d, want %d", i, snaps[i].Progress, want)
		}
		if i > 0 && snaps[i].Progress < snaps[i-1].Progress {
			t.Fatalf("progress decreased: %d -> %d", snaps[i-1].Progress, snaps[i].Progress)
		}
	}

	// 终态快照唯一且是最后一个
	for i, snap := range snaps {
		if snap.Terminal != (i == len(snaps)-1) {
			t.Fatalf("snapshot %d terminal flag wrong: %+v", i, snap)
		}
	}

	order, err := env.orders.GetByID(context.Background(), "o1")
	if err != nil {
		t.Fatal(err)
	}
	if order.Status != etorder.OrderStatusCompleted {
		t.Fatalf("expected completed, got %s", order.Status)
	}

	// SEO 作用于生成文本，拟人化作用于 SEO 优化后的文本
	if order.Result != "human:seo:generated:Write about go concurrency in professional tone, 2000 characters" {
		t.Fatalf("unexpected result: %s", order.Result)
	}
	if order.QualityMetrics == nil || order.QualityMetrics.Uniqueness != 91 {
		t.Fatalf("quality metrics not recorded: %+v", order.QualityMetrics)
	}
	if order.CompletedAt == nil {
		t.Fatal("completed order must have CompletedAt")
	}
}

func TestRun_ScoreAboveThresholdSkipsRewrite(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, &stubCollaborators{checkScores: []float64{92}})
	env.createOrder(t, "o1", "seo-article")

	if err := env.orch.Run(context.Background(), "o1"); err != nil {
		t.Fatal(err)
	}

	_, check, rewrite, _, _, _ := env.collab.counts()
	if check != 1 {
		t.Fatalf("expected 1 uniqueness check, got %d", check)
	}
	if rewrite != 0 {
		t.Fatalf("score above threshold must skip rewrite, got %d calls", rewrite)
	}
}

func TestRun_BelowThresholdRewritesExactlyOnce(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, &stubCollaborators{checkScores: []float64{60, 90}})
	env.createOrder(t, "o1", "seo-article")
	sub := env.progress.Subscribe("o1")

	if err := env.orch.Run(context.Background(), "o1"); err != nil {
		t.Fatal(err)
	}

	_, check, rewrite, _, _, _ := env.collab.counts()
	if rewrite != 1 {
		t.Fatalf("expected exactly 1 rewrite, got %d", rewrite)
	}
	if check != 2 {
		t.Fatalf("expected 2 uniqueness checks (initial + recheck), got %d", check)
	}

	// 改写分支会出现 progress=50 的迁移
	snaps := collectSnapshots(sub)
	wantProgress := []int{10, 20, 40, 50, 70, 85, 95, 100}
	if len(snaps) != len(wantProgress) {
		t.Fatalf("expected %d snapshots, got %d", len(wantProgress), len(snaps))
	}
	for i, want := range wantProgress {
		if snaps[i].Progress != want {
			t.Fatalf("snapshot %d: progress %d, want %d", i, snaps[i].Progress, want)
		}
	}
}

func TestRun_SecondScoreAcceptedUnconditionally(t *testing.T) {
	t.Parallel()

	// 复查得分仍低于阈值，也只允许一次改写，订单照常完成
	env := newTestEnv(t, &stubCollaborators{checkScores: []float64{60, 62}})
	env.createOrder(t, "o1", "seo-article")

	if err := env.orch.Run(context.Background(), "o1"); err != nil {
		t.Fatal(err)
	}

	_, check, rewrite, _, _, score := env.collab.counts()
	if rewrite != 1 || check != 2 {
		t.Fatalf("expected 1 rewrite / 2 checks, got %d / %d", rewrite, check)
	}
	if score != 1 {
		t.Fatal("pipeline must continue to scoring after the single rewrite cycle")
	}

	order, _ := env.orders.GetByID(context.Background(), "o1")
	if order.Status != etorder.OrderStatusCompleted {
		t.Fatalf("expected completed, got %s", order.Status)
	}
}

func TestRun_UnknownServiceFailsBeforeAnyCall(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, &stubCollaborators{checkScores: []float64{92}})
	env.createOrder(t, "o1", "no-such-service")

	err := env.orch.Run(context.Background(), "o1")
	if !errors.Is(err, errorx.ErrTemplateNotFound) {
		t.Fatalf("expected ErrTemplateNotFound, got %v", err)
	}

	order, _ := env.orders.GetByID(context.Background(), "o1")
	if order.Status != etorder.OrderStatusFailed {
		t.Fatalf("expected failed, got %s", order.Status)
	}
	if order.Progress != 0 {
		t.Fatalf("progress must stay 0 on unknown service, got %d", order.Progress)
	}
	if !strings.Contains(order.ErrorMessage, "template") {
		t.Fatalf("error message must mention template: %q", order.ErrorMessage)
	}

	generate, check, rewrite, seo, humanize, score := env.collab.counts()
	if generate+check+rewrite+seo+humanize+score != 0 {
		t.Fatal("no collaborator may be called when service config is missing")
	}
}

func TestRun_GenerationFailureStopsDownstream(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, &stubCollaborators{
		checkScores: []float64{92},
		generateErr: errors.New("upstream 503"),
	})
	env.createOrder(t, "o1", "seo-article")

	err := env.orch.Run(context.Background(), "o1")
	var collabErr *errorx.CollaboratorError
	if !errors.As(err, &collabErr) {
		t.Fatalf("expected CollaboratorError, got %v", err)
	}
	if collabErr.Stage != "generation" {
		t.Fatalf("expected generation stage, got %s", collabErr.Stage)
	}

	order, _ := env.orders.GetByID(context.Background(), "o1")
	if order.Status != etorder.OrderStatusFailed {
		t.Fatalf("expected failed, got %s", order.Status)
	}
	// 进度停在最后一次成功迁移（模板解析完成）
	if order.Progress != 20 {
		t.Fatalf("progress must keep last successful value 20, got %d", order.Progress)
	}
	if order.ErrorMessage == "" {
		t.Fatal("failed order must carry an error message")
	}

	_, check, rewrite, seo, humanize, score := env.collab.counts()
	if check+rewrite+seo+humanize+score != 0 {
		t.Fatal("generation failure must not trigger downstream collaborators")
	}
}

func TestRun_OptionalStagesSkippedWhenDisabled(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, &stubCollaborators{checkScores: []float64{92}})
	env.createOrder(t, "o1", "plain-text")
	sub := env.progress.Subscribe("o1")

	if err := env.orch.Run(context.Background(), "o1"); err != nil {
		t.Fatal(err)
	}

	_, _, _, seo, humanize, _ := env.collab.counts()
	if seo != 0 || humanize != 0 {
		t.Fatalf("disabled stages must not be called: seo=%d humanize=%d", seo, humanize)
	}

	snaps := collectSnapshots(sub)
	for _, snap := range snaps {
		if snap.Progress == 85 || snap.Progress == 95 {
			t.Fatalf("skipped stage must not publish its progress point: %+v", snap)
		}
	}
	last := snaps[len(snaps)-1]
	if last.Progress != 100 || last.Status != etorder.OrderStatusCompleted {
		t.Fatalf("unexpected terminal snapshot: %+v", last)
	}
}

func TestRun_CancellationMarksOrderCancelled(t *testing.T) {
	t.Parallel()

	gate := make(chan struct{})
	defer close(gate)

	env := newTestEnv(t, &stubCollaborators{
		checkScores:  []float64{92},
		generateGate: gate,
	})
	env.createOrder(t, "o1", "seo-article")

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- env.orch.Run(ctx, "o1")
	}()

	// 等生成阶段挂起后再取消
	deadline := time.After(2 * time.Second)
	for {
		generate, _, _, _, _, _ := env.collab.counts()
		if generate > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("generation never started")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()

	err := <-errCh
	if !errorx.IsCancelled(err) {
		t.Fatalf("expected cancellation, got %v", err)
	}

	order, _ := env.orders.GetByID(context.Background(), "o1")
	if order.Status != etorder.OrderStatusFailed {
		t.Fatalf("expected failed, got %s", order.Status)
	}
	if !strings.Contains(order.ErrorMessage, "cancelled") {
		t.Fatalf("error message must mention cancellation: %q", order.ErrorMessage)
	}
	if order.Progress != 20 {
		t.Fatalf("progress must keep last successful value 20, got %d", order.Progress)
	}
}

func TestRun_TerminalOrderRejected(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, &stubCollaborators{checkScores: []float64{92}})
	env.createOrder(t, "o1", "seo-article")

	if err := env.orch.Run(context.Background(), "o1"); err != nil {
		t.Fatal(err)
	}
	if err := env.orch.Run(context.Background(), "o1"); !errors.Is(err, errorx.ErrOrderTerminal) {
		t.Fatalf("expected ErrOrderTerminal on rerun, got %v", err)
	}
}

func TestRun_ConcurrentOrdersIsolated(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, &stubCollaborators{checkScores: []float64{92}})

	const n = 4
	for i := 0; i < n; i++ {
		env.createOrder(t, fmt.Sprintf("o%d", i), "seo-article")
	}

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		orderID := fmt.Sprintf("o%d", i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := env.orch.Run(context.Background(), orderID); err != nil {
				t.Errorf("run %s: %v", orderID, err)
			}
		}()
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		order, err := env.orders.GetByID(context.Background(), fmt.Sprintf("o%d", i))
		if err != nil {
			t.Fatal(err)
		}
		if order.Status != etorder.OrderStatusCompleted || order.Progress != 100 {
			t.Fatalf("order %s not isolated: %s/%d", order.ID, order.Status, order.Progress)
		}
		if len(order.ProcessingSteps) != 7 {
			t.Fatalf("order %s expected 7 steps, got %d", order.ID, len(order.ProcessingSteps))
		}
	}
}
