package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cgp/internal/app/config"
	"cgp/internal/app/domains/modules/mdprogress"
	"cgp/internal/app/domains/repo/rporder"
	"cgp/internal/app/domains/repo/rpservice"
	"cgp/internal/app/domains/services/svorder"
	orderhandler "cgp/internal/app/server/handlers/order"
	"cgp/internal/app/server/routers"
	"cgp/internal/app/infra/collab/textsvc"
	"cgp/internal/app/infra/persistence/redis"
	"cgp/internal/app/pkg/logger"
	"cgp/internal/pipeline/orchestrator"
	"cgp/internal/pipeline/runner"
)

var (
	configPath = flag.String("config", "./config/config.yaml", "配置文件路径")
)

func main() {
	flag.Parse()

	// 1. 加载配置
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Config validation failed: %v", err)
	}

	log.Printf("Config loaded: %s, env: %s, services: %d", cfg.App.Name, cfg.App.Env, len(cfg.Services))

	// 2. 初始化 Logger
	zapLogger, err := logger.NewZapLogger(cfg.App.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zapLogger.Sync()

	// 3. 初始化进度广播桥（Redis 可选）
	var notifier mdprogress.Notifier
	if cfg.Redis.Addr != "" {
		pubsub, err := redis.NewPubSubClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Fatalf("Failed to connect redis: %v", err)
		}
		defer pubsub.Close()
		notifier = pubsub
		log.Printf("Redis progress bridge enabled: %s", cfg.Redis.Addr)
	}

	// 4. 组装依赖
	orderRepo := rporder.NewMemoryOrderRepository()
	serviceRepo := rpservice.NewConfigServiceRepository(cfg.Services)
	progressModule := mdprogress.NewProgressModule(zapLogger, notifier)

	collabClient := textsvc.NewClient(textsvc.Config{
		BaseURL:      cfg.Collaborators.BaseURL,
		Timeout:      cfg.Collaborators.Timeout,
		PollAttempts: cfg.Collaborators.Uniqueness.PollAttempts,
		PollInterval: cfg.Collaborators.Uniqueness.PollInterval,
	})

	orch := orchestrator.NewOrchestrator(
		orderRepo,
		serviceRepo,
		collabClient.Collaborators(),
		progressModule,
		cfg.Pipeline.StageTimeout,
		zapLogger,
	)

	runManager := runner.NewManager(cfg.Pipeline.MaxConcurrentRuns, zapLogger)

	orderService := svorder.NewOrderService(orderRepo, orch, runManager, progressModule, zapLogger)

	// 5. 创建 HTTP Server
	orderHandler := orderhandler.NewOrderHandler(orderService)
	engine := routers.SetupRoutes(orderHandler)

	addr := fmt.Sprintf(":%s", cfg.Server.Port)
	server := &http.Server{
		Addr:    addr,
		Handler: engine,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		log.Printf("Starting HTTP server on %s", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrChan <- err
		}
	}()

	// 6. 优雅停机处理
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
		log.Println("Received shutdown signal, gracefully shutting down...")
		gracefulShutdown(server, runManager)
	case err := <-serverErrChan:
		log.Fatalf("HTTP server error: %v", err)
	}

	log.Println("Application stopped")
}

// gracefulShutdown 优雅停机
func gracefulShutdown(server *http.Server, runManager *runner.Manager) {
	// 1. 停止 HTTP Server（不再接收新订单）
	log.Println("Stopping HTTP server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	} else {
		log.Println("HTTP server stopped gracefully")
	}

	// 2. 取消在途流水线并等待落库
	log.Println("Stopping pipeline runner...")
	runManager.Shutdown()

	log.Println("All services stopped gracefully")
}
