package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kcard-data/metrics-quality/internal/app"
	"github.com/kcard-data/metrics-quality/internal/config"
	"github.com/kcard-data/metrics-quality/internal/model"
	"github.com/kcard-data/metrics-quality/internal/repository"
	"github.com/kcard-data/metrics-quality/internal/seed"
	"github.com/kcard-data/metrics-quality/pkg/logger"
)

func main() {
	once := flag.Bool("once", false, "run a single quality run and exit (exit 1 on CRITICAL)")
	seedDemo := flag.Bool("seed", false, "load synthetic demo facts and exit")
	seedVal := flag.Int64("seed-value", 42, "random seed for -seed")
	seedMonths := flag.Int("seed-months", 24, "number of months to generate for -seed")
	flag.Parse()

	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// 初始化日志
	if err := logger.Init(&logger.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		ServiceName: cfg.Service.Name,
	}); err != nil {
		panic("failed to init logger: " + err.Error())
	}
	defer logger.Sync()

	logger.Info("starting service",
		zap.String("service", cfg.Service.Name),
		zap.Int("http_port", cfg.Service.HTTPPort))

	application := app.New(cfg)

	if *seedDemo {
		runSeed(application, *seedVal, *seedMonths)
		return
	}
	if *once {
		runOnce(application)
		return
	}

	// 常驻模式: 调度器 + HTTP 服务
	if err := application.Run(); err != nil {
		logger.Fatal("failed to start application", zap.Error(err))
	}

	// 等待关闭信号
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received shutdown signal", zap.String("signal", sig.String()))

	// 优雅关闭
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := application.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}

	logger.Info("service stopped")
}

// runOnce 同步执行一次质量运行
// CRITICAL 结论或运行失败以退出码 1 结束，供批处理编排感知
func runOnce(application *app.App) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	overall, err := application.RunOnce(ctx)
	shutdownApp(application)

	if err != nil {
		logger.Error("quality run failed", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
	logger.Info("quality run finished", zap.String("overall_status", overall))
	if overall == model.OverallCritical {
		logger.Sync()
		os.Exit(1)
	}
}

// runSeed 写入合成演示事实，最后一个生成月为上一个自然月
func runSeed(application *app.App, seedVal int64, months int) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	now := time.Now().UTC()
	last := time.Date(now.Year(), now.Month()-1, 1, 0, 0, 0, 0, time.UTC)
	err := application.SeedFacts(ctx, func(ctx context.Context, factRepo *repository.FactRepository) error {
		return seed.Load(ctx, factRepo, seedVal, months, last)
	})
	shutdownApp(application)

	if err != nil {
		logger.Error("failed to seed demo facts", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
	logger.Info("demo facts loaded",
		zap.Int64("seed", seedVal),
		zap.Int("months", months))
}

func shutdownApp(application *app.App) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := application.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
}
