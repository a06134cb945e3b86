// Package app 提供数据质量服务的应用入口
//
// ## 服务信息
// - 服务名: metrics-quality
// - HTTP 端口: 8080 (查询接口 + /metrics)
// - 数据库: metrics_quality (PostgreSQL)
//
// ## 依赖服务
// - PostgreSQL: 事实表、派生指标表、校验结果、运行记录
// - Redis: 任务分布式锁 (可选，未配置时按单实例运行)
// - Slack Webhook: 校验失败告警 (可选)
//
// ## 任务列表
// 1. quality_run: 指标重建 + 交叉校验 + 告警 + 报告导出 (每日凌晨4点)
// 2. report_cleanup: 过期报告与运行记录清理 (每日凌晨4点半)
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/kcard-data/metrics-quality/internal/alert"
	"github.com/kcard-data/metrics-quality/internal/checks"
	"github.com/kcard-data/metrics-quality/internal/config"
	"github.com/kcard-data/metrics-quality/internal/handler"
	"github.com/kcard-data/metrics-quality/internal/jobs"
	"github.com/kcard-data/metrics-quality/internal/pipeline"
	"github.com/kcard-data/metrics-quality/internal/report"
	"github.com/kcard-data/metrics-quality/internal/repository"
	"github.com/kcard-data/metrics-quality/internal/scheduler"
	"github.com/kcard-data/metrics-quality/internal/summary"
	"github.com/kcard-data/metrics-quality/pkg/logger"
)

// App 数据质量服务应用
type App struct {
	cfg *config.Config

	// 基础设施
	db          *gorm.DB
	redisClient redis.UniversalClient
	httpServer  *http.Server

	// 调度器
	scheduler *scheduler.Scheduler

	// 仓储层
	factRepo   *repository.FactRepository
	metricRepo *repository.MetricRepository
	resultRepo *repository.CheckResultRepository
	runRepo    *repository.RunRepository

	// 业务组件
	pipeline *pipeline.Pipeline
	engine   *checks.Engine
	agg      *summary.Aggregator
	exporter *report.Exporter
	notifier alert.Notifier

	// 上下文
	ctx    context.Context
	cancel context.CancelFunc
}

// New 创建应用实例
func New(cfg *config.Config) *App {
	ctx, cancel := context.WithCancel(context.Background())
	return &App{
		cfg:    cfg,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Run 启动应用
func (a *App) Run() error {
	// 1. 初始化数据库
	if err := a.initDB(); err != nil {
		return fmt.Errorf("failed to init database: %w", err)
	}

	// 2. 初始化 Redis (可选)
	if err := a.initRedis(); err != nil {
		return fmt.Errorf("failed to init redis: %w", err)
	}

	// 3. 初始化仓储层与业务组件
	a.initRepositories()
	a.initComponents()

	// 4. 初始化调度器并注册任务
	a.initScheduler()
	if err := a.registerJobs(); err != nil {
		return fmt.Errorf("failed to register jobs: %w", err)
	}

	// 5. 启动调度器
	a.scheduler.Start()

	// 6. 启动 HTTP 服务
	a.startHTTP()

	return nil
}

// RunOnce 同步执行一次质量运行并返回整体结论，供命令行 -once 模式使用
// 不启动调度与 HTTP 服务
func (a *App) RunOnce(ctx context.Context) (string, error) {
	if err := a.initDB(); err != nil {
		return "", fmt.Errorf("failed to init database: %w", err)
	}
	if err := a.initRedis(); err != nil {
		return "", fmt.Errorf("failed to init redis: %w", err)
	}
	a.initRepositories()
	a.initComponents()
	a.initScheduler()
	if err := a.registerJobs(); err != nil {
		return "", fmt.Errorf("failed to register jobs: %w", err)
	}

	exec, err := a.scheduler.RunJobOnce(ctx, scheduler.JobNameQualityRun)
	if err != nil {
		return "", err
	}
	return exec.OverallStatus(), nil
}

// SeedFacts 生成并写入合成事实数据，供命令行 -seed 模式使用
func (a *App) SeedFacts(ctx context.Context, seedFn func(ctx context.Context, factRepo *repository.FactRepository) error) error {
	if err := a.initDB(); err != nil {
		return fmt.Errorf("failed to init database: %w", err)
	}
	a.initRepositories()
	return seedFn(ctx, a.factRepo)
}

// Shutdown 优雅关闭
func (a *App) Shutdown(ctx context.Context) error {
	logger.Info("shutting down quality service...")

	if a.httpServer != nil {
		if err := a.httpServer.Shutdown(ctx); err != nil {
			logger.Error("http shutdown error", zap.Error(err))
		}
	}

	if a.scheduler != nil {
		a.scheduler.Stop()
	}

	if a.redisClient != nil {
		a.redisClient.Close()
	}

	if a.db != nil {
		sqlDB, _ := a.db.DB()
		if sqlDB != nil {
			sqlDB.Close()
		}
	}

	a.cancel()
	logger.Info("quality service stopped")
	return nil
}

// initDB 初始化数据库
func (a *App) initDB() error {
	gormConfig := &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	}

	db, err := gorm.Open(postgres.Open(a.cfg.Postgres.DSN()), gormConfig)
	if err != nil {
		return err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return err
	}

	sqlDB.SetMaxOpenConns(a.cfg.Postgres.MaxConnections)
	sqlDB.SetMaxIdleConns(a.cfg.Postgres.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(a.cfg.Postgres.ConnMaxLifetimeMinutes) * time.Minute)

	a.db = db
	logger.Info("database connected",
		zap.String("host", a.cfg.Postgres.Host),
		zap.String("database", a.cfg.Postgres.Database))

	if err := AutoMigrate(a.db); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	logger.Info("database migrated")

	return nil
}

// initRedis 初始化 Redis
// Host 未配置时跳过，分布式锁整体停用
func (a *App) initRedis() error {
	if a.cfg.Redis.Host == "" {
		logger.Warn("redis not configured, distributed lock disabled")
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     a.cfg.Redis.Addr(),
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
		PoolSize: a.cfg.Redis.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return err
	}

	a.redisClient = client
	logger.Info("redis connected",
		zap.String("host", a.cfg.Redis.Host),
		zap.Int("db", a.cfg.Redis.DB))

	return nil
}

// initRepositories 初始化仓储层
func (a *App) initRepositories() {
	a.factRepo = repository.NewFactRepository(a.db)
	a.metricRepo = repository.NewMetricRepository(a.db)
	a.resultRepo = repository.NewCheckResultRepository(a.db)
	a.runRepo = repository.NewRunRepository(a.db)

	logger.Info("repositories initialized")
}

// initComponents 初始化派生管道、校验引擎、汇总与告警
func (a *App) initComponents() {
	a.pipeline = pipeline.New(a.factRepo, a.metricRepo, a.cfg.Thresholds)
	a.engine = checks.NewEngine(a.factRepo, a.metricRepo, a.resultRepo, a.cfg.Thresholds)
	a.agg = summary.New(a.resultRepo)
	a.exporter = report.NewExporter(a.agg, a.cfg.Reporting)

	if a.cfg.Alerting.WebhookURL != "" {
		a.notifier = alert.NewSlackNotifier(a.cfg.Alerting)
		logger.Info("slack notifier enabled", zap.String("channel", a.cfg.Alerting.Channel))
	} else {
		a.notifier = alert.NopNotifier{}
		logger.Warn("webhook not configured, alerts will only be logged")
	}
}

// initScheduler 初始化调度器
func (a *App) initScheduler() {
	a.scheduler = scheduler.New(
		&scheduler.Config{
			MaxConcurrentJobs: a.cfg.Scheduler.MaxConcurrentJobs,
			RedisClient:       a.redisClient,
		},
		a.runRepo,
	)

	logger.Info("scheduler initialized",
		zap.Int("max_concurrent_jobs", a.cfg.Scheduler.MaxConcurrentJobs))
}

// registerJobs 注册任务
// -once 模式也注册，RunJobOnce 按任务名查找，Enabled 只控制 cron 触发
func (a *App) registerJobs() error {
	qualityJob := jobs.NewQualityRunJob(a.pipeline, a.engine, a.exporter, a.notifier, a.runRepo)
	if err := a.scheduler.RegisterJob(qualityJob, scheduler.JobConfig{
		Cron:    a.cfg.Jobs.QualityRun.Cron,
		Enabled: a.cfg.Jobs.QualityRun.Enabled,
	}); err != nil {
		return err
	}

	cleanupJob := jobs.NewReportCleanupJob(a.exporter, a.runRepo, a.cfg.Reporting.RetentionDays)
	if err := a.scheduler.RegisterJob(cleanupJob, scheduler.JobConfig{
		Cron:    a.cfg.Jobs.ReportCleanup.Cron,
		Enabled: a.cfg.Jobs.ReportCleanup.Enabled,
	}); err != nil {
		return err
	}

	return nil
}

// startHTTP 启动 HTTP 服务
func (a *App) startHTTP() {
	h := handler.New(a.agg, a.scheduler)
	a.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", a.cfg.Service.HTTPPort),
		Handler: h.Routes(),
	}

	go func() {
		logger.Info("http server listening", zap.Int("port", a.cfg.Service.HTTPPort))
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", zap.Error(err))
		}
	}()
}
