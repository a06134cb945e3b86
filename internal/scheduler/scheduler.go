package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/kcard-data/metrics-quality/internal/metrics"
	"github.com/kcard-data/metrics-quality/internal/model"
	"github.com/kcard-data/metrics-quality/internal/repository"
	"github.com/kcard-data/metrics-quality/pkg/logger"
)

// Scheduler 任务调度器
type Scheduler struct {
	cron          *cron.Cron
	lockManager   *LockManager
	runRepo       *repository.RunRepository
	jobs          map[string]Job
	jobConfigs    map[string]JobConfig
	mu            sync.RWMutex
	maxConcurrent int
	running       chan struct{}
	ctx           context.Context
	cancel        context.CancelFunc
}

// JobConfig 任务配置
type JobConfig struct {
	Cron    string
	Enabled bool
}

// Config 调度器配置
type Config struct {
	MaxConcurrentJobs int
	RedisClient       redis.UniversalClient
}

// New 创建调度器
func New(cfg *Config, runRepo *repository.RunRepository) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	maxConcurrent := cfg.MaxConcurrentJobs
	if maxConcurrent <= 0 {
		maxConcurrent = 2
	}

	return &Scheduler{
		cron:          cron.New(cron.WithSeconds()), // 支持秒级调度
		lockManager:   NewLockManager(cfg.RedisClient),
		runRepo:       runRepo,
		jobs:          make(map[string]Job),
		jobConfigs:    make(map[string]JobConfig),
		maxConcurrent: maxConcurrent,
		running:       make(chan struct{}, maxConcurrent),
		ctx:           ctx,
		cancel:        cancel,
	}
}

// RegisterJob 注册任务
func (s *Scheduler) RegisterJob(job Job, config JobConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.Name()]; exists {
		return fmt.Errorf("job %s already registered", job.Name())
	}

	s.jobs[job.Name()] = job
	s.jobConfigs[job.Name()] = config

	if !config.Enabled {
		logger.Info("job registered but disabled", zap.String("job", job.Name()))
		return nil
	}

	_, err := s.cron.AddFunc(config.Cron, func() {
		s.executeJob(job)
	})
	if err != nil {
		delete(s.jobs, job.Name())
		delete(s.jobConfigs, job.Name())
		return fmt.Errorf("failed to add cron job: %w", err)
	}

	logger.Info("job registered",
		zap.String("job", job.Name()),
		zap.String("cron", config.Cron))

	return nil
}

// Start 启动调度器
func (s *Scheduler) Start() {
	s.cron.Start()
	logger.Info("scheduler started")
}

// Stop 停止调度器
func (s *Scheduler) Stop() {
	s.cancel()
	ctx := s.cron.Stop()
	<-ctx.Done()
	logger.Info("scheduler stopped")
}

// TriggerJob 手动触发任务
func (s *Scheduler) TriggerJob(jobName string) error {
	s.mu.RLock()
	job, exists := s.jobs[jobName]
	s.mu.RUnlock()

	if !exists {
		return fmt.Errorf("job %s not found", jobName)
	}

	go s.executeJob(job)
	return nil
}

// RunJobOnce 同步执行一次任务，供 -once 命令行模式使用
func (s *Scheduler) RunJobOnce(ctx context.Context, jobName string) (*model.RunExecution, error) {
	s.mu.RLock()
	job, exists := s.jobs[jobName]
	s.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("job %s not found", jobName)
	}
	return s.run(ctx, job)
}

// executeJob 调度路径执行任务: 并发上限与分布式锁
func (s *Scheduler) executeJob(job Job) {
	select {
	case s.running <- struct{}{}:
		defer func() { <-s.running }()
	default:
		logger.Warn("max concurrent jobs reached, skipping",
			zap.String("job", job.Name()))
		s.recordSkipped(job.Name(), "max concurrent jobs reached")
		return
	}

	select {
	case <-s.ctx.Done():
		return
	default:
	}

	ctx, cancel := context.WithTimeout(s.ctx, job.Timeout())
	defer cancel()

	if job.RequiresLock() && s.lockManager.Enabled() {
		lock := s.lockManager.NewLock(job.Name(), job.LockTTL(), job.UseWatchdog())
		acquired, err := lock.TryLock(ctx)
		if err != nil {
			logger.Error("failed to acquire lock",
				zap.String("job", job.Name()),
				zap.Error(err))
			s.recordSkipped(job.Name(), "failed to acquire lock: "+err.Error())
			return
		}
		if !acquired {
			logger.Debug("job is already running on another instance",
				zap.String("job", job.Name()))
			s.recordSkipped(job.Name(), "job is running on another instance")
			return
		}
		defer func() {
			if err := lock.Unlock(context.Background()); err != nil {
				logger.Error("failed to release lock",
					zap.String("job", job.Name()),
					zap.Error(err))
			}
		}()
	}

	if _, err := s.run(ctx, job); err != nil {
		logger.Error("job failed",
			zap.String("job", job.Name()),
			zap.Error(err))
	}
}

// run 执行任务并记录执行过程
func (s *Scheduler) run(ctx context.Context, job Job) (*model.RunExecution, error) {
	startTime := time.Now()
	exec := &model.RunExecution{
		RunID:     uuid.NewString(),
		JobName:   job.Name(),
		Status:    model.RunStatusRunning,
		StartedAt: startTime.UnixMilli(),
	}
	if err := s.runRepo.Create(ctx, exec); err != nil {
		logger.Error("failed to record job start",
			zap.String("job", job.Name()),
			zap.Error(err))
	}

	logger.Info("starting job",
		zap.String("job", job.Name()),
		zap.String("run_id", exec.RunID))

	result, err := job.Execute(ctx)

	finishTime := time.Now()
	duration := int(finishTime.Sub(startTime).Milliseconds())
	finishedAt := finishTime.UnixMilli()
	exec.FinishedAt = &finishedAt
	exec.DurationMs = &duration
	metrics.JobDuration.WithLabelValues(job.Name()).Observe(finishTime.Sub(startTime).Seconds())

	if err != nil {
		exec.Status = model.RunStatusFailed
		metrics.JobRunsTotal.WithLabelValues(job.Name(), "failed").Inc()
		errMsg := err.Error()
		exec.ErrorMessage = &errMsg
		logger.Error("job failed",
			zap.String("job", job.Name()),
			zap.String("run_id", exec.RunID),
			zap.Duration("duration", finishTime.Sub(startTime)),
			zap.Error(err))
	} else {
		exec.Status = model.RunStatusSuccess
		metrics.JobRunsTotal.WithLabelValues(job.Name(), "success").Inc()
		if result != nil {
			exec.Result = result.ToJSONResult()
		}
		logger.Info("job completed",
			zap.String("job", job.Name()),
			zap.String("run_id", exec.RunID),
			zap.Duration("duration", finishTime.Sub(startTime)))
	}

	if updateErr := s.runRepo.Update(context.Background(), exec); updateErr != nil {
		logger.Error("failed to update job execution",
			zap.String("job", job.Name()),
			zap.Error(updateErr))
	}
	return exec, err
}

// recordSkipped 记录跳过的执行
func (s *Scheduler) recordSkipped(jobName string, message string) {
	now := time.Now().UnixMilli()
	duration := 0
	exec := &model.RunExecution{
		RunID:        uuid.NewString(),
		JobName:      jobName,
		Status:       model.RunStatusSkipped,
		StartedAt:    now,
		FinishedAt:   &now,
		DurationMs:   &duration,
		ErrorMessage: &message,
	}
	metrics.JobRunsTotal.WithLabelValues(jobName, "skipped").Inc()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.runRepo.Create(ctx, exec); err != nil {
		logger.Error("failed to record job execution",
			zap.String("job", jobName),
			zap.Error(err))
	}
}

// JobStatus 任务状态
type JobStatus struct {
	Name           string        `json:"name"`
	Enabled        bool          `json:"enabled"`
	Cron           string        `json:"cron"`
	Timeout        time.Duration `json:"timeout"`
	IsLocked       bool          `json:"is_locked"`
	LastStatus     string        `json:"last_status,omitempty"`
	LastStartedAt  int64         `json:"last_started_at,omitempty"`
	LastFinishedAt int64         `json:"last_finished_at,omitempty"`
	LastDurationMs int           `json:"last_duration_ms,omitempty"`
	LastError      string        `json:"last_error,omitempty"`
}

// GetJobStatus 获取任务状态
func (s *Scheduler) GetJobStatus(jobName string) (*JobStatus, error) {
	s.mu.RLock()
	job, exists := s.jobs[jobName]
	config := s.jobConfigs[jobName]
	s.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("job %s not found", jobName)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	lastExec, err := s.runRepo.GetLatestByJobName(ctx, jobName)
	if err != nil {
		return nil, err
	}

	isLocked, _ := s.lockManager.IsLocked(ctx, jobName)

	status := &JobStatus{
		Name:     jobName,
		Enabled:  config.Enabled,
		Cron:     config.Cron,
		Timeout:  job.Timeout(),
		IsLocked: isLocked,
	}

	if lastExec != nil {
		status.LastStatus = string(lastExec.Status)
		status.LastStartedAt = lastExec.StartedAt
		if lastExec.FinishedAt != nil {
			status.LastFinishedAt = *lastExec.FinishedAt
		}
		if lastExec.DurationMs != nil {
			status.LastDurationMs = *lastExec.DurationMs
		}
		if lastExec.ErrorMessage != nil {
			status.LastError = *lastExec.ErrorMessage
		}
	}

	return status, nil
}

// ListJobStatus 列出所有任务状态
func (s *Scheduler) ListJobStatus() ([]*JobStatus, error) {
	s.mu.RLock()
	jobNames := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		jobNames = append(jobNames, name)
	}
	s.mu.RUnlock()

	statuses := make([]*JobStatus, 0, len(jobNames))
	for _, name := range jobNames {
		status, err := s.GetJobStatus(name)
		if err != nil {
			logger.Error("failed to get job status",
				zap.String("job", name),
				zap.Error(err))
			continue
		}
		statuses = append(statuses, status)
	}

	return statuses, nil
}
