package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/kcard-data/metrics-quality/internal/model"
	"github.com/kcard-data/metrics-quality/internal/repository"
)

type fakeJob struct {
	BaseJob
	execute func(ctx context.Context) (*JobResult, error)
}

func (j *fakeJob) Execute(ctx context.Context) (*JobResult, error) {
	return j.execute(ctx)
}

func setupScheduler(t *testing.T, client redis.UniversalClient) (*Scheduler, *repository.RunRepository) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.RunExecution{}))

	runRepo := repository.NewRunRepository(db)
	s := New(&Config{MaxConcurrentJobs: 2, RedisClient: client}, runRepo)
	return s, runRepo
}

func TestRunJobOnceRecordsExecution(t *testing.T) {
	s, runRepo := setupScheduler(t, nil)

	job := &fakeJob{
		BaseJob: NewBaseJob("test_job", time.Minute, 0, false),
		execute: func(ctx context.Context) (*JobResult, error) {
			return &JobResult{
				ProcessedCount: 42,
				Details:        map[string]interface{}{"overall_status": model.OverallPass},
			}, nil
		},
	}
	require.NoError(t, s.RegisterJob(job, JobConfig{Cron: "0 0 4 * * *", Enabled: false}))

	exec, err := s.RunJobOnce(context.Background(), "test_job")
	require.NoError(t, err)
	require.NotNil(t, exec)
	assert.Equal(t, model.RunStatusSuccess, exec.Status)
	assert.NotEmpty(t, exec.RunID)
	assert.Equal(t, model.OverallPass, exec.OverallStatus())

	stored, err := runRepo.GetByRunID(context.Background(), exec.RunID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, model.RunStatusSuccess, stored.Status)
	require.NotNil(t, stored.FinishedAt)
}

func TestRunJobOnceFailureRecorded(t *testing.T) {
	s, runRepo := setupScheduler(t, nil)

	job := &fakeJob{
		BaseJob: NewBaseJob("failing_job", time.Minute, 0, false),
		execute: func(ctx context.Context) (*JobResult, error) {
			return nil, errors.New("derivation exploded")
		},
	}
	require.NoError(t, s.RegisterJob(job, JobConfig{Enabled: false}))

	exec, err := s.RunJobOnce(context.Background(), "failing_job")
	require.Error(t, err)
	require.NotNil(t, exec)
	assert.Equal(t, model.RunStatusFailed, exec.Status)

	stored, err := runRepo.GetByRunID(context.Background(), exec.RunID)
	require.NoError(t, err)
	require.NotNil(t, stored.ErrorMessage)
	assert.Contains(t, *stored.ErrorMessage, "derivation exploded")
}

func TestRunJobOnceUnknownJob(t *testing.T) {
	s, _ := setupScheduler(t, nil)
	_, err := s.RunJobOnce(context.Background(), "missing")
	require.Error(t, err)
}

func TestRegisterJobDuplicate(t *testing.T) {
	s, _ := setupScheduler(t, nil)
	job := &fakeJob{
		BaseJob: NewBaseJob("dup", time.Minute, 0, false),
		execute: func(ctx context.Context) (*JobResult, error) { return nil, nil },
	}
	require.NoError(t, s.RegisterJob(job, JobConfig{Enabled: false}))
	require.Error(t, s.RegisterJob(job, JobConfig{Enabled: false}))
}

func TestDistributedLock(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	ctx := context.Background()

	first := NewDistributedLock(client, "quality_run", time.Minute, false)
	acquired, err := first.TryLock(ctx)
	require.NoError(t, err)
	assert.True(t, acquired)

	// 第二个实例拿不到同名锁
	second := NewDistributedLock(client, "quality_run", time.Minute, false)
	acquired, err = second.TryLock(ctx)
	require.NoError(t, err)
	assert.False(t, acquired)

	// 非持有者释放无效
	require.NoError(t, second.Unlock(ctx))
	held, err := first.IsHeld(ctx)
	require.NoError(t, err)
	assert.True(t, held)

	require.NoError(t, first.Unlock(ctx))
	acquired, err = second.TryLock(ctx)
	require.NoError(t, err)
	assert.True(t, acquired)
}

func TestLockManagerDisabledWithoutRedis(t *testing.T) {
	m := NewLockManager(nil)
	assert.False(t, m.Enabled())

	locked, err := m.IsLocked(context.Background(), "quality_run")
	require.NoError(t, err)
	assert.False(t, locked)
	require.NoError(t, m.ForceUnlock(context.Background(), "quality_run"))
}

func TestSchedulerLockSkipsSecondInstance(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	s, runRepo := setupScheduler(t, client)
	block := make(chan struct{})
	started := make(chan struct{})
	job := &fakeJob{
		BaseJob: NewBaseJob("locked_job", time.Minute, time.Minute, false),
		execute: func(ctx context.Context) (*JobResult, error) {
			close(started)
			<-block
			return &JobResult{}, nil
		},
	}
	require.NoError(t, s.RegisterJob(job, JobConfig{Enabled: false}))

	go s.executeJob(job)
	<-started

	// 锁被第一次执行持有: 第二次执行记为跳过
	s.executeJob(job)
	close(block)

	require.Eventually(t, func() bool {
		execs, err := runRepo.ListRecent(context.Background(), "locked_job", 10)
		if err != nil {
			return false
		}
		var skipped, success bool
		for _, e := range execs {
			if e.Status == model.RunStatusSkipped {
				skipped = true
			}
			if e.Status == model.RunStatusSuccess {
				success = true
			}
		}
		return skipped && success
	}, 2*time.Second, 10*time.Millisecond)
}
