package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/kcard-data/metrics-quality/internal/report"
	"github.com/kcard-data/metrics-quality/internal/repository"
	"github.com/kcard-data/metrics-quality/internal/scheduler"
)

// ReportCleanupJob 清理过期报告文件与过期运行记录
type ReportCleanupJob struct {
	scheduler.BaseJob
	exporter      *report.Exporter
	runRepo       *repository.RunRepository
	retentionDays int
	now           func() time.Time
}

// NewReportCleanupJob 创建报告清理任务
func NewReportCleanupJob(exporter *report.Exporter, runRepo *repository.RunRepository, retentionDays int) *ReportCleanupJob {
	return &ReportCleanupJob{
		BaseJob:       scheduler.NewBaseJob(scheduler.JobNameReportCleanup, 5*time.Minute, 10*time.Minute, true),
		exporter:      exporter,
		runRepo:       runRepo,
		retentionDays: retentionDays,
		now:           time.Now,
	}
}

// Execute 执行清理
func (j *ReportCleanupJob) Execute(ctx context.Context) (*scheduler.JobResult, error) {
	now := j.now()

	removedFiles, err := j.exporter.Cleanup(now)
	if err != nil {
		return nil, fmt.Errorf("report cleanup failed: %w", err)
	}

	cutoff := now.AddDate(0, 0, -j.retentionDays).UnixMilli()
	removedRuns, err := j.runRepo.CleanupOldRecords(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("run record cleanup failed: %w", err)
	}

	return &scheduler.JobResult{
		ProcessedCount: removedFiles + int(removedRuns),
		Details: map[string]interface{}{
			"removed_reports":     removedFiles,
			"removed_run_records": removedRuns,
			"retention_days":      j.retentionDays,
		},
	}, nil
}
