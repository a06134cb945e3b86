package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/kcard-data/metrics-quality/internal/model"
)

// RunRepository 质量运行执行记录仓储
type RunRepository struct {
	db *gorm.DB
}

// NewRunRepository 创建运行记录仓储
func NewRunRepository(db *gorm.DB) *RunRepository {
	return &RunRepository{db: db}
}

// Create 创建执行记录
func (r *RunRepository) Create(ctx context.Context, exec *model.RunExecution) error {
	exec.CreatedAt = time.Now().UnixMilli()
	return r.db.WithContext(ctx).Create(exec).Error
}

// Update 更新执行记录
func (r *RunRepository) Update(ctx context.Context, exec *model.RunExecution) error {
	return r.db.WithContext(ctx).Save(exec).Error
}

// GetByRunID 根据运行ID查询
func (r *RunRepository) GetByRunID(ctx context.Context, runID string) (*model.RunExecution, error) {
	var exec model.RunExecution
	err := r.db.WithContext(ctx).Where("run_id = ?", runID).First(&exec).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &exec, nil
}

// GetLatestByJobName 获取任务最新执行记录
func (r *RunRepository) GetLatestByJobName(ctx context.Context, jobName string) (*model.RunExecution, error) {
	var exec model.RunExecution
	err := r.db.WithContext(ctx).
		Where("job_name = ?", jobName).
		Order("started_at DESC").
		First(&exec).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &exec, nil
}

// GetPreviousFinished 获取指定运行之前最近一次已结束的运行
// 连续 CRITICAL 升级判断依赖上一次运行的整体结论
func (r *RunRepository) GetPreviousFinished(ctx context.Context, jobName string, beforeStartedAt int64) (*model.RunExecution, error) {
	var exec model.RunExecution
	err := r.db.WithContext(ctx).
		Where("job_name = ? AND started_at < ? AND status IN ?",
			jobName, beforeStartedAt,
			[]model.RunStatus{model.RunStatusSuccess, model.RunStatusFailed}).
		Order("started_at DESC").
		First(&exec).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &exec, nil
}

// ListRecent 查询任务最近的执行历史
func (r *RunRepository) ListRecent(ctx context.Context, jobName string, limit int) ([]*model.RunExecution, error) {
	var execs []*model.RunExecution
	err := r.db.WithContext(ctx).
		Where("job_name = ?", jobName).
		Order("started_at DESC").
		Limit(limit).
		Find(&execs).Error
	return execs, err
}

// CleanupOldRecords 清理旧的执行记录
func (r *RunRepository) CleanupOldRecords(ctx context.Context, beforeTime int64) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("started_at < ?", beforeTime).
		Delete(&model.RunExecution{})
	return result.RowsAffected, result.Error
}
