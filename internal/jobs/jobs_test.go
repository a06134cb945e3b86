package jobs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/kcard-data/metrics-quality/internal/alert"
	"github.com/kcard-data/metrics-quality/internal/checks"
	"github.com/kcard-data/metrics-quality/internal/config"
	"github.com/kcard-data/metrics-quality/internal/model"
	"github.com/kcard-data/metrics-quality/internal/pipeline"
	"github.com/kcard-data/metrics-quality/internal/report"
	"github.com/kcard-data/metrics-quality/internal/repository"
	"github.com/kcard-data/metrics-quality/internal/summary"
)

type captureNotifier struct {
	alerts []*alert.Alert
}

func (n *captureNotifier) Notify(_ context.Context, a *alert.Alert) error {
	n.alerts = append(n.alerts, a)
	return nil
}

type jobFixture struct {
	db       *gorm.DB
	factRepo *repository.FactRepository
	runRepo  *repository.RunRepository
	notifier *captureNotifier
	job      *QualityRunJob
	dir      string
}

func setupJobTest(t *testing.T) *jobFixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&model.UsageFact{}, &model.IssuanceFact{},
		&model.MonthlyUsageMetric{}, &model.MarketShareMetric{},
		&model.GrowthRateMetric{}, &model.CategoryUsageMetric{},
		&model.ActivationRateMetric{}, &model.MarketConcentrationMetric{},
		&model.AnomalyRecord{}, &model.IntegrityCheckResult{},
		&model.RunExecution{},
	))

	factRepo := repository.NewFactRepository(db)
	metricRepo := repository.NewMetricRepository(db)
	resultRepo := repository.NewCheckResultRepository(db)
	runRepo := repository.NewRunRepository(db)

	dir := t.TempDir()
	exporter := report.NewExporter(summary.New(resultRepo), config.ReportingConfig{
		OutputDir:     dir,
		Formats:       []string{"csv", "json"},
		RetentionDays: 90,
	})
	notifier := &captureNotifier{}

	job := NewQualityRunJob(
		pipeline.New(factRepo, metricRepo, config.DefaultThresholds()),
		checks.NewEngine(factRepo, metricRepo, resultRepo, config.DefaultThresholds()),
		exporter,
		notifier,
		runRepo,
	)
	job.now = func() time.Time {
		return time.Date(2025, 8, 29, 4, 0, 0, 0, time.UTC)
	}

	return &jobFixture{db: db, factRepo: factRepo, runRepo: runRepo, notifier: notifier, job: job, dir: dir}
}

// seedFacts 连续6个月、两家公司的规整事实; overIssued 为真时最后一个月激活卡数超过发卡量
func seedFacts(t *testing.T, f *jobFixture, overIssued bool) {
	t.Helper()
	ctx := context.Background()

	var usage []*model.UsageFact
	var issuance []*model.IssuanceFact
	for m := 1; m <= 6; m++ {
		period := fmt.Sprintf("2025-%02d", m)
		for i, company := range []string{"A카드", "B카드"} {
			base := int64(1000 + 100*i + 10*m)
			usage = append(usage,
				&model.UsageFact{YearMonth: period, CardCompany: company, BusinessCategory: "일반음식점", UsageAmount: decimal.NewFromInt(base), UsageCount: base / 100},
				&model.UsageFact{YearMonth: period, CardCompany: company, BusinessCategory: "주유소", UsageAmount: decimal.NewFromInt(base / 2), UsageCount: base / 200},
			)
			active := int64(6000 + 100*m)
			if overIssued && m == 6 && i == 0 {
				active = 12000
			}
			issuance = append(issuance, &model.IssuanceFact{
				YearMonth: period, CardCompany: company,
				TotalIssuedCards: 10000, ActiveCards: active,
			})
		}
	}
	require.NoError(t, f.factRepo.BatchUpsertUsage(ctx, usage))
	require.NoError(t, f.factRepo.BatchUpsertIssuance(ctx, issuance))
}

func TestQualityRunCleanPass(t *testing.T) {
	f := setupJobTest(t)
	seedFacts(t, f, false)

	result, err := f.job.Execute(context.Background())
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, model.OverallPass, result.Details["overall_status"])
	assert.Equal(t, 0, result.FailedCount)
	assert.Equal(t, "2025-08-29", result.Details["check_date"])
	assert.Empty(t, f.notifier.alerts, "clean run must not alert")

	files, ok := result.Details["report_files"].([]string)
	require.True(t, ok)
	require.Len(t, files, 2)
	for _, path := range files {
		_, err := os.Stat(path)
		assert.NoError(t, err)
	}
}

func TestQualityRunCriticalAlerts(t *testing.T) {
	f := setupJobTest(t)
	// 激活卡数超过发卡量: 激活率越界，范围校验 CRITICAL
	seedFacts(t, f, true)

	result, err := f.job.Execute(context.Background())
	require.NoError(t, err, "check failures must not fail the run itself")

	assert.Equal(t, model.OverallCritical, result.Details["overall_status"])
	require.Len(t, f.notifier.alerts, 1)
	a := f.notifier.alerts[0]
	assert.Equal(t, string(model.SeverityCritical), a.Severity)
	assert.False(t, a.Escalated, "first critical run must not escalate")
}

func TestQualityRunEscalatesAfterConsecutiveCritical(t *testing.T) {
	f := setupJobTest(t)
	seedFacts(t, f, true)
	ctx := context.Background()

	// 上一次已完成的运行结论为 CRITICAL
	prev := &model.RunExecution{
		RunID:     "prev-run",
		JobName:   f.job.Name(),
		Status:    model.RunStatusSuccess,
		StartedAt: time.Date(2025, 8, 28, 4, 0, 0, 0, time.UTC).UnixMilli(),
		Result:    model.JSONResult{"overall_status": model.OverallCritical},
	}
	require.NoError(t, f.runRepo.Create(ctx, prev))

	result, err := f.job.Execute(ctx)
	require.NoError(t, err)

	assert.Equal(t, true, result.Details["escalated"])
	require.Len(t, f.notifier.alerts, 1)
	assert.True(t, f.notifier.alerts[0].Escalated)
}

func TestReportCleanupJob(t *testing.T) {
	f := setupJobTest(t)
	ctx := context.Background()

	// 过期与未过期的报告文件
	old := filepath.Join(f.dir, "quality_report_2025-01-01.csv")
	recent := filepath.Join(f.dir, "quality_report_2025-08-20.json")
	require.NoError(t, os.WriteFile(old, []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(recent, []byte("x"), 0o644))

	// 过期运行记录
	require.NoError(t, f.runRepo.Create(ctx, &model.RunExecution{
		RunID:     "stale-run",
		JobName:   "quality_run",
		Status:    model.RunStatusSuccess,
		StartedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli(),
	}))

	exporter := report.NewExporter(summary.New(repository.NewCheckResultRepository(f.db)), config.ReportingConfig{
		OutputDir:     f.dir,
		Formats:       []string{"csv"},
		RetentionDays: 90,
	})
	cleanup := NewReportCleanupJob(exporter, f.runRepo, 90)
	cleanup.now = func() time.Time {
		return time.Date(2025, 8, 29, 4, 30, 0, 0, time.UTC)
	}

	result, err := cleanup.Execute(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Details["removed_reports"])
	assert.Equal(t, int64(1), result.Details["removed_run_records"])
	_, err = os.Stat(old)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(recent)
	assert.NoError(t, err)
}
