package report

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kcard-data/metrics-quality/internal/config"
	"github.com/kcard-data/metrics-quality/internal/model"
	"github.com/kcard-data/metrics-quality/internal/summary"
	"github.com/kcard-data/metrics-quality/pkg/logger"
)

const filePrefix = "quality_report_"

// Exporter 质量报告导出器，按运行日期落盘 CSV/JSON 文件
type Exporter struct {
	agg           *summary.Aggregator
	outputDir     string
	formats       []string
	retentionDays int
}

// NewExporter 创建报告导出器
func NewExporter(agg *summary.Aggregator, cfg config.ReportingConfig) *Exporter {
	return &Exporter{
		agg:           agg,
		outputDir:     cfg.OutputDir,
		formats:       cfg.Formats,
		retentionDays: cfg.RetentionDays,
	}
}

// reportPayload 报告内容
type reportPayload struct {
	Overall          *summary.Overall              `json:"overall"`
	Categories       []*summary.CategorySummary    `json:"categories"`
	CriticalFailures []*model.IntegrityCheckResult `json:"critical_failures"`
}

// Export 导出指定日期的质量报告，返回生成的文件路径
func (e *Exporter) Export(ctx context.Context, checkDate string) ([]string, error) {
	payload, err := e.load(ctx, checkDate)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(e.outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create report dir: %w", err)
	}

	var paths []string
	for _, format := range e.formats {
		path := filepath.Join(e.outputDir, filePrefix+checkDate+"."+format)
		switch format {
		case "csv":
			err = e.writeCSV(path, payload)
		case "json":
			err = e.writeJSON(path, payload)
		default:
			logger.Warn("unsupported report format, skipped", zap.String("format", format))
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to write %s report: %w", format, err)
		}
		paths = append(paths, path)
	}

	logger.Info("quality report exported",
		zap.String("check_date", checkDate),
		zap.Strings("files", paths),
	)
	return paths, nil
}

func (e *Exporter) load(ctx context.Context, checkDate string) (*reportPayload, error) {
	overall, err := e.agg.GetOverall(ctx, checkDate)
	if err != nil {
		return nil, err
	}
	categories, err := e.agg.ByCategory(ctx, checkDate)
	if err != nil {
		return nil, err
	}
	criticals, err := e.agg.CriticalFailures(ctx, checkDate)
	if err != nil {
		return nil, err
	}
	return &reportPayload{
		Overall:          overall,
		Categories:       categories,
		CriticalFailures: criticals,
	}, nil
}

func (e *Exporter) writeCSV(path string, payload *reportPayload) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"category", "severity", "phase", "total", "passed", "failed", "pass_rate"}); err != nil {
		return err
	}
	for _, c := range payload.Categories {
		record := []string{
			c.Category,
			c.Severity,
			strconv.Itoa(c.Phase),
			strconv.FormatInt(c.Total, 10),
			strconv.FormatInt(c.Passed, 10),
			strconv.FormatInt(c.Failed, 10),
			strconv.FormatFloat(c.PassRate, 'f', 2, 64),
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func (e *Exporter) writeJSON(path string, payload *reportPayload) error {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Cleanup 删除超过保留期的报告文件，按文件名中的日期判断
func (e *Exporter) Cleanup(now time.Time) (int, error) {
	entries, err := os.ReadDir(e.outputDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	cutoff := now.AddDate(0, 0, -e.retentionDays)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), filePrefix) {
			continue
		}
		name := strings.TrimPrefix(entry.Name(), filePrefix)
		if ext := filepath.Ext(name); ext != "" {
			name = strings.TrimSuffix(name, ext)
		}
		fileDate, err := time.Parse("2006-01-02", name)
		if err != nil {
			continue
		}
		if fileDate.Before(cutoff) {
			if err := os.Remove(filepath.Join(e.outputDir, entry.Name())); err != nil {
				return removed, err
			}
			removed++
		}
	}

	if removed > 0 {
		logger.Info("expired reports removed",
			zap.Int("removed", removed),
			zap.Int("retention_days", e.retentionDays),
		)
	}
	return removed, nil
}
