package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "metrics-quality", cfg.Service.Name)
	assert.Equal(t, 8080, cfg.Service.HTTPPort)
	assert.Equal(t, "localhost", cfg.Postgres.Host)
	assert.Equal(t, 5432, cfg.Postgres.Port)
	assert.Equal(t, "0 0 4 * * *", cfg.Jobs.QualityRun.Cron)
	assert.Equal(t, 90, cfg.Reporting.RetentionDays)
	assert.Equal(t, []string{"csv", "json"}, cfg.Reporting.Formats)

	// 十个必备阈值键全部由默认值补齐
	for _, key := range RequiredThresholdKeys {
		assert.NotNil(t, cfg.Thresholds[key], "missing default for %s", key)
	}
	require.NotNil(t, cfg.Thresholds[KeySumIntegrity].Tolerance)
	assert.Equal(t, 1.0, *cfg.Thresholds[KeySumIntegrity].Tolerance)
	assert.Equal(t, "CRITICAL", cfg.Thresholds[KeySumIntegrity].Severity)
	assert.Equal(t, "INFO", cfg.Thresholds[KeyCrossKPI].Severity)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
service:
  name: metrics-quality-test
  http_port: 9090
postgres:
  host: ${TEST_PG_HOST}
  database: kpi_test
thresholds:
  ratio_category:
    tolerance: 0.8
  formula_mom:
    severity: CRITICAL
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("TEST_PG_HOST", "pg.internal")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "metrics-quality-test", cfg.Service.Name)
	assert.Equal(t, 9090, cfg.Service.HTTPPort)
	assert.Equal(t, "pg.internal", cfg.Postgres.Host)
	assert.Equal(t, "kpi_test", cfg.Postgres.Database)

	// 文件覆盖的字段生效，未覆盖的字段保留默认值
	assert.Equal(t, 0.8, *cfg.Thresholds[KeyRatioCategory].Tolerance)
	assert.Equal(t, "WARNING", cfg.Thresholds[KeyRatioCategory].Severity)
	assert.Equal(t, "CRITICAL", cfg.Thresholds[KeyFormulaMom].Severity)
	assert.Equal(t, 10.0, *cfg.Thresholds[KeyFormulaMom].Tolerance)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("POSTGRES_HOST", "db.prod")
	t.Setenv("POSTGRES_PORT", "5433")
	t.Setenv("SLACK_WEBHOOK_URL", "https://hooks.slack.com/services/T000/B000/XXX")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "db.prod", cfg.Postgres.Host)
	assert.Equal(t, 5433, cfg.Postgres.Port)
	assert.Equal(t, "https://hooks.slack.com/services/T000/B000/XXX", cfg.Alerting.WebhookURL)
}

func TestLoadInvalidSeverityFatal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
thresholds:
  sum_integrity:
    severity: BLOCKER
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	t.Setenv("CONFIG_PATH", path)

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid severity")
}

func TestLoadNonNumericToleranceFatal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
thresholds:
  sum_integrity:
    tolerance: loose
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	t.Setenv("CONFIG_PATH", path)

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config")
}

func TestThresholdsValidate(t *testing.T) {
	t.Run("complete defaults pass", func(t *testing.T) {
		assert.NoError(t, defaultThresholds().Validate())
	})

	t.Run("missing required key", func(t *testing.T) {
		tc := defaultThresholds()
		delete(tc, KeyContinuity)
		err := tc.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), `missing required threshold key "continuity"`)
	})

	t.Run("missing tolerance", func(t *testing.T) {
		tc := defaultThresholds()
		tc[KeyFormulaYoy].Tolerance = nil
		err := tc.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "tolerance is required")
	})

	t.Run("inverted range", func(t *testing.T) {
		tc := defaultThresholds()
		tc[KeyRangeHHI].Min = f64(10000)
		tc[KeyRangeHHI].Max = f64(0)
		err := tc.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "exceeds max")
	})

	t.Run("errors aggregate", func(t *testing.T) {
		tc := defaultThresholds()
		delete(tc, KeySumIntegrity)
		tc[KeyCrossKPI].Severity = "NOTICE"
		err := tc.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "sum_integrity")
		assert.Contains(t, err.Error(), "cross_kpi")
	})
}
