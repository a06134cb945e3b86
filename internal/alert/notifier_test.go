package alert

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kcard-data/metrics-quality/internal/checks"
	"github.com/kcard-data/metrics-quality/internal/config"
	"github.com/kcard-data/metrics-quality/internal/model"
)

func TestBuildRunAlert(t *testing.T) {
	t.Run("pass run produces no alert", func(t *testing.T) {
		stats := &checks.RunStats{CheckDate: "2025-08-29", Total: 10, Passed: 10}
		assert.Nil(t, BuildRunAlert(stats, false))
	})

	t.Run("critical failure", func(t *testing.T) {
		stats := &checks.RunStats{CheckDate: "2025-08-29", Total: 10, Passed: 8, Failed: 2, CriticalFailed: 1, WarningFailed: 1}
		a := BuildRunAlert(stats, false)
		require.NotNil(t, a)
		assert.Equal(t, string(model.SeverityCritical), a.Severity)
		assert.Contains(t, a.Title, "CRITICAL")
		assert.False(t, a.Escalated)
	})

	t.Run("warning only", func(t *testing.T) {
		stats := &checks.RunStats{CheckDate: "2025-08-29", Total: 10, Passed: 9, Failed: 1, WarningFailed: 1}
		a := BuildRunAlert(stats, false)
		require.NotNil(t, a)
		assert.Equal(t, string(model.SeverityWarning), a.Severity)
	})

	t.Run("escalated", func(t *testing.T) {
		stats := &checks.RunStats{CheckDate: "2025-08-29", Total: 10, Passed: 9, Failed: 1, CriticalFailed: 1}
		a := BuildRunAlert(stats, true)
		require.NotNil(t, a)
		assert.True(t, a.Escalated)
		assert.Contains(t, a.Title, "ESCALATED")
	})
}

func TestSlackNotifier(t *testing.T) {
	var got slackPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewSlackNotifier(config.AlertingConfig{WebhookURL: srv.URL, Channel: "#data-quality"})
	err := n.Notify(context.Background(), &Alert{
		Severity:  string(model.SeverityCritical),
		Title:     "[CRITICAL] 数据质量校验 2025-08-29",
		Message:   "总计 10 项，失败 2",
		CheckDate: "2025-08-29",
	})
	require.NoError(t, err)

	assert.Equal(t, "#data-quality", got.Channel)
	require.Len(t, got.Attachments, 1)
	assert.Equal(t, "#d00000", got.Attachments[0].Color)
	assert.Contains(t, got.Attachments[0].Title, "CRITICAL")
}

func TestSlackNotifierErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	n := NewSlackNotifier(config.AlertingConfig{WebhookURL: srv.URL})
	err := n.Notify(context.Background(), &Alert{Severity: "WARNING", Title: "t"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestNopNotifier(t *testing.T) {
	assert.NoError(t, NopNotifier{}.Notify(context.Background(), &Alert{Severity: "INFO"}))
}
