package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/kcard-data/metrics-quality/internal/checks"
	"github.com/kcard-data/metrics-quality/internal/config"
	"github.com/kcard-data/metrics-quality/internal/model"
	"github.com/kcard-data/metrics-quality/pkg/logger"
)

// Alert 单条告警
type Alert struct {
	Severity  string
	Title     string
	Message   string
	CheckDate string
	Escalated bool
}

// Notifier 告警通知器
type Notifier interface {
	Notify(ctx context.Context, a *Alert) error
}

// BuildRunAlert 根据运行汇总构造告警
// 整体 PASS 且未升级时无需告警，返回 nil
func BuildRunAlert(stats *checks.RunStats, escalated bool) *Alert {
	overall := stats.OverallStatus()
	if overall == model.OverallPass && !escalated {
		return nil
	}

	title := fmt.Sprintf("[%s] 数据质量校验 %s", overall, stats.CheckDate)
	if escalated {
		title = "[ESCALATED] " + title
	}
	msg := fmt.Sprintf("总计 %d 项，通过 %d，失败 %d (CRITICAL %d / WARNING %d)",
		stats.Total, stats.Passed, stats.Failed, stats.CriticalFailed, stats.WarningFailed)
	if escalated {
		msg += "；连续两次运行出现 CRITICAL 失败，请立即处理"
	}

	severity := string(model.SeverityWarning)
	if overall == model.OverallCritical {
		severity = string(model.SeverityCritical)
	}
	return &Alert{
		Severity:  severity,
		Title:     title,
		Message:   msg,
		CheckDate: stats.CheckDate,
		Escalated: escalated,
	}
}

// severityColors Slack attachment 颜色
var severityColors = map[string]string{
	string(model.SeverityCritical): "#d00000",
	string(model.SeverityWarning):  "#f2c744",
	string(model.SeverityInfo):     "#36a64f",
}

// SlackNotifier 通过 Slack Webhook 发送告警
type SlackNotifier struct {
	webhookURL string
	channel    string
	client     *http.Client
}

// NewSlackNotifier 创建 Slack 通知器
func NewSlackNotifier(cfg config.AlertingConfig) *SlackNotifier {
	return &SlackNotifier{
		webhookURL: cfg.WebhookURL,
		channel:    cfg.Channel,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

type slackAttachment struct {
	Color  string `json:"color"`
	Title  string `json:"title"`
	Text   string `json:"text"`
	Footer string `json:"footer"`
	Ts     int64  `json:"ts"`
}

type slackPayload struct {
	Channel     string            `json:"channel,omitempty"`
	Attachments []slackAttachment `json:"attachments"`
}

// Notify 发送告警到 Webhook
func (n *SlackNotifier) Notify(ctx context.Context, a *Alert) error {
	color, ok := severityColors[a.Severity]
	if !ok {
		color = severityColors[string(model.SeverityInfo)]
	}
	payload := slackPayload{
		Channel: n.channel,
		Attachments: []slackAttachment{{
			Color:  color,
			Title:  a.Title,
			Text:   a.Message,
			Footer: "metrics-quality",
			Ts:     time.Now().Unix(),
		}},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send slack alert: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("slack webhook returned status %d", resp.StatusCode)
	}
	logger.Info("alert sent",
		zap.String("severity", a.Severity),
		zap.String("check_date", a.CheckDate),
		zap.Bool("escalated", a.Escalated),
	)
	return nil
}

// NopNotifier 未配置 Webhook 时的空实现，只记日志
type NopNotifier struct{}

// Notify 仅记录日志
func (NopNotifier) Notify(_ context.Context, a *Alert) error {
	logger.Warn("alert suppressed (no webhook configured)",
		zap.String("severity", a.Severity),
		zap.String("title", a.Title),
	)
	return nil
}
