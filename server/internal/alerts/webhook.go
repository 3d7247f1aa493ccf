package alerts

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/obsidianstack/apibadges/server/internal/config"
)

const webhookTimeout = 10 * time.Second

// Notifier posts alerts to the configured webhooks.
type Notifier struct {
	webhooks []config.WebhookConfig
	client   *resty.Client
}

// NewNotifier returns a Notifier for webhooks. Webhooks whose URL env var is
// unset are skipped at delivery time.
func NewNotifier(webhooks []config.WebhookConfig) *Notifier {
	return &Notifier{
		webhooks: webhooks,
		client: resty.New().
			SetTimeout(webhookTimeout).
			SetHeader("Content-Type", "application/json"),
	}
}

// Deliver sends a to all configured targets.
// Errors are logged but do not affect the caller.
func (n *Notifier) Deliver(a Alert) {
	for _, wh := range n.webhooks {
		url := wh.URL()
		if url == "" {
			continue
		}

		var body any
		switch wh.Type {
		case "slack":
			body = slackPayload(a)
		case "teams":
			body = teamsPayload(a)
		case "http":
			body = map[string]any{"alert": a}
		default:
			slog.Warn("alerts: unknown webhook type, skipping", "type", wh.Type)
			continue
		}

		if err := n.post(url, body); err != nil {
			slog.Error("alerts: webhook delivery failed", "type", wh.Type, "rule", a.RuleName, "err", err)
			continue
		}
		slog.Debug("alerts: webhook delivered", "type", wh.Type, "rule", a.RuleName, "state", a.State)
	}
}

func slackPayload(a Alert) map[string]string {
	return map[string]string{
		"text": fmt.Sprintf("*%s* %s", severityLabel(a.Severity), a.Message),
	}
}

func teamsPayload(a Alert) map[string]any {
	return map[string]any{
		"@type":      "MessageCard",
		"@context":   "http://schema.org/extensions",
		"themeColor": severityColor(a.Severity),
		"summary":    a.RuleName,
		"title":      fmt.Sprintf("API Badges: %s", a.RuleName),
		"text":       a.Message,
	}
}

func (n *Notifier) post(url string, body any) error {
	resp, err := n.client.R().SetBody(body).Post(url)
	if err != nil {
		return fmt.Errorf("http post: %w", err)
	}
	if resp.StatusCode() >= 400 {
		return fmt.Errorf("webhook returned HTTP %d", resp.StatusCode())
	}
	return nil
}

func severityLabel(s string) string {
	switch s {
	case "critical":
		return "[CRITICAL]"
	case "warning":
		return "[WARNING]"
	default:
		return "[INFO]"
	}
}

func severityColor(s string) string {
	switch s {
	case "critical":
		return "FF4F6A"
	case "warning":
		return "FFAB40"
	default:
		return "00D4FF"
	}
}
