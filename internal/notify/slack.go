package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"nexus/internal/events"
	"nexus/pkg/circuitbreaker"
	"nexus/pkg/util"
)

// SlackNotifier posts events to a Slack incoming webhook.
type SlackNotifier struct {
	webhookURL string
	httpClient *http.Client
	breaker    *circuitbreaker.CircuitBreaker
	logger     *zap.Logger
}

func NewSlackNotifier(webhookURL string, logger *zap.Logger) *SlackNotifier {
	cfg := circuitbreaker.DefaultConfig()
	cfg.IsSuccessful = func(err error) bool {
		retryable, _ := util.IsRetryableError(err)
		return err == nil || !retryable
	}
	return &SlackNotifier{
		webhookURL: webhookURL,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
		breaker: circuitbreaker.New("slack", cfg, logger),
		logger:  logger,
	}
}

// Enabled is false when no webhook URL is configured.
func (n *SlackNotifier) Enabled() bool {
	return n.webhookURL != ""
}

func (n *SlackNotifier) Name() string {
	return "slack"
}

// Handle lets the notifier subscribe to the event bus directly.
func (n *SlackNotifier) Handle(ctx context.Context, e events.Event) error {
	return n.Send(ctx, e)
}

// Send posts a single event.
func (n *SlackNotifier) Send(ctx context.Context, e events.Event) error {
	if !n.Enabled() {
		return nil
	}

	body, err := json.Marshal(map[string]string{"text": FormatSlack(e)})
	if err != nil {
		return err
	}

	err = n.breaker.Execute(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := n.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode/100 != 2 {
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return &util.StatusError{Service: "slack", StatusCode: resp.StatusCode, Body: string(b)}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("slack notify %s: %w", e.Name, err)
	}

	n.logger.Debug("Slack notification sent",
		zap.String("event", e.Name),
		zap.String("project_id", e.ProjectID),
	)
	return nil
}

var slackEmoji = map[string]string{
	events.LevelInfo:    ":information_source:",
	events.LevelSuccess: ":white_check_mark:",
	events.LevelWarning: ":warning:",
	events.LevelError:   ":x:",
}

// FormatSlack renders an event as Slack mrkdwn text.
func FormatSlack(e events.Event) string {
	var b strings.Builder
	if emoji, ok := slackEmoji[e.Level]; ok {
		b.WriteString(emoji)
		b.WriteByte(' ')
	}
	b.WriteString("*")
	b.WriteString(e.Title)
	b.WriteString("*")
	if e.ProjectName != "" {
		b.WriteString(" in _")
		b.WriteString(e.ProjectName)
		b.WriteString("_")
	}
	if e.Message != "" {
		b.WriteString("\n")
		b.WriteString(e.Message)
	}
	if e.Actor != "" {
		b.WriteString("\nby ")
		b.WriteString(e.Actor)
	}
	return b.String()
}
