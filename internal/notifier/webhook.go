package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"signal-radar/internal/model"
)

// WebhookConfig 推送配置。
type WebhookConfig struct {
	Timeout string `yaml:"timeout" json:"timeout"`
}

// SignalPayload 推送体。
type SignalPayload struct {
	Type      string         `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Events    []EventPayload `json:"events"`
}

// EventPayload 单条事件。
type EventPayload struct {
	Keyword  string     `json:"keyword"`
	PostURL  string     `json:"post_url"`
	PostDate *time.Time `json:"post_date"`
	Snippet  string     `json:"snippet"`
}

// WebhookNotifier 以 POST 推送信号，不重试。
type WebhookNotifier struct {
	client *http.Client
	now    func() time.Time
}

// NewWebhookNotifier 创建推送器，默认超时 10s。
func NewWebhookNotifier(cfg WebhookConfig, client *http.Client) *WebhookNotifier {
	if client == nil {
		timeout := 10 * time.Second
		if d, err := time.ParseDuration(cfg.Timeout); err == nil && d > 0 {
			timeout = d
		}
		client = &http.Client{Timeout: timeout}
	}
	return &WebhookNotifier{client: client, now: time.Now}
}

// Deliver 发送一次推送，非 2xx 或网络错误返回 error，由调用方记录。
func (n *WebhookNotifier) Deliver(ctx context.Context, target string, events []model.SignalEvent) error {
	if target == "" || len(events) == 0 {
		return nil
	}
	data, err := json.Marshal(buildPayload(events, n.now()))
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook post: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook http %d", resp.StatusCode)
	}
	return nil
}

func buildPayload(events []model.SignalEvent, ts time.Time) SignalPayload {
	payload := SignalPayload{Type: "signal_detected", Timestamp: ts.UTC(), Events: make([]EventPayload, 0, len(events))}
	for _, ev := range events {
		payload.Events = append(payload.Events, EventPayload{
			Keyword:  ev.Keyword,
			PostURL:  ev.PostURL,
			PostDate: ev.PostDate,
			Snippet:  ev.Snippet,
		})
	}
	return payload
}
