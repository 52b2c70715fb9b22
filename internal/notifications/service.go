package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"comic2kindle/internal/config"
)

const userAgent = "comic2kindle/0.1.0"

// Event identifies a conversion milestone.
type Event string

const (
	// EventJobCompleted fires when a conversion job finishes with output.
	EventJobCompleted Event = "job_completed"
	// EventJobFailed fires when a conversion job ends in failure.
	EventJobFailed Event = "job_failed"
	// EventTest verifies the notification channel.
	EventTest Event = "test"
)

// Payload carries event-specific fields for message formatting.
type Payload map[string]string

// Service publishes conversion events to the configured transport.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:   topic,
		client:     &http.Client{Timeout: timeout},
		completion: cfg.Notifications.Completion,
		errors:     cfg.Notifications.Errors,
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint   string
	client     *http.Client
	completion bool
	errors     bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	switch event {
	case EventJobCompleted:
		if !n.completion {
			return nil
		}
		title := strings.TrimSpace(payload["title"])
		body := fmt.Sprintf("Conversion complete: %s", title)
		if volumes := strings.TrimSpace(payload["volumes"]); volumes != "" && volumes != "1" {
			body = fmt.Sprintf("%s (%s volumes)", body, volumes)
		}
		if warnings := strings.TrimSpace(payload["warnings"]); warnings != "" {
			body = fmt.Sprintf("%s\n%s", body, warnings)
		}
		return n.send(ctx, message{
			title: "comic2kindle - Complete",
			body:  body,
			tags:  []string{"comic2kindle", "convert", "completed"},
		})
	case EventJobFailed:
		if !n.errors {
			return nil
		}
		var builder strings.Builder
		builder.WriteString("Conversion failed")
		if title := strings.TrimSpace(payload["title"]); title != "" {
			builder.WriteString(" for ")
			builder.WriteString(title)
		}
		builder.WriteString(": ")
		if reason := strings.TrimSpace(payload["error"]); reason != "" {
			builder.WriteString(reason)
		} else {
			builder.WriteString("unknown")
		}
		return n.send(ctx, message{
			title:    "comic2kindle - Error",
			body:     builder.String(),
			tags:     []string{"comic2kindle", "error", "alert"},
			priority: "high",
		})
	case EventTest:
		return n.send(ctx, message{
			title:    "comic2kindle - Test",
			body:     "Notification system test",
			tags:     []string{"comic2kindle", "test"},
			priority: "low",
		})
	default:
		return nil
	}
}

func (n *ntfyService) send(ctx context.Context, data message) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
