package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"docpipe/internal/config"
	"docpipe/internal/services"
)

const userAgent = "docpipe/0.1.0"

// Event identifies the notification being published.
type Event string

const (
	EventDocumentClassified Event = "document-classified"
	EventDocumentFailed     Event = "document-failed"
	EventTest               Event = "test"
)

// Payload carries the document detail rendered into the outbound message.
type Payload struct {
	DocumentID       string
	OriginalFileName string
	Category         string
	Stage            string
	Reason           string
}

// Service publishes user-facing notifications about pipeline outcomes.
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
		endpoint:       topic,
		client:         &http.Client{Timeout: timeout},
		sendClassified: cfg.Notifications.Classified,
		sendFailures:   cfg.Notifications.Failures,
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint       string
	client         *http.Client
	sendClassified bool
	sendFailures   bool
}

// Publish implements Service.
func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	name := strings.TrimSpace(payload.OriginalFileName)
	if name == "" {
		name = payload.DocumentID
	}

	var data message
	switch event {
	case EventDocumentClassified:
		if !n.sendClassified {
			return nil
		}
		data = message{
			title: "Docpipe - Classified",
			body:  fmt.Sprintf("%s classified as %s", name, payload.Category),
			tags:  []string{"docpipe", "classified"},
		}
	case EventDocumentFailed:
		if !n.sendFailures {
			return nil
		}
		body := fmt.Sprintf("%s failed", name)
		if payload.Stage != "" {
			body = fmt.Sprintf("%s failed during %s", name, payload.Stage)
		}
		if reason := strings.TrimSpace(payload.Reason); reason != "" {
			body = fmt.Sprintf("%s: %s", body, reason)
		}
		data = message{
			title:    "Docpipe - Failed",
			body:     body,
			tags:     []string{"docpipe", "failed", "alert"},
			priority: "high",
		}
	case EventTest:
		data = message{
			title:    "Docpipe - Test",
			body:     "Notification system test",
			tags:     []string{"docpipe", "test"},
			priority: "low",
		}
	default:
		return fmt.Errorf("unknown notification event %q", event)
	}

	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data message) error {
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
		return services.Wrap(services.ErrTransient, "notifications", "send", data.title, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return services.Wrap(services.ErrTransient, "notifications", "send",
			fmt.Sprintf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body))), nil)
	}
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return services.Wrap(services.ErrValidation, "notifications", "send",
			fmt.Sprintf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body))), nil)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
