// Package notify delivers alert events to the configured sink.
//
// DESIGN: Delivery is decoupled from detection. The Slack client renders an
// event into the incoming-webhook payload and posts it with bounded,
// per-attempt timeouts; the Dispatcher feeds it from a bounded queue so a
// slow or dead sink never stalls log ingestion. A failed delivery is logged
// and dropped after the retry budget; it never propagates upstream.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/whotterre/log-watcher/internal/alert"
	"github.com/whotterre/log-watcher/internal/monitoring"
)

// SlackConfig contains webhook delivery settings.
type SlackConfig struct {
	WebhookURL string        // incoming-webhook URL; empty disables delivery
	Timeout    time.Duration // per-attempt timeout
	Retries    int           // total attempts per event
	Backoff    time.Duration // initial retry backoff, doubled per attempt
}

// Slack posts alert events to a Slack incoming webhook.
type Slack struct {
	cfg    SlackConfig
	client *http.Client
	logger *monitoring.Logger
}

// NewSlack creates a Slack sink, filling unset settings with defaults.
func NewSlack(cfg SlackConfig, logger *monitoring.Logger) *Slack {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Retries < 1 {
		cfg.Retries = 3
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 500 * time.Millisecond
	}
	return &Slack{
		cfg:    cfg,
		client: &http.Client{},
		logger: logger,
	}
}

// Enabled reports whether a webhook URL is configured.
func (s *Slack) Enabled() bool { return s.cfg.WebhookURL != "" }

// payload is the incoming-webhook message shape.
type payload struct {
	Username    string       `json:"username"`
	IconEmoji   string       `json:"icon_emoji"`
	Attachments []attachment `json:"attachments"`
}

type attachment struct {
	Fallback string `json:"fallback"`
	Color    string `json:"color"`
	Title    string `json:"title"`
	Text     string `json:"text"`
	Ts       int64  `json:"ts"`
}

// statusError reports a non-2xx response from the sink.
type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("sink returned status %d", e.code)
}

// Deliver renders and posts one event. Transient failures (transport
// errors, 5xx, 429) are retried with doubling backoff up to the configured
// attempt budget; other rejections fail immediately.
func (s *Slack) Deliver(ctx context.Context, ev alert.Event) error {
	if !s.Enabled() {
		return errors.New("slack webhook URL not configured")
	}

	body, err := json.Marshal(renderPayload(ev))
	if err != nil {
		return fmt.Errorf("failed to encode slack payload: %w", err)
	}

	var lastErr error
	backoff := s.cfg.Backoff

	attempt := 1
	for ; attempt <= s.cfg.Retries; attempt++ {
		err := s.post(ctx, body)
		if err == nil {
			s.logger.Info().
				Str("kind", string(ev.Kind)).
				Str("alert_id", ev.ID).
				Int("attempt", attempt).
				Msg("slack alert sent")
			return nil
		}
		lastErr = err

		if !retryable(err) {
			break
		}
		if attempt == s.cfg.Retries {
			break
		}

		s.logger.Warn().
			Err(err).
			Str("alert_id", ev.ID).
			Int("attempt", attempt).
			Dur("backoff", backoff).
			Msg("slack delivery failed, retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}

	return fmt.Errorf("slack delivery gave up after %d attempt(s): %w", attempt, lastErr)
}

// post performs a single webhook request under its own timeout.
func (s *Slack) post(ctx context.Context, body []byte) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &statusError{code: resp.StatusCode}
	}
	return nil
}

// retryable reports whether the failure is worth another attempt. Transport
// errors and throttling/server errors are; other HTTP rejections (a revoked
// webhook returns 403/404) are permanent.
func retryable(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.code >= 500 || se.code == http.StatusTooManyRequests
	}
	return true
}

// renderPayload builds the webhook message for an event.
func renderPayload(ev alert.Event) payload {
	title, text := renderMessage(ev)
	return payload{
		Username:  "log-watcher",
		IconEmoji: ":rotating_light:",
		Attachments: []attachment{
			{
				Fallback: title + " - " + text,
				Color:    "danger",
				Title:    title,
				Text:     text,
				Ts:       ev.At.Unix(),
			},
		},
	}
}

// renderMessage produces the human-readable title and body per alert kind.
func renderMessage(ev alert.Event) (title, text string) {
	switch ev.Kind {
	case alert.KindFailover:
		title = "Failover Detected"
		text = fmt.Sprintf("Failover detected: %s -> %s\nSample log: %s",
			ev.PrevPool, ev.Pool, ev.Line)
	case alert.KindHighErrorRate:
		title = "High Error Rate"
		text = fmt.Sprintf(
			"High upstream 5xx error rate detected: %.2f%% over last %d requests\n"+
				"Threshold: %g%%\n"+
				"Latest sample: pool=%s status=%d upstream=%s",
			ev.Rate, ev.WindowLen, ev.Threshold,
			ev.Pool, ev.Record.Status, ev.Record.Upstream)
	default:
		title = "Alert"
		text = fmt.Sprintf("Unknown alert kind %q", ev.Kind)
	}
	return title, text
}
