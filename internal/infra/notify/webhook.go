package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"storyloom/internal/domain/ports/adapter"
)

var _ adapter.CompletionNotifier = (*WebhookNotifier)(nil)

// WebhookNotifier POSTs terminal job states to a configured URL. Delivery is
// at-most-once: a failed POST is logged and dropped, never retried, and the
// job outcome does not depend on it.
type WebhookNotifier struct {
	url    string
	client *http.Client
	logger *zerolog.Logger
}

func NewWebhookNotifier(url string, timeout time.Duration, logger *zerolog.Logger) *WebhookNotifier {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	sub := logger.With().Str("component", "webhook-notifier").Logger()
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: &sub,
	}
}

func (w *WebhookNotifier) NotifyJobFinished(ctx context.Context, n adapter.JobNotification) error {
	if w.url == "" {
		return nil
	}
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		w.logger.Warn().Err(err).Str("job_id", n.JobID).Msg("webhook delivery failed")
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		w.logger.Warn().Int("status", resp.StatusCode).Str("job_id", n.JobID).Msg("webhook rejected")
		return fmt.Errorf("webhook status %d", resp.StatusCode)
	}
	w.logger.Debug().Str("job_id", n.JobID).Str("status", n.Status).Msg("webhook delivered")
	return nil
}
