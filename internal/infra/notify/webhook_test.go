//go:build !integration

package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"storyloom/internal/domain/ports/adapter"
)

func TestWebhookNotifier(t *testing.T) {
	ctx := context.Background()
	logger := zerolog.New(io.Discard)

	t.Run("should POST the notification as JSON", func(t *testing.T) {
		var got adapter.JobNotification
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				t.Errorf("expected POST, got %s", r.Method)
			}
			if ct := r.Header.Get("Content-Type"); ct != "application/json" {
				t.Errorf("expected json content type, got %s", ct)
			}
			if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
				t.Errorf("failed to decode body: %v", err)
			}
			w.WriteHeader(http.StatusNoContent)
		}))
		defer srv.Close()

		n := NewWebhookNotifier(srv.URL, time.Second, &logger)
		err := n.NotifyJobFinished(ctx, adapter.JobNotification{
			JobID: "job-1", Kind: "story_generation", Status: "completed", SequenceID: "seq-1",
		})
		if err != nil {
			t.Fatalf("expected delivery to succeed, got: %v", err)
		}
		if got.JobID != "job-1" || got.Status != "completed" {
			t.Errorf("unexpected payload: %+v", got)
		}
	})

	t.Run("should report non-2xx as an error without panicking", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()

		n := NewWebhookNotifier(srv.URL, time.Second, &logger)
		if err := n.NotifyJobFinished(ctx, adapter.JobNotification{JobID: "job-2"}); err == nil {
			t.Error("expected an error for a rejected webhook")
		}
	})

	t.Run("should be a no-op with no URL configured", func(t *testing.T) {
		n := NewWebhookNotifier("", time.Second, &logger)
		if err := n.NotifyJobFinished(ctx, adapter.JobNotification{JobID: "job-3"}); err != nil {
			t.Errorf("expected nil for unconfigured notifier, got: %v", err)
		}
	})
}
