package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"

	"storyloom/internal/domain"
	"storyloom/internal/domain/ports/adapter"
	"storyloom/internal/infra/metrics"
)

var (
	_ adapter.TextGenerator       = (*retryingAI)(nil)
	_ adapter.StructuredGenerator = (*retryingAI)(nil)
	_ adapter.Embedder            = (*retryingAI)(nil)
)

// retryingAI wraps the raw adapter with a bounded retry policy: fixed attempt
// count, doubling delay. Exhaustion surfaces as ErrGenerationExhausted so the
// pipeline can fail the whole stage.
type retryingAI struct {
	text       adapter.TextGenerator
	structured adapter.StructuredGenerator
	embedder   adapter.Embedder
	attempts   uint
	baseDelay  time.Duration
}

type fullGenerator interface {
	adapter.TextGenerator
	adapter.StructuredGenerator
	adapter.Embedder
}

func NewRetryingAI(inner fullGenerator, attempts int, baseDelay time.Duration) *retryingAI {
	if attempts <= 0 {
		attempts = 3
	}
	if baseDelay <= 0 {
		baseDelay = time.Second
	}
	return &retryingAI{
		text:       inner,
		structured: inner,
		embedder:   inner,
		attempts:   uint(attempts),
		baseDelay:  baseDelay,
	}
}

func (r *retryingAI) GenerateText(ctx context.Context, prompt string, p adapter.GenerationParams) (string, error) {
	var out string
	err := r.run(ctx, "text", func() error {
		var err error
		out, err = r.text.GenerateText(ctx, prompt, p)
		return err
	})
	return out, err
}

func (r *retryingAI) GenerateStructured(ctx context.Context, prompt string, schema adapter.Schema, p adapter.GenerationParams) (json.RawMessage, error) {
	var out json.RawMessage
	err := r.run(ctx, "structured", func() error {
		var err error
		out, err = r.structured.GenerateStructured(ctx, prompt, schema, p)
		return err
	})
	return out, err
}

func (r *retryingAI) Embed(ctx context.Context, text string) ([]float64, error) {
	var out []float64
	err := r.run(ctx, "embedding", func() error {
		var err error
		out, err = r.embedder.Embed(ctx, text)
		return err
	})
	return out, err
}

func (r *retryingAI) run(ctx context.Context, operation string, fn func() error) error {
	err := retry.Do(fn,
		retry.Context(ctx),
		retry.Attempts(r.attempts),
		retry.Delay(r.baseDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			// Cancellation and policy rejections are not transient.
			return !errors.Is(err, context.Canceled) &&
				!errors.Is(err, context.DeadlineExceeded) &&
				!errors.Is(err, domain.ErrContentPolicy)
		}),
		retry.OnRetry(func(n uint, err error) {
			metrics.IncAIRetry(operation)
		}),
	)
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, domain.ErrContentPolicy) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", domain.ErrGenerationExhausted, operation, err)
}
