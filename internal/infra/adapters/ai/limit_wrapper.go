package ai

import (
	"context"
	"encoding/json"

	"storyloom/internal/domain/ports/adapter"
)

// Compile-time check
var (
	_ adapter.TextGenerator       = (*limitedAI)(nil)
	_ adapter.StructuredGenerator = (*limitedAI)(nil)
	_ adapter.Embedder            = (*limitedAI)(nil)
)

// limitedAI caps concurrent in-flight provider calls with a semaphore.
type limitedAI struct {
	inner fullGenerator
	sem   chan struct{}
}

func NewLimitedAI(inner fullGenerator, maxConcurrent int) fullGenerator {
	if maxConcurrent <= 0 {
		return inner
	}
	return &limitedAI{
		inner: inner,
		sem:   make(chan struct{}, maxConcurrent),
	}
}

func (l *limitedAI) GenerateText(ctx context.Context, prompt string, p adapter.GenerationParams) (string, error) {
	if err := l.acquire(ctx); err != nil {
		return "", err
	}
	defer l.release()
	return l.inner.GenerateText(ctx, prompt, p)
}

func (l *limitedAI) GenerateStructured(ctx context.Context, prompt string, schema adapter.Schema, p adapter.GenerationParams) (json.RawMessage, error) {
	if err := l.acquire(ctx); err != nil {
		return nil, err
	}
	defer l.release()
	return l.inner.GenerateStructured(ctx, prompt, schema, p)
}

func (l *limitedAI) Embed(ctx context.Context, text string) ([]float64, error) {
	if err := l.acquire(ctx); err != nil {
		return nil, err
	}
	defer l.release()
	return l.inner.Embed(ctx, text)
}

func (l *limitedAI) acquire(ctx context.Context) error {
	select {
	case l.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *limitedAI) release() { <-l.sem }
