package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"storyloom/internal/domain/model"
	"storyloom/internal/domain/ports/adapter"
)

var _ fullGenerator = (*NoopAIAdapter)(nil)

// NoopAIAdapter implements the generation ports for local/dev runs. It emits
// deterministic filler instead of calling a real provider.
type NoopAIAdapter struct{}

func NewNoopAIAdapter() *NoopAIAdapter {
	return &NoopAIAdapter{}
}

func (a *NoopAIAdapter) GenerateText(ctx context.Context, prompt string, p adapter.GenerationParams) (string, error) {
	select {
	case <-time.After(50 * time.Millisecond):
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return fmt.Sprintf("[noop prose for prompt of %d chars]", len(prompt)), nil
}

func (a *NoopAIAdapter) GenerateStructured(ctx context.Context, prompt string, schema adapter.Schema, p adapter.GenerationParams) (json.RawMessage, error) {
	select {
	case <-time.After(50 * time.Millisecond):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	// Canned documents keyed by the schema names the metadata engine uses.
	// Each one has to satisfy the schema it is answering for, or dev runs
	// drift from what a real provider is held to.
	switch schema.Name {
	case "story_title":
		return json.RawMessage(`{"title":"Untitled Draft"}`), nil
	case "story_description":
		return json.RawMessage(`{"description":"A placeholder description."}`), nil
	case "story_tags":
		return json.RawMessage(`{"tags":["romance","slow burn","second chances","small town","happily ever after"]}`), nil
	case "story_warnings":
		return json.RawMessage(`{"trigger_warnings":[],"is_explicit":false}`), nil
	case "story_audience":
		return json.RawMessage(`{"target_audience":["adult"]}`), nil
	default:
		return json.RawMessage(`{}`), nil
	}
}

func (a *NoopAIAdapter) Embed(ctx context.Context, text string) ([]float64, error) {
	select {
	case <-time.After(10 * time.Millisecond):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return model.ZeroEmbedding(), nil
}
