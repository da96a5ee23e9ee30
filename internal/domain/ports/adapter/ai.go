package adapter

import (
	"context"
	"encoding/json"
)

// GenerationParams tune a single generation call.
type GenerationParams struct {
	SystemPrompt string
	Temperature  float64
	MaxTokens    int
}

// Schema declares the expected shape of a structured generation result.
// Raw is a JSON Schema document; results that fail validation against it are
// errors, never silently coerced.
type Schema struct {
	Name string
	Raw  json.RawMessage
}

// TextGenerator produces free text from a prompt. Calls may take seconds to
// tens of seconds and fail transiently; retry policy lives in a wrapper, not
// in implementations.
type TextGenerator interface {
	GenerateText(ctx context.Context, prompt string, p GenerationParams) (string, error)
}

// StructuredGenerator produces a schema-validated JSON document.
type StructuredGenerator interface {
	GenerateStructured(ctx context.Context, prompt string, schema Schema, p GenerationParams) (json.RawMessage, error)
}

// Embedder turns text into a fixed-width semantic vector. Implementations
// surface provider errors; the best-effort zero-vector fallback is the
// caller's concern.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// GenerationService is the full generation surface the engines consume.
type GenerationService interface {
	TextGenerator
	StructuredGenerator
}
