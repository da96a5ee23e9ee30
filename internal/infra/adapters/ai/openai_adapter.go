package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	openai "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/shared"

	"storyloom/internal/domain"
	"storyloom/internal/domain/ports/adapter"
	"storyloom/internal/infra/metrics"
)

// Compile-time assurance this adapter satisfies the ports
var (
	_ adapter.TextGenerator       = (*OpenAIAdapter)(nil)
	_ adapter.StructuredGenerator = (*OpenAIAdapter)(nil)
	_ adapter.Embedder            = (*OpenAIAdapter)(nil)
)

// OpenAIAdapter implements the generation ports on the Chat Completions and
// Embeddings APIs.
type OpenAIAdapter struct {
	client          openai.Client
	textModel       string
	structuredModel string
	embeddingModel  string
}

type OpenAIConfig struct {
	APIKey          string
	BaseURL         string
	TextModel       string
	StructuredModel string
	EmbeddingModel  string
}

func NewOpenAIAdapter(cfg OpenAIConfig) (*OpenAIAdapter, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai api key empty")
	}
	if cfg.TextModel == "" {
		cfg.TextModel = "gpt-4o"
	}
	if cfg.StructuredModel == "" {
		cfg.StructuredModel = "gpt-4o-mini"
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = "text-embedding-3-small"
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(&http.Client{Timeout: 120 * time.Second}),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAIAdapter{
		client:          openai.NewClient(opts...),
		textModel:       cfg.TextModel,
		structuredModel: cfg.StructuredModel,
		embeddingModel:  cfg.EmbeddingModel,
	}, nil
}

func (o *OpenAIAdapter) GenerateText(ctx context.Context, prompt string, p adapter.GenerationParams) (string, error) {
	start := time.Now()
	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(o.textModel),
		Messages: buildMessages(prompt, p),
	}
	if p.Temperature > 0 {
		params.Temperature = openai.Float(p.Temperature)
	}
	if p.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(p.MaxTokens))
	}

	resp, err := o.client.Chat.Completions.New(ctx, params)
	metrics.ObserveAICall("text", o.textModel, int(time.Since(start).Milliseconds()), err == nil)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	for _, c := range resp.Choices {
		if c.Message.Content != "" {
			return c.Message.Content, nil
		}
	}
	return "", errors.New("no choice content")
}

func (o *OpenAIAdapter) GenerateStructured(ctx context.Context, prompt string, schema adapter.Schema, p adapter.GenerationParams) (json.RawMessage, error) {
	var schemaDoc map[string]interface{}
	if err := json.Unmarshal(schema.Raw, &schemaDoc); err != nil {
		return nil, fmt.Errorf("parse schema %s: %w", schema.Name, err)
	}

	start := time.Now()
	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(o.structuredModel),
		Messages: buildMessages(prompt, p),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
				JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   schema.Name,
					Schema: schemaDoc,
					Strict: openai.Bool(true),
				},
			},
		},
	}
	if p.Temperature > 0 {
		params.Temperature = openai.Float(p.Temperature)
	}

	resp, err := o.client.Chat.Completions.New(ctx, params)
	metrics.ObserveAICall("structured", o.structuredModel, int(time.Since(start).Milliseconds()), err == nil)
	if err != nil {
		return nil, fmt.Errorf("structured completion: %w", err)
	}

	var raw json.RawMessage
	for _, c := range resp.Choices {
		if c.Message.Content != "" {
			raw = json.RawMessage(c.Message.Content)
			break
		}
	}
	if raw == nil {
		return nil, errors.New("no choice content")
	}

	// The provider promises the shape but is not trusted: validate locally and
	// reject mismatches instead of coercing.
	if err := validateAgainstSchema(schema, raw); err != nil {
		metrics.IncSchemaFailure(schema.Name)
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrSchemaMismatch, schema.Name, err)
	}
	return raw, nil
}

func (o *OpenAIAdapter) Embed(ctx context.Context, text string) ([]float64, error) {
	start := time.Now()
	resp, err := o.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(o.embeddingModel),
		Input: openai.EmbeddingNewParamsInputUnion{
			OfString: openai.String(text),
		},
	})
	metrics.ObserveAICall("embedding", o.embeddingModel, int(time.Since(start).Milliseconds()), err == nil)
	if err != nil {
		return nil, fmt.Errorf("embeddings: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("empty embedding response")
	}
	return resp.Data[0].Embedding, nil
}

func buildMessages(prompt string, p adapter.GenerationParams) []openai.ChatCompletionMessageParamUnion {
	var msgs []openai.ChatCompletionMessageParamUnion
	if p.SystemPrompt != "" {
		msgs = append(msgs, openai.SystemMessage(p.SystemPrompt))
	}
	msgs = append(msgs, openai.UserMessage(prompt))
	return msgs
}
