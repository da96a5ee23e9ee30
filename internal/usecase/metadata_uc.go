package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"storyloom/internal/domain/model"
	"storyloom/internal/domain/ports/adapter"
	"storyloom/internal/domain/ports/repository"
	"storyloom/internal/infra/logging"
	"storyloom/internal/infra/metrics"
)

// Compile-time check
var _ MetadataEngine = (*metadataUC)(nil)

// MetadataEngine derives catalog metadata and the semantic embedding for a
// sequence from its outline. GenerateMetadata and GenerateEmbedding are
// side-effect free; EnrichSequence composes them and persists.
type MetadataEngine interface {
	GenerateMetadata(ctx context.Context, outlineText string) (model.StoryMetadata, error)
	GenerateEmbedding(ctx context.Context, text string) []float64
	EnrichSequence(ctx context.Context, job *model.Job, seq *model.Sequence) error
}

// The five independent metadata sub-tasks, each with its own schema.
var (
	titleSchema = adapter.Schema{Name: "story_title", Raw: json.RawMessage(`{
		"type": "object",
		"properties": {"title": {"type": "string", "minLength": 1}},
		"required": ["title"],
		"additionalProperties": false
	}`)}

	descriptionSchema = adapter.Schema{Name: "story_description", Raw: json.RawMessage(`{
		"type": "object",
		"properties": {"description": {"type": "string", "minLength": 1}},
		"required": ["description"],
		"additionalProperties": false
	}`)}

	tagsSchema = adapter.Schema{Name: "story_tags", Raw: json.RawMessage(`{
		"type": "object",
		"properties": {"tags": {"type": "array", "items": {"type": "string"}, "minItems": 5, "maxItems": 8}},
		"required": ["tags"],
		"additionalProperties": false
	}`)}

	warningsSchema = adapter.Schema{Name: "story_warnings", Raw: json.RawMessage(`{
		"type": "object",
		"properties": {
			"trigger_warnings": {"type": "array", "items": {"type": "string"}, "maxItems": 5},
			"is_explicit": {"type": "boolean"}
		},
		"required": ["trigger_warnings", "is_explicit"],
		"additionalProperties": false
	}`)}

	audienceSchema = adapter.Schema{Name: "story_audience", Raw: json.RawMessage(`{
		"type": "object",
		"properties": {"target_audience": {"type": "array", "items": {"type": "string"}, "minItems": 1}},
		"required": ["target_audience"],
		"additionalProperties": false
	}`)}
)

type metadataUC struct {
	sequences repository.SequenceRepository
	ai        adapter.StructuredGenerator
	embedder  adapter.Embedder

	log *zerolog.Logger
}

func NewMetadataEngine(sequences repository.SequenceRepository, ai adapter.StructuredGenerator, embedder adapter.Embedder, logger *zerolog.Logger) *metadataUC {
	return &metadataUC{sequences: sequences, ai: ai, embedder: embedder, log: logger}
}

// GenerateMetadata issues the five sub-task calls in parallel and merges the
// results. Any sub-task failure fails the whole operation; partial metadata is
// never returned.
func (u *metadataUC) GenerateMetadata(ctx context.Context, outlineText string) (model.StoryMetadata, error) {
	defer logging.TraceDuration(u.log, "MetadataEngine.GenerateMetadata")()

	var (
		md model.StoryMetadata

		title struct {
			Title string `json:"title"`
		}
		description struct {
			Description string `json:"description"`
		}
		tags struct {
			Tags []string `json:"tags"`
		}
		warnings struct {
			TriggerWarnings []string `json:"trigger_warnings"`
			IsExplicit      bool     `json:"is_explicit"`
		}
		audience struct {
			TargetAudience []string `json:"target_audience"`
		}
	)

	tasks := []struct {
		prompt string
		schema adapter.Schema
		into   any
	}{
		{buildTitlePrompt(outlineText), titleSchema, &title},
		{buildDescriptionPrompt(outlineText), descriptionSchema, &description},
		{buildTagsPrompt(outlineText), tagsSchema, &tags},
		{buildWarningsPrompt(outlineText), warningsSchema, &warnings},
		{buildAudiencePrompt(outlineText), audienceSchema, &audience},
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, task := range tasks {
		wg.Add(1)
		go func(prompt string, schema adapter.Schema, into any) {
			defer wg.Done()
			if err := u.generateInto(ctx, prompt, schema, into); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}(task.prompt, task.schema, task.into)
	}
	wg.Wait()
	if len(errs) > 0 {
		return model.StoryMetadata{}, fmt.Errorf("metadata generation: %w", errs[0])
	}

	md.Title = title.Title
	md.Description = description.Description
	// Lower-cased on the way in; duplicates are kept as generated.
	md.Tags = lowercaseAll(tags.Tags)
	md.TriggerWarnings = lowercaseAll(warnings.TriggerWarnings)
	md.IsExplicit = warnings.IsExplicit
	md.TargetAudience = audience.TargetAudience
	return md, nil
}

func (u *metadataUC) generateInto(ctx context.Context, prompt string, schema adapter.Schema, into any) error {
	raw, err := u.ai.GenerateStructured(ctx, prompt, schema, adapter.GenerationParams{
		SystemPrompt: metadataSystemPrompt,
		Temperature:  0.4,
		MaxTokens:    512,
	})
	if err != nil {
		return fmt.Errorf("%s: %w", schema.Name, err)
	}
	if err := json.Unmarshal(raw, into); err != nil {
		return fmt.Errorf("%s: decode result: %w", schema.Name, err)
	}
	return nil
}

// GenerateEmbedding is best-effort: misconfiguration or a provider failure
// yields the fixed-width zero vector, never an error, so embeddings can never
// block the pipeline.
func (u *metadataUC) GenerateEmbedding(ctx context.Context, text string) []float64 {
	if u.embedder == nil {
		metrics.IncEmbeddingFallback()
		u.log.Warn().Msg("no embedder configured, storing zero vector")
		return model.ZeroEmbedding()
	}
	vec, err := u.embedder.Embed(ctx, text)
	if err != nil || len(vec) == 0 {
		metrics.IncEmbeddingFallback()
		u.log.Warn().Err(err).Msg("embedding failed, storing zero vector")
		return model.ZeroEmbedding()
	}
	return vec
}

// EnrichSequence derives and persists metadata plus the embedding. Metadata is
// all-or-nothing; nothing is written when any sub-task fails.
func (u *metadataUC) EnrichSequence(ctx context.Context, job *model.Job, seq *model.Sequence) error {
	defer logging.TraceDuration(u.log, "MetadataEngine.EnrichSequence")()

	outlineText := seq.Outline().Text()
	md, err := u.GenerateMetadata(ctx, outlineText)
	if err != nil {
		return err
	}
	if err := u.sequences.UpdateMetadata(ctx, repository.NoTX, seq.ID, md); err != nil {
		return fmt.Errorf("persist metadata: %w", err)
	}
	seq.Title = md.Title
	seq.Description = md.Description
	seq.Tags = md.Tags
	seq.TriggerWarnings = md.TriggerWarnings
	seq.IsExplicit = md.IsExplicit
	seq.TargetAudience = md.TargetAudience

	vec := u.GenerateEmbedding(ctx, md.Title+"\n"+md.Description+"\n"+outlineText)
	if err := u.sequences.UpdateEmbedding(ctx, repository.NoTX, seq.ID, vec); err != nil {
		return fmt.Errorf("persist embedding: %w", err)
	}
	seq.Embedding = vec

	u.log.Info().Str("sequence_id", seq.ID).Str("title", md.Title).Int("tags", len(md.Tags)).Msg("sequence enriched")
	return nil
}

func lowercaseAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, strings.ToLower(strings.TrimSpace(s)))
	}
	return out
}
