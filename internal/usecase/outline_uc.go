package usecase

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"storyloom/internal/domain"
	"storyloom/internal/domain/model"
	"storyloom/internal/domain/ports/adapter"
	"storyloom/internal/domain/ports/repository"
	"storyloom/internal/infra/logging"
)

// Compile-time check
var _ OutlineEngine = (*outlineUC)(nil)

// OutlineEngine plans story structure. BuildOutline plans a sequence that has
// no chapters yet, folding the reader's prompt into the plan, and picks its
// writing quirk; RegenerateSuffix keeps chapters before the prompt's insertion
// index verbatim and replaces the rest.
type OutlineEngine interface {
	BuildOutline(ctx context.Context, job *model.Job, seq *model.Sequence, prompt *model.UserPrompt, sink ProgressSink) (*model.Outline, error)
	RegenerateSuffix(ctx context.Context, job *model.Job, seq *model.Sequence, prompt *model.UserPrompt, sink ProgressSink) (*model.Outline, error)
}

type outlineUC struct {
	sequences repository.SequenceRepository
	ai        adapter.TextGenerator

	// maxAttempts bounds the parse-and-validate loop. A malformed or
	// wrong-shaped response is retried as a whole new generation call.
	maxAttempts int

	log *zerolog.Logger
}

func NewOutlineEngine(sequences repository.SequenceRepository, ai adapter.TextGenerator, logger *zerolog.Logger) *outlineUC {
	return &outlineUC{sequences: sequences, ai: ai, maxAttempts: 3, log: logger}
}

func (u *outlineUC) BuildOutline(ctx context.Context, job *model.Job, seq *model.Sequence, prompt *model.UserPrompt, sink ProgressSink) (*model.Outline, error) {
	defer logging.TraceDuration(u.log, "OutlineEngine.BuildOutline")()

	tier := tierFor(job, seq)
	cfg, _ := model.TierConfig(tier)
	sink.ReportProgress(ctx, job.ID, 5, "outlining")

	direction := ""
	if prompt != nil {
		direction = prompt.Text
	}
	ask := buildOutlinePrompt(job.Preferences, direction, cfg)
	outline, err := u.generateValidated(ctx, ask, tier, func(parsed model.Outline) error {
		if !parsed.Conforms(tier) {
			return shapeError(parsed, cfg)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	quirk := seq.WritingQuirk
	if quirk == "" {
		quirk = pickWritingQuirk(seq.ID)
	}
	if err := u.sequences.UpdateOutline(ctx, repository.NoTX, seq.ID, outline.Chapters, quirk); err != nil {
		return nil, fmt.Errorf("persist outline: %w", err)
	}
	seq.Chapters = outline.Chapters
	seq.WritingQuirk = quirk
	seq.LengthTier = tier

	sink.ReportProgress(ctx, job.ID, 25, "outline_ready")
	u.log.Info().Str("sequence_id", seq.ID).Int("chapters", len(outline.Chapters)).Msg("outline generated")
	return &outline, nil
}

func (u *outlineUC) RegenerateSuffix(ctx context.Context, job *model.Job, seq *model.Sequence, prompt *model.UserPrompt, sink ProgressSink) (*model.Outline, error) {
	defer logging.TraceDuration(u.log, "OutlineEngine.RegenerateSuffix")()

	tier := tierFor(job, seq)
	cfg, _ := model.TierConfig(tier)

	insertAt := prompt.InsertAt
	if insertAt < 0 || insertAt > len(seq.Chapters) || insertAt >= cfg.Chapters {
		return nil, fmt.Errorf("%w: insertion index %d for %d chapters", domain.ErrInvalidArgument, insertAt, cfg.Chapters)
	}
	sink.ReportProgress(ctx, job.ID, 5, "replanning_outline")

	remaining := cfg.Chapters - insertAt
	ask := buildSuffixPrompt(seq, prompt.Text, insertAt, cfg)
	suffix, err := u.generateValidated(ctx, ask, tier, func(parsed model.Outline) error {
		if len(parsed.Chapters) != remaining {
			return fmt.Errorf("%w: expected %d continuation chapters, got %d",
				domain.ErrOutlineShape, remaining, len(parsed.Chapters))
		}
		for i, ch := range parsed.Chapters {
			if len(ch.PlotPoints) != cfg.PlotPointsPerChapter {
				return fmt.Errorf("%w: continuation chapter %d has %d plot points, expected %d",
					domain.ErrOutlineShape, i+1, len(ch.PlotPoints), cfg.PlotPointsPerChapter)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	merged := model.Outline{Chapters: make([]model.OutlineChapter, 0, cfg.Chapters)}
	merged.Chapters = append(merged.Chapters, seq.Chapters[:insertAt]...)
	merged.Chapters = append(merged.Chapters, suffix.Chapters...)

	quirk := seq.WritingQuirk
	if quirk == "" {
		quirk = pickWritingQuirk(seq.ID)
	}
	if err := u.sequences.UpdateOutline(ctx, repository.NoTX, seq.ID, merged.Chapters, quirk); err != nil {
		return nil, fmt.Errorf("persist outline: %w", err)
	}
	seq.Chapters = merged.Chapters
	seq.WritingQuirk = quirk

	sink.ReportProgress(ctx, job.ID, 25, "outline_ready")
	u.log.Info().Str("sequence_id", seq.ID).Int("insert_at", insertAt).Int("regenerated", remaining).Msg("outline suffix regenerated")
	return &merged, nil
}

// generateValidated runs the generate-parse-validate cycle, redoing the whole
// call on parse or shape failures up to maxAttempts.
func (u *outlineUC) generateValidated(ctx context.Context, prompt string, tier model.LengthTier, validate func(model.Outline) error) (model.Outline, error) {
	params := adapter.GenerationParams{
		SystemPrompt: outlineSystemPrompt,
		Temperature:  0.8,
		MaxTokens:    2048,
	}

	var lastErr error
	for attempt := 1; attempt <= u.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return model.Outline{}, err
		}

		raw, err := u.ai.GenerateText(ctx, prompt, params)
		if err != nil {
			return model.Outline{}, err
		}

		parsed, err := parseOutline(raw)
		if err == nil {
			err = validate(parsed)
		}
		if err == nil {
			return parsed, nil
		}

		lastErr = err
		u.log.Warn().Err(err).Int("attempt", attempt).Str("tier", string(tier)).Msg("outline rejected, regenerating")
	}
	return model.Outline{}, lastErr
}

func shapeError(parsed model.Outline, cfg model.LengthTierConfig) error {
	if len(parsed.Chapters) != cfg.Chapters {
		return fmt.Errorf("%w: expected %d chapters, got %d", domain.ErrOutlineShape, cfg.Chapters, len(parsed.Chapters))
	}
	for i, ch := range parsed.Chapters {
		if len(ch.PlotPoints) != cfg.PlotPointsPerChapter {
			return fmt.Errorf("%w: chapter %d has %d plot points, expected %d",
				domain.ErrOutlineShape, i+1, len(ch.PlotPoints), cfg.PlotPointsPerChapter)
		}
	}
	return nil
}

// tierFor resolves the length tier, preferring what the sequence was created
// with over the job's embedded preferences.
func tierFor(job *model.Job, seq *model.Sequence) model.LengthTier {
	if _, ok := model.TierConfig(seq.LengthTier); ok {
		return seq.LengthTier
	}
	if job.Preferences != nil {
		return model.TierOrDefault(job.Preferences.LengthTier)
	}
	return model.TierShortStory
}
