package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"storyloom/internal/domain"
	"storyloom/internal/domain/model"
	"storyloom/internal/domain/ports/adapter"
	"storyloom/internal/domain/ports/repository"
	"storyloom/internal/infra/logging"
	"storyloom/internal/infra/metrics"
)

// Compile-time check
var _ VideoEngine = (*videoUC)(nil)

// VideoEngine renders a quote clip and stores the resulting asset.
type VideoEngine interface {
	RenderQuote(ctx context.Context, job *model.Job, q *model.Quote, sink ProgressSink) error
}

const (
	// Character ceilings for the enhanced prompt and its sanitized rewrites.
	videoPromptMaxChars     = 280
	videoAggressiveMaxChars = 500
)

// VideoRenderOptions fix the shape of every generated clip.
type VideoRenderOptions struct {
	DurationSeconds int
	FPS             int
	AspectRatio     string
	Resolution      string
}

func defaultRenderOptions() VideoRenderOptions {
	return VideoRenderOptions{DurationSeconds: 6, FPS: 24, AspectRatio: "9:16", Resolution: "720p"}
}

type videoUC struct {
	quotes    repository.QuoteRepository
	sequences repository.SequenceRepository
	text      adapter.TextGenerator
	video     adapter.VideoGenerator
	store     adapter.AssetStore

	opts        VideoRenderOptions
	maxAttempts int

	log *zerolog.Logger
}

func NewVideoEngine(
	quotes repository.QuoteRepository,
	sequences repository.SequenceRepository,
	text adapter.TextGenerator,
	video adapter.VideoGenerator,
	store adapter.AssetStore,
	opts *VideoRenderOptions,
	logger *zerolog.Logger,
) *videoUC {
	o := defaultRenderOptions()
	if opts != nil {
		o = *opts
	}
	return &videoUC{
		quotes:      quotes,
		sequences:   sequences,
		text:        text,
		video:       video,
		store:       store,
		opts:        o,
		maxAttempts: 3,
		log:         logger,
	}
}

// RenderQuote enhances the quote into a cinematic prompt, submits it to the
// video capability, and stores the produced clip. Policy rejections trigger
// progressive sanitization: the second attempt mildly rewrites the prompt, the
// third and later rewrite it toward abstraction. Every rewrite goes through
// its character ceiling.
func (u *videoUC) RenderQuote(ctx context.Context, job *model.Job, q *model.Quote, sink ProgressSink) error {
	defer logging.TraceDuration(u.log, "VideoEngine.RenderQuote")()

	// A worker deployed without a video provider still claims video jobs;
	// they must fail as jobs, not take the process down.
	if u.video == nil {
		return fmt.Errorf("%w: no video provider wired", domain.ErrVideoNotConfigured)
	}

	sink.ReportProgress(ctx, job.ID, 10, "enhancing_prompt")

	var seq *model.Sequence
	if q.SequenceID != "" {
		s, err := u.sequences.FindByID(ctx, repository.NoTX, q.SequenceID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("load sequence %s: %w", q.SequenceID, err)
		}
		seq = s
	}

	prompt, err := u.enhance(ctx, buildVideoPrompt(q, seq, videoPromptMaxChars), videoPromptMaxChars)
	if err != nil {
		return fmt.Errorf("enhance quote: %w", err)
	}

	sink.ReportProgress(ctx, job.ID, 40, "rendering")
	asset, err := u.renderWithSanitization(ctx, job, prompt, sink)
	if err != nil {
		return err
	}

	sink.ReportProgress(ctx, job.ID, 85, "storing_asset")
	key := fmt.Sprintf("quotes/%s/%s%s", q.ID, ulid.Make().String(), extensionFor(asset.ContentType))
	url, err := u.store.Put(ctx, key, asset.Data, asset.ContentType)
	if err != nil {
		return fmt.Errorf("store asset: %w", err)
	}
	if err := u.quotes.SetAssetURL(ctx, repository.NoTX, q.ID, url); err != nil {
		return fmt.Errorf("record asset url: %w", err)
	}
	q.AssetURL = url

	sink.ReportProgress(ctx, job.ID, 95, "asset_stored")
	u.log.Info().Str("quote_id", q.ID).Str("asset_url", url).Msg("quote clip rendered")
	return nil
}

func (u *videoUC) renderWithSanitization(ctx context.Context, job *model.Job, prompt string, sink ProgressSink) (*adapter.VideoAsset, error) {
	for attempt := 1; ; attempt++ {
		asset, err := u.video.GenerateVideo(ctx, adapter.VideoSpec{
			Prompt:          prompt,
			DurationSeconds: u.opts.DurationSeconds,
			FPS:             u.opts.FPS,
			AspectRatio:     u.opts.AspectRatio,
			Resolution:      u.opts.Resolution,
		})
		if err == nil {
			return asset, nil
		}
		if !errors.Is(err, domain.ErrContentPolicy) || attempt >= u.maxAttempts {
			return nil, err
		}

		// First rejection gets a mild rewrite, later ones an abstract one.
		level, ask, ceiling := "mild", buildMildSanitizePrompt(prompt, videoPromptMaxChars), videoPromptMaxChars
		if attempt >= 2 {
			level, ask, ceiling = "aggressive", buildAggressiveSanitizePrompt(prompt, videoAggressiveMaxChars), videoAggressiveMaxChars
		}
		metrics.IncVideoSanitization(level)
		u.log.Warn().Str("job_id", job.ID).Int("attempt", attempt).Str("level", level).Msg("prompt rejected, sanitizing")
		sink.ReportProgress(ctx, job.ID, 40, "sanitizing_prompt")

		prompt, err = u.enhance(ctx, ask, ceiling)
		if err != nil {
			return nil, fmt.Errorf("sanitize prompt: %w", err)
		}
	}
}

// enhance runs one text-generation call and enforces the character ceiling.
func (u *videoUC) enhance(ctx context.Context, ask string, maxChars int) (string, error) {
	out, err := u.text.GenerateText(ctx, ask, adapter.GenerationParams{
		SystemPrompt: videoSystemPrompt,
		Temperature:  0.7,
		MaxTokens:    300,
	})
	if err != nil {
		return "", err
	}
	out = strings.TrimSpace(stripProsePreamble(out))
	if out == "" {
		return "", errors.New("empty prompt enhancement")
	}
	return truncateRunes(out, maxChars), nil
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

func extensionFor(contentType string) string {
	switch contentType {
	case "video/webm":
		return ".webm"
	case "video/quicktime":
		return ".mov"
	default:
		return ".mp4"
	}
}
