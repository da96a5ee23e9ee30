package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"
	"github.com/rs/zerolog"

	"storyloom/internal/domain"
	"storyloom/internal/domain/model"
	"storyloom/internal/domain/ports/adapter"
	"storyloom/internal/domain/ports/repository"
	"storyloom/internal/infra/logging"
	"storyloom/internal/infra/metrics"
)

// Compile-time check
var _ ContentEngine = (*contentUC)(nil)

// ContentEngine drafts chapter prose plot point by plot point, resuming from
// the job's recorded bullet counter after a crash or retry.
type ContentEngine interface {
	WriteChapter(ctx context.Context, job *model.Job, seq *model.Sequence, rec *model.ChapterRecord, sink ProgressSink) error
}

const (
	// proseWindowChars bounds the trailing window of earlier prose carried in
	// each plot point prompt.
	proseWindowChars = 8000
	// proseWindowTokens is the token-level bound on the same window.
	proseWindowTokens = 2400

	// Chapter content occupies the upper band of job progress; the outline and
	// metadata phases own everything below contentProgressFloor.
	contentProgressFloor = 40
)

type contentUC struct {
	chapters repository.ChapterRepository
	ai       adapter.TextGenerator

	// enc is nil when the encoding asset could not be loaded; the window then
	// falls back to the character bound alone.
	enc *tiktoken.Tiktoken

	log *zerolog.Logger
}

func NewContentEngine(chapters repository.ChapterRepository, ai adapter.TextGenerator, logger *zerolog.Logger) *contentUC {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		logger.Warn().Err(err).Msg("tiktoken encoding unavailable, prose window is char-bounded only")
		enc = nil
	}
	return &contentUC{chapters: chapters, ai: ai, enc: enc, log: logger}
}

func (u *contentUC) WriteChapter(ctx context.Context, job *model.Job, seq *model.Sequence, rec *model.ChapterRecord, sink ProgressSink) error {
	defer logging.TraceDuration(u.log, "ContentEngine.WriteChapter")()

	if rec.Position < 0 || rec.Position >= len(seq.Chapters) {
		return fmt.Errorf("%w: chapter position %d outside outline of %d chapters",
			domain.ErrStructuralInvalid, rec.Position, len(seq.Chapters))
	}

	tier := tierFor(job, seq)
	cfg, _ := model.TierConfig(tier)
	points := seq.Chapters[rec.Position].PlotPoints
	total := len(points)
	if total == 0 {
		return fmt.Errorf("%w: chapter %d has no plot points", domain.ErrStructuralInvalid, rec.Position+1)
	}

	start := resumePoint(job, rec, cfg.TargetWordsPerPoint, total)
	if start >= total {
		// Everything was already written; settle the record and leave the
		// content untouched.
		if rec.GenerationStatus != model.ChapterStatusCompleted {
			if err := u.chapters.UpdateContent(ctx, repository.NoTX, rec.ID, rec.Content, model.ChapterStatusCompleted, 100); err != nil {
				return fmt.Errorf("settle finished chapter: %w", err)
			}
			rec.GenerationStatus = model.ChapterStatusCompleted
			rec.GenerationProgress = 100
		}
		u.log.Info().Str("chapter_id", rec.ID).Msg("chapter already complete, nothing to write")
		return nil
	}

	previous, err := u.previousChapterContent(ctx, rec)
	if err != nil {
		return err
	}

	if start > 0 {
		u.log.Info().Str("chapter_id", rec.ID).Int("resume_at", start).Int("total", total).Msg("resuming chapter generation")
	}

	content := rec.Content
	for i := start; i < total; i++ {
		window := u.proseWindow(joinProse(previous, content))
		position := classifyPlotPoint(rec.Position, i, total)
		var next *model.PlotPoint
		if i+1 < total {
			next = &points[i+1]
		}

		prompt := buildPlotPointPrompt(seq, job.Preferences, rec.Position, points[i], next, window, cfg.TargetWordsPerPoint, position)
		text, err := u.ai.GenerateText(ctx, prompt, adapter.GenerationParams{
			SystemPrompt: proseSystemPrompt,
			Temperature:  0.9,
			MaxTokens:    cfg.TargetWordsPerPoint * 3,
		})
		if err != nil {
			return fmt.Errorf("plot point %d/%d: %w", i+1, total, err)
		}
		text = stripProsePreamble(text)
		if text == "" {
			return fmt.Errorf("plot point %d/%d: empty prose response", i+1, total)
		}

		content = joinProse(content, text)
		percent := (i + 1) * 100 / total
		status := model.ChapterStatusGenerating
		if i == total-1 {
			status = model.ChapterStatusCompleted
		}
		if err := u.chapters.UpdateContent(ctx, repository.NoTX, rec.ID, content, status, percent); err != nil {
			return fmt.Errorf("persist chapter content: %w", err)
		}

		jobPercent := contentProgressFloor + percent*(100-contentProgressFloor)/100
		sink.ReportProgress(ctx, job.ID, jobPercent, fmt.Sprintf("writing chapter %d (%d/%d)", rec.Position+1, i+1, total))
		sink.ReportBullet(ctx, job.ID, i)
		job.BulletProgress = i
		metrics.IncPlotPointGenerated(string(tier))
	}

	rec.Content = content
	rec.GenerationStatus = model.ChapterStatusCompleted
	rec.GenerationProgress = 100
	return nil
}

// previousChapterContent follows the parent link for narrative continuity.
func (u *contentUC) previousChapterContent(ctx context.Context, rec *model.ChapterRecord) (string, error) {
	if rec.ParentID == "" {
		return "", nil
	}
	prev, err := u.chapters.FindByID(ctx, repository.NoTX, rec.ParentID)
	if err != nil {
		return "", fmt.Errorf("load previous chapter %s: %w", rec.ParentID, err)
	}
	return prev.Content, nil
}

// proseWindow returns a trailing slice of the prose bounded by characters and,
// when the encoder is available, by tokens.
func (u *contentUC) proseWindow(text string) string {
	if len(text) > proseWindowChars {
		cut := text[len(text)-proseWindowChars:]
		// Drop the first partial line so the window starts on a boundary.
		if idx := strings.IndexByte(cut, '\n'); idx >= 0 && idx+1 < len(cut) {
			cut = cut[idx+1:]
		}
		text = cut
	}
	if u.enc != nil {
		if tokens := u.enc.Encode(text, nil, nil); len(tokens) > proseWindowTokens {
			keep := len(text) * proseWindowTokens / len(tokens)
			text = strings.TrimSpace(text[len(text)-keep:])
		}
	}
	return text
}

// joinProse concatenates two prose segments with a single blank line, never
// duplicating separators.
func joinProse(a, b string) string {
	a = strings.TrimRight(strings.TrimSpace(a), "\n")
	b = strings.TrimSpace(b)
	switch {
	case a == "":
		return b
	case b == "":
		return a
	default:
		return a + "\n\n" + b
	}
}

// resumePoint picks the first plot point index still to write. The persisted
// bullet counter is authoritative; with no counter but pre-existing content, a
// length heuristic approximates how many points that content covers. The
// heuristic can under- or over-count and exists only so a legacy job without a
// counter does not regenerate a whole chapter.
func resumePoint(job *model.Job, rec *model.ChapterRecord, targetWords, total int) int {
	if job.BulletProgress != model.NoBulletProgress {
		return job.BulletProgress + 1
	}
	if rec.Content == "" {
		return 0
	}
	charsPerPoint := targetWords * 6
	if charsPerPoint <= 0 {
		return 0
	}
	n := len(rec.Content) / charsPerPoint
	if n > total {
		n = total
	}
	return n
}
