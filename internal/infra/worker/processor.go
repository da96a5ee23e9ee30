package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"storyloom/internal/domain"
	"storyloom/internal/domain/model"
	"storyloom/internal/domain/ports/adapter"
	"storyloom/internal/domain/ports/repository"
	"storyloom/internal/infra/logging"
	"storyloom/internal/infra/metrics"
	"storyloom/internal/usecase"
)

// JobProcessor walks one claimed job through its state sequence. Story jobs
// run outline resolution, metadata enrichment and chapter content; video jobs
// run quote rendering. Whatever was durably written before a failure stays
// written: resumption depends on it, so there is no rollback.
type JobProcessor struct {
	jobs      repository.JobRepository
	sequences repository.SequenceRepository
	chapters  repository.ChapterRepository
	quotes    repository.QuoteRepository

	outline  usecase.OutlineEngine
	content  usecase.ContentEngine
	metadata usecase.MetadataEngine
	video    usecase.VideoEngine
	sink     usecase.ProgressSink

	notifier adapter.CompletionNotifier

	log *zerolog.Logger
}

func NewJobProcessor(
	jobs repository.JobRepository,
	sequences repository.SequenceRepository,
	chapters repository.ChapterRepository,
	quotes repository.QuoteRepository,
	outline usecase.OutlineEngine,
	content usecase.ContentEngine,
	metadata usecase.MetadataEngine,
	video usecase.VideoEngine,
	sink usecase.ProgressSink,
	notifier adapter.CompletionNotifier,
	logger *zerolog.Logger,
) *JobProcessor {
	sub := logger.With().Str("component", "job-processor").Logger()
	return &JobProcessor{
		jobs:      jobs,
		sequences: sequences,
		chapters:  chapters,
		quotes:    quotes,
		outline:   outline,
		content:   content,
		metadata:  metadata,
		video:     video,
		sink:      sink,
		notifier:  notifier,
		log:       &sub,
	}
}

// Process runs an already-claimed job to a terminal state. It never returns
// an error: a failure is persisted onto the job with the raw message, and one
// job's failure must not abort its siblings.
func (p *JobProcessor) Process(ctx context.Context, job *model.Job) {
	ctx = logging.WithJobID(ctx, job.ID)
	start := time.Now()
	p.log.Info().Str("job_id", job.ID).Str("kind", string(job.Kind)).Msg("processing job")

	p.sink.ReportProgress(ctx, job.ID, 1, "initializing")

	err := p.run(ctx, job)

	status := model.JobStatusCompleted
	if err != nil {
		status = model.JobStatusFailed
		p.log.Error().Err(err).Str("job_id", job.ID).Msg("job failed")
		// The final write uses a fresh context so a cancelled job still gets
		// its terminal state persisted.
		if mErr := p.jobs.MarkFailed(context.Background(), repository.NoTX, job.ID, err.Error()); mErr != nil {
			p.log.Error().Err(mErr).Str("job_id", job.ID).Msg("could not persist failure")
		}
	} else {
		if mErr := p.jobs.MarkCompleted(context.Background(), repository.NoTX, job.ID); mErr != nil {
			p.log.Error().Err(mErr).Str("job_id", job.ID).Msg("could not persist completion")
		}
	}
	job.Status = status

	elapsed := time.Since(start)
	metrics.IncJobProcessed(string(job.Kind), string(status))
	metrics.ObserveJobDuration(string(job.Kind), string(status), elapsed.Seconds())
	p.log.Info().Str("job_id", job.ID).Str("status", string(status)).Dur("duration", elapsed).Msg("job finished")

	p.notifyFinished(job, status, err)
}

// run dispatches on the job kind. A panic inside an engine becomes a job
// failure; it must never escape and take the worker process down.
func (p *JobProcessor) run(ctx context.Context, job *model.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while processing job: %v", r)
		}
	}()

	switch job.Kind {
	case model.JobKindStory:
		return p.processStory(ctx, job)
	case model.JobKindVideo:
		return p.processVideo(ctx, job)
	default:
		return fmt.Errorf("%w: unknown job kind %q", domain.ErrStructuralInvalid, job.Kind)
	}
}

func (p *JobProcessor) processStory(ctx context.Context, job *model.Job) error {
	if job.ChapterID == "" {
		return fmt.Errorf("%w: story job has no chapter reference", domain.ErrStructuralInvalid)
	}
	rec, err := p.chapters.FindByID(ctx, repository.NoTX, job.ChapterID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("%w: chapter %s no longer exists", domain.ErrStructuralInvalid, job.ChapterID)
		}
		return fmt.Errorf("load chapter: %w", err)
	}

	sequenceID := job.SequenceID
	if sequenceID == "" {
		sequenceID = rec.SequenceID
	}
	seq, err := p.sequences.FindByID(ctx, repository.NoTX, sequenceID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("%w: sequence %s no longer exists", domain.ErrStructuralInvalid, sequenceID)
		}
		return fmt.Errorf("load sequence: %w", err)
	}
	ctx = logging.WithSequenceID(ctx, seq.ID)

	if err := p.resolveOutline(ctx, job, seq); err != nil {
		return err
	}

	if err := p.content.WriteChapter(ctx, job, seq, rec, p.sink); err != nil {
		return err
	}

	p.sink.ReportProgress(ctx, job.ID, 100, "completed")
	return nil
}

// resolveOutline consumes at most one unprocessed user prompt: a sequence
// with no chapters gets a fresh outline, one with chapters gets its suffix
// regenerated from the prompt's insertion point. An outline change also
// refreshes metadata and the embedding before the prompt is marked processed.
func (p *JobProcessor) resolveOutline(ctx context.Context, job *model.Job, seq *model.Sequence) error {
	prompt := seq.NextUnprocessedPrompt()
	if prompt == nil {
		if seq.HasOutline() {
			return nil
		}
		return p.adoptSnapshot(ctx, job, seq)
	}

	var err error
	if seq.HasOutline() {
		_, err = p.outline.RegenerateSuffix(ctx, job, seq, prompt, p.sink)
	} else {
		_, err = p.outline.BuildOutline(ctx, job, seq, prompt, p.sink)
	}
	if err != nil {
		return err
	}

	p.sink.ReportProgress(ctx, job.ID, 30, "enriching_metadata")
	if err := p.metadata.EnrichSequence(ctx, job, seq); err != nil {
		return err
	}

	if err := p.sequences.MarkPromptProcessed(ctx, repository.NoTX, seq.ID, prompt.ID); err != nil {
		return fmt.Errorf("mark prompt processed: %w", err)
	}
	prompt.Processed = true

	p.sink.ReportProgress(ctx, job.ID, 40, "outline_processed")
	return nil
}

// adoptSnapshot handles the legacy job shape where the outline rides on the
// job instead of the sequence. The snapshot is validated on read; anything
// unexpected is a structural failure, not a value to trust.
func (p *JobProcessor) adoptSnapshot(ctx context.Context, job *model.Job, seq *model.Sequence) error {
	if len(job.OutlineSnapshot) == 0 {
		return fmt.Errorf("%w: sequence %s has no outline and no pending prompt", domain.ErrStructuralInvalid, seq.ID)
	}

	var outline model.Outline
	if err := json.Unmarshal(job.OutlineSnapshot, &outline); err != nil {
		return fmt.Errorf("%w: malformed outline snapshot: %v", domain.ErrStructuralInvalid, err)
	}
	if len(outline.Chapters) == 0 {
		return fmt.Errorf("%w: outline snapshot has no chapters", domain.ErrStructuralInvalid)
	}
	for i, ch := range outline.Chapters {
		if ch.Title == "" || len(ch.PlotPoints) == 0 {
			return fmt.Errorf("%w: outline snapshot chapter %d is incomplete", domain.ErrStructuralInvalid, i+1)
		}
	}

	quirk := seq.WritingQuirk
	if err := p.sequences.UpdateOutline(ctx, repository.NoTX, seq.ID, outline.Chapters, quirk); err != nil {
		return fmt.Errorf("adopt outline snapshot: %w", err)
	}
	seq.Chapters = outline.Chapters

	p.log.Info().Str("sequence_id", seq.ID).Int("chapters", len(outline.Chapters)).Msg("adopted legacy outline snapshot")
	p.sink.ReportProgress(ctx, job.ID, 40, "outline_adopted")
	return nil
}

func (p *JobProcessor) processVideo(ctx context.Context, job *model.Job) error {
	if job.QuoteID == "" {
		return fmt.Errorf("%w: video job has no quote reference", domain.ErrStructuralInvalid)
	}
	quote, err := p.quotes.FindByID(ctx, repository.NoTX, job.QuoteID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("%w: quote %s no longer exists", domain.ErrStructuralInvalid, job.QuoteID)
		}
		return fmt.Errorf("load quote: %w", err)
	}

	if err := p.video.RenderQuote(ctx, job, quote, p.sink); err != nil {
		return err
	}

	p.sink.ReportProgress(ctx, job.ID, 100, "completed")
	return nil
}

// notifyFinished fires the completion webhook off the job's critical path.
// Delivery is at-most-once; a failed delivery never changes the job outcome.
func (p *JobProcessor) notifyFinished(job *model.Job, status model.JobStatus, jobErr error) {
	if p.notifier == nil {
		return
	}
	n := adapter.JobNotification{
		JobID:      job.ID,
		Kind:       string(job.Kind),
		Status:     string(status),
		SequenceID: job.SequenceID,
		ChapterID:  job.ChapterID,
	}
	if jobErr != nil {
		n.Error = jobErr.Error()
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = p.notifier.NotifyJobFinished(ctx, n)
	}()
}
