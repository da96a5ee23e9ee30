package worker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"storyloom/internal/domain/model"
	"storyloom/internal/domain/ports/repository"
	"storyloom/internal/infra/metrics"
)

// Poller drives the worker loop: every tick it lists pending jobs oldest
// first, claims each with the conditional status update, and dispatches the
// winners onto the pool. It waits for the batch to settle before the next
// tick, so at most `concurrency` jobs are ever in flight.
type Poller struct {
	jobs      repository.JobRepository
	chapters  repository.ChapterRepository
	processor *JobProcessor
	pool      *Pool

	interval      time.Duration
	concurrency   int
	sweepInterval time.Duration

	log *zerolog.Logger
}

func NewPoller(
	jobs repository.JobRepository,
	chapters repository.ChapterRepository,
	processor *JobProcessor,
	pool *Pool,
	interval time.Duration,
	concurrency int,
	sweepInterval time.Duration,
	logger *zerolog.Logger,
) *Poller {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if concurrency <= 0 {
		concurrency = 3
	}
	sub := logger.With().Str("component", "poller").Logger()
	return &Poller{
		jobs:          jobs,
		chapters:      chapters,
		processor:     processor,
		pool:          pool,
		interval:      interval,
		concurrency:   concurrency,
		sweepInterval: sweepInterval,
		log:           &sub,
	}
}

// Run blocks until ctx is cancelled. Shutdown is cooperative: the loop exits
// between iterations and in-flight jobs are allowed to finish.
func (p *Poller) Run(ctx context.Context) {
	// Crash recovery before the first poll: chapters left generating by an
	// unclean shutdown, with no live job behind them, are failed.
	p.sweepOrphans(ctx)

	p.log.Info().Dur("interval", p.interval).Int("concurrency", p.concurrency).Msg("worker loop started")

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	var sweep <-chan time.Time
	if p.sweepInterval > 0 {
		sweepTicker := time.NewTicker(p.sweepInterval)
		defer sweepTicker.Stop()
		sweep = sweepTicker.C
	}

	for {
		select {
		case <-ctx.Done():
			p.log.Info().Msg("worker loop stopping")
			return
		case <-sweep:
			p.sweepOrphans(ctx)
		case <-ticker.C:
			p.pollOnce(ctx)
		}
	}
}

// pollOnce claims and dispatches one batch, waiting for every job in it to
// settle. One job's failure never aborts its siblings; the processor turns
// failures into persisted job state.
func (p *Poller) pollOnce(ctx context.Context) {
	pending, err := p.jobs.ListPending(ctx, p.concurrency)
	if err != nil {
		p.log.Error().Err(err).Msg("failed to list pending jobs")
		return
	}
	metrics.SetPendingJobs(len(pending))
	if len(pending) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, job := range pending {
		claimed, err := p.jobs.Claim(ctx, job.ID)
		if err != nil {
			p.log.Error().Err(err).Str("job_id", job.ID).Msg("claim failed")
			continue
		}
		if !claimed {
			// Another worker got there first. Expected under concurrent
			// pollers, not an error.
			metrics.IncClaimConflict()
			continue
		}
		metrics.IncJobClaimed(string(job.Kind))
		job.Status = model.JobStatusProcessing

		job := job
		wg.Add(1)
		// A claimed job runs detached from the polling context. Shutdown
		// cancels the loop, never work already handed to a worker; the
		// processor persists terminal state on its own fresh context.
		task := func(context.Context) error {
			defer wg.Done()
			p.processor.Process(context.Background(), job)
			return nil
		}
		if err := p.pool.Submit(task); err != nil {
			// The pool is saturated; run on the polling goroutine rather
			// than dropping a job we already claimed.
			p.log.Warn().Err(err).Str("job_id", job.ID).Msg("pool saturated, processing inline")
			_ = task(context.Background())
		}
	}
	wg.Wait()
}

func (p *Poller) sweepOrphans(ctx context.Context) {
	n, err := p.chapters.FailOrphaned(ctx)
	if err != nil {
		p.log.Error().Err(err).Msg("orphan sweep failed")
		return
	}
	if n > 0 {
		metrics.AddOrphanedSwept(n)
		p.log.Warn().Int64("chapters", n).Msg("failed orphaned chapters")
	}
}
