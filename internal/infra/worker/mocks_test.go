//go:build !integration

package worker

import (
	"context"
	"io"
	"sync"

	"github.com/rs/zerolog"

	"storyloom/internal/domain"
	"storyloom/internal/domain/model"
	"storyloom/internal/domain/ports/adapter"
	"storyloom/internal/domain/ports/repository"
	"storyloom/internal/usecase"
)

func newTestLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

type fakeJobRepo struct {
	mu sync.Mutex

	pending   []*model.Job
	claims    map[string]bool // id -> claim outcome
	completed []string
	failed    map[string]string
	progress  []int

	listErr error
}

func newFakeJobRepo() *fakeJobRepo {
	return &fakeJobRepo{claims: map[string]bool{}, failed: map[string]string{}}
}

func (f *fakeJobRepo) Save(ctx context.Context, tx repository.Tx, job *model.Job) error { return nil }
func (f *fakeJobRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Job, error) {
	return nil, domain.ErrNotFound
}
func (f *fakeJobRepo) Delete(ctx context.Context, tx repository.Tx, id string) error { return nil }

func (f *fakeJobRepo) ListPending(ctx context.Context, limit int) ([]*model.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	if len(f.pending) > limit {
		return f.pending[:limit], nil
	}
	return f.pending, nil
}

func (f *fakeJobRepo) Claim(ctx context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	won, ok := f.claims[id]
	if !ok {
		return true, nil
	}
	return won, nil
}

func (f *fakeJobRepo) UpdateProgress(ctx context.Context, tx repository.Tx, id string, progress int, step string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.progress = append(f.progress, progress)
	return nil
}

func (f *fakeJobRepo) UpdateBulletProgress(ctx context.Context, tx repository.Tx, id string, bullet int) error {
	return nil
}

func (f *fakeJobRepo) MarkCompleted(ctx context.Context, tx repository.Tx, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed = append(f.completed, id)
	return nil
}

func (f *fakeJobRepo) MarkFailed(ctx context.Context, tx repository.Tx, id string, errMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed[id] = errMsg
	return nil
}

func (f *fakeJobRepo) ListFailed(ctx context.Context, tx repository.Tx, filter repository.FailedJobFilter) ([]*model.Job, error) {
	return nil, nil
}

func (f *fakeJobRepo) HasActiveForChapter(ctx context.Context, tx repository.Tx, chapterID, excludeID string) (bool, error) {
	return false, nil
}

func (f *fakeJobRepo) CountByStatus(ctx context.Context) (map[string]map[string]int, error) {
	return map[string]map[string]int{}, nil
}

func (f *fakeJobRepo) failedMessage(id string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.failed[id]
}

func (f *fakeJobRepo) completedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.completed...)
}

type fakeSequenceRepo struct {
	sequences map[string]*model.Sequence

	outlineUpdates   int
	processedPrompts []string
}

func newFakeSequenceRepo() *fakeSequenceRepo {
	return &fakeSequenceRepo{sequences: map[string]*model.Sequence{}}
}

func (f *fakeSequenceRepo) Save(ctx context.Context, tx repository.Tx, seq *model.Sequence) error {
	f.sequences[seq.ID] = seq
	return nil
}

func (f *fakeSequenceRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Sequence, error) {
	if seq, ok := f.sequences[id]; ok {
		return seq, nil
	}
	return nil, domain.ErrNotFound
}

func (f *fakeSequenceRepo) UpdateOutline(ctx context.Context, tx repository.Tx, id string, chapters []model.OutlineChapter, quirk string) error {
	f.outlineUpdates++
	if seq, ok := f.sequences[id]; ok {
		seq.Chapters = chapters
		seq.WritingQuirk = quirk
	}
	return nil
}

func (f *fakeSequenceRepo) UpdateMetadata(ctx context.Context, tx repository.Tx, id string, md model.StoryMetadata) error {
	return nil
}

func (f *fakeSequenceRepo) UpdateEmbedding(ctx context.Context, tx repository.Tx, id string, vec []float64) error {
	return nil
}

func (f *fakeSequenceRepo) AddPrompt(ctx context.Context, tx repository.Tx, sequenceID string, p model.UserPrompt) error {
	return nil
}

func (f *fakeSequenceRepo) MarkPromptProcessed(ctx context.Context, tx repository.Tx, sequenceID, promptID string) error {
	f.processedPrompts = append(f.processedPrompts, promptID)
	return nil
}

type fakeChapterRepo struct {
	records map[string]*model.ChapterRecord

	sweeps   int
	orphaned int64
}

func newFakeChapterRepo() *fakeChapterRepo {
	return &fakeChapterRepo{records: map[string]*model.ChapterRecord{}}
}

func (f *fakeChapterRepo) Save(ctx context.Context, tx repository.Tx, rec *model.ChapterRecord) error {
	f.records[rec.ID] = rec
	return nil
}

func (f *fakeChapterRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.ChapterRecord, error) {
	if rec, ok := f.records[id]; ok {
		return rec, nil
	}
	return nil, domain.ErrNotFound
}

func (f *fakeChapterRepo) UpdateContent(ctx context.Context, tx repository.Tx, id, content string, status model.ChapterStatus, progress int) error {
	return nil
}

func (f *fakeChapterRepo) FailOrphaned(ctx context.Context) (int64, error) {
	f.sweeps++
	return f.orphaned, nil
}

type fakeQuoteRepo struct {
	quotes map[string]*model.Quote
}

func newFakeQuoteRepo() *fakeQuoteRepo { return &fakeQuoteRepo{quotes: map[string]*model.Quote{}} }

func (f *fakeQuoteRepo) Save(ctx context.Context, tx repository.Tx, q *model.Quote) error {
	f.quotes[q.ID] = q
	return nil
}

func (f *fakeQuoteRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Quote, error) {
	if q, ok := f.quotes[id]; ok {
		return q, nil
	}
	return nil, domain.ErrNotFound
}

func (f *fakeQuoteRepo) SetAssetURL(ctx context.Context, tx repository.Tx, id, url string) error {
	return nil
}

// --- Engine fakes ---

type fakeOutlineEngine struct {
	builds      int
	regens      int
	buildPrompt *model.UserPrompt
	err         error
}

func (f *fakeOutlineEngine) BuildOutline(ctx context.Context, job *model.Job, seq *model.Sequence, prompt *model.UserPrompt, sink usecase.ProgressSink) (*model.Outline, error) {
	f.builds++
	f.buildPrompt = prompt
	if f.err != nil {
		return nil, f.err
	}
	seq.Chapters = []model.OutlineChapter{{Title: "Built", PlotPoints: []model.PlotPoint{{Text: "beat", Index: 0}}}}
	out := seq.Outline()
	return &out, nil
}

func (f *fakeOutlineEngine) RegenerateSuffix(ctx context.Context, job *model.Job, seq *model.Sequence, prompt *model.UserPrompt, sink usecase.ProgressSink) (*model.Outline, error) {
	f.regens++
	if f.err != nil {
		return nil, f.err
	}
	out := seq.Outline()
	return &out, nil
}

type fakeContentEngine struct {
	writes int
	err    error
}

func (f *fakeContentEngine) WriteChapter(ctx context.Context, job *model.Job, seq *model.Sequence, rec *model.ChapterRecord, sink usecase.ProgressSink) error {
	f.writes++
	return f.err
}

type fakeMetadataEngine struct {
	enriched int
	err      error
}

func (f *fakeMetadataEngine) GenerateMetadata(ctx context.Context, outlineText string) (model.StoryMetadata, error) {
	return model.StoryMetadata{}, f.err
}

func (f *fakeMetadataEngine) GenerateEmbedding(ctx context.Context, text string) []float64 {
	return model.ZeroEmbedding()
}

func (f *fakeMetadataEngine) EnrichSequence(ctx context.Context, job *model.Job, seq *model.Sequence) error {
	f.enriched++
	return f.err
}

type fakeVideoEngine struct {
	mu       sync.Mutex
	renders  int
	err      error
	renderFn func(ctx context.Context) error
}

func (f *fakeVideoEngine) RenderQuote(ctx context.Context, job *model.Job, q *model.Quote, sink usecase.ProgressSink) error {
	f.mu.Lock()
	f.renders++
	fn := f.renderFn
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx)
	}
	return f.err
}

func (f *fakeVideoEngine) renderCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.renders
}

type nopSink struct{}

func (nopSink) ReportProgress(ctx context.Context, jobID string, percent int, step string) {}
func (nopSink) ReportBullet(ctx context.Context, jobID string, bulletIndex int)            {}

type fakeNotifier struct {
	ch chan adapter.JobNotification
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{ch: make(chan adapter.JobNotification, 4)}
}

func (f *fakeNotifier) NotifyJobFinished(ctx context.Context, n adapter.JobNotification) error {
	f.ch <- n
	return nil
}

// --- Fixture ---

type processorFixture struct {
	jobs      *fakeJobRepo
	sequences *fakeSequenceRepo
	chapters  *fakeChapterRepo
	quotes    *fakeQuoteRepo
	outline   *fakeOutlineEngine
	content   *fakeContentEngine
	metadata  *fakeMetadataEngine
	video     *fakeVideoEngine
	notifier  *fakeNotifier
	processor *JobProcessor
}

func newProcessorFixture() *processorFixture {
	f := &processorFixture{
		jobs:      newFakeJobRepo(),
		sequences: newFakeSequenceRepo(),
		chapters:  newFakeChapterRepo(),
		quotes:    newFakeQuoteRepo(),
		outline:   &fakeOutlineEngine{},
		content:   &fakeContentEngine{},
		metadata:  &fakeMetadataEngine{},
		video:     &fakeVideoEngine{},
		notifier:  newFakeNotifier(),
	}
	f.processor = NewJobProcessor(
		f.jobs, f.sequences, f.chapters, f.quotes,
		f.outline, f.content, f.metadata, f.video,
		nopSink{}, f.notifier, newTestLogger(),
	)
	return f
}
