//go:build !integration

package usecase_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog"

	"storyloom/internal/domain"
	"storyloom/internal/domain/model"
	"storyloom/internal/domain/ports/adapter"
	"storyloom/internal/domain/ports/repository"
)

func newTestLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

// --- Repository mocks ---

type MockJobRepo struct {
	SaveFunc                 func(ctx context.Context, tx repository.Tx, job *model.Job) error
	FindByIDFunc             func(ctx context.Context, tx repository.Tx, id string) (*model.Job, error)
	DeleteFunc               func(ctx context.Context, tx repository.Tx, id string) error
	ListPendingFunc          func(ctx context.Context, limit int) ([]*model.Job, error)
	ClaimFunc                func(ctx context.Context, id string) (bool, error)
	UpdateProgressFunc       func(ctx context.Context, tx repository.Tx, id string, progress int, step string) error
	UpdateBulletProgressFunc func(ctx context.Context, tx repository.Tx, id string, bullet int) error
	MarkCompletedFunc        func(ctx context.Context, tx repository.Tx, id string) error
	MarkFailedFunc           func(ctx context.Context, tx repository.Tx, id string, errMsg string) error
	ListFailedFunc           func(ctx context.Context, tx repository.Tx, f repository.FailedJobFilter) ([]*model.Job, error)
	HasActiveForChapterFunc  func(ctx context.Context, tx repository.Tx, chapterID, excludeID string) (bool, error)
	CountByStatusFunc        func(ctx context.Context) (map[string]map[string]int, error)
}

func NewMockJobRepo() *MockJobRepo { return &MockJobRepo{} }

func (m *MockJobRepo) Save(ctx context.Context, tx repository.Tx, job *model.Job) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, tx, job)
	}
	return nil
}

func (m *MockJobRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Job, error) {
	if m.FindByIDFunc != nil {
		return m.FindByIDFunc(ctx, tx, id)
	}
	return nil, domain.ErrNotFound
}

func (m *MockJobRepo) Delete(ctx context.Context, tx repository.Tx, id string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, tx, id)
	}
	return nil
}

func (m *MockJobRepo) ListPending(ctx context.Context, limit int) ([]*model.Job, error) {
	if m.ListPendingFunc != nil {
		return m.ListPendingFunc(ctx, limit)
	}
	return nil, nil
}

func (m *MockJobRepo) Claim(ctx context.Context, id string) (bool, error) {
	if m.ClaimFunc != nil {
		return m.ClaimFunc(ctx, id)
	}
	return true, nil
}

func (m *MockJobRepo) UpdateProgress(ctx context.Context, tx repository.Tx, id string, progress int, step string) error {
	if m.UpdateProgressFunc != nil {
		return m.UpdateProgressFunc(ctx, tx, id, progress, step)
	}
	return nil
}

func (m *MockJobRepo) UpdateBulletProgress(ctx context.Context, tx repository.Tx, id string, bullet int) error {
	if m.UpdateBulletProgressFunc != nil {
		return m.UpdateBulletProgressFunc(ctx, tx, id, bullet)
	}
	return nil
}

func (m *MockJobRepo) MarkCompleted(ctx context.Context, tx repository.Tx, id string) error {
	if m.MarkCompletedFunc != nil {
		return m.MarkCompletedFunc(ctx, tx, id)
	}
	return nil
}

func (m *MockJobRepo) MarkFailed(ctx context.Context, tx repository.Tx, id string, errMsg string) error {
	if m.MarkFailedFunc != nil {
		return m.MarkFailedFunc(ctx, tx, id, errMsg)
	}
	return nil
}

func (m *MockJobRepo) ListFailed(ctx context.Context, tx repository.Tx, f repository.FailedJobFilter) ([]*model.Job, error) {
	if m.ListFailedFunc != nil {
		return m.ListFailedFunc(ctx, tx, f)
	}
	return nil, nil
}

func (m *MockJobRepo) HasActiveForChapter(ctx context.Context, tx repository.Tx, chapterID, excludeID string) (bool, error) {
	if m.HasActiveForChapterFunc != nil {
		return m.HasActiveForChapterFunc(ctx, tx, chapterID, excludeID)
	}
	return false, nil
}

func (m *MockJobRepo) CountByStatus(ctx context.Context) (map[string]map[string]int, error) {
	if m.CountByStatusFunc != nil {
		return m.CountByStatusFunc(ctx)
	}
	return map[string]map[string]int{}, nil
}

type MockSequenceRepo struct {
	SaveFunc                func(ctx context.Context, tx repository.Tx, seq *model.Sequence) error
	FindByIDFunc            func(ctx context.Context, tx repository.Tx, id string) (*model.Sequence, error)
	UpdateOutlineFunc       func(ctx context.Context, tx repository.Tx, id string, chapters []model.OutlineChapter, quirk string) error
	UpdateMetadataFunc      func(ctx context.Context, tx repository.Tx, id string, md model.StoryMetadata) error
	UpdateEmbeddingFunc     func(ctx context.Context, tx repository.Tx, id string, vec []float64) error
	AddPromptFunc           func(ctx context.Context, tx repository.Tx, sequenceID string, p model.UserPrompt) error
	MarkPromptProcessedFunc func(ctx context.Context, tx repository.Tx, sequenceID, promptID string) error
}

func NewMockSequenceRepo() *MockSequenceRepo { return &MockSequenceRepo{} }

func (m *MockSequenceRepo) Save(ctx context.Context, tx repository.Tx, seq *model.Sequence) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, tx, seq)
	}
	return nil
}

func (m *MockSequenceRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Sequence, error) {
	if m.FindByIDFunc != nil {
		return m.FindByIDFunc(ctx, tx, id)
	}
	return nil, domain.ErrNotFound
}

func (m *MockSequenceRepo) UpdateOutline(ctx context.Context, tx repository.Tx, id string, chapters []model.OutlineChapter, quirk string) error {
	if m.UpdateOutlineFunc != nil {
		return m.UpdateOutlineFunc(ctx, tx, id, chapters, quirk)
	}
	return nil
}

func (m *MockSequenceRepo) UpdateMetadata(ctx context.Context, tx repository.Tx, id string, md model.StoryMetadata) error {
	if m.UpdateMetadataFunc != nil {
		return m.UpdateMetadataFunc(ctx, tx, id, md)
	}
	return nil
}

func (m *MockSequenceRepo) UpdateEmbedding(ctx context.Context, tx repository.Tx, id string, vec []float64) error {
	if m.UpdateEmbeddingFunc != nil {
		return m.UpdateEmbeddingFunc(ctx, tx, id, vec)
	}
	return nil
}

func (m *MockSequenceRepo) AddPrompt(ctx context.Context, tx repository.Tx, sequenceID string, p model.UserPrompt) error {
	if m.AddPromptFunc != nil {
		return m.AddPromptFunc(ctx, tx, sequenceID, p)
	}
	return nil
}

func (m *MockSequenceRepo) MarkPromptProcessed(ctx context.Context, tx repository.Tx, sequenceID, promptID string) error {
	if m.MarkPromptProcessedFunc != nil {
		return m.MarkPromptProcessedFunc(ctx, tx, sequenceID, promptID)
	}
	return nil
}

type MockChapterRepo struct {
	SaveFunc          func(ctx context.Context, tx repository.Tx, rec *model.ChapterRecord) error
	FindByIDFunc      func(ctx context.Context, tx repository.Tx, id string) (*model.ChapterRecord, error)
	UpdateContentFunc func(ctx context.Context, tx repository.Tx, id, content string, status model.ChapterStatus, progress int) error
	FailOrphanedFunc  func(ctx context.Context) (int64, error)
}

func NewMockChapterRepo() *MockChapterRepo { return &MockChapterRepo{} }

func (m *MockChapterRepo) Save(ctx context.Context, tx repository.Tx, rec *model.ChapterRecord) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, tx, rec)
	}
	return nil
}

func (m *MockChapterRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.ChapterRecord, error) {
	if m.FindByIDFunc != nil {
		return m.FindByIDFunc(ctx, tx, id)
	}
	return nil, domain.ErrNotFound
}

func (m *MockChapterRepo) UpdateContent(ctx context.Context, tx repository.Tx, id, content string, status model.ChapterStatus, progress int) error {
	if m.UpdateContentFunc != nil {
		return m.UpdateContentFunc(ctx, tx, id, content, status, progress)
	}
	return nil
}

func (m *MockChapterRepo) FailOrphaned(ctx context.Context) (int64, error) {
	if m.FailOrphanedFunc != nil {
		return m.FailOrphanedFunc(ctx)
	}
	return 0, nil
}

type MockQuoteRepo struct {
	SaveFunc        func(ctx context.Context, tx repository.Tx, q *model.Quote) error
	FindByIDFunc    func(ctx context.Context, tx repository.Tx, id string) (*model.Quote, error)
	SetAssetURLFunc func(ctx context.Context, tx repository.Tx, id, url string) error
}

func NewMockQuoteRepo() *MockQuoteRepo { return &MockQuoteRepo{} }

func (m *MockQuoteRepo) Save(ctx context.Context, tx repository.Tx, q *model.Quote) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, tx, q)
	}
	return nil
}

func (m *MockQuoteRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Quote, error) {
	if m.FindByIDFunc != nil {
		return m.FindByIDFunc(ctx, tx, id)
	}
	return nil, domain.ErrNotFound
}

func (m *MockQuoteRepo) SetAssetURL(ctx context.Context, tx repository.Tx, id, url string) error {
	if m.SetAssetURLFunc != nil {
		return m.SetAssetURLFunc(ctx, tx, id, url)
	}
	return nil
}

// --- Adapter mocks ---

type MockTextGenerator struct {
	mu      sync.Mutex
	Prompts []string

	GenerateTextFunc func(ctx context.Context, prompt string, p adapter.GenerationParams) (string, error)
}

func NewMockTextGenerator() *MockTextGenerator { return &MockTextGenerator{} }

func (m *MockTextGenerator) GenerateText(ctx context.Context, prompt string, p adapter.GenerationParams) (string, error) {
	m.mu.Lock()
	m.Prompts = append(m.Prompts, prompt)
	m.mu.Unlock()
	if m.GenerateTextFunc != nil {
		return m.GenerateTextFunc(ctx, prompt, p)
	}
	return "generated text", nil
}

func (m *MockTextGenerator) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Prompts)
}

type MockStructuredGenerator struct {
	mu      sync.Mutex
	Schemas []string

	GenerateStructuredFunc func(ctx context.Context, prompt string, schema adapter.Schema, p adapter.GenerationParams) (json.RawMessage, error)
}

func NewMockStructuredGenerator() *MockStructuredGenerator { return &MockStructuredGenerator{} }

func (m *MockStructuredGenerator) GenerateStructured(ctx context.Context, prompt string, schema adapter.Schema, p adapter.GenerationParams) (json.RawMessage, error) {
	m.mu.Lock()
	m.Schemas = append(m.Schemas, schema.Name)
	m.mu.Unlock()
	if m.GenerateStructuredFunc != nil {
		return m.GenerateStructuredFunc(ctx, prompt, schema, p)
	}
	return json.RawMessage(`{}`), nil
}

type MockEmbedder struct {
	EmbedFunc func(ctx context.Context, text string) ([]float64, error)
}

func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	if m.EmbedFunc != nil {
		return m.EmbedFunc(ctx, text)
	}
	return model.ZeroEmbedding(), nil
}

type MockVideoGenerator struct {
	mu      sync.Mutex
	Prompts []string

	GenerateVideoFunc func(ctx context.Context, spec adapter.VideoSpec) (*adapter.VideoAsset, error)
}

func NewMockVideoGenerator() *MockVideoGenerator { return &MockVideoGenerator{} }

func (m *MockVideoGenerator) GenerateVideo(ctx context.Context, spec adapter.VideoSpec) (*adapter.VideoAsset, error) {
	m.mu.Lock()
	m.Prompts = append(m.Prompts, spec.Prompt)
	m.mu.Unlock()
	if m.GenerateVideoFunc != nil {
		return m.GenerateVideoFunc(ctx, spec)
	}
	return &adapter.VideoAsset{Data: []byte("clip"), ContentType: "video/mp4"}, nil
}

type MockAssetStore struct {
	PutFunc func(ctx context.Context, key string, data []byte, contentType string) (string, error)

	Keys []string
}

func (m *MockAssetStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	m.Keys = append(m.Keys, key)
	if m.PutFunc != nil {
		return m.PutFunc(ctx, key, data, contentType)
	}
	return "https://assets.test/" + key, nil
}

// --- Progress sink ---

type progressEvent struct {
	Percent int
	Step    string
}

// RecordingSink captures everything reported for assertions.
type RecordingSink struct {
	Events  []progressEvent
	Bullets []int
}

func (s *RecordingSink) ReportProgress(ctx context.Context, jobID string, percent int, step string) {
	s.Events = append(s.Events, progressEvent{Percent: percent, Step: step})
}

func (s *RecordingSink) ReportBullet(ctx context.Context, jobID string, bulletIndex int) {
	s.Bullets = append(s.Bullets, bulletIndex)
}

// --- Builders ---

// buildOutlineText renders a well-formed outline response with the given
// shape, in the exact format the parser expects.
func buildOutlineText(chapters, points, startAt int) string {
	out := ""
	for c := 0; c < chapters; c++ {
		out += fmt.Sprintf("Chapter %d: Fresh Title %d\n", startAt+c, startAt+c)
		for p := 0; p < points; p++ {
			out += fmt.Sprintf("- Beat %d.%d\n", startAt+c, p+1)
		}
		out += "\n"
	}
	return out
}

// buildTestSequence constructs a sequence with a conforming outline.
func buildTestSequence(tier model.LengthTier) *model.Sequence {
	cfg, _ := model.TierConfig(tier)
	seq := &model.Sequence{ID: "seq-1", UserID: "user-1", LengthTier: tier, WritingQuirk: "test quirk"}
	for c := 0; c < cfg.Chapters; c++ {
		ch := model.OutlineChapter{Title: fmt.Sprintf("Title %d", c+1)}
		for p := 0; p < cfg.PlotPointsPerChapter; p++ {
			ch.PlotPoints = append(ch.PlotPoints, model.PlotPoint{Text: fmt.Sprintf("Beat %d.%d", c+1, p+1), Index: p})
		}
		seq.Chapters = append(seq.Chapters, ch)
	}
	return seq
}
