//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"storyloom/internal/domain"
	"storyloom/internal/domain/model"
	"storyloom/internal/domain/ports/adapter"
	"storyloom/internal/domain/ports/repository"
	"storyloom/internal/usecase"
)

type contentWrite struct {
	Content  string
	Status   model.ChapterStatus
	Progress int
}

func newContentFixture() (*model.Job, *model.Sequence, *model.ChapterRecord) {
	job := &model.Job{
		ID:             "job-1",
		Kind:           model.JobKindStory,
		ChapterID:      "ch-1",
		SequenceID:     "seq-1",
		BulletProgress: model.NoBulletProgress,
		Preferences:    &model.StoryPreferences{SpiceLevel: model.SpiceSteamy, LengthTier: model.TierShortStory},
	}
	seq := buildTestSequence(model.TierShortStory)
	rec := &model.ChapterRecord{ID: "ch-1", SequenceID: "seq-1", Position: 1, GenerationStatus: model.ChapterStatusGenerating}
	return job, seq, rec
}

func TestContentEngineWriteChapter(t *testing.T) {
	ctx := context.Background()
	testLogger := newTestLogger()

	t.Run("should write every plot point, persisting after each", func(t *testing.T) {
		job, seq, rec := newContentFixture()
		mockText := NewMockTextGenerator()
		n := 0
		mockText.GenerateTextFunc = func(ctx context.Context, prompt string, p adapter.GenerationParams) (string, error) {
			n++
			return fmt.Sprintf("Prose for beat %d.", n), nil
		}
		mockChapters := NewMockChapterRepo()
		var writes []contentWrite
		mockChapters.UpdateContentFunc = func(ctx context.Context, tx repository.Tx, id, content string, status model.ChapterStatus, progress int) error {
			writes = append(writes, contentWrite{content, status, progress})
			return nil
		}

		engine := usecase.NewContentEngine(mockChapters, mockText, testLogger)
		sink := &RecordingSink{}
		if err := engine.WriteChapter(ctx, job, seq, rec, sink); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		if len(writes) != 3 {
			t.Fatalf("expected 3 persisted writes, got %d", len(writes))
		}
		final := writes[2]
		if final.Status != model.ChapterStatusCompleted || final.Progress != 100 {
			t.Errorf("final write not completed/100: %+v", final)
		}
		if !strings.Contains(final.Content, "Prose for beat 1.") || !strings.Contains(final.Content, "Prose for beat 3.") {
			t.Errorf("content missing segments: %q", final.Content)
		}
		if strings.Contains(final.Content, "\n\n\n") {
			t.Errorf("duplicate blank lines in content: %q", final.Content)
		}
		if len(sink.Bullets) != 3 || sink.Bullets[0] != 0 || sink.Bullets[2] != 2 {
			t.Errorf("unexpected bullet reports: %v", sink.Bullets)
		}
		last := 0
		for _, ev := range sink.Events {
			if ev.Percent < 40 || ev.Percent > 100 {
				t.Errorf("job progress %d outside the content band", ev.Percent)
			}
			if ev.Percent < last {
				t.Errorf("job progress regressed: %v", sink.Events)
			}
			last = ev.Percent
		}
		if rec.GenerationStatus != model.ChapterStatusCompleted {
			t.Error("record not marked completed in memory")
		}
	})

	t.Run("should resume after the persisted bullet counter", func(t *testing.T) {
		job, seq, rec := newContentFixture()
		job.BulletProgress = 1
		rec.Content = "Existing prose from the first two beats."

		mockText := NewMockTextGenerator()
		mockText.GenerateTextFunc = func(ctx context.Context, prompt string, p adapter.GenerationParams) (string, error) {
			return "The final beat.", nil
		}
		mockChapters := NewMockChapterRepo()
		var writes []contentWrite
		mockChapters.UpdateContentFunc = func(ctx context.Context, tx repository.Tx, id, content string, status model.ChapterStatus, progress int) error {
			writes = append(writes, contentWrite{content, status, progress})
			return nil
		}

		engine := usecase.NewContentEngine(mockChapters, mockText, testLogger)
		if err := engine.WriteChapter(ctx, job, seq, rec, &RecordingSink{}); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if mockText.Calls() != 1 {
			t.Errorf("expected a single generation call, got %d", mockText.Calls())
		}
		if len(writes) != 1 {
			t.Fatalf("expected 1 write, got %d", len(writes))
		}
		want := "Existing prose from the first two beats.\n\nThe final beat."
		if writes[0].Content != want {
			t.Errorf("content was not appended to the existing prefix:\n%q", writes[0].Content)
		}
	})

	t.Run("should be a no-op when the counter is at the last plot point", func(t *testing.T) {
		job, seq, rec := newContentFixture()
		job.BulletProgress = 2
		rec.Content = "Full chapter text."

		mockText := NewMockTextGenerator()
		mockChapters := NewMockChapterRepo()
		var settled []contentWrite
		mockChapters.UpdateContentFunc = func(ctx context.Context, tx repository.Tx, id, content string, status model.ChapterStatus, progress int) error {
			settled = append(settled, contentWrite{content, status, progress})
			return nil
		}

		engine := usecase.NewContentEngine(mockChapters, mockText, testLogger)
		if err := engine.WriteChapter(ctx, job, seq, rec, &RecordingSink{}); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if mockText.Calls() != 0 {
			t.Errorf("expected no generation calls, got %d", mockText.Calls())
		}
		if len(settled) != 1 || settled[0].Content != "Full chapter text." || settled[0].Status != model.ChapterStatusCompleted {
			t.Errorf("expected the record settled with unchanged content, got %+v", settled)
		}
	})

	t.Run("should abort on a plot point failure, keeping the persisted prefix", func(t *testing.T) {
		job, seq, rec := newContentFixture()
		mockText := NewMockTextGenerator()
		n := 0
		mockText.GenerateTextFunc = func(ctx context.Context, prompt string, p adapter.GenerationParams) (string, error) {
			n++
			if n == 2 {
				return "", domain.ErrGenerationExhausted
			}
			return "Some prose.", nil
		}
		mockChapters := NewMockChapterRepo()
		var writes []contentWrite
		mockChapters.UpdateContentFunc = func(ctx context.Context, tx repository.Tx, id, content string, status model.ChapterStatus, progress int) error {
			writes = append(writes, contentWrite{content, status, progress})
			return nil
		}

		engine := usecase.NewContentEngine(mockChapters, mockText, testLogger)
		sink := &RecordingSink{}
		err := engine.WriteChapter(ctx, job, seq, rec, sink)
		if !errors.Is(err, domain.ErrGenerationExhausted) {
			t.Fatalf("expected ErrGenerationExhausted, got %v", err)
		}
		if len(writes) != 1 {
			t.Errorf("expected only the first point persisted, got %d writes", len(writes))
		}
		if len(sink.Bullets) != 1 || sink.Bullets[0] != 0 {
			t.Errorf("expected bullet 0 recorded, got %v", sink.Bullets)
		}
	})

	t.Run("should thread the previous chapter's prose into the prompt", func(t *testing.T) {
		job, seq, rec := newContentFixture()
		rec.ParentID = "ch-0"

		mockChapters := NewMockChapterRepo()
		mockChapters.FindByIDFunc = func(ctx context.Context, tx repository.Tx, id string) (*model.ChapterRecord, error) {
			if id != "ch-0" {
				t.Errorf("unexpected parent lookup: %s", id)
			}
			return &model.ChapterRecord{ID: "ch-0", Content: "A very distinctive earlier scene."}, nil
		}
		mockText := NewMockTextGenerator()

		engine := usecase.NewContentEngine(mockChapters, mockText, testLogger)
		if err := engine.WriteChapter(ctx, job, seq, rec, &RecordingSink{}); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(mockText.Prompts) == 0 || !strings.Contains(mockText.Prompts[0], "A very distinctive earlier scene.") {
			t.Error("previous chapter prose missing from the first prompt")
		}
	})

	t.Run("should reject a chapter position outside the outline", func(t *testing.T) {
		job, seq, rec := newContentFixture()
		rec.Position = 9

		engine := usecase.NewContentEngine(NewMockChapterRepo(), NewMockTextGenerator(), testLogger)
		err := engine.WriteChapter(ctx, job, seq, rec, &RecordingSink{})
		if !errors.Is(err, domain.ErrStructuralInvalid) {
			t.Errorf("expected ErrStructuralInvalid, got %v", err)
		}
	})
}
