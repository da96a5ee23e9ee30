package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v4"

	"storyloom/internal/config"
	"storyloom/internal/domain/model"
	"storyloom/internal/domain/ports/repository"
	pg "storyloom/internal/infra/db/postgres"
	"storyloom/internal/infra/security"
)

// Seeds a demo sequence with one unprocessed prompt and a pending story job,
// so a freshly started worker has something to pick up.
func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pg.NewPool(ctx, cfg.Database.URL, 4)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	encKey := cfg.Security.EncryptionKey
	if len(encKey) != 32 {
		encKey = "0123456789abcdef0123456789abcdef"
	}
	encSvc, err := security.NewEncryptionService(encKey)
	if err != nil {
		log.Fatalf("encryption: %v", err)
	}

	jobRepo := pg.NewJobRepo(pool, encSvc)
	seqRepo := pg.NewSequenceRepo(pool, encSvc)
	chapterRepo := pg.NewChapterRepo(pool)
	txm := pg.NewTxManager(pool)

	// If pending work already exists, do nothing.
	pending, err := jobRepo.ListPending(ctx, 1)
	if err != nil {
		log.Fatalf("list pending: %v", err)
	}
	if len(pending) > 0 {
		fmt.Println("pending jobs already present, no changes")
		return
	}

	prefs := &model.StoryPreferences{
		Genre:      "enemies-to-lovers",
		Setting:    "a snowed-in mountain lodge",
		Tropes:     []string{"forced proximity", "one bed"},
		Characters: "a retired ski racer and the journalist who ended her career",
		SpiceLevel: model.SpiceSteamy,
		LengthTier: model.TierShortStory,
	}

	seq := &model.Sequence{
		UserID:     "demo-user",
		LengthTier: model.TierShortStory,
	}
	rec := &model.ChapterRecord{
		Position:         0,
		GenerationStatus: model.ChapterStatusGenerating,
	}
	job := &model.Job{
		Kind:           model.JobKindStory,
		Status:         model.JobStatusPending,
		UserID:         "demo-user",
		BulletProgress: model.NoBulletProgress,
		Preferences:    prefs,
	}

	// The three rows land together or not at all.
	err = txm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if err := seqRepo.Save(ctx, tx, seq); err != nil {
			return fmt.Errorf("save sequence: %w", err)
		}
		prompt := model.UserPrompt{Text: "Start the story from the blizzard that traps them together.", InsertAt: 0}
		if err := seqRepo.AddPrompt(ctx, tx, seq.ID, prompt); err != nil {
			return fmt.Errorf("add prompt: %w", err)
		}
		rec.SequenceID = seq.ID
		if err := chapterRepo.Save(ctx, tx, rec); err != nil {
			return fmt.Errorf("save chapter: %w", err)
		}
		job.ChapterID = rec.ID
		job.SequenceID = seq.ID
		if err := jobRepo.Save(ctx, tx, job); err != nil {
			return fmt.Errorf("save job: %w", err)
		}
		return nil
	})
	if err != nil {
		log.Fatalf("seed: %v", err)
	}

	fmt.Printf("seeded sequence %s, chapter %s, job %s\n", seq.ID, rec.ID, job.ID)
}
