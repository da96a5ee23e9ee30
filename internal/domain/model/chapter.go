package model

import "time"

type ChapterStatus string

const (
	ChapterStatusGenerating ChapterStatus = "generating"
	ChapterStatusCompleted  ChapterStatus = "completed"
	ChapterStatusFailed     ChapterStatus = "failed"
)

// ChapterRecord is the persisted prose container for one chapter. ParentID
// forms a linked list within a sequence so "previous chapter's content" is a
// point lookup, not a scan. ParentID is empty only for the first chapter.
//
// Content is append-only while GenerationStatus is generating: it may grow or
// be replaced by a longer prefix-consistent string, never truncated.
type ChapterRecord struct {
	ID         string
	SequenceID string
	ParentID   string
	Position   int

	Content            string
	GenerationStatus   ChapterStatus
	GenerationProgress int

	CreatedAt time.Time
	UpdatedAt time.Time
}
