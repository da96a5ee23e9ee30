package model

import "time"

// Quote is a short excerpt pulled from a chapter, used as the seed for a
// video-generation job. AssetURL records where the rendered clip was stored.
type Quote struct {
	ID         string
	ChapterID  string
	SequenceID string
	Text       string
	AssetURL   string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
