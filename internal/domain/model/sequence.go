package model

import "time"

// UserPrompt is one piece of reader direction recorded against a sequence.
// InsertAt is the chapter index the new direction applies from. Once
// Processed is set the prompt is never consumed again.
type UserPrompt struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	InsertAt  int       `json:"insert_at"`
	Processed bool      `json:"processed"`
	CreatedAt time.Time `json:"created_at"`
}

// Sequence is the persisted story aggregate: outline, story-level metadata,
// embedding and prompt history.
type Sequence struct {
	ID              string
	UserID          string
	Title           string
	Description     string
	Tags            []string
	TriggerWarnings []string
	IsExplicit      bool
	TargetAudience  []string

	// Embedding is stored serialized (JSON array in a text column).
	Embedding []float64

	LengthTier LengthTier
	Chapters   []OutlineChapter
	Prompts    []UserPrompt

	// WritingQuirk is selected once per story and reused across regenerations.
	WritingQuirk string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Outline wraps the sequence's chapter list.
func (s *Sequence) Outline() Outline {
	return Outline{Chapters: s.Chapters}
}

// NextUnprocessedPrompt returns the oldest unprocessed prompt, or nil. At
// most one prompt is consumed per job execution.
func (s *Sequence) NextUnprocessedPrompt() *UserPrompt {
	for i := range s.Prompts {
		if !s.Prompts[i].Processed {
			return &s.Prompts[i]
		}
	}
	return nil
}

// HasOutline reports whether the sequence already has planned chapters.
func (s *Sequence) HasOutline() bool { return len(s.Chapters) > 0 }
