package model

import (
	"encoding/json"
	"time"
)

type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

type JobKind string

const (
	JobKindStory JobKind = "story_generation"
	JobKindVideo JobKind = "video_generation"
)

// NoBulletProgress marks a job that has not durably written any plot point yet.
const NoBulletProgress = -1

// Job is one queued unit of worker work, targeting one chapter (story kind)
// or one quote (video kind).
type Job struct {
	ID         string
	Kind       JobKind
	Status     JobStatus
	ChapterID  string
	SequenceID string
	QuoteID    string
	UserID     string

	// Progress is 0-100 and monotonically non-decreasing while processing.
	Progress int
	Step     string
	Error    string

	// BulletProgress is the index of the last plot point whose content was
	// durably written, or NoBulletProgress.
	BulletProgress int

	// Preferences is the embedded user preference payload. Legacy jobs may
	// instead carry an OutlineSnapshot; it is validated on read and an
	// unexpected shape is a structural failure.
	Preferences     *StoryPreferences
	OutlineSnapshot json.RawMessage

	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// Terminal reports whether the job reached a final state.
func (j *Job) Terminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}

// ResetForRetry returns the job to the pending state, clearing everything a
// fresh run recomputes. The bullet counter is kept so a retried chapter
// resumes instead of regenerating from scratch.
func (j *Job) ResetForRetry() {
	j.Status = JobStatusPending
	j.Progress = 0
	j.Step = ""
	j.Error = ""
	j.StartedAt = nil
	j.CompletedAt = nil
}
