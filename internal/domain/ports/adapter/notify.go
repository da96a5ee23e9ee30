package adapter

import "context"

// JobNotification describes a job reaching a terminal state.
type JobNotification struct {
	JobID      string `json:"job_id"`
	Kind       string `json:"kind"`
	Status     string `json:"status"`
	SequenceID string `json:"sequence_id,omitempty"`
	ChapterID  string `json:"chapter_id,omitempty"`
	Error      string `json:"error,omitempty"`
}

// CompletionNotifier delivers terminal-state notifications. Delivery is
// at-most-once and best-effort: the job's state transition never depends on
// it succeeding.
type CompletionNotifier interface {
	NotifyJobFinished(ctx context.Context, n JobNotification) error
}
