package adapter

import "context"

// VideoSpec is the structured request submitted to a video provider.
type VideoSpec struct {
	Prompt          string
	DurationSeconds int
	FPS             int
	AspectRatio     string
	Resolution      string
}

// VideoAsset is a rendered clip, already downloaded from the provider.
type VideoAsset struct {
	Data        []byte
	ContentType string
}

// VideoGenerator renders a short clip from a cinematic prompt. A rejection
// on content-policy grounds must be distinguishable from a transient failure
// (see domain.ErrContentPolicy).
type VideoGenerator interface {
	GenerateVideo(ctx context.Context, spec VideoSpec) (*VideoAsset, error)
}
