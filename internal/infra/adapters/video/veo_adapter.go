package video

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"storyloom/internal/domain"
	"storyloom/internal/domain/ports/adapter"
	"storyloom/internal/infra/metrics"
)

var _ adapter.VideoGenerator = (*VeoAdapter)(nil)

// VeoAdapter renders short clips through the Veo video models. Generation is
// a long-running operation; the adapter polls until the operation settles and
// downloads the resulting file.
type VeoAdapter struct {
	client       *genai.Client
	model        string
	pollInterval time.Duration
}

func NewVeoAdapter(ctx context.Context, apiKey, model string, pollInterval time.Duration) (*VeoAdapter, error) {
	if apiKey == "" {
		return nil, errors.New("veo: empty api key")
	}
	if model == "" {
		model = "veo-3.0-generate-001"
	}
	if pollInterval <= 0 {
		pollInterval = 10 * time.Second
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}
	return &VeoAdapter{client: c, model: model, pollInterval: pollInterval}, nil
}

func (v *VeoAdapter) GenerateVideo(ctx context.Context, spec adapter.VideoSpec) (*adapter.VideoAsset, error) {
	cfg := &genai.GenerateVideosConfig{
		NumberOfVideos: 1,
		AspectRatio:    spec.AspectRatio,
		Resolution:     spec.Resolution,
	}
	if spec.DurationSeconds > 0 {
		cfg.DurationSeconds = genai.Ptr(int32(spec.DurationSeconds))
	}
	if spec.FPS > 0 {
		cfg.FPS = genai.Ptr(int32(spec.FPS))
	}

	op, err := v.client.Models.GenerateVideos(ctx, v.model, spec.Prompt, nil, cfg)
	if err != nil {
		return nil, v.mapError(err)
	}

	for !op.Done {
		select {
		case <-time.After(v.pollInterval):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		op, err = v.client.Operations.GetVideosOperation(ctx, op, nil)
		if err != nil {
			return nil, v.mapError(err)
		}
	}

	if op.Response == nil || len(op.Response.GeneratedVideos) == 0 {
		// An operation that finishes with no output and a filter count is a
		// policy rejection, not an infrastructure failure.
		if op.Response != nil && op.Response.RAIMediaFilteredCount > 0 {
			metrics.IncVideoPolicyRejection()
			return nil, fmt.Errorf("%w: %s", domain.ErrContentPolicy, joinFilterReasons(op.Response.RAIMediaFilteredReasons))
		}
		return nil, errors.New("veo: operation finished with no videos")
	}

	generated := op.Response.GeneratedVideos[0].Video
	if generated == nil {
		return nil, errors.New("veo: empty video payload")
	}

	data := generated.VideoBytes
	if len(data) == 0 {
		data, err = v.client.Files.Download(ctx, generated, nil)
		if err != nil {
			return nil, fmt.Errorf("veo download: %w", err)
		}
	}

	contentType := generated.MIMEType
	if contentType == "" {
		contentType = "video/mp4"
	}
	return &adapter.VideoAsset{Data: data, ContentType: contentType}, nil
}

func (v *VeoAdapter) mapError(err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "safety") || strings.Contains(msg, "policy") || strings.Contains(msg, "blocked") {
		metrics.IncVideoPolicyRejection()
		return fmt.Errorf("%w: %v", domain.ErrContentPolicy, err)
	}
	return err
}

func joinFilterReasons(reasons []string) string {
	if len(reasons) == 0 {
		return "media filtered"
	}
	return strings.Join(reasons, "; ")
}
