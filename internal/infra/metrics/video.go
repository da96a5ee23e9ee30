package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(videoPolicyRejections, videoSanitizations)
}

var (
	videoPolicyRejections = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "video_policy_rejections_total",
			Help: "Video prompts rejected by the provider on content-policy grounds.",
		},
	)

	videoSanitizations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "video_prompt_sanitizations_total",
			Help: "Prompt sanitization passes applied before resubmission.",
		},
		[]string{"level"}, // 'mild', 'aggressive'
	)
)

func IncVideoPolicyRejection() { videoPolicyRejections.Inc() }

func IncVideoSanitization(level string) {
	videoSanitizations.WithLabelValues(norm(level)).Inc()
}
