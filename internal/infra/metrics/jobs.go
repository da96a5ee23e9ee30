package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		jobsProcessedTotal,
		jobsClaimedTotal,
		jobClaimConflicts,
		jobDurationSeconds,
		jobsPendingGauge,
		orphanedChaptersSwept,
		plotPointsGenerated,
	)
}

var (
	jobsProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "generation_jobs_processed_total",
			Help: "Total number of generation jobs processed, labeled by kind and status.",
		},
		[]string{"kind", "status"}, // 'completed', 'failed'
	)

	jobsClaimedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "generation_jobs_claimed_total",
			Help: "Jobs successfully claimed for processing, labeled by kind.",
		},
		[]string{"kind"},
	)

	jobClaimConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "generation_job_claim_conflicts_total",
			Help: "Claim attempts lost to a concurrent worker.",
		},
	)

	jobDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "generation_job_duration_seconds",
			Help:    "Wall-clock duration of a full job run.",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1200, 2400},
		},
		[]string{"kind", "status"},
	)

	jobsPendingGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "generation_jobs_pending",
			Help: "Pending jobs observed at the last poll.",
		},
	)

	orphanedChaptersSwept = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "orphaned_chapters_swept_total",
			Help: "Chapters flipped from generating to failed by reconciliation sweeps.",
		},
	)

	plotPointsGenerated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plot_points_generated_total",
			Help: "Plot points durably written, labeled by length tier.",
		},
		[]string{"tier"},
	)
)

func IncJobProcessed(kind, status string) {
	jobsProcessedTotal.WithLabelValues(norm(kind), norm(status)).Inc()
}

func IncJobClaimed(kind string) {
	jobsClaimedTotal.WithLabelValues(norm(kind)).Inc()
}

func IncClaimConflict() { jobClaimConflicts.Inc() }

func ObserveJobDuration(kind, status string, seconds float64) {
	jobDurationSeconds.WithLabelValues(norm(kind), norm(status)).Observe(seconds)
}

func SetPendingJobs(n int) { jobsPendingGauge.Set(float64(n)) }

func AddOrphanedSwept(n int64) { orphanedChaptersSwept.Add(float64(n)) }

func IncPlotPointGenerated(tier string) {
	plotPointsGenerated.WithLabelValues(norm(tier)).Inc()
}
