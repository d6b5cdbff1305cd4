// Package metrics provides Prometheus metrics for monitoring StudySphere roadmap components.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Roadmap generation metrics
var (
	// generationTotal records the total number of roadmap generation attempts.
	// Labels:
	//   - outcome: "success", "validation_error", "format_error", "parse_error", "unavailable"
	generationTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studysphere_roadmap_generation_total",
			Help: "Total number of roadmap generation attempts by outcome",
		},
		[]string{"outcome"},
	)

	// generationDuration records the duration of outbound text generation calls.
	// Buckets: 0.5s, 1s, 2s, 5s, 10s, 20s, 30s, 60s
	generationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "studysphere_roadmap_generation_duration_seconds",
			Help:    "Duration of roadmap generation calls in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		},
		[]string{"outcome"},
	)
)

// Backlog sweep metrics
var (
	// sweepRunsTotal records sweep batch runs.
	// Labels:
	//   - trigger: "cron", "manual"
	//   - status: "success", "failed", "skipped"
	sweepRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studysphere_backlog_sweep_runs_total",
			Help: "Total number of backlog sweep runs",
		},
		[]string{"trigger", "status"},
	)

	// sweepRoadmapsTotal records per-roadmap sweep results.
	// Labels:
	//   - result: "updated", "unchanged", "failed"
	sweepRoadmapsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studysphere_backlog_sweep_roadmaps_total",
			Help: "Total number of roadmaps processed by the backlog sweep, by result",
		},
		[]string{"result"},
	)

	// sweepDuration records the duration of a whole sweep batch.
	sweepDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "studysphere_backlog_sweep_duration_seconds",
			Help:    "Duration of backlog sweep batches in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300},
		},
	)

	// backlogInjectedTotal records backlog tasks folded into the current day.
	// Labels:
	//   - source: "sweep", "read"
	backlogInjectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studysphere_backlog_tasks_injected_total",
			Help: "Total number of backlog tasks injected into the current day",
		},
		[]string{"source"},
	)
)

// Progress metrics
var (
	// tasksCompletedTotal records first-time task completions.
	tasksCompletedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "studysphere_tasks_completed_total",
			Help: "Total number of tasks marked completed",
		},
	)

	// roadmapsCreatedTotal records persisted roadmaps.
	roadmapsCreatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studysphere_roadmaps_created_total",
			Help: "Total number of roadmaps created by level",
		},
		[]string{"level"},
	)
)

func init() {
	prometheus.MustRegister(generationTotal)
	prometheus.MustRegister(generationDuration)
	prometheus.MustRegister(sweepRunsTotal)
	prometheus.MustRegister(sweepRoadmapsTotal)
	prometheus.MustRegister(sweepDuration)
	prometheus.MustRegister(backlogInjectedTotal)
	prometheus.MustRegister(tasksCompletedTotal)
	prometheus.MustRegister(roadmapsCreatedTotal)
}

// RecordGeneration records a generation attempt with its outcome and duration.
func RecordGeneration(outcome string, durationSeconds float64) {
	generationTotal.WithLabelValues(outcome).Inc()
	generationDuration.WithLabelValues(outcome).Observe(durationSeconds)
}

// RecordSweepRun records a sweep batch run.
func RecordSweepRun(trigger, status string, durationSeconds float64) {
	sweepRunsTotal.WithLabelValues(trigger, status).Inc()
	if status != "skipped" {
		sweepDuration.Observe(durationSeconds)
	}
}

// RecordSweepRoadmap records the result of sweeping a single roadmap.
func RecordSweepRoadmap(result string) {
	sweepRoadmapsTotal.WithLabelValues(result).Inc()
}

// RecordBacklogInjected records injected backlog tasks.
func RecordBacklogInjected(source string, count int) {
	if count <= 0 {
		return
	}
	backlogInjectedTotal.WithLabelValues(source).Add(float64(count))
}

// RecordTaskCompleted records a first-time task completion.
func RecordTaskCompleted() {
	tasksCompletedTotal.Inc()
}

// RecordRoadmapCreated records a persisted roadmap.
func RecordRoadmapCreated(level string) {
	roadmapsCreatedTotal.WithLabelValues(level).Inc()
}
