package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(genomeJobsTotal, genomeJobsInFlight, stageDurationSeconds, deliveriesTotal, queueRejectedTotal)
}

var (
	genomeJobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "genome_jobs_processed_total",
			Help: "Total number of genome jobs processed, labeled by status.",
		},
		[]string{"status"}, // 'completed', 'failed'
	)

	genomeJobsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "genome_jobs_in_flight",
			Help: "Genome jobs currently being processed.",
		},
	)

	stageDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "genome_stage_duration_seconds",
			Help:    "Pipeline stage duration in seconds.",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"stage", "success"},
	)

	deliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "genome_report_deliveries_total",
			Help: "Report delivery attempts by result.",
		},
		[]string{"result"},
	)

	queueRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_queue_rejected_total",
			Help: "Tasks rejected because the worker queue was full.",
		},
		[]string{"queue"},
	)
)

func IncGenomeJob(status string) {
	genomeJobsTotal.WithLabelValues(norm(status)).Inc()
}

func GenomeJobStarted()  { genomeJobsInFlight.Inc() }
func GenomeJobFinished() { genomeJobsInFlight.Dec() }

func ObserveStage(stage string, d time.Duration, success bool) {
	stageDurationSeconds.WithLabelValues(norm(stage), strconv.FormatBool(success)).Observe(d.Seconds())
}

func IncDelivery(ok bool) {
	result := "failed"
	if ok {
		result = "sent"
	}
	deliveriesTotal.WithLabelValues(result).Inc()
}

func IncQueueRejected(queue string) {
	queueRejectedTotal.WithLabelValues(norm(queue)).Inc()
}
