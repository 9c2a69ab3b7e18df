package ingestion

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	uploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "unidata",
		Subsystem: "ingestion",
		Name:      "uploads_total",
		Help:      "Ingestion attempts by detected family and terminal status.",
	}, []string{"family", "status"})

	recordsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "unidata",
		Subsystem: "ingestion",
		Name:      "records_total",
		Help:      "Normalized records committed by family.",
	}, []string{"family"})

	recordsReplaced = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "unidata",
		Subsystem: "ingestion",
		Name:      "replaced_records_total",
		Help:      "Records deleted by replace-existing uploads.",
	}, []string{"family"})

	ingestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "unidata",
		Subsystem: "ingestion",
		Name:      "duration_seconds",
		Help:      "Wall time of ingestion attempts.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
	}, []string{"status"})
)

func familyLabel(family string) string {
	if family == "" {
		return "unknown"
	}
	return family
}
