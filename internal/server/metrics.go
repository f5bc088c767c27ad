package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "micr_requests_total",
			Help: "Total number of MICR scan/preprocess requests",
		},
		[]string{"endpoint", "status"},
	)

	processingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "micr_processing_duration_seconds",
			Help:    "Request processing duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	overlapCorrectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "micr_overlap_corrections_total",
			Help: "Total number of scan requests whose MICR line reported overlap",
		},
	)

	translatorErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "micr_translator_errors_total",
			Help: "Total number of translator backend failures",
		},
		[]string{"translator"},
	)
)
