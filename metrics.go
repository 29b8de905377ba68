package main

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gregoryjjb/eightled/modes"
)

var (
	patternRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "eightled",
		Subsystem: "pattern",
		Name:      "runs_total",
		Help:      "Pattern calls started",
	}, []string{"pattern"})

	patternFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "eightled",
		Subsystem: "pattern",
		Name:      "failures_total",
		Help:      "Pattern calls that ended with an error",
	}, []string{"pattern"})

	patternIterations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "eightled",
		Subsystem: "pattern",
		Name:      "iterations_total",
		Help:      "Loop iterations completed",
	}, []string{"pattern"})

	patternBlinks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "eightled",
		Subsystem: "pattern",
		Name:      "blinks_total",
		Help:      "All-blink flourishes shown, by the pattern that showed them",
	}, []string{"pattern"})

	patternActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "eightled",
		Subsystem: "pattern",
		Name:      "active",
		Help:      "1 while the pattern is running",
	}, []string{"pattern"})
)

// recordMetrics is a modes.Observer.
func recordMetrics(ev modes.Event) {
	p := string(ev.Pattern)
	switch ev.Kind {
	case modes.EventStarted:
		patternRuns.WithLabelValues(p).Inc()
		patternActive.WithLabelValues(p).Set(1)
	case modes.EventIteration:
		patternIterations.WithLabelValues(p).Inc()
	case modes.EventBlink:
		patternBlinks.WithLabelValues(p).Inc()
	case modes.EventStopped:
		patternActive.WithLabelValues(p).Set(0)
	case modes.EventFailed:
		patternActive.WithLabelValues(p).Set(0)
		patternFailures.WithLabelValues(p).Inc()
	}
}

func metricsHandler() http.Handler {
	return promhttp.Handler()
}
