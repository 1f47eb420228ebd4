package metrics

import (
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

const namespace = "tabbackup"

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	once             sync.Once
	artifacts        *prom.CounterVec
	downloadDuration *prom.HistogramVec
	runDuration      prom.Histogram
	runOutcomes      *prom.CounterVec
	sites            prom.Counter
	lastSuccess      prom.Gauge
}

// NewPrometheusRecorder constructs and registers Prometheus metrics (idempotent).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{}
	pr.once.Do(func() {
		pr.artifacts = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "artifacts_total",
			Help:      "Artifacts processed by kind and result",
		}, []string{"kind", "result"})
		pr.downloadDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "download_duration_seconds",
			Help:      "Duration of individual artifact downloads",
			Buckets:   prom.DefBuckets,
		}, []string{"kind"})
		pr.runDuration = prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Total backup run duration",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		})
		pr.runOutcomes = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "run_outcomes_total",
			Help:      "Backup runs by final status",
		}, []string{"outcome"})
		pr.sites = prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "sites_visited_total",
			Help:      "Sites visited across runs",
		})
		pr.lastSuccess = prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last run that completed without a fatal error",
		})
		reg.MustRegister(pr.artifacts, pr.downloadDuration, pr.runDuration, pr.runOutcomes, pr.sites, pr.lastSuccess)
	})
	return pr
}

func (p *PrometheusRecorder) IncArtifact(kind string, result ResultLabel) {
	if p == nil || p.artifacts == nil {
		return
	}
	p.artifacts.WithLabelValues(kind, string(result)).Inc()
}

func (p *PrometheusRecorder) ObserveDownloadDuration(kind string, d time.Duration) {
	if p == nil || p.downloadDuration == nil {
		return
	}
	p.downloadDuration.WithLabelValues(kind).Observe(d.Seconds())
}

func (p *PrometheusRecorder) ObserveRunDuration(d time.Duration) {
	if p == nil || p.runDuration == nil {
		return
	}
	p.runDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncRunOutcome(outcome OutcomeLabel) {
	if p == nil || p.runOutcomes == nil {
		return
	}
	p.runOutcomes.WithLabelValues(string(outcome)).Inc()
}

func (p *PrometheusRecorder) IncSites() {
	if p == nil || p.sites == nil {
		return
	}
	p.sites.Inc()
}

func (p *PrometheusRecorder) SetLastSuccess(t time.Time) {
	if p == nil || p.lastSuccess == nil {
		return
	}
	p.lastSuccess.Set(float64(t.Unix()))
}
