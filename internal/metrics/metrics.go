// Package metrics collects and exposes Prometheus metrics for the auth
// pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder is the surface handlers and middleware record against. Callers in
// tests substitute Nop.
type Recorder interface {
	RecordLogin(provider, result string)
	RecordLoginLatency(duration time.Duration)
	RecordGuardRejection(reason string)
}

type Collector struct {
	logins          *prometheus.CounterVec
	loginLatency    prometheus.Histogram
	guardRejections *prometheus.CounterVec
}

func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_logins_total",
			Help: "Authenticate calls by provider slug and result.",
		}, []string{"provider", "result"}),
		loginLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "auth_login_duration_seconds",
			Help:    "End-to-end authenticate latency, including external verification.",
			Buckets: prometheus.DefBuckets,
		}),
		guardRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_guard_rejections_total",
			Help: "Requests rejected by the access guard, by reason.",
		}, []string{"reason"}),
	}

	reg.MustRegister(c.logins, c.loginLatency, c.guardRejections)
	return c
}

func (c *Collector) RecordLogin(provider, result string) {
	c.logins.WithLabelValues(provider, result).Inc()
}

func (c *Collector) RecordLoginLatency(duration time.Duration) {
	c.loginLatency.Observe(duration.Seconds())
}

func (c *Collector) RecordGuardRejection(reason string) {
	c.guardRejections.WithLabelValues(reason).Inc()
}

// Nop discards all measurements.
type Nop struct{}

func (Nop) RecordLogin(provider, result string) {}

func (Nop) RecordLoginLatency(duration time.Duration) {}

func (Nop) RecordGuardRejection(reason string) {}
