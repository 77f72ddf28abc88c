// Package metrics exposes the Prometheus instrumentation for the registry:
// issuance and verification counters plus ledger anchoring outcomes and
// latency. All recording methods are safe on a nil receiver so components
// can run without metrics wired in (tests, the standalone worker).
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"academia-veritas/registry-backend/internal/ledger"
)

// Anchor submission outcomes used as the "outcome" label value.
const (
	AnchorOutcomeAnchored    = "anchored"
	AnchorOutcomeExisting    = "already_anchored"
	AnchorOutcomeTimeout     = "timeout"
	AnchorOutcomeUnavailable = "unavailable"
)

// AnchorOutcomeForError classifies a failed Anchor call into a label value.
func AnchorOutcomeForError(err error) string {
	if errors.Is(err, ledger.ErrAnchorTimeout) {
		return AnchorOutcomeTimeout
	}
	return AnchorOutcomeUnavailable
}

type Metrics struct {
	registry *prometheus.Registry

	certificatesIssued prometheus.Counter
	anchorSubmissions  *prometheus.CounterVec
	anchorDuration     prometheus.Histogram
	verifications      *prometheus.CounterVec
}

// New builds a Metrics with its own registry, including the standard Go and
// process collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)
	return &Metrics{
		registry: registry,
		certificatesIssued: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "registry",
			Name:      "certificates_issued_total",
			Help:      "Certificates successfully issued.",
		}),
		anchorSubmissions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "registry",
			Name:      "anchor_submissions_total",
			Help:      "Ledger anchor attempts by outcome.",
		}, []string{"outcome"}),
		anchorDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "registry",
			Name:      "anchor_duration_seconds",
			Help:      "Wall-clock duration of ledger anchor attempts.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30},
		}),
		verifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "registry",
			Name:      "verifications_total",
			Help:      "Verification requests by resulting tier.",
		}, []string{"tier"}),
	}
}

// Handler serves the scrape endpoint for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) CertificateIssued() {
	if m == nil {
		return
	}
	m.certificatesIssued.Inc()
}

func (m *Metrics) AnchorSubmission(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.anchorSubmissions.WithLabelValues(outcome).Inc()
	m.anchorDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) Verification(tier string) {
	if m == nil {
		return
	}
	m.verifications.WithLabelValues(tier).Inc()
}
