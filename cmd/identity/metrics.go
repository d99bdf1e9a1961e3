package identity

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metric result labels.
const (
	resultOK          = "ok"
	resultConflict    = "conflict"
	resultInvalid     = "invalid"
	resultRejected    = "rejected"
	resultUnavailable = "unavailable"
	resultError       = "error"
)

// Metrics groups the workflow collectors. A nil *Metrics is a valid no-op.
type Metrics struct {
	registrations   *prometheus.CounterVec
	authentications *prometheus.CounterVec
	verifySeconds   prometheus.Histogram
}

// NewMetrics creates the collectors and registers them on reg (when non-nil).
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "idreg",
			Name:      "registrations_total",
			Help:      "Registration attempts by result.",
		}, []string{"result"}),
		authentications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "idreg",
			Name:      "authentications_total",
			Help:      "Authentication attempts by result.",
		}, []string{"result"}),
		verifySeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "idreg",
			Name:      "credential_verify_seconds",
			Help:      "Time spent verifying a presented credential, decoy path included.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		}),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.registrations, m.authentications, m.verifySeconds} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) registration(result string) {
	if m == nil {
		return
	}
	m.registrations.WithLabelValues(result).Inc()
}

func (m *Metrics) authentication(result string) {
	if m == nil {
		return
	}
	m.authentications.WithLabelValues(result).Inc()
}

func (m *Metrics) observeVerify(started time.Time) {
	if m == nil {
		return
	}
	m.verifySeconds.Observe(time.Since(started).Seconds())
}
