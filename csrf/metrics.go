package csrf

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts guard decisions. A nil *Metrics records nothing.
type Metrics struct {
	validations *prometheus.CounterVec
	issued      prometheus.Counter
	deleted     prometheus.Counter
}

// NewMetrics registers the guard's collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		validations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "csrf_validations_total",
				Help: "Unsafe requests checked by the CSRF guard, by outcome.",
			},
			[]string{"outcome"},
		),
		issued: f.NewCounter(prometheus.CounterOpts{
			Name: "csrf_tokens_issued_total",
			Help: "CSRF tokens generated.",
		}),
		deleted: f.NewCounter(prometheus.CounterOpts{
			Name: "csrf_tokens_deleted_total",
			Help: "CSRF tokens revoked through Handler.DeleteToken.",
		}),
	}
}

func (m *Metrics) validated(outcome string) {
	if m == nil {
		return
	}
	m.validations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) tokenIssued() {
	if m == nil {
		return
	}
	m.issued.Inc()
}

func (m *Metrics) tokenDeleted() {
	if m == nil {
		return
	}
	m.deleted.Inc()
}
