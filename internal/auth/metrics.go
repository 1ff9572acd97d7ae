package auth

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts login and token-resolution outcomes by Reason label.
type Metrics struct {
	logins      *prometheus.CounterVec
	resolutions *prometheus.CounterVec
}

// NewMetrics registers the auth collectors on reg. A nil reg yields
// unregistered collectors, which is handy in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "taskapp",
			Subsystem: "auth",
			Name:      "login_attempts_total",
			Help:      "Login attempts by outcome.",
		}, []string{"result"}),
		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "taskapp",
			Subsystem: "auth",
			Name:      "token_resolutions_total",
			Help:      "Bearer token resolutions by outcome.",
		}, []string{"result"}),
	}
	if reg != nil {
		reg.MustRegister(m.logins, m.resolutions)
	}
	return m
}

func (m *Metrics) login(err error) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(Reason(err)).Inc()
}

func (m *Metrics) resolution(err error) {
	if m == nil {
		return
	}
	m.resolutions.WithLabelValues(Reason(err)).Inc()
}
