// Package metrics provides Prometheus metrics for the security filter chains.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Authentication outcomes.
const (
	OutcomeSuccess  = "success"
	OutcomeFailure  = "failure"
	OutcomeRejected = "rejected"
)

var (
	// AuthenticationTotal counts authentication attempts by chain and outcome.
	AuthenticationTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ldapsecurity_authentication_total",
			Help: "Authentication attempts",
		},
		[]string{"chain", "outcome"},
	)

	// ChainRequestsTotal counts requests matched by a filter chain.
	ChainRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ldapsecurity_chain_requests_total",
			Help: "Requests matched by a security filter chain",
		},
		[]string{"chain"},
	)

	// LdapBindDuration records directory bind latency in seconds.
	LdapBindDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ldapsecurity_ldap_bind_duration_seconds",
			Help:    "LDAP bind duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"result"},
	)
)

var registerOnce sync.Once

// Register adds all collectors to reg. Only the first call registers.
func Register(reg prometheus.Registerer) {
	registerOnce.Do(func() {
		reg.MustRegister(AuthenticationTotal, ChainRequestsTotal, LdapBindDuration)
	})
}
