// adaptorlib - Enterprise Search Appliance adaptor core
// SPDX-License-Identifier: Apache-2.0

package samlauth

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// loginAttempts counts assertion-consumer outcomes.
	// Labels: outcome: "success", "bad_signature", "replayed", "denied", "error"
	loginAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "samlauth_login_attempts_total",
			Help: "Total number of SAML assertion consumer outcomes",
		},
		[]string{"outcome"},
	)

	// loginDuration measures time spent validating an inbound Response.
	loginDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "samlauth_login_duration_seconds",
			Help:    "Duration of SAML assertion validation",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
	)

	// sessionsEstablished counts sessions promoted from anonymous to
	// authenticated by a successful assertion.
	sessionsEstablished = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "samlauth_sessions_established_total",
			Help: "Total number of sessions established via SAML assertion",
		},
	)

	// idpCertKeysTotal tracks the current number of trusted certificates
	// in the IdP certificate cache.
	idpCertKeysTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "samlauth_idp_cert_keys_total",
			Help: "Current number of trusted IdP signing certificates",
		},
	)

	// idpCertRotations counts rotation events detected in the IdP
	// certificate cache (the set of trusted fingerprints changed).
	idpCertRotations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "samlauth_idp_cert_rotations_total",
			Help: "Total number of IdP certificate rotation events detected",
		},
	)

	// idpCertFetchErrors counts metadata fetch failures by error type.
	idpCertFetchErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "samlauth_idp_cert_fetch_errors_total",
			Help: "Total number of IdP metadata fetch errors",
		},
		[]string{"error_type"},
	)

	// idpCertFetchDuration measures metadata fetch latency.
	idpCertFetchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "samlauth_idp_cert_fetch_duration_seconds",
			Help:    "Duration of IdP metadata fetch operations",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
	)
)

func recordLogin(outcome string, duration time.Duration) {
	loginAttempts.WithLabelValues(outcome).Inc()
	if outcome == "success" {
		loginDuration.Observe(duration.Seconds())
		sessionsEstablished.Inc()
	}
}
