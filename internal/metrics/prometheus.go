package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

var (
	TokensIssuedTotal        prometheus.Counter
	TokensRefreshedTotal     prometheus.Counter
	TokensRevokedTotal       prometheus.Counter
	CodesIssuedTotal         prometheus.Counter
	CodesConsumedTotal       prometheus.Counter
	KeyRotationsTotal        prometheus.Counter
	ValidationFailuresTotal  prometheus.Counter
	RefreshReuseDetectedTotal prometheus.Counter
)

// Init initializes and registers the authorization-core metrics. Call once at
// startup; a nil registerer leaves the metrics usable but unregistered, which
// is what tests want.
func Init(reg prometheus.Registerer) {
	TokensIssuedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "smartauth_tokens_issued_total",
		Help: "Total number of access tokens issued.",
	})
	TokensRefreshedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "smartauth_tokens_refreshed_total",
		Help: "Total number of refresh grants served.",
	})
	TokensRevokedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "smartauth_tokens_revoked_total",
		Help: "Total number of tokens revoked.",
	})
	CodesIssuedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "smartauth_auth_codes_issued_total",
		Help: "Total number of authorization codes issued.",
	})
	CodesConsumedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "smartauth_auth_codes_consumed_total",
		Help: "Total number of authorization codes consumed successfully.",
	})
	KeyRotationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "smartauth_key_rotations_total",
		Help: "Total number of signing-key rotations performed.",
	})
	ValidationFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "smartauth_token_validation_failures_total",
		Help: "Total number of access-token validations rejected.",
	})
	RefreshReuseDetectedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "smartauth_refresh_reuse_detected_total",
		Help: "Total number of rotated-refresh-token reuse events (theft signal).",
	})

	if reg == nil {
		return
	}
	for _, c := range []prometheus.Collector{
		TokensIssuedTotal, TokensRefreshedTotal, TokensRevokedTotal,
		CodesIssuedTotal, CodesConsumedTotal, KeyRotationsTotal,
		ValidationFailuresTotal, RefreshReuseDetectedTotal,
	} {
		if err := reg.Register(c); err != nil {
			log.Warn().Err(err).Msg("failed to register metric")
		}
	}
}

func init() {
	// Metrics must be non-nil even when Init is never called.
	Init(nil)
}
