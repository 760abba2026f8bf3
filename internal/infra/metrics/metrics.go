package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// TokenRejections counts failed token verifications by token kind and reason (malformed|expired|revoked).
	TokenRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "account",
		Name:      "token_rejections_total",
		Help:      "Rejected access/refresh tokens by reason.",
	}, []string{"kind", "reason"})

	SessionEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "account",
		Name:      "session_events_total",
		Help:      "Login, refresh and logout outcomes.",
	}, []string{"event", "outcome"})
)

func Handler() http.Handler {
	return promhttp.Handler()
}
