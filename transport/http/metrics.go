package http

import "github.com/prometheus/client_golang/prometheus"

var (
	ceremoniesStarted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keygate_ceremonies_started_total",
			Help: "Challenges issued, by ceremony kind.",
		},
		[]string{"kind"},
	)

	ceremoniesFinished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keygate_ceremonies_finished_total",
			Help: "Ceremony verification outcomes, by kind and result.",
		},
		[]string{"kind", "result"},
	)

	fallbackLogins = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keygate_fallback_logins_total",
			Help: "Password/PIN login outcomes, by method and result.",
		},
		[]string{"method", "result"},
	)

	rotations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keygate_token_rotations_total",
			Help: "Refresh token rotation outcomes.",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(ceremoniesStarted, ceremoniesFinished, fallbackLogins, rotations)
}
