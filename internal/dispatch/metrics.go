package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	actionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "decaychess_actions_total",
		Help: "Engine invocations by variant and outcome.",
	}, []string{"variant", "outcome"})

	sessionsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "decaychess_sessions_finished_total",
		Help: "Finished sessions by result.",
	}, []string{"result"})

	engineFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "decaychess_engine_failures_total",
		Help: "Engine panics and commit failures.",
	})
)
