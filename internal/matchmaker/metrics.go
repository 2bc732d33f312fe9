package matchmaker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var matchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "decaychess_matches_total",
	Help: "Created sessions by variant key.",
}, []string{"variant"})
