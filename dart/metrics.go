package dart

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collective/flush instrumentation is an ambient observability concern
// carried regardless of which features a deployment turns on, grounded
// on aistore's practice of threading a stats tracker through every
// transport/collective call site.
var (
	collectiveOpsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dart",
		Subsystem: "collective",
		Name:      "ops_total",
		Help:      "Number of collective operations issued, by kind.",
	}, []string{"op"})

	flushOpsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dart",
		Subsystem: "rma",
		Name:      "flush_total",
		Help:      "Number of flush operations issued, by kind.",
	}, []string{"op"})
)
