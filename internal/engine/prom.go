package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	assignmentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crescendo",
		Subsystem: "engine",
		Name:      "assignments_total",
		Help:      "Participants assigned, by experiment and variation.",
	}, []string{"experiment", "variation"})

	trackedEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crescendo",
		Subsystem: "engine",
		Name:      "tracked_events_total",
		Help:      "Events recorded, by experiment and event type.",
	}, []string{"experiment", "type"})

	recomputationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crescendo",
		Subsystem: "engine",
		Name:      "recomputations_total",
		Help:      "Statistical result recomputations, by experiment.",
	}, []string{"experiment"})
)
