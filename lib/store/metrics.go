package store

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	challengesIssued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "capgate_challenges_issued",
		Help: "The total number of challenges issued",
	}, []string{"preset"})

	verifyOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "capgate_verify_outcomes",
		Help: "The total number of verification attempts by outcome",
	}, []string{"outcome"})

	liveChallenges = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "capgate_live_challenges",
		Help: "The number of challenges currently held in memory",
	})

	sweepsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "capgate_sweeps_total",
		Help: "The total number of reclamation sweeps",
	})

	entriesReclaimed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "capgate_entries_reclaimed_total",
		Help: "The total number of challenges reclaimed by the sweeper",
	})

	sweepErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "capgate_sweep_errors_total",
		Help: "The total number of per-entry errors isolated during sweeps",
	})
)
