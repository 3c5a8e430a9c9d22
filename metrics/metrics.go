// Package metrics holds the prometheus collectors shared across temp-box
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "temp_box"

// AccountsCreated counts successfully created remote accounts
var AccountsCreated = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "accounts_created",
	Help:      "number of disposable accounts created",
})

// ActiveAccounts is the number of locally known accounts that are neither
// deleted nor expired
var ActiveAccounts = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: namespace,
	Name:      "active_accounts",
	Help:      "number of live disposable accounts",
})

// MessagesFetched counts messages returned by provider polls
var MessagesFetched = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "messages_fetched",
	Help:      "number of messages fetched from the provider",
})

// PollFailures counts message polls that exhausted their retries
var PollFailures = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "poll_failures",
	Help:      "number of message polls that failed after retries",
})

// CleanupRuns counts sweep executions
var CleanupRuns = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "cleanup_runs",
	Help:      "number of cleanup sweeps executed",
})

// CleanupResults counts per-account cleanup outcomes
var CleanupResults = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "cleanup_results",
	Help:      "per account cleanup outcomes",
}, []string{"outcome"})

// SweepDuration observes how long each sweep takes
var SweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: namespace,
	Name:      "sweep_duration_seconds",
	Help:      "duration of cleanup sweeps",
	Buckets:   prometheus.DefBuckets,
})
