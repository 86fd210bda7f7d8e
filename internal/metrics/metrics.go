// Package metrics exposes Prometheus counters for the bandit's moving
// parts. Everything is registered on the default registry and served by
// the HTTP surface at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SelectionsTotal counts variants handed out, labeled by variant key.
	SelectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "promptbandit_selections_total",
		Help: "Variant selections served, by variant key.",
	}, []string{"variant_key"})

	// ConversionsTotal counts attributed conversion events.
	ConversionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "promptbandit_conversions_total",
		Help: "Conversion events attributed to an open observation window.",
	})

	// UnattributedConversions counts conversion events that arrived with
	// no open window to credit. Expected traffic, not an error.
	UnattributedConversions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "promptbandit_unattributed_conversions_total",
		Help: "Conversion events with no open observation window.",
	})

	// WindowsExpiredTotal counts observation windows closed by the sweep.
	WindowsExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "promptbandit_windows_expired_total",
		Help: "Observation windows closed as expired by the sweep.",
	})

	// SweepErrors counts per-item sweep failures (the batch continues).
	SweepErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "promptbandit_sweep_errors_total",
		Help: "Errors while processing individual expired windows.",
	})

	// GeneratorFailures distinguishes why candidate generation produced
	// nothing; timeouts and malformed output need different operational
	// responses.
	GeneratorFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "promptbandit_generator_failures_total",
		Help: "Candidate generation failures, by reason.",
	}, []string{"reason"})

	// PlateauCycles counts plateau cycle outcomes.
	PlateauCycles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "promptbandit_plateau_cycles_total",
		Help: "Plateau cycle runs, by outcome.",
	}, []string{"outcome"})
)

// Generator failure reasons.
const (
	ReasonTimeout   = "timeout"
	ReasonAPIError  = "api_error"
	ReasonMalformed = "malformed"
)

// Plateau cycle outcomes.
const (
	OutcomeNoPlateau = "no_plateau"
	OutcomeCooldown  = "cooldown"
	OutcomeNoNew     = "no_new_variants"
	OutcomeGenerated = "generated"
)
