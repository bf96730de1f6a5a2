package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TasksExecuted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ali_intent_tasks_executed_total",
			Help: "Total number of task executions by type and outcome",
		},
		[]string{"type", "outcome"},
	)

	SweepsRun = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ali_intent_sweeps_total",
			Help: "Total number of scheduler sweep cycles",
		},
	)

	RecurringFires = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ali_intent_recurring_fires_total",
			Help: "Total number of recurring task firings by recurrence kind",
		},
		[]string{"kind"},
	)

	PatternsDiscovered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ali_intent_patterns_discovered_total",
			Help: "Total number of behavior patterns discovered by the miner",
		},
	)

	PersistenceFlushes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ali_intent_persistence_flushes_total",
			Help: "Total number of state flushes by outcome",
		},
		[]string{"outcome"},
	)

	LoopErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ali_intent_loop_errors_total",
			Help: "Total number of recovered scheduler loop errors",
		},
	)

	PendingTasks = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ali_intent_pending_tasks",
			Help: "Number of tasks currently queued",
		},
	)

	InputsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ali_intent_inputs_processed_total",
			Help: "Total number of processed user inputs by recognized intent",
		},
		[]string{"intent"},
	)
)
