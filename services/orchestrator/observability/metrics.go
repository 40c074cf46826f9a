// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides metrics for the coaching call service.
//
// # Description
//
// This package implements Prometheus metrics for monitoring coaching calls.
// Metrics include:
//   - Call counters (started, ended by reason) and an active call gauge
//   - Turn counters by reply path and tool results by action and outcome
//   - LLM latency histograms and error counters
//   - Finalization counters by session type and summary source
//
// # Integration
//
// Metrics are exposed via the /metrics endpoint.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
// Every recording method is a no-op on a nil *CallMetrics.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Metric Definitions
// =============================================================================

// Namespace for all metrics
const metricsNamespace = "morningcoach"

// Subsystem for call metrics
const callSubsystem = "call"

// CallMetrics holds all Prometheus metrics for coaching calls.
//
// # Fields
//
//   - CallsStartedTotal: Calls opened, by direction
//   - ActiveCalls: Calls currently live
//   - CallsEndedTotal: Calls closed, by end reason
//   - TurnsTotal: Caller turns, by reply path
//   - ToolResultsTotal: Tool executions, by action and outcome
//   - LLMDurationSeconds: Model call latency, by operation
//   - LLMErrorsTotal: Failed model calls, by operation
//   - FinalizationsTotal: Finalized calls, by session type and summary source
//   - DuplicateEndSignalsTotal: End signals for calls already closed
//   - JournalErrorsTotal: Failed durable writes, by record kind
//   - StatusEventsTotal: Telephony status callbacks, by status
type CallMetrics struct {
	// CallsStartedTotal counts opened calls.
	// Labels: direction (inbound, outbound)
	CallsStartedTotal *prometheus.CounterVec

	// ActiveCalls tracks live calls.
	ActiveCalls prometheus.Gauge

	// CallsEndedTotal counts closed calls.
	// Labels: reason (closing_phrase, hard_cap, silence, telephony_status, ...)
	CallsEndedTotal *prometheus.CounterVec

	// TurnsTotal counts processed caller turns.
	// Labels: path (tool, llm, loop_break, fallback, silence, closing)
	TurnsTotal *prometheus.CounterVec

	// ToolResultsTotal counts tool executions.
	// Labels: action, outcome (success, failure, clarify, not_configured)
	ToolResultsTotal *prometheus.CounterVec

	// LLMDurationSeconds measures model call latency.
	// Labels: operation (reply, extraction)
	LLMDurationSeconds *prometheus.HistogramVec

	// LLMErrorsTotal counts failed model calls.
	// Labels: operation (reply, extraction)
	LLMErrorsTotal *prometheus.CounterVec

	// FinalizationsTotal counts finalized calls.
	// Labels: session_type, source (llm, heuristic)
	FinalizationsTotal *prometheus.CounterVec

	// DuplicateEndSignalsTotal counts end signals for closed calls.
	// Labels: signal (speech, status, idle)
	DuplicateEndSignalsTotal *prometheus.CounterVec

	// JournalErrorsTotal counts failed durable writes.
	// Labels: record (turn, session, missed_call)
	JournalErrorsTotal *prometheus.CounterVec

	// StatusEventsTotal counts telephony status callbacks.
	// Labels: status
	StatusEventsTotal *prometheus.CounterVec
}

// DefaultMetrics is the process-wide instance registered on the default
// registry. Initialized by InitMetrics().
var DefaultMetrics *CallMetrics

// InitMetrics registers the metrics on the default Prometheus registry.
//
// # Limitations
//
//   - Panics if called twice (duplicate registration).
func InitMetrics() *CallMetrics {
	DefaultMetrics = NewCallMetrics(prometheus.DefaultRegisterer)
	return DefaultMetrics
}

// NewCallMetrics creates and registers the metrics on reg.
//
// # Inputs
//
//   - reg: Registry to register on. Tests pass a fresh prometheus.NewRegistry().
//
// # Outputs
//
//   - *CallMetrics: The registered metrics.
func NewCallMetrics(reg prometheus.Registerer) *CallMetrics {
	factory := promauto.With(reg)
	return &CallMetrics{
		CallsStartedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: callSubsystem,
				Name:      "started_total",
				Help:      "Total calls opened by direction",
			},
			[]string{"direction"},
		),

		ActiveCalls: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: callSubsystem,
				Name:      "active",
				Help:      "Number of live calls",
			},
		),

		CallsEndedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: callSubsystem,
				Name:      "ended_total",
				Help:      "Total calls closed by end reason",
			},
			[]string{"reason"},
		),

		TurnsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: callSubsystem,
				Name:      "turns_total",
				Help:      "Total caller turns by reply path",
			},
			[]string{"path"},
		),

		ToolResultsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "tool",
				Name:      "results_total",
				Help:      "Total tool executions by action and outcome",
			},
			[]string{"action", "outcome"},
		),

		LLMDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: "llm",
				Name:      "duration_seconds",
				Help:      "LLM call latency in seconds",
				Buckets:   []float64{0.25, 0.5, 1.0, 2.0, 4.0, 6.0, 10.0},
			},
			[]string{"operation"},
		),

		LLMErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "llm",
				Name:      "errors_total",
				Help:      "Total failed LLM calls by operation",
			},
			[]string{"operation"},
		),

		FinalizationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "summary",
				Name:      "finalizations_total",
				Help:      "Total finalized calls by session type and summary source",
			},
			[]string{"session_type", "source"},
		),

		DuplicateEndSignalsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: callSubsystem,
				Name:      "duplicate_end_signals_total",
				Help:      "Total end signals received for calls already closed",
			},
			[]string{"signal"},
		),

		JournalErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "journal",
				Name:      "errors_total",
				Help:      "Total failed journal writes by record kind",
			},
			[]string{"record"},
		),

		StatusEventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: callSubsystem,
				Name:      "status_events_total",
				Help:      "Total telephony status callbacks by status",
			},
			[]string{"status"},
		),
	}
}

// =============================================================================
// Label Values
// =============================================================================

// Operation labels LLM metrics.
type Operation string

const (
	// OperationReply is a conversational reply.
	OperationReply Operation = "reply"

	// OperationExtraction is the end-of-call structured summary.
	OperationExtraction Operation = "extraction"
)

// ToolOutcome labels tool results.
type ToolOutcome string

const (
	ToolSuccess       ToolOutcome = "success"
	ToolFailure       ToolOutcome = "failure"
	ToolClarify       ToolOutcome = "clarify"
	ToolNotConfigured ToolOutcome = "not_configured"
)

// =============================================================================
// Helper Methods
// =============================================================================

// CallStarted records an opened call and raises the active gauge.
func (m *CallMetrics) CallStarted(direction string) {
	if m == nil {
		return
	}
	m.CallsStartedTotal.WithLabelValues(direction).Inc()
	m.ActiveCalls.Inc()
}

// CallEnded records a closed call and lowers the active gauge.
func (m *CallMetrics) CallEnded(reason string) {
	if m == nil {
		return
	}
	m.CallsEndedTotal.WithLabelValues(reason).Inc()
	m.ActiveCalls.Dec()
}

// RecordTurn records a caller turn by the path that produced the reply.
func (m *CallMetrics) RecordTurn(path string) {
	if m == nil {
		return
	}
	m.TurnsTotal.WithLabelValues(path).Inc()
}

// RecordTool records a tool execution.
func (m *CallMetrics) RecordTool(action string, outcome ToolOutcome) {
	if m == nil {
		return
	}
	m.ToolResultsTotal.WithLabelValues(action, string(outcome)).Inc()
}

// ObserveLLM records a model call's latency and, when err is non-nil, an
// error.
func (m *CallMetrics) ObserveLLM(op Operation, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.LLMDurationSeconds.WithLabelValues(string(op)).Observe(elapsed.Seconds())
	if err != nil {
		m.LLMErrorsTotal.WithLabelValues(string(op)).Inc()
	}
}

// RecordFinalization records a finalized call.
func (m *CallMetrics) RecordFinalization(sessionType, source string) {
	if m == nil {
		return
	}
	m.FinalizationsTotal.WithLabelValues(sessionType, source).Inc()
}

// RecordDuplicateEnd records an end signal for a call already closed.
func (m *CallMetrics) RecordDuplicateEnd(signal string) {
	if m == nil {
		return
	}
	m.DuplicateEndSignalsTotal.WithLabelValues(signal).Inc()
}

// RecordJournalError records a failed durable write.
func (m *CallMetrics) RecordJournalError(record string) {
	if m == nil {
		return
	}
	m.JournalErrorsTotal.WithLabelValues(record).Inc()
}

// RecordStatus records a telephony status callback.
func (m *CallMetrics) RecordStatus(status string) {
	if m == nil {
		return
	}
	m.StatusEventsTotal.WithLabelValues(status).Inc()
}
