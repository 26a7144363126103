package infra

import (
	"sync/atomic"
	"time"
)

// Metrics provides lightweight observability without external dependencies.
// Uses atomic operations for thread-safety.
type Metrics struct {
	// Ingestion counters
	fetchSuccess   atomic.Uint64
	fetchFailure   atomic.Uint64
	quotesSeen     atomic.Uint64
	observerErrors atomic.Uint64

	// Scheduler counters
	analysisDispatched atomic.Uint64
	analysisDropped    atomic.Uint64
	analysisFailed     atomic.Uint64

	// Broadcast counters
	messagesSent atomic.Uint64
	sendFailures atomic.Uint64

	// Gauges
	activeConnections atomic.Int32
}

// NewMetrics creates an empty metrics set
func NewMetrics() *Metrics {
	return &Metrics{}
}

// RecordFetchSuccess records one successful upstream fetch with the quote count
func (m *Metrics) RecordFetchSuccess(quotes int) {
	m.fetchSuccess.Add(1)
	m.quotesSeen.Add(uint64(quotes))
}

// RecordFetchFailure records one failed upstream fetch
func (m *Metrics) RecordFetchFailure() {
	m.fetchFailure.Add(1)
}

// RecordObserverError records an observer callback failure
func (m *Metrics) RecordObserverError() {
	m.observerErrors.Add(1)
}

// RecordAnalysisDispatched records one analysis job handed to the worker pool
func (m *Metrics) RecordAnalysisDispatched() {
	m.analysisDispatched.Add(1)
}

// RecordAnalysisDropped records one analysis job dropped on a full queue
func (m *Metrics) RecordAnalysisDropped() {
	m.analysisDropped.Add(1)
}

// RecordAnalysisFailure records one failed analysis run
func (m *Metrics) RecordAnalysisFailure() {
	m.analysisFailed.Add(1)
}

// RecordMessageSent records one websocket message handed to a client
func (m *Metrics) RecordMessageSent() {
	m.messagesSent.Add(1)
}

// RecordSendFailure records one dropped client send
func (m *Metrics) RecordSendFailure() {
	m.sendFailures.Add(1)
}

// IncrementConnections increments active connections by 1.
func (m *Metrics) IncrementConnections() {
	m.activeConnections.Add(1)
}

// DecrementConnections decrements active connections by 1.
func (m *Metrics) DecrementConnections() {
	m.activeConnections.Add(-1)
}

// MetricsSnapshot is a point-in-time view of all metrics.
type MetricsSnapshot struct {
	FetchSuccess       uint64    `json:"fetch_success"`
	FetchFailure       uint64    `json:"fetch_failure"`
	QuotesSeen         uint64    `json:"quotes_seen"`
	ObserverErrors     uint64    `json:"observer_errors"`
	AnalysisDispatched uint64    `json:"analysis_dispatched"`
	AnalysisDropped    uint64    `json:"analysis_dropped"`
	AnalysisFailed     uint64    `json:"analysis_failed"`
	MessagesSent       uint64    `json:"messages_sent"`
	SendFailures       uint64    `json:"send_failures"`
	ActiveConnections  int32     `json:"active_connections"`
	Timestamp          time.Time `json:"timestamp"`
}

// Snapshot returns current metrics as a snapshot.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		FetchSuccess:       m.fetchSuccess.Load(),
		FetchFailure:       m.fetchFailure.Load(),
		QuotesSeen:         m.quotesSeen.Load(),
		ObserverErrors:     m.observerErrors.Load(),
		AnalysisDispatched: m.analysisDispatched.Load(),
		AnalysisDropped:    m.analysisDropped.Load(),
		AnalysisFailed:     m.analysisFailed.Load(),
		MessagesSent:       m.messagesSent.Load(),
		SendFailures:       m.sendFailures.Load(),
		ActiveConnections:  m.activeConnections.Load(),
		Timestamp:          time.Now(),
	}
}

// Reset clears all metrics (for testing).
func (m *Metrics) Reset() {
	m.fetchSuccess.Store(0)
	m.fetchFailure.Store(0)
	m.quotesSeen.Store(0)
	m.observerErrors.Store(0)
	m.analysisDispatched.Store(0)
	m.analysisDropped.Store(0)
	m.analysisFailed.Store(0)
	m.messagesSent.Store(0)
	m.sendFailures.Store(0)
	m.activeConnections.Store(0)
}
