package infra

import (
	"testing"
)

func TestMetrics_Fetches(t *testing.T) {
	m := NewMetrics()

	m.RecordFetchSuccess(12)
	m.RecordFetchSuccess(12)
	m.RecordFetchFailure()

	snap := m.Snapshot()

	if snap.FetchSuccess != 2 {
		t.Errorf("Expected 2 successful fetches, got %d", snap.FetchSuccess)
	}
	if snap.FetchFailure != 1 {
		t.Errorf("Expected 1 failed fetch, got %d", snap.FetchFailure)
	}
	if snap.QuotesSeen != 24 {
		t.Errorf("Expected 24 quotes seen, got %d", snap.QuotesSeen)
	}
}

func TestMetrics_Connections(t *testing.T) {
	m := NewMetrics()

	m.IncrementConnections()
	m.IncrementConnections()
	m.IncrementConnections()

	snap := m.Snapshot()
	if snap.ActiveConnections != 3 {
		t.Errorf("Expected 3 connections, got %d", snap.ActiveConnections)
	}

	m.DecrementConnections()
	snap = m.Snapshot()
	if snap.ActiveConnections != 2 {
		t.Errorf("Expected 2 connections, got %d", snap.ActiveConnections)
	}
}

func TestMetrics_Analysis(t *testing.T) {
	m := NewMetrics()

	m.RecordAnalysisDispatched()
	m.RecordAnalysisDispatched()
	m.RecordAnalysisDropped()
	m.RecordAnalysisFailure()

	snap := m.Snapshot()
	if snap.AnalysisDispatched != 2 {
		t.Errorf("Expected 2 dispatched, got %d", snap.AnalysisDispatched)
	}
	if snap.AnalysisDropped != 1 {
		t.Errorf("Expected 1 dropped, got %d", snap.AnalysisDropped)
	}
	if snap.AnalysisFailed != 1 {
		t.Errorf("Expected 1 failed, got %d", snap.AnalysisFailed)
	}
}

func TestMetrics_Reset(t *testing.T) {
	m := NewMetrics()

	m.RecordFetchSuccess(5)
	m.RecordObserverError()
	m.RecordMessageSent()
	m.IncrementConnections()

	m.Reset()
	snap := m.Snapshot()

	if snap.FetchSuccess != 0 {
		t.Error("Expected 0 fetches after reset")
	}
	if snap.ObserverErrors != 0 {
		t.Error("Expected 0 observer errors after reset")
	}
	if snap.MessagesSent != 0 {
		t.Error("Expected 0 messages after reset")
	}
	if snap.ActiveConnections != 0 {
		t.Error("Expected 0 connections after reset")
	}
}
