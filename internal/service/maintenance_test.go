package service

import (
	"testing"
	"time"

	"github.com/sezginpak/gold-price-analyzer-sub002/internal/infra"
)

type stubMaintStore struct {
	count       int64
	sinceCount  int64
	purged      int64
	lastCutoff  time.Time
	sinceCutoff time.Time
}

func (s *stubMaintStore) PurgeSignalsBefore(cutoff time.Time) (int64, error) {
	s.lastCutoff = cutoff
	return s.purged, nil
}

func (s *stubMaintStore) CountSignals() (int64, error) {
	return s.count, nil
}

func (s *stubMaintStore) CountSignalsSince(cutoff time.Time) (int64, error) {
	s.sinceCutoff = cutoff
	return s.sinceCount, nil
}

type stubBroadcaster struct {
	types []string
	data  []any
}

func (b *stubBroadcaster) Broadcast(msgType string, data any) {
	b.types = append(b.types, msgType)
	b.data = append(b.data, data)
}

func (b *stubBroadcaster) ConnectionCount() int { return 2 }

func testMaintenance(store *stubMaintStore, hub *stubBroadcaster) *Maintenance {
	cfg := &infra.Config{}
	cfg.Maintenance.RetentionDays = 90
	cache := NewQuoteCache(time.Minute, "", testLogger())
	return NewMaintenance(cfg, store, cache, hub, testLogger(), infra.NewMetrics())
}

func TestMaintenance_PurgeUsesRetentionCutoff(t *testing.T) {
	store := &stubMaintStore{purged: 7}
	m := testMaintenance(store, &stubBroadcaster{})

	m.purgeOldSignals()

	want := time.Now().Add(-90 * 24 * time.Hour)
	if diff := store.lastCutoff.Sub(want); diff < -time.Second || diff > time.Second {
		t.Errorf("cutoff off by %s from the retention window", diff)
	}
}

func TestMaintenance_DailySummaryBroadcast(t *testing.T) {
	store := &stubMaintStore{count: 42, sinceCount: 5}
	hub := &stubBroadcaster{}
	m := testMaintenance(store, hub)

	m.pushDailySummary()

	if len(hub.types) != 1 || hub.types[0] != "summary" {
		t.Fatalf("expected one summary broadcast, got %v", hub.types)
	}
	payload, ok := hub.data[0].(map[string]any)
	if !ok {
		t.Fatalf("unexpected payload type %T", hub.data[0])
	}
	if payload["signals"] != int64(5) {
		t.Errorf("expected the day's 5 signals in summary, not the all-time count: %v", payload["signals"])
	}
	if payload["clients"] != 2 {
		t.Errorf("expected 2 clients in summary, got %v", payload["clients"])
	}

	cutoff := store.sinceCutoff
	if cutoff.Location() != time.UTC {
		t.Errorf("expected a UTC cutoff, got %v", cutoff.Location())
	}
	if cutoff.Hour() != 0 || cutoff.Minute() != 0 || cutoff.Second() != 0 || cutoff.Nanosecond() != 0 {
		t.Errorf("expected a midnight cutoff, got %v", cutoff)
	}
	if d := time.Now().UTC().Sub(cutoff); d < 0 || d > 24*time.Hour {
		t.Errorf("cutoff is not today's midnight: %v", cutoff)
	}
}

func TestMaintenance_StartStop(t *testing.T) {
	m := testMaintenance(&stubMaintStore{}, &stubBroadcaster{})

	m.Start()
	m.Stop()
	// No assertion beyond a clean start/stop: jobs are time-gated
}
