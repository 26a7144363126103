package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sezginpak/gold-price-analyzer-sub002/internal/domain"
	"github.com/sezginpak/gold-price-analyzer-sub002/internal/infra"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type recordingAnalyzer struct {
	mu       sync.Mutex
	calls    map[string][]time.Time
	errFor   map[string]error
	panicFor map[string]bool
}

func newRecordingAnalyzer() *recordingAnalyzer {
	return &recordingAnalyzer{
		calls:    make(map[string][]time.Time),
		errFor:   make(map[string]error),
		panicFor: make(map[string]bool),
	}
}

func (a *recordingAnalyzer) Analyze(ctx context.Context, snap *domain.QuoteSnapshot, tf domain.TimeframeSpec) error {
	a.mu.Lock()
	a.calls[tf.ID] = append(a.calls[tf.ID], snap.CapturedAt)
	a.mu.Unlock()

	if a.panicFor[tf.ID] {
		panic("analyzer blew up")
	}
	return a.errFor[tf.ID]
}

func (a *recordingAnalyzer) count(id string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.calls[id])
}

func testSchedulerConfig(queueSize int, tfs ...infra.TimeframeConfig) *infra.Config {
	cfg := &infra.Config{}
	cfg.Timeframes = tfs
	cfg.Analysis.Workers = 2
	cfg.Analysis.QueueSize = queueSize
	return cfg
}

func snapshotAt(at time.Time) *domain.QuoteSnapshot {
	return &domain.QuoteSnapshot{
		Quotes:     map[string]domain.Quote{"ALTIN": {Code: "ALTIN", Alis: "100", Satis: "101"}},
		CapturedAt: at,
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for !cond() {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %s", what)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestScheduler_FirstQuoteTriggersAll(t *testing.T) {
	analyzer := newRecordingAnalyzer()
	cfg := testSchedulerConfig(16,
		infra.TimeframeConfig{ID: "15m", IntervalMin: 15},
		infra.TimeframeConfig{ID: "1h", IntervalMin: 60},
		infra.TimeframeConfig{ID: "4h", IntervalMin: 240},
	)
	cache := NewQuoteCache(time.Minute, "", testLogger())
	sched := NewScheduler(cfg, analyzer, cache, testLogger(), infra.NewMetrics())

	sched.Start(context.Background())
	defer sched.Stop()

	if err := sched.OnQuote(context.Background(), snapshotAt(time.Now())); err != nil {
		t.Fatalf("OnQuote failed: %v", err)
	}

	waitFor(t, "first triggers on every timeframe", func() bool {
		return analyzer.count("15m") >= 1 && analyzer.count("1h") >= 1 && analyzer.count("4h") >= 1
	})
}

// Deterministic hour-long simulation on an injected clock: one quote per
// minute for 61 minutes against a 15m and a 1h timeframe. Workers are not
// started, so every dispatched job stays queued for inspection.
func TestScheduler_IntervalElapsedTriggers(t *testing.T) {
	analyzer := newRecordingAnalyzer()
	cfg := testSchedulerConfig(16,
		infra.TimeframeConfig{ID: "15m", IntervalMin: 15},
		infra.TimeframeConfig{ID: "1h", IntervalMin: 60},
	)
	cache := NewQuoteCache(time.Minute, "", testLogger())
	sched := NewScheduler(cfg, analyzer, cache, testLogger(), infra.NewMetrics())

	clock := newFakeClock()
	sched.now = clock.Now

	ctx := context.Background()
	for minute := 0; minute <= 60; minute++ {
		if err := sched.OnQuote(ctx, snapshotAt(clock.Now())); err != nil {
			t.Fatalf("OnQuote at minute %d failed: %v", minute, err)
		}
		clock.Advance(time.Minute)
	}

	byTF := make(map[string][]time.Time)
drain:
	for {
		select {
		case job := <-sched.jobs:
			byTF[job.tf.ID] = append(byTF[job.tf.ID], job.snap.CapturedAt)
		default:
			break drain
		}
	}

	// 15m fires at minutes 0, 15, 30, 45, 60; 1h at 0 and 60
	if got := len(byTF["15m"]); got != 5 {
		t.Errorf("15m: expected 5 triggers over 61 minutes, got %d", got)
	}
	if got := len(byTF["1h"]); got != 2 {
		t.Errorf("1h: expected 2 triggers over 61 minutes, got %d", got)
	}

	intervals := map[string]time.Duration{"15m": 15 * time.Minute, "1h": time.Hour}
	for id, times := range byTF {
		for i := 1; i < len(times); i++ {
			if gap := times[i].Sub(times[i-1]); gap < intervals[id] {
				t.Errorf("%s: triggers %d and %d only %s apart", id, i-1, i, gap)
			}
		}
	}
}

func TestScheduler_FailureIsolation(t *testing.T) {
	analyzer := newRecordingAnalyzer()
	analyzer.errFor["15m"] = errors.New("analysis failed")
	analyzer.panicFor["1h"] = true

	cfg := testSchedulerConfig(16,
		infra.TimeframeConfig{ID: "15m", IntervalMin: 15},
		infra.TimeframeConfig{ID: "1h", IntervalMin: 60},
		infra.TimeframeConfig{ID: "4h", IntervalMin: 240},
	)
	metrics := infra.NewMetrics()
	cache := NewQuoteCache(time.Minute, "", testLogger())
	sched := NewScheduler(cfg, analyzer, cache, testLogger(), metrics)

	sched.Start(context.Background())
	defer sched.Stop()

	if err := sched.OnQuote(context.Background(), snapshotAt(time.Now())); err != nil {
		t.Fatalf("OnQuote failed: %v", err)
	}

	waitFor(t, "all timeframes to run despite failures", func() bool {
		return analyzer.count("15m") >= 1 && analyzer.count("1h") >= 1 && analyzer.count("4h") >= 1
	})
	waitFor(t, "failure metrics", func() bool {
		return metrics.Snapshot().AnalysisFailed >= 2
	})
}

func TestScheduler_QueueOverflowDrops(t *testing.T) {
	analyzer := newRecordingAnalyzer()
	cfg := testSchedulerConfig(1,
		infra.TimeframeConfig{ID: "a", IntervalMin: 15},
		infra.TimeframeConfig{ID: "b", IntervalMin: 15},
		infra.TimeframeConfig{ID: "c", IntervalMin: 15},
	)
	metrics := infra.NewMetrics()
	cache := NewQuoteCache(time.Minute, "", testLogger())
	sched := NewScheduler(cfg, analyzer, cache, testLogger(), metrics)

	// Not started: nothing drains the single-slot queue
	if err := sched.OnQuote(context.Background(), snapshotAt(time.Now())); err != nil {
		t.Fatalf("OnQuote failed: %v", err)
	}

	snap := metrics.Snapshot()
	if snap.AnalysisDispatched != 1 {
		t.Errorf("expected 1 dispatched, got %d", snap.AnalysisDispatched)
	}
	if snap.AnalysisDropped != 2 {
		t.Errorf("expected 2 dropped, got %d", snap.AnalysisDropped)
	}

	// A dropped job still advanced its window: the next quote inside the
	// interval must not re-fire anything.
	if err := sched.OnQuote(context.Background(), snapshotAt(time.Now())); err != nil {
		t.Fatalf("OnQuote failed: %v", err)
	}
	snap = metrics.Snapshot()
	if total := snap.AnalysisDispatched + snap.AnalysisDropped; total != 3 {
		t.Errorf("window re-fired after drop: dispatched+dropped = %d", total)
	}
}

func TestScheduler_Status(t *testing.T) {
	analyzer := newRecordingAnalyzer()
	cfg := testSchedulerConfig(16, infra.TimeframeConfig{ID: "15m", IntervalMin: 15})
	cache := NewQuoteCache(time.Minute, "", testLogger())
	sched := NewScheduler(cfg, analyzer, cache, testLogger(), infra.NewMetrics())

	clock := newFakeClock()
	sched.now = clock.Now

	st, ok := sched.Status()["15m"]
	if !ok {
		t.Fatal("missing 15m status")
	}
	if st.LastTrigger != nil || st.MinutesSinceLast != -1 {
		t.Errorf("expected untriggered state, got %+v", st)
	}

	if err := sched.OnQuote(context.Background(), snapshotAt(clock.Now())); err != nil {
		t.Fatalf("OnQuote failed: %v", err)
	}
	clock.Advance(5 * time.Minute)

	st = sched.Status()["15m"]
	if st.LastTrigger == nil {
		t.Fatal("expected last trigger recorded")
	}
	if st.MinutesSinceLast != 5 {
		t.Errorf("expected 5 minutes since last, got %v", st.MinutesSinceLast)
	}
	if st.MinutesUntilNext != 10 {
		t.Errorf("expected 10 minutes until next, got %v", st.MinutesUntilNext)
	}
}

func TestScheduler_EmptySnapshotIgnored(t *testing.T) {
	analyzer := newRecordingAnalyzer()
	cfg := testSchedulerConfig(16, infra.TimeframeConfig{ID: "15m", IntervalMin: 15})
	cache := NewQuoteCache(time.Minute, "", testLogger())
	sched := NewScheduler(cfg, analyzer, cache, testLogger(), infra.NewMetrics())

	if err := sched.OnQuote(context.Background(), &domain.QuoteSnapshot{}); err != nil {
		t.Fatalf("OnQuote failed: %v", err)
	}
	if st := sched.Status()["15m"]; st.LastTrigger != nil {
		t.Error("empty snapshot must not trigger analysis")
	}
}

func TestScheduler_WakeLoopFiresFromCache(t *testing.T) {
	analyzer := newRecordingAnalyzer()
	cfg := testSchedulerConfig(16, infra.TimeframeConfig{ID: "15m", IntervalMin: 15})
	cache := NewQuoteCache(time.Minute, "", testLogger())
	cache.Set(testSnapshot("100", "101"))

	sched := NewScheduler(cfg, analyzer, cache, testLogger(), infra.NewMetrics())
	sched.wakeInterval = 20 * time.Millisecond

	// No quotes arrive; the wake loop alone must fire off the cached snapshot
	sched.Start(context.Background())
	defer sched.Stop()

	waitFor(t, "wake loop trigger from valid cache", func() bool {
		return analyzer.count("15m") >= 1
	})
}
