package service

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sezginpak/gold-price-analyzer-sub002/internal/domain"
	"github.com/sezginpak/gold-price-analyzer-sub002/internal/infra"
)

type analysisJob struct {
	snap *domain.QuoteSnapshot
	tf   domain.TimeframeSpec
}

type timeframeState struct {
	spec        domain.TimeframeSpec
	lastTrigger time.Time
}

// Scheduler fires one analysis pass per timeframe whenever that timeframe's
// interval has elapsed. It listens to the quote stream as an observer and
// additionally wakes on a fixed cadence per timeframe, so analysis keeps
// running off the cached snapshot when quotes pause. Dispatch goes through a
// bounded worker pool; a full queue drops the job rather than blocking the
// poll loop.
type Scheduler struct {
	analyzer domain.Analyzer
	cache    *QuoteCache
	log      *slog.Logger
	metrics  *infra.Metrics

	mu     sync.Mutex
	states []*timeframeState

	jobs    chan analysisJob
	workers int

	wakeInterval time.Duration
	now          func() time.Time

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

var _ domain.QuoteObserver = (*Scheduler)(nil)

// NewScheduler creates the scheduler from the configured timeframes
func NewScheduler(cfg *infra.Config, analyzer domain.Analyzer, cache *QuoteCache, log *slog.Logger, metrics *infra.Metrics) *Scheduler {
	states := make([]*timeframeState, 0, len(cfg.Timeframes))
	for _, tf := range cfg.Timeframes {
		states = append(states, &timeframeState{
			spec: domain.TimeframeSpec{
				ID:         tf.ID,
				Interval:   time.Duration(tf.IntervalMin) * time.Minute,
				MinCandles: tf.MinCandles,
			},
		})
	}

	return &Scheduler{
		analyzer:     analyzer,
		cache:        cache,
		log:          log,
		metrics:      metrics,
		states:       states,
		jobs:         make(chan analysisJob, cfg.Analysis.QueueSize),
		workers:      cfg.Analysis.Workers,
		wakeInterval: time.Minute,
		now:          time.Now,
	}
}

// Start launches the worker pool and one wake loop per timeframe.
// Calling it while already running is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	if !s.running.CompareAndSwap(false, true) {
		s.log.Debug("Scheduler already running")
		return
	}

	ctx, s.cancel = context.WithCancel(ctx)

	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker(ctx)
	}
	for _, st := range s.states {
		s.wg.Add(1)
		go s.wakeLoop(ctx, st)
	}

	s.log.Info("Timeframe scheduler started",
		slog.Int("timeframes", len(s.states)),
		slog.Int("workers", s.workers))
}

// Stop cancels the loops and waits for workers to drain their current job.
// Queued jobs that no worker picked up yet are abandoned.
func (s *Scheduler) Stop() {
	if !s.running.CompareAndSwap(true, false) {
		return
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// OnQuote checks every timeframe against the fresh snapshot. Each timeframe
// is evaluated independently; one quote may trigger several analyses.
func (s *Scheduler) OnQuote(ctx context.Context, snap *domain.QuoteSnapshot) error {
	if snap.IsEmpty() {
		return nil
	}
	for _, st := range s.states {
		s.evaluate(st, snap)
	}
	return nil
}

// evaluate fires the timeframe when its interval has elapsed or it has never
// run. lastTrigger is advanced before dispatch, so a slow or dropped analysis
// cannot cause a second trigger inside the same window.
func (s *Scheduler) evaluate(st *timeframeState, snap *domain.QuoteSnapshot) {
	now := s.now()

	s.mu.Lock()
	due := st.lastTrigger.IsZero() || now.Sub(st.lastTrigger) >= st.spec.Interval
	if !due {
		s.mu.Unlock()
		return
	}
	st.lastTrigger = now
	s.mu.Unlock()

	select {
	case s.jobs <- analysisJob{snap: snap, tf: st.spec}:
		s.metrics.RecordAnalysisDispatched()
	default:
		s.metrics.RecordAnalysisDropped()
		s.log.Warn("Analysis queue full, dropping job", slog.String("timeframe", st.spec.ID))
	}
}

// wakeLoop re-checks one timeframe on a fixed cadence so analysis still fires
// off the cached snapshot when quotes stop arriving (market close, upstream
// outage) while the cache remains valid.
func (s *Scheduler) wakeLoop(ctx context.Context, st *timeframeState) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.wakeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !s.cache.IsValid() {
				continue
			}
			snap, _ := s.cache.Snapshot()
			if snap.IsEmpty() {
				continue
			}
			s.evaluate(st, snap)
		}
	}
}

func (s *Scheduler) worker(ctx context.Context) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case job := <-s.jobs:
			s.runAnalysis(ctx, job)
		}
	}
}

// runAnalysis executes one job. Errors and panics are logged with the
// timeframe id and never reach the other timeframes or the poll loop.
func (s *Scheduler) runAnalysis(ctx context.Context, job analysisJob) {
	defer func() {
		if r := recover(); r != nil {
			s.metrics.RecordAnalysisFailure()
			s.log.Error("Analysis panic recovered",
				slog.String("timeframe", job.tf.ID),
				slog.Any("panic", r))
		}
	}()

	if err := s.analyzer.Analyze(ctx, job.snap, job.tf); err != nil {
		s.metrics.RecordAnalysisFailure()
		s.log.Error("Analysis failed",
			slog.String("timeframe", job.tf.ID),
			slog.Any("error", err))
	}
}

// TimeframeStatus is the introspection view for one timeframe
type TimeframeStatus struct {
	Interval         string     `json:"interval"`
	LastTrigger      *time.Time `json:"last_trigger,omitempty"`
	MinutesSinceLast float64    `json:"minutes_since_last"` // -1 when never triggered
	MinutesUntilNext float64    `json:"minutes_until_next"`
}

// Status reports per-timeframe trigger state keyed by timeframe id
func (s *Scheduler) Status() map[string]TimeframeStatus {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]TimeframeStatus, len(s.states))
	for _, st := range s.states {
		ts := TimeframeStatus{
			Interval:         st.spec.Interval.String(),
			MinutesSinceLast: -1,
		}
		if !st.lastTrigger.IsZero() {
			last := st.lastTrigger
			ts.LastTrigger = &last
			since := now.Sub(st.lastTrigger)
			ts.MinutesSinceLast = since.Minutes()
			until := st.spec.Interval - since
			if until < 0 {
				until = 0
			}
			ts.MinutesUntilNext = until.Minutes()
		}
		out[st.spec.ID] = ts
	}
	return out
}
