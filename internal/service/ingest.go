package service

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sezginpak/gold-price-analyzer-sub002/internal/domain"
	"github.com/sezginpak/gold-price-analyzer-sub002/internal/infra"

	"github.com/shopspring/decimal"
)

type namedObserver struct {
	name string
	obs  domain.QuoteObserver
}

// IngestService owns the single poll loop against the upstream quote API.
// It tags per-instrument direction against the previous poll, updates the
// quote cache, and fans each successful tick out to registered observers.
// Exactly one instance exists per process, shared by constructor injection.
type IngestService struct {
	fetcher domain.QuoteFetcher
	cache   *QuoteCache
	log     *slog.Logger
	metrics *infra.Metrics

	pollInterval  time.Duration
	fallbackAlis  decimal.Decimal
	fallbackSatis decimal.Decimal

	mu        sync.RWMutex
	observers []namedObserver
	prev      map[string]domain.Quote
	lastFetch time.Time
	lastErr   string

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewIngestService creates the ingestion service
func NewIngestService(cfg *infra.Config, fetcher domain.QuoteFetcher, cache *QuoteCache, log *slog.Logger, metrics *infra.Metrics) *IngestService {
	alis, satis := cfg.FallbackPrices()
	return &IngestService{
		fetcher:       fetcher,
		cache:         cache,
		log:           log,
		metrics:       metrics,
		pollInterval:  cfg.PollInterval(),
		fallbackAlis:  alis,
		fallbackSatis: satis,
	}
}

// Start begins the poll loop. Calling it while already running is a no-op.
// The first fetch happens immediately; afterwards the loop ticks at the
// configured interval until the context is cancelled or Stop is called.
func (s *IngestService) Start(ctx context.Context) {
	if !s.running.CompareAndSwap(false, true) {
		s.log.Debug("Ingestion already running")
		return
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.seedFromCache()

	if _, err := s.FetchOnce(ctx); err != nil {
		s.log.Warn("Initial quote fetch failed", slog.Any("error", err))
		// Continue anyway - the loop retries on the next tick
	}

	s.wg.Add(1)
	go s.pollLoop(ctx)
}

// Stop flips the running flag and waits for the loop to exit. The in-flight
// fetch is allowed to complete or fail naturally.
func (s *IngestService) Stop() {
	if !s.running.CompareAndSwap(true, false) {
		return
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *IngestService) pollLoop(ctx context.Context) {
	defer s.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("Ingestion loop panic recovered", slog.Any("panic", r))
		}
	}()

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("Ingestion loop stopped")
			return
		case <-ticker.C:
			if _, err := s.FetchOnce(ctx); err != nil {
				s.log.Warn("Quote fetch failed", slog.Any("error", err))
			}
		}
	}
}

// FetchOnce performs one fetch-compare-update-notify cycle. On failure the
// previous cache is retained and the error is returned for the caller to
// log; the poll loop simply continues with the next tick. Within one tick
// the cache update always happens before observer fan-out.
func (s *IngestService) FetchOnce(ctx context.Context) (*domain.QuoteSnapshot, error) {
	raw, err := s.fetcher.Fetch(ctx)
	if err != nil {
		s.metrics.RecordFetchFailure()
		s.mu.Lock()
		s.lastErr = err.Error()
		s.mu.Unlock()
		return nil, err
	}

	now := time.Now()

	s.mu.Lock()
	tagged := tagDirections(s.prev, raw)
	s.prev = tagged
	s.lastFetch = now
	s.lastErr = ""
	observers := make([]namedObserver, len(s.observers))
	copy(observers, s.observers)
	s.mu.Unlock()

	snap := &domain.QuoteSnapshot{Quotes: tagged, CapturedAt: now}
	s.cache.Set(snap)
	s.metrics.RecordFetchSuccess(len(tagged))

	s.notifyObservers(ctx, observers, snap)
	return snap, nil
}

// tagDirections compares new quotes against the previous poll, tagging bid
// and ask movement independently. Total: every quote receives both tags.
func tagDirections(prev, next map[string]domain.Quote) map[string]domain.Quote {
	tagged := make(map[string]domain.Quote, len(next))
	for code, q := range next {
		prevQ, ok := prev[code]
		if !ok {
			q.AlisDir = domain.DirectionNew
			q.SatisDir = domain.DirectionNew
		} else {
			q.AlisDir = domain.DirectionBetween(prevQ.Alis, q.Alis)
			q.SatisDir = domain.DirectionBetween(prevQ.Satis, q.Satis)
		}
		tagged[code] = q
	}
	return tagged
}

// seedFromCache restores the direction baseline from a reloaded cache so the
// first poll after a restart compares against pre-restart prices instead of
// tagging everything "new".
func (s *IngestService) seedFromCache() {
	snap, _ := s.cache.Snapshot()
	if snap.IsEmpty() {
		return
	}
	s.mu.Lock()
	s.prev = snap.Quotes
	s.mu.Unlock()
	s.log.Info("Direction baseline restored from cache", slog.Int("quotes", len(snap.Quotes)))
}

// AddObserver registers an observer under a name. Registering an existing
// name replaces that observer in place; order of first registration is kept.
func (s *IngestService) AddObserver(name string, obs domain.QuoteObserver) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, entry := range s.observers {
		if entry.name == name {
			s.observers[i].obs = obs
			return
		}
	}
	s.observers = append(s.observers, namedObserver{name: name, obs: obs})
}

// RemoveObserver unregisters by name; unknown names are a no-op
func (s *IngestService) RemoveObserver(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, entry := range s.observers {
		if entry.name == name {
			s.observers = append(s.observers[:i], s.observers[i+1:]...)
			return
		}
	}
}

// notifyObservers runs the callbacks in registration order. A failing or
// panicking observer is logged and never stops the remaining observers.
func (s *IngestService) notifyObservers(ctx context.Context, observers []namedObserver, snap *domain.QuoteSnapshot) {
	for _, entry := range observers {
		s.notifyOne(ctx, entry, snap)
	}
}

func (s *IngestService) notifyOne(ctx context.Context, entry namedObserver, snap *domain.QuoteSnapshot) {
	defer func() {
		if r := recover(); r != nil {
			s.metrics.RecordObserverError()
			s.log.Error("Observer panic recovered", slog.String("observer", entry.name), slog.Any("panic", r))
		}
	}()

	if err := entry.obs.OnQuote(ctx, snap); err != nil {
		s.metrics.RecordObserverError()
		s.log.Warn("Observer failed", slog.String("observer", entry.name), slog.Any("error", err))
	}
}

// GetLastPrice returns the cached price for a code while the cache is valid,
// else the configured fallback. It never errors and never touches the
// network, so callers on a request path can rely on it unconditionally.
func (s *IngestService) GetLastPrice(code string, side domain.Side) decimal.Decimal {
	if s.cache.IsValid() {
		if snap, _ := s.cache.Snapshot(); snap != nil {
			if q, ok := snap.Get(code); ok {
				if v, ok := q.Value(side); ok {
					return v
				}
			}
		}
	}

	if side == domain.SideSatis {
		return s.fallbackSatis
	}
	return s.fallbackAlis
}

// IngestStatus is the introspection view served by the status endpoint
type IngestStatus struct {
	Running    bool       `json:"running"`
	LastFetch  *time.Time `json:"last_fetch,omitempty"`
	LastError  string     `json:"last_error,omitempty"`
	Observers  int        `json:"observers"`
	CacheValid bool       `json:"cache_valid"`
}

// Status returns a read-only view of the service state
func (s *IngestService) Status() IngestStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := IngestStatus{
		Running:    s.running.Load(),
		LastError:  s.lastErr,
		Observers:  len(s.observers),
		CacheValid: s.cache.IsValid(),
	}
	if !s.lastFetch.IsZero() {
		fetch := s.lastFetch
		st.LastFetch = &fetch
	}
	return st
}
