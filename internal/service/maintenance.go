package service

import (
	"log/slog"
	"time"

	"github.com/sezginpak/gold-price-analyzer-sub002/internal/infra"

	"github.com/go-co-op/gocron"
)

// maintenanceStore is the slice of the persistence layer maintenance needs
type maintenanceStore interface {
	PurgeSignalsBefore(cutoff time.Time) (int64, error)
	CountSignals() (int64, error)
	CountSignalsSince(cutoff time.Time) (int64, error)
}

// Broadcaster pushes ad-hoc messages to every connected client
type Broadcaster interface {
	Broadcast(msgType string, data any)
	ConnectionCount() int
}

// Maintenance owns the housekeeping jobs: nightly retention purge, end-of-day
// summary push, periodic health logging.
type Maintenance struct {
	cron    *gocron.Scheduler
	store   maintenanceStore
	cache   *QuoteCache
	hub     Broadcaster
	metrics *infra.Metrics
	log     *slog.Logger

	retention time.Duration
}

// NewMaintenance creates the maintenance job runner
func NewMaintenance(cfg *infra.Config, store maintenanceStore, cache *QuoteCache, hub Broadcaster, log *slog.Logger, metrics *infra.Metrics) *Maintenance {
	return &Maintenance{
		cron:      gocron.NewScheduler(time.UTC),
		store:     store,
		cache:     cache,
		hub:       hub,
		metrics:   metrics,
		log:       log,
		retention: cfg.Retention(),
	}
}

// Start registers the jobs and runs the scheduler in the background
func (m *Maintenance) Start() {
	m.cron.Every(1).Day().At("04:00").Do(m.purgeOldSignals)
	m.cron.Every(1).Day().At("23:55").Do(m.pushDailySummary)
	m.cron.Every(6).Hours().Do(m.logHealth)

	m.cron.StartAsync()
	m.log.Info("Maintenance jobs scheduled", slog.Duration("retention", m.retention))
}

// Stop halts the job scheduler; a job mid-run finishes on its own
func (m *Maintenance) Stop() {
	m.cron.Stop()
}

// purgeOldSignals enforces the retention window
func (m *Maintenance) purgeOldSignals() {
	cutoff := time.Now().Add(-m.retention)
	deleted, err := m.store.PurgeSignalsBefore(cutoff)
	if err != nil {
		m.log.Error("Signal purge failed", slog.Any("error", err))
		return
	}
	m.log.Info("Old signals purged",
		slog.Int64("deleted", deleted),
		slog.Time("cutoff", cutoff))
}

// pushDailySummary broadcasts the day's counters before midnight. Signals are
// counted from the current day's UTC midnight, not the all-time total.
func (m *Maintenance) pushDailySummary() {
	now := time.Now().UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	count, err := m.store.CountSignalsSince(midnight)
	if err != nil {
		m.log.Error("Summary signal count failed", slog.Any("error", err))
		return
	}

	snap := m.metrics.Snapshot()
	m.hub.Broadcast("summary", map[string]any{
		"date":          now.Format("2006-01-02"),
		"signals":       count,
		"clients":       m.hub.ConnectionCount(),
		"fetch_success": snap.FetchSuccess,
		"fetch_failure": snap.FetchFailure,
	})
	m.log.Info("Daily summary broadcast", slog.Int64("signals", count))
}

// logHealth writes a periodic liveness line for the ops log
func (m *Maintenance) logHealth() {
	count, err := m.store.CountSignals()
	if err != nil {
		m.log.Error("Health check store read failed", slog.Any("error", err))
		return
	}
	m.log.Info("Health check",
		slog.Int64("signals", count),
		slog.Bool("cache_valid", m.cache.IsValid()),
		slog.Int("clients", m.hub.ConnectionCount()))
}
