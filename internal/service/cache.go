package service

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sezginpak/gold-price-analyzer-sub002/internal/domain"
)

// diskCache is the side-file layout: the snapshot plus its capture time,
// null when the cache has never been filled.
type diskCache struct {
	Prices     map[string]domain.Quote `json:"prices"`
	LastUpdate *time.Time              `json:"last_update"`
}

// QuoteCache holds the most recent quote snapshot with a fixed validity
// window. One writer (the ingestion service), many readers. The snapshot is
// persisted to a side file after every update and reloaded at startup so a
// restart does not begin cold.
type QuoteCache struct {
	mu         sync.RWMutex
	snapshot   *domain.QuoteSnapshot
	lastUpdate time.Time
	validity   time.Duration
	path       string // empty disables persistence
	log        *slog.Logger
}

// NewQuoteCache creates a cache with the given validity window. An empty
// path disables disk persistence.
func NewQuoteCache(validity time.Duration, path string, log *slog.Logger) *QuoteCache {
	return &QuoteCache{
		validity: validity,
		path:     path,
		log:      log,
	}
}

// Load reads the side file written by a previous run. A missing or corrupt
// file is a cold start, never an error: the cache simply stays empty.
func (c *QuoteCache) Load() {
	if c.path == "" {
		return
	}

	data, err := os.ReadFile(c.path)
	if err != nil {
		if !os.IsNotExist(err) {
			c.log.Warn("Price cache unreadable, starting cold", slog.String("path", c.path), slog.Any("error", err))
		}
		return
	}

	var disk diskCache
	if err := json.Unmarshal(data, &disk); err != nil {
		c.log.Warn("Price cache corrupt, starting cold", slog.String("path", c.path), slog.Any("error", err))
		return
	}
	if len(disk.Prices) == 0 || disk.LastUpdate == nil {
		return
	}

	c.mu.Lock()
	c.snapshot = &domain.QuoteSnapshot{Quotes: disk.Prices, CapturedAt: *disk.LastUpdate}
	c.lastUpdate = *disk.LastUpdate
	c.mu.Unlock()

	c.log.Info("Price cache restored",
		slog.Int("quotes", len(disk.Prices)),
		slog.Time("last_update", *disk.LastUpdate),
	)
}

// Set replaces the snapshot wholesale and persists it best-effort. Readers
// see either the previous snapshot or the new one, never a partial state.
func (c *QuoteCache) Set(snap *domain.QuoteSnapshot) {
	c.mu.Lock()
	c.snapshot = snap
	c.lastUpdate = snap.CapturedAt
	c.mu.Unlock()

	c.persist(snap)
}

// Snapshot returns the current snapshot and its capture time. The snapshot
// is shared read-only state; callers must not mutate it.
func (c *QuoteCache) Snapshot() (*domain.QuoteSnapshot, time.Time) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot, c.lastUpdate
}

// IsValid reports whether the cached data is fresh enough to serve. An empty
// or absent snapshot is always invalid.
func (c *QuoteCache) IsValid() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.snapshot.IsEmpty() {
		return false
	}
	return time.Since(c.lastUpdate) < c.validity
}

// Validity returns the configured validity window
func (c *QuoteCache) Validity() time.Duration {
	return c.validity
}

// persist writes the side file atomically (temp file + rename). Failures are
// logged and swallowed: disk trouble must never affect in-memory state.
func (c *QuoteCache) persist(snap *domain.QuoteSnapshot) {
	if c.path == "" {
		return
	}

	captured := snap.CapturedAt
	disk := diskCache{Prices: snap.Quotes, LastUpdate: &captured}
	data, err := json.Marshal(disk)
	if err != nil {
		c.log.Warn("Price cache marshal failed", slog.Any("error", err))
		return
	}

	if err := os.MkdirAll(filepath.Dir(c.path), 0755); err != nil {
		c.log.Warn("Price cache directory creation failed", slog.String("path", c.path), slog.Any("error", err))
		return
	}

	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		c.log.Warn("Price cache write failed", slog.String("path", tmp), slog.Any("error", err))
		return
	}
	if err := os.Rename(tmp, c.path); err != nil {
		c.log.Warn("Price cache rename failed", slog.String("path", c.path), slog.Any("error", err))
	}
}
