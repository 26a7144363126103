package app

import (
	"context"
	"log/slog"

	"github.com/sezginpak/gold-price-analyzer-sub002/internal/analysis"
	"github.com/sezginpak/gold-price-analyzer-sub002/internal/infra"
	"github.com/sezginpak/gold-price-analyzer-sub002/internal/infra/harem"
	"github.com/sezginpak/gold-price-analyzer-sub002/internal/infra/mirror"
	"github.com/sezginpak/gold-price-analyzer-sub002/internal/infra/storage"
	"github.com/sezginpak/gold-price-analyzer-sub002/internal/server"
	"github.com/sezginpak/gold-price-analyzer-sub002/internal/service"
)

// Bootstrap orchestrates the application startup sequence
type Bootstrap struct {
	Config      *infra.Config
	Metrics     *infra.Metrics
	Store       *storage.Store
	Cache       *service.QuoteCache
	Ingest      *service.IngestService
	Scheduler   *service.Scheduler
	Hub         *server.Hub
	Server      *server.Server
	Mirror      *mirror.RedisMirror
	Maintenance *service.Maintenance
}

// NewBootstrap creates a new Bootstrap instance
func NewBootstrap() *Bootstrap {
	return &Bootstrap{}
}

// Initialize wires every component in dependency order. Nothing is started
// here; Start launches the background loops once wiring succeeded.
func (b *Bootstrap) Initialize(configPath string) error {
	slog.Info("🚀 Bootstrapping Gold Price Analyzer...")

	// 1. Load Config
	cfg, err := infra.LoadConfig(configPath)
	if err != nil {
		return err // Let main handle the error
	}
	b.Config = cfg

	// 2. Setup Logger
	logger := infra.NewLogger(cfg)
	slog.SetDefault(logger)

	// 3. Metrics
	b.Metrics = infra.NewMetrics()

	// 4. Initialize Storage (DB)
	store, err := storage.NewStore(cfg)
	if err != nil {
		return err
	}
	b.Store = store
	slog.Info("✅ Database initialized", slog.String("driver", cfg.Storage.Driver))

	// 5. Quote cache, warm-started from the side file of the previous run
	b.Cache = service.NewQuoteCache(cfg.CacheValidity(), cfg.Ingest.CacheFile, logger)
	b.Cache.Load()

	// 6. Ingestion service (harem upstream)
	fetcher := harem.NewClient(cfg.API.Harem.URL, cfg.API.Harem.Locale, cfg.HaremTimeout())
	b.Ingest = service.NewIngestService(cfg, fetcher, b.Cache, logger, b.Metrics)

	// 7. Timeframe scheduler, fed through the ingestion observer chain
	b.Scheduler = service.NewScheduler(cfg, analysis.NewRecorder(logger), b.Cache, logger, b.Metrics)
	b.Ingest.AddObserver("scheduler", b.Scheduler)

	// 8. WebSocket hub + HTTP server
	sources := server.NewPayloadSources(b.Cache, b.Store)
	b.Hub = server.NewHub(cfg, sources, logger, b.Metrics)
	b.Server = server.NewServer(cfg, b.Hub, b.Ingest, b.Scheduler, b.Cache, logger, b.Metrics)

	// 9. Redis mirror (optional)
	if cfg.Redis.Enabled {
		m, err := mirror.NewRedisMirror(cfg, logger)
		if err != nil {
			return err
		}
		b.Mirror = m
		b.Ingest.AddObserver("redis-mirror", m)
		slog.Info("✅ Redis mirror connected", slog.String("addr", cfg.Redis.Addr))
	}

	// 10. Maintenance jobs
	b.Maintenance = service.NewMaintenance(cfg, store, b.Cache, b.Hub, logger, b.Metrics)

	return nil
}

// Start launches every background component. The ingestion service runs its
// first fetch synchronously, so when Start returns the cache is already warm
// whenever the upstream is reachable.
func (b *Bootstrap) Start(ctx context.Context) {
	b.Hub.Run(ctx)
	b.Scheduler.Start(ctx)
	b.Ingest.Start(ctx)
	b.Maintenance.Start()

	go func() {
		if err := b.Server.Start(); err != nil {
			slog.Error("HTTP server failed", slog.Any("error", err))
		}
	}()

	slog.Info("✅ All services started")
}

// Shutdown stops components in reverse dependency order: the HTTP surface
// first so no new work arrives, storage last so everything above can still
// flush.
func (b *Bootstrap) Shutdown(ctx context.Context) {
	if b.Server != nil {
		if err := b.Server.Shutdown(ctx); err != nil {
			slog.Error("HTTP server shutdown failed", slog.Any("error", err))
		}
	}
	if b.Maintenance != nil {
		b.Maintenance.Stop()
	}
	if b.Scheduler != nil {
		b.Scheduler.Stop()
	}
	if b.Ingest != nil {
		b.Ingest.Stop()
	}
	if b.Hub != nil {
		b.Hub.Stop()
	}
	if b.Mirror != nil {
		if err := b.Mirror.Close(); err != nil {
			slog.Warn("Redis mirror close failed", slog.Any("error", err))
		}
	}
	if b.Store != nil {
		if err := b.Store.Close(); err != nil {
			slog.Warn("Database close failed", slog.Any("error", err))
		}
	}

	slog.Info("✅ Shutdown complete")
}
