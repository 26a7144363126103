package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sezginpak/gold-price-analyzer-sub002/internal/domain"
	"github.com/sezginpak/gold-price-analyzer-sub002/internal/infra"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Store persists signals and performance snapshots behind gorm. SQLite (pure
// Go driver) is the default; Postgres is selected by config for deployments
// that share one database across instances.
type Store struct {
	db *gorm.DB
}

var _ domain.SignalStore = (*Store)(nil)

// NewStore opens the configured database and runs migrations
func NewStore(cfg *infra.Config) (*Store, error) {
	dial, err := dialector(cfg)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dial, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(&domain.Signal{}, &domain.PerformanceSnapshot{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Store{db: db}, nil
}

func dialector(cfg *infra.Config) (gorm.Dialector, error) {
	switch cfg.Storage.Driver {
	case "postgres":
		return postgres.Open(cfg.Storage.DSN), nil
	case "sqlite":
		dir := filepath.Dir(cfg.Storage.Path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create DB directory: %w", err)
		}
		return sqlite.Open(cfg.Storage.Path), nil
	default:
		return nil, fmt.Errorf("unknown storage driver: %s", cfg.Storage.Driver)
	}
}

// Close releases the underlying connection pool
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ======================================================================================
// Signal Operations
// ======================================================================================

// SaveSignal persists one analysis outcome
func (s *Store) SaveSignal(sig *domain.Signal) error {
	return s.db.Create(sig).Error
}

// RecentSignals returns the newest signals first, at most limit rows
func (s *Store) RecentSignals(limit int) ([]domain.Signal, error) {
	var signals []domain.Signal
	err := s.db.Order("created_at DESC").Limit(limit).Find(&signals).Error
	return signals, err
}

// PurgeSignalsBefore deletes signals older than the cutoff and reports how
// many rows went away.
func (s *Store) PurgeSignalsBefore(cutoff time.Time) (int64, error) {
	res := s.db.Where("created_at < ?", cutoff).Delete(&domain.Signal{})
	return res.RowsAffected, res.Error
}

// CountSignals returns the total number of stored signals
func (s *Store) CountSignals() (int64, error) {
	var count int64
	err := s.db.Model(&domain.Signal{}).Count(&count).Error
	return count, err
}

// CountSignalsSince counts signals created at or after the cutoff
func (s *Store) CountSignalsSince(cutoff time.Time) (int64, error) {
	var count int64
	err := s.db.Model(&domain.Signal{}).Where("created_at >= ?", cutoff).Count(&count).Error
	return count, err
}

// ======================================================================================
// Performance Operations
// ======================================================================================

// SavePerformance persists one performance snapshot
func (s *Store) SavePerformance(p *domain.PerformanceSnapshot) error {
	return s.db.Create(p).Error
}

// LatestPerformance returns the newest snapshot, nil when none exists yet
func (s *Store) LatestPerformance() (*domain.PerformanceSnapshot, error) {
	var perf domain.PerformanceSnapshot
	err := s.db.Order("created_at DESC").First(&perf).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil // No snapshot yet is not an error
	}
	if err != nil {
		return nil, err
	}
	return &perf, nil
}
