// Package mirror publishes each quote snapshot to Redis so sibling processes
// (dashboards, bots) can read current prices without their own upstream poll.
package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/sezginpak/gold-price-analyzer-sub002/internal/domain"
	"github.com/sezginpak/gold-price-analyzer-sub002/internal/infra"

	"github.com/redis/go-redis/v9"
)

const (
	keyLatestPrefix = "quote:latest:"
	keySnapshot     = "quote:snapshot"
	pingTimeout     = 5 * time.Second
)

// RedisMirror is an optional quote observer that mirrors every snapshot into
// Redis. Keys expire with the cache validity window, so stale mirrors
// disappear on their own when this process stops.
type RedisMirror struct {
	client *redis.Client
	ttl    time.Duration
	log    *slog.Logger
}

var _ domain.QuoteObserver = (*RedisMirror)(nil)

// NewRedisMirror connects and verifies the server is reachable. A dead Redis
// fails construction instead of surfacing on the first snapshot.
func NewRedisMirror(cfg *infra.Config, log *slog.Logger) (*RedisMirror, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisMirror{
		client: client,
		ttl:    cfg.CacheValidity(),
		log:    log,
	}, nil
}

// OnQuote writes one key per instrument plus the full snapshot in a single
// pipeline round trip. Errors propagate to the ingestion service, which logs
// them without disturbing other observers.
func (m *RedisMirror) OnQuote(ctx context.Context, snap *domain.QuoteSnapshot) error {
	if snap.IsEmpty() {
		return nil
	}

	full, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	_, err = m.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for code, q := range snap.Quotes {
			data, err := json.Marshal(q)
			if err != nil {
				return fmt.Errorf("failed to marshal quote %s: %w", code, err)
			}
			pipe.Set(ctx, keyLatestPrefix+code, data, m.ttl)
		}
		pipe.Set(ctx, keySnapshot, full, m.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to mirror snapshot: %w", err)
	}
	return nil
}

// Close releases the connection pool
func (m *RedisMirror) Close() error {
	return m.client.Close()
}
