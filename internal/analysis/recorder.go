// Package analysis hosts the Analyzer implementations the scheduler
// dispatches to. The built-in Recorder logs and counts runs; indicator
// strategies plug in behind the same interface.
package analysis

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/sezginpak/gold-price-analyzer-sub002/internal/domain"
)

// Recorder is the default analyzer: it records that a timeframe fired and
// with how much data, nothing more.
type Recorder struct {
	log  *slog.Logger
	runs atomic.Uint64
}

var _ domain.Analyzer = (*Recorder)(nil)

func NewRecorder(log *slog.Logger) *Recorder {
	return &Recorder{log: log}
}

func (r *Recorder) Analyze(ctx context.Context, snap *domain.QuoteSnapshot, tf domain.TimeframeSpec) error {
	r.runs.Add(1)
	r.log.Debug("Analysis pass",
		slog.String("timeframe", tf.ID),
		slog.Int("min_candles", tf.MinCandles),
		slog.Int("quotes", len(snap.Quotes)))
	return nil
}

// Runs returns how many passes have executed
func (r *Recorder) Runs() uint64 {
	return r.runs.Load()
}
