package domain

import (
	"context"
	"time"
)

// QuoteFetcher performs one upstream quote fetch
type QuoteFetcher interface {
	Fetch(ctx context.Context) (map[string]Quote, error)
}

// QuoteObserver receives the direction-tagged snapshot after every successful fetch
type QuoteObserver interface {
	OnQuote(ctx context.Context, snap *QuoteSnapshot) error
}

// ObserverFunc adapts a plain function to QuoteObserver
type ObserverFunc func(ctx context.Context, snap *QuoteSnapshot) error

func (f ObserverFunc) OnQuote(ctx context.Context, snap *QuoteSnapshot) error {
	return f(ctx, snap)
}

// Analyzer runs one analysis pass for a timeframe. Implementations may block;
// failures are caught and logged by the scheduler that dispatched them.
type Analyzer interface {
	Analyze(ctx context.Context, snap *QuoteSnapshot, tf TimeframeSpec) error
}

// SignalStore is the narrow persistence surface consumed by this pipeline:
// analysis collaborators write through it, the broadcast channels read from it.
type SignalStore interface {
	SaveSignal(sig *Signal) error
	RecentSignals(limit int) ([]Signal, error)
	SavePerformance(p *PerformanceSnapshot) error
	LatestPerformance() (*PerformanceSnapshot, error)
	PurgeSignalsBefore(cutoff time.Time) (int64, error)
}
