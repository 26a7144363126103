package domain

import (
	"time"
)

// Signal is one persisted analysis outcome for a timeframe
type Signal struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Timeframe  string    `gorm:"index" json:"timeframe"`
	Kind       string    `json:"kind"`  // "buy", "sell", "hold"
	Price      string    `json:"price"` // decimal string at signal time
	Confidence float64   `json:"confidence"`
	CreatedAt  time.Time `gorm:"index" json:"created_at"`
}

// PerformanceSnapshot aggregates the trade-simulation bookkeeping that the
// perf broadcast channel serves
type PerformanceSnapshot struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	TotalSignals int       `json:"total_signals"`
	SuccessRate  float64   `json:"success_rate"`
	AvgReturnPct float64   `json:"avg_return_pct"`
	CreatedAt    time.Time `gorm:"index" json:"created_at"`
}
