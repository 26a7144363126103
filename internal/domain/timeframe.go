package domain

import "time"

// TimeframeSpec configures one independent analysis timeframe
type TimeframeSpec struct {
	ID         string        `json:"id"`          // e.g. "15m", "1h", "4h", "1d"
	Interval   time.Duration `json:"interval"`    // minimum gap between triggers
	MinCandles int           `json:"min_candles"` // forwarded to the analyzer, not enforced by the scheduler
}
