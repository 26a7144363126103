package server

import (
	"github.com/sezginpak/gold-price-analyzer-sub002/internal/domain"
	"github.com/sezginpak/gold-price-analyzer-sub002/internal/service"
)

// Wire payloads use compact field names to keep the 15s price push small.
// Timestamps come from the source data, not the wall clock, so an unchanged
// payload marshals to identical bytes and the hash dedup can suppress it.

type pricePoint struct {
	Alis     string           `json:"a"`
	Satis    string           `json:"s"`
	AlisDir  domain.Direction `json:"ad,omitempty"`
	SatisDir domain.Direction `json:"sd,omitempty"`
}

type pricePayload struct {
	TS     int64                 `json:"ts"`
	Prices map[string]pricePoint `json:"p"`
}

type perfPayload struct {
	TS    int64   `json:"ts"`
	Total int     `json:"total"`
	Win   float64 `json:"win"`
	Avg   float64 `json:"avg"`
}

type signalItem struct {
	Timeframe  string  `json:"tf"`
	Kind       string  `json:"kind"`
	Price      string  `json:"px"`
	Confidence float64 `json:"conf"`
	At         int64   `json:"at"`
}

type signalsPayload struct {
	TS    int64        `json:"ts"`
	Items []signalItem `json:"items"`
}

const signalsPerPush = 20

// NewPayloadSources wires the three channels to their production sources:
// price from the quote cache, perf and signals from the signal store.
func NewPayloadSources(cache *service.QuoteCache, store domain.SignalStore) PayloadSources {
	return PayloadSources{
		Price: func() (any, error) {
			snap, _ := cache.Snapshot()
			if snap.IsEmpty() {
				return nil, nil
			}
			prices := make(map[string]pricePoint, len(snap.Quotes))
			for code, q := range snap.Quotes {
				prices[code] = pricePoint{
					Alis:     q.Alis,
					Satis:    q.Satis,
					AlisDir:  q.AlisDir,
					SatisDir: q.SatisDir,
				}
			}
			return pricePayload{TS: snap.CapturedAt.Unix(), Prices: prices}, nil
		},

		Perf: func() (any, error) {
			perf, err := store.LatestPerformance()
			if err != nil {
				return nil, err
			}
			if perf == nil {
				return nil, nil
			}
			return perfPayload{
				TS:    perf.CreatedAt.Unix(),
				Total: perf.TotalSignals,
				Win:   perf.SuccessRate,
				Avg:   perf.AvgReturnPct,
			}, nil
		},

		Signals: func() (any, error) {
			signals, err := store.RecentSignals(signalsPerPush)
			if err != nil {
				return nil, err
			}
			items := make([]signalItem, 0, len(signals))
			var ts int64
			for _, sig := range signals {
				if at := sig.CreatedAt.Unix(); at > ts {
					ts = at
				}
				items = append(items, signalItem{
					Timeframe:  sig.Timeframe,
					Kind:       sig.Kind,
					Price:      sig.Price,
					Confidence: sig.Confidence,
					At:         sig.CreatedAt.Unix(),
				})
			}
			return signalsPayload{TS: ts, Items: items}, nil
		},
	}
}
