package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Direction tags how a price moved relative to the previous poll
type Direction string

const (
	DirectionUp      Direction = "up"
	DirectionDown    Direction = "down"
	DirectionSame    Direction = "same"
	DirectionNew     Direction = "new"     // code absent from the previous snapshot
	DirectionUnknown Direction = "unknown" // value failed numeric parsing
)

// Side selects one leg of a quote
type Side string

const (
	SideAlis  Side = "alis"  // buy price (bid)
	SideSatis Side = "satis" // sell price (ask)
)

// Quote represents one instrument at one tick. Prices are kept as the raw
// strings the upstream sent (it mixes "5890.50" and "5.890,50" styles), with
// parsed access via AlisDecimal/SatisDecimal. A new Quote replaces, never
// mutates, the previous one for the same code.
type Quote struct {
	Code     string    `json:"code"`
	Alis     string    `json:"alis"`
	Satis    string    `json:"satis"`
	AlisDir  Direction `json:"alis_direction,omitempty"`
	SatisDir Direction `json:"satis_direction,omitempty"`
}

// AlisDecimal returns the parsed buy price, false if absent or unparseable
func (q Quote) AlisDecimal() (decimal.Decimal, bool) {
	return ParsePrice(q.Alis)
}

// SatisDecimal returns the parsed sell price, false if absent or unparseable
func (q Quote) SatisDecimal() (decimal.Decimal, bool) {
	return ParsePrice(q.Satis)
}

// Value returns the parsed price for the requested side
func (q Quote) Value(side Side) (decimal.Decimal, bool) {
	if side == SideSatis {
		return q.SatisDecimal()
	}
	return q.AlisDecimal()
}

// ParsePrice parses an upstream price string. Harem sends plain decimals for
// most codes but Turkish-formatted values ("5.890,50") for the TRY pairs, so
// a comma switches the interpretation: dots become thousands separators.
func ParsePrice(raw string) (decimal.Decimal, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return decimal.Decimal{}, false
	}
	if strings.Contains(s, ",") {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}

// DirectionBetween compares two raw price strings for a code present in both
// snapshots. It is total: every comparison yields a tag, never an omission.
func DirectionBetween(prevRaw, newRaw string) Direction {
	prev, okPrev := ParsePrice(prevRaw)
	next, okNext := ParsePrice(newRaw)
	if !okPrev || !okNext {
		return DirectionUnknown
	}
	switch {
	case next.GreaterThan(prev):
		return DirectionUp
	case next.LessThan(prev):
		return DirectionDown
	default:
		return DirectionSame
	}
}

// QuoteSnapshot maps instrument codes to quotes for one poll tick.
// Built exactly once by the ingestion service; observers and the broadcast
// hub receive it read-only.
type QuoteSnapshot struct {
	Quotes     map[string]Quote `json:"quotes"`
	CapturedAt time.Time        `json:"captured_at"`
}

// Get returns the quote for a code
func (s *QuoteSnapshot) Get(code string) (Quote, bool) {
	if s == nil {
		return Quote{}, false
	}
	q, ok := s.Quotes[code]
	return q, ok
}

// IsEmpty reports whether the snapshot carries no quotes
func (s *QuoteSnapshot) IsEmpty() bool {
	return s == nil || len(s.Quotes) == 0
}
