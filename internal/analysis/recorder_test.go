package analysis

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/sezginpak/gold-price-analyzer-sub002/internal/domain"
)

func TestRecorder_CountsRuns(t *testing.T) {
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	rec := NewRecorder(log)

	snap := &domain.QuoteSnapshot{
		Quotes:     map[string]domain.Quote{"ALTIN": {Code: "ALTIN", Alis: "100", Satis: "101"}},
		CapturedAt: time.Now(),
	}
	tf := domain.TimeframeSpec{ID: "15m", Interval: 15 * time.Minute, MinCandles: 20}

	for i := 0; i < 3; i++ {
		if err := rec.Analyze(context.Background(), snap, tf); err != nil {
			t.Fatalf("analyze %d failed: %v", i, err)
		}
	}
	if got := rec.Runs(); got != 3 {
		t.Errorf("expected 3 runs recorded, got %d", got)
	}
}
