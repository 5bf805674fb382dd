package marketdata

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/epeers/marketsync/internal/models"
)

// PriceSource fetches daily bars for one symbol over the closed range [start, end].
// An empty range is reported as nil, nil.
type PriceSource interface {
	Name() string
	DailyBars(ctx context.Context, symbol string, start, end time.Time) ([]models.PriceBar, error)
}

// NormalizeSymbol trims and upper-cases a ticker
func NormalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// Normalize prepares raw source rows for storage: rows outside [start, end]
// and rows with no prices are dropped, the rest are sorted ascending with one
// bar per date (first occurrence kept). Returns nil when nothing remains.
func Normalize(symbol string, bars []models.PriceBar, start, end time.Time) []models.PriceBar {
	if len(bars) == 0 {
		return nil
	}

	seen := make(map[time.Time]bool, len(bars))
	out := make([]models.PriceBar, 0, len(bars))
	for _, b := range bars {
		if b.Open == 0 && b.High == 0 && b.Low == 0 && b.Close == 0 {
			continue
		}
		if b.Date.Before(start) || b.Date.After(end) {
			continue
		}
		if seen[b.Date] {
			continue
		}
		seen[b.Date] = true
		b.Symbol = symbol
		out = append(out, b)
	}
	if len(out) == 0 {
		return nil
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}
