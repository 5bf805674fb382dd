package marketdata

import (
	"testing"
	"time"

	"github.com/epeers/marketsync/internal/models"
	"github.com/stretchr/testify/assert"
)

func d(s string) time.Time {
	t, _ := time.Parse("2006-01-02", s)
	return t
}

func TestNormalize(t *testing.T) {
	raw := []models.PriceBar{
		{Date: d("2024-01-05"), Close: 5},
		{Date: d("2024-01-03"), Close: 3},
		{Date: d("2024-01-03"), Close: 33}, // duplicate date
		{Date: d("2024-01-04")},            // holiday row with no prices
		{Date: d("2024-01-01"), Close: 1},  // before window
		{Date: d("2024-01-09"), Close: 9},  // after window
		{Date: d("2024-01-08"), Close: 8},
	}

	got := Normalize("AAPL", raw, d("2024-01-02"), d("2024-01-08"))

	assert.Len(t, got, 3)
	assert.Equal(t, d("2024-01-03"), got[0].Date)
	assert.Equal(t, 3.0, got[0].Close, "first occurrence wins")
	assert.Equal(t, d("2024-01-05"), got[1].Date)
	assert.Equal(t, d("2024-01-08"), got[2].Date)
	for _, b := range got {
		assert.Equal(t, "AAPL", b.Symbol)
	}
}

func TestNormalize_Empty(t *testing.T) {
	assert.Nil(t, Normalize("AAPL", nil, d("2024-01-02"), d("2024-01-08")))
	assert.Nil(t, Normalize("AAPL", []models.PriceBar{{Date: d("2023-01-01"), Close: 1}}, d("2024-01-02"), d("2024-01-08")))
}

func TestNormalizeSymbol(t *testing.T) {
	assert.Equal(t, "BRK.B", NormalizeSymbol("  brk.b "))
}
