package embedding

import (
	"strconv"
	"strings"

	"github.com/epeers/marketsync/internal/models"
)

// BarText renders a price bar as the text that gets embedded:
//
//	AAPL Apple Inc. Technology 2024-01-02 open:185.5 high:186 low:183.2 close:185.64 volume:82488700
//
// The name and sector words are included only when includeProfile is set and
// the field is known. Output depends only on the inputs.
func BarText(bar models.PriceBar, company models.CompanyRecord, includeProfile bool) string {
	parts := []string{bar.Symbol}
	if includeProfile {
		parts = appendKnown(parts, company.Name, company.Sector)
	}
	parts = append(parts,
		bar.Date.Format(models.DateLayout),
		"open:"+formatPrice(bar.Open),
		"high:"+formatPrice(bar.High),
		"low:"+formatPrice(bar.Low),
		"close:"+formatPrice(bar.Close),
		"volume:"+strconv.FormatInt(bar.Volume, 10),
	)
	return strings.Join(parts, " ")
}

func appendKnown(parts []string, fields ...string) []string {
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" || f == models.UnknownField {
			continue
		}
		parts = append(parts, f)
	}
	return parts
}

func formatPrice(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
