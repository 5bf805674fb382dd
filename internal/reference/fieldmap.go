package reference

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Logical reference fields
const (
	FieldSymbol       = "symbol"
	FieldName         = "name"
	FieldSector       = "sector"
	FieldHeadquarters = "headquarters"
	FieldPreviousHQ   = "previous headquarters"
)

var fields = []string{FieldSymbol, FieldName, FieldSector, FieldHeadquarters, FieldPreviousHQ}

// FieldMap lists, per logical field, the column headers that may carry it.
// Aliases are compared after NormalizeHeader; the first alias present wins.
type FieldMap map[string][]string

// DefaultFieldMap covers the S&P 500 constituent files and common variants
func DefaultFieldMap() FieldMap {
	return FieldMap{
		FieldSymbol:       {"symbol", "ticker", "ticker symbol"},
		FieldName:         {"name", "security", "company", "company name"},
		FieldSector:       {"sector", "gics sector"},
		FieldHeadquarters: {"headquarters", "headquarters location", "hq", "location"},
		FieldPreviousHQ:   {"previous headquarters", "previous hq", "former headquarters"},
	}
}

// LoadFieldMap returns the default mapping with any fields named in the YAML
// file at path replacing the defaults. An empty path returns the defaults.
//
//	symbol: [ticker]
//	headquarters: [hq city, headquarters]
func LoadFieldMap(path string) (FieldMap, error) {
	fm := DefaultFieldMap()
	if path == "" {
		return fm, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read field map: %w", err)
	}
	var override map[string][]string
	if err := yaml.Unmarshal(data, &override); err != nil {
		return nil, fmt.Errorf("failed to parse field map %s: %w", path, err)
	}

	for field, aliases := range override {
		field = NormalizeHeader(field)
		if _, known := fm[field]; !known {
			return nil, fmt.Errorf("field map %s: unknown field %q", path, field)
		}
		if len(aliases) == 0 {
			return nil, fmt.Errorf("field map %s: field %q has no aliases", path, field)
		}
		fm[field] = aliases
	}
	return fm, nil
}

var headerSeparators = regexp.MustCompile(`[\s_\-]+`)

// NormalizeHeader trims, lower-cases and collapses runs of whitespace, '_' and '-' to one space
func NormalizeHeader(h string) string {
	h = strings.TrimPrefix(h, "\ufeff")
	return strings.TrimSpace(headerSeparators.ReplaceAllString(strings.ToLower(h), " "))
}

// resolve maps each logical field to its column index in header. Fields with no matching column are absent.
func (fm FieldMap) resolve(header []string) map[string]int {
	colIdx := make(map[string]int, len(header))
	for i, col := range header {
		n := NormalizeHeader(col)
		if _, dup := colIdx[n]; !dup {
			colIdx[n] = i
		}
	}

	resolved := make(map[string]int, len(fields))
	for _, field := range fields {
		for _, alias := range fm[field] {
			if idx, ok := colIdx[NormalizeHeader(alias)]; ok {
				resolved[field] = idx
				break
			}
		}
	}
	return resolved
}
