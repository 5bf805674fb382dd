package reference

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/epeers/marketsync/internal/marketdata"
	"github.com/epeers/marketsync/internal/models"
	log "github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"
)

// ErrMissingColumn is a configuration error: a required column cannot be located
var ErrMissingColumn = errors.New("missing required column")

// Row is one reference row with its fields already resolved. Absent fields are "".
type Row struct {
	Symbol       string
	Name         string
	Sector       string
	Headquarters string
	PreviousHQ   string
}

// Table is a parsed reference file
type Table struct {
	Path    string
	Rows    []Row
	Columns map[string]bool // logical fields the file carries
}

// Has reports whether the file has a column for field
func (t *Table) Has(field string) bool {
	return t != nil && t.Columns[field]
}

// LoadSymbols reads the CSV symbol list
func LoadSymbols(path string, fm FieldMap) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open symbols file: %w", err)
	}
	defer f.Close()

	records, err := readCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return buildTable(path, records, fm)
}

// LoadProfiles reads the company profile table. .xlsx files are read from
// their first sheet, anything else is parsed as CSV.
func LoadProfiles(path string, fm FieldMap) (*Table, error) {
	var records [][]string
	var err error
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		records, err = readXLSX(path)
	} else {
		var f *os.File
		if f, err = os.Open(path); err != nil {
			return nil, fmt.Errorf("failed to open profiles file: %w", err)
		}
		defer f.Close()
		records, err = readCSV(f)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return buildTable(path, records, fm)
}

func readCSV(r io.Reader) ([][]string, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV: %w", err)
	}
	return records, nil
}

func readXLSX(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheets[0], err)
	}
	return rows, nil
}

func buildTable(path string, records [][]string, fm FieldMap) (*Table, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("%s: %w: %s (file is empty)", path, ErrMissingColumn, FieldSymbol)
	}

	colIdx := fm.resolve(records[0])
	if _, ok := colIdx[FieldSymbol]; !ok {
		return nil, fmt.Errorf("%s: %w: %s (looked for %v)", path, ErrMissingColumn, FieldSymbol, fm[FieldSymbol])
	}

	col := func(record []string, field string) string {
		idx, ok := colIdx[field]
		if !ok || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	t := &Table{Path: path, Columns: make(map[string]bool, len(colIdx))}
	for field := range colIdx {
		t.Columns[field] = true
	}

	seen := make(map[string]bool)
	for i, record := range records[1:] {
		symbol := marketdata.NormalizeSymbol(col(record, FieldSymbol))
		if symbol == "" {
			continue
		}
		if seen[symbol] {
			log.WithFields(log.Fields{"file": path, "row": i + 2, "symbol": symbol}).Warn("Duplicate symbol, keeping first row")
			continue
		}
		seen[symbol] = true

		t.Rows = append(t.Rows, Row{
			Symbol:       symbol,
			Name:         col(record, FieldName),
			Sector:       col(record, FieldSector),
			Headquarters: col(record, FieldHeadquarters),
			PreviousHQ:   col(record, FieldPreviousHQ),
		})
	}
	return t, nil
}

// Merge left-joins profiles onto symbols by symbol. Each field is taken from
// the profile row, else the symbol row, else models.UnknownField. profiles may be nil.
// The name column must exist in at least one input.
func Merge(symbols, profiles *Table) ([]models.CompanyRecord, []models.Warning, error) {
	if !symbols.Has(FieldName) && !profiles.Has(FieldName) {
		return nil, nil, fmt.Errorf("%w: %s (in neither symbols nor profiles)", ErrMissingColumn, FieldName)
	}

	byProfile := make(map[string]Row)
	if profiles != nil {
		for _, r := range profiles.Rows {
			byProfile[r.Symbol] = r
		}
	}

	var warnings []models.Warning
	companies := make([]models.CompanyRecord, 0, len(symbols.Rows))
	for _, s := range symbols.Rows {
		p, ok := byProfile[s.Symbol]
		if profiles != nil && !ok {
			warnings = append(warnings, models.Warning{
				Code:    models.WarnUnknownCompany,
				Message: fmt.Sprintf("%s has no profile row", s.Symbol),
			})
		}

		companies = append(companies, models.CompanyRecord{
			Symbol:               s.Symbol,
			Name:                 firstKnown(p.Name, s.Name),
			Sector:               firstKnown(p.Sector, s.Sector),
			Headquarters:         firstKnown(p.Headquarters, s.Headquarters),
			PreviousHeadquarters: firstKnown(p.PreviousHQ, s.PreviousHQ),
		})
	}
	return companies, warnings, nil
}

func firstKnown(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return models.UnknownField
}

// LoadCompanies reads the symbol list, the optional profile table and the optional field map, then merges them
func LoadCompanies(symbolsPath, profilesPath, fieldMapPath string) ([]models.CompanyRecord, []models.Warning, error) {
	fm, err := LoadFieldMap(fieldMapPath)
	if err != nil {
		return nil, nil, err
	}

	symbols, err := LoadSymbols(symbolsPath, fm)
	if err != nil {
		return nil, nil, err
	}

	var profiles *Table
	if profilesPath != "" {
		if profiles, err = LoadProfiles(profilesPath, fm); err != nil {
			return nil, nil, err
		}
	}

	companies, warnings, err := Merge(symbols, profiles)
	if err != nil {
		return nil, nil, err
	}
	log.WithFields(log.Fields{"companies": len(companies), "warnings": len(warnings)}).Info("Reference data loaded")
	return companies, warnings, nil
}
