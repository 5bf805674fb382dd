package repository

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/epeers/marketsync/internal/models"
	"github.com/jackc/pgx/v5"
	log "github.com/sirupsen/logrus"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

const sqliteDateLayout = "2006-01-02"

// Compile-time interface checks
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore implements Store on a local SQLite file. Dates are stored as
// YYYY-MM-DD text and vectors as little-endian float32 blobs.
type SQLiteStore struct {
	db     *sql.DB
	tables Tables
	q      sqliteQueries
}

type sqliteQueries struct {
	companies, prices, embeddings string
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and creates
// the three tables if they do not exist.
func NewSQLiteStore(dbPath string, tables Tables) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one writer at a time; the worker pool would otherwise hit SQLITE_BUSY
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{
		db:     db,
		tables: tables,
		q: sqliteQueries{
			companies:  pgx.Identifier{tables.Companies}.Sanitize(),
			prices:     pgx.Identifier{tables.Prices}.Sanitize(),
			embeddings: pgx.Identifier{tables.Embeddings}.Sanitize(),
		},
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.WithField("path", dbPath).Info("SQLite store opened")
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			symbol       TEXT PRIMARY KEY,
			name         TEXT NOT NULL,
			sector       TEXT NOT NULL,
			headquarters TEXT NOT NULL,
			previous_headquarters TEXT NOT NULL DEFAULT 'Unknown'
		)`, s.q.companies),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			symbol TEXT NOT NULL,
			date   TEXT NOT NULL,
			open   REAL,
			high   REAL,
			low    REAL,
			close  REAL,
			volume INTEGER,
			PRIMARY KEY (symbol, date)
		)`, s.q.prices),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			symbol    TEXT NOT NULL,
			date      TEXT NOT NULL,
			model     TEXT NOT NULL,
			embedding BLOB NOT NULL,
			PRIMARY KEY (symbol, date)
		)`, s.q.embeddings),
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// UpsertCompanies stores company metadata, overwriting any row with the same symbol
func (s *SQLiteStore) UpsertCompanies(ctx context.Context, companies []models.CompanyRecord) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (symbol, name, sector, headquarters, previous_headquarters)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (symbol) DO UPDATE
		SET name = excluded.name, sector = excluded.sector, headquarters = excluded.headquarters,
			previous_headquarters = excluded.previous_headquarters
	`, s.q.companies)

	return s.execBatch(ctx, query, len(companies), func(i int) []any {
		c := companies[i]
		return []any{c.Symbol, c.Name, c.Sector, c.Headquarters, c.PreviousHeadquarters}
	})
}

// GetCompanies returns company metadata keyed by symbol. A nil symbols slice returns every company.
func (s *SQLiteStore) GetCompanies(ctx context.Context, symbols []string) (map[string]models.CompanyRecord, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`SELECT symbol, name, sector, headquarters, previous_headquarters FROM %s`, s.q.companies))
	if err != nil {
		return nil, fmt.Errorf("failed to query companies: %w", err)
	}
	defer rows.Close()

	var wanted map[string]bool
	if symbols != nil {
		wanted = make(map[string]bool, len(symbols))
		for _, sym := range symbols {
			wanted[sym] = true
		}
	}

	result := make(map[string]models.CompanyRecord)
	for rows.Next() {
		var c models.CompanyRecord
		if err := rows.Scan(&c.Symbol, &c.Name, &c.Sector, &c.Headquarters, &c.PreviousHeadquarters); err != nil {
			return nil, fmt.Errorf("failed to scan company: %w", err)
		}
		if wanted == nil || wanted[c.Symbol] {
			result[c.Symbol] = c
		}
	}
	return result, rows.Err()
}

// LatestDate returns MAX(date) for symbol
func (s *SQLiteStore) LatestDate(ctx context.Context, symbol string) (time.Time, bool, error) {
	query := fmt.Sprintf(`SELECT MAX(date) FROM %s WHERE symbol = ?`, s.q.prices)
	return s.maxDate(ctx, query, symbol)
}

// UpsertPrices stores daily bars, overwriting any bar with the same (symbol, date)
func (s *SQLiteStore) UpsertPrices(ctx context.Context, bars []models.PriceBar) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (symbol, date, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (symbol, date) DO UPDATE
		SET open = excluded.open, high = excluded.high, low = excluded.low,
		    close = excluded.close, volume = excluded.volume
	`, s.q.prices)

	return s.execBatch(ctx, query, len(bars), func(i int) []any {
		b := bars[i]
		return []any{b.Symbol, b.Date.Format(sqliteDateLayout), b.Open, b.High, b.Low, b.Close, b.Volume}
	})
}

// RecentPrices retrieves the last limit bars for symbol, oldest first
func (s *SQLiteStore) RecentPrices(ctx context.Context, symbol string, limit int) ([]models.PriceBar, error) {
	query := fmt.Sprintf(`
		SELECT symbol, date, open, high, low, close, volume FROM (
			SELECT symbol, date, open, high, low, close, volume
			FROM %s
			WHERE symbol = ?
			ORDER BY date DESC
			LIMIT ?
		)
		ORDER BY date ASC
	`, s.q.prices)
	return s.queryBars(ctx, query, symbol, limit)
}

func (s *SQLiteStore) queryBars(ctx context.Context, query string, args ...any) ([]models.PriceBar, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query prices: %w", err)
	}
	defer rows.Close()

	var bars []models.PriceBar
	for rows.Next() {
		var b models.PriceBar
		var date string
		if err := rows.Scan(&b.Symbol, &date, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("failed to scan price data: %w", err)
		}
		if b.Date, err = time.Parse(sqliteDateLayout, date); err != nil {
			return nil, fmt.Errorf("bad stored date %q: %w", date, err)
		}
		bars = append(bars, b)
	}
	return bars, rows.Err()
}

// UpsertEmbeddings stores one vector per (symbol, date), replacing any previous vector and model
func (s *SQLiteStore) UpsertEmbeddings(ctx context.Context, records []models.EmbeddingRecord) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (symbol, date, model, embedding)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (symbol, date) DO UPDATE
		SET model = excluded.model, embedding = excluded.embedding
	`, s.q.embeddings)

	return s.execBatch(ctx, query, len(records), func(i int) []any {
		e := records[i]
		return []any{e.Symbol, e.Date.Format(sqliteDateLayout), e.Model, encodeVector(e.Vector)}
	})
}

// UnembeddedBars returns the bars for symbol that have no embedding from model, oldest first
func (s *SQLiteStore) UnembeddedBars(ctx context.Context, symbol, model string) ([]models.PriceBar, error) {
	query := fmt.Sprintf(`
		SELECT p.symbol, p.date, p.open, p.high, p.low, p.close, p.volume
		FROM %s p
		LEFT JOIN %s e ON e.symbol = p.symbol AND e.date = p.date AND e.model = ?
		WHERE p.symbol = ? AND e.symbol IS NULL
		ORDER BY p.date ASC
	`, s.q.prices, s.q.embeddings)
	return s.queryBars(ctx, query, model, symbol)
}

// ListEmbeddings returns every embedding produced by model
func (s *SQLiteStore) ListEmbeddings(ctx context.Context, model string) ([]models.EmbeddingRecord, error) {
	query := fmt.Sprintf(`
		SELECT symbol, date, model, embedding
		FROM %s
		WHERE model = ?
		ORDER BY symbol, date
	`, s.q.embeddings)

	rows, err := s.db.QueryContext(ctx, query, model)
	if err != nil {
		return nil, fmt.Errorf("failed to query embeddings: %w", err)
	}
	defer rows.Close()

	var records []models.EmbeddingRecord
	for rows.Next() {
		var e models.EmbeddingRecord
		var date string
		var blob []byte
		if err := rows.Scan(&e.Symbol, &date, &e.Model, &blob); err != nil {
			return nil, fmt.Errorf("failed to scan embedding: %w", err)
		}
		if e.Date, err = time.Parse(sqliteDateLayout, date); err != nil {
			return nil, fmt.Errorf("bad stored date %q: %w", date, err)
		}
		if e.Vector, err = decodeVector(blob); err != nil {
			return nil, fmt.Errorf("embedding %s %s: %w", e.Symbol, date, err)
		}
		records = append(records, e)
	}
	return records, rows.Err()
}

// CountOtherModels counts embeddings produced by any model other than model
func (s *SQLiteStore) CountOtherModels(ctx context.Context, model string) (int64, error) {
	var n int64
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE model <> ?`, s.q.embeddings)
	if err := s.db.QueryRowContext(ctx, query, model).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count embeddings: %w", err)
	}
	return n, nil
}

// TableCounts returns the row count and the first previewRows rows of each table
func (s *SQLiteStore) TableCounts(ctx context.Context, previewRows int) ([]models.TableCount, error) {
	previews := []struct {
		table, ident, columns string
	}{
		{s.tables.Companies, s.q.companies, "symbol, name, sector, headquarters, previous_headquarters"},
		{s.tables.Prices, s.q.prices, "symbol, date, open, high, low, close, volume"},
		{s.tables.Embeddings, s.q.embeddings, "symbol, date, model, length(embedding) / 4 AS dimension"},
	}

	var result []models.TableCount
	for _, p := range previews {
		tc := models.TableCount{Table: p.table}
		if err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, p.ident)).Scan(&tc.Rows); err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", p.table, err)
		}

		preview, err := s.preview(ctx, fmt.Sprintf(`SELECT %s FROM %s LIMIT ?`, p.columns, p.ident), previewRows)
		if err != nil {
			return nil, fmt.Errorf("failed to preview %s: %w", p.table, err)
		}
		tc.Preview = preview
		result = append(result, tc)
	}
	return result, nil
}

func (s *SQLiteStore) preview(ctx context.Context, query string, limit int) ([]map[string]any, error) {
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	preview := []map[string]any{}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(cols))
		for i, c := range cols {
			row[c] = values[i]
		}
		preview = append(preview, row)
	}
	return preview, rows.Err()
}

// execBatch runs query once per row inside a single transaction
func (s *SQLiteStore) execBatch(ctx context.Context, query string, n int, args func(i int) []any) error {
	if n == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for i := 0; i < n; i++ {
		if _, err := stmt.ExecContext(ctx, args(i)...); err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) maxDate(ctx context.Context, query string, args ...any) (time.Time, bool, error) {
	var latest sql.NullString
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&latest); err != nil {
		return time.Time{}, false, fmt.Errorf("failed to get latest date: %w", err)
	}
	if !latest.Valid {
		return time.Time{}, false, nil
	}
	d, err := time.Parse(sqliteDateLayout, latest.String)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("bad stored date %q: %w", latest.String, err)
	}
	return d, true, nil
}

var errBadVector = errors.New("vector blob length is not a multiple of 4")

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, errBadVector
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v, nil
}
