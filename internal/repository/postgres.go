package repository

import (
	"context"
	"fmt"

	"github.com/epeers/marketsync/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore groups the three Postgres repositories behind the Store interface
type PostgresStore struct {
	*CompanyRepository
	*PriceRepository
	*EmbeddingRepository

	pool   *pgxpool.Pool
	tables Tables
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates repositories for each configured table on a shared pool
func NewPostgresStore(pool *pgxpool.Pool, tables Tables) *PostgresStore {
	return &PostgresStore{
		CompanyRepository:   NewCompanyRepository(pool, tables.Companies),
		PriceRepository:     NewPriceRepository(pool, tables.Prices),
		EmbeddingRepository: NewEmbeddingRepository(pool, tables.Embeddings),
		pool:                pool,
		tables:              tables,
	}
}

// UnembeddedBars returns the stored bars of symbol with no vector from model
func (s *PostgresStore) UnembeddedBars(ctx context.Context, symbol, model string) ([]models.PriceBar, error) {
	query := fmt.Sprintf(`
		SELECT p.symbol, p.date, p.open, p.high, p.low, p.close, p.volume
		FROM %s p
		LEFT JOIN %s e ON e.symbol = p.symbol AND e.date = p.date AND e.model = $2
		WHERE p.symbol = $1 AND e.symbol IS NULL
		ORDER BY p.date ASC
	`, pgx.Identifier{s.tables.Prices}.Sanitize(), pgx.Identifier{s.tables.Embeddings}.Sanitize())
	return s.PriceRepository.queryBars(ctx, query, symbol, model)
}

// TableCounts returns the row count and the first previewRows rows of each table.
// Embedding previews show the vector length instead of the vector.
func (s *PostgresStore) TableCounts(ctx context.Context, previewRows int) ([]models.TableCount, error) {
	previews := []struct {
		table   string
		columns string
	}{
		{s.tables.Companies, "symbol, name, sector, headquarters, previous_headquarters"},
		{s.tables.Prices, "symbol, date, open, high, low, close, volume"},
		{s.tables.Embeddings, "symbol, date, model, cardinality(embedding) AS dimension"},
	}

	var result []models.TableCount
	for _, p := range previews {
		ident := pgx.Identifier{p.table}.Sanitize()

		tc := models.TableCount{Table: p.table}
		if err := s.pool.QueryRow(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, ident)).Scan(&tc.Rows); err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", p.table, err)
		}

		rows, err := s.pool.Query(ctx, fmt.Sprintf(`SELECT %s FROM %s LIMIT $1`, p.columns, ident), previewRows)
		if err != nil {
			return nil, fmt.Errorf("failed to preview %s: %w", p.table, err)
		}
		tc.Preview, err = collectPreview(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to preview %s: %w", p.table, err)
		}
		result = append(result, tc)
	}
	return result, nil
}

func collectPreview(rows pgx.Rows) ([]map[string]any, error) {
	defer rows.Close()

	preview := []map[string]any{}
	fields := rows.FieldDescriptions()
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		row := make(map[string]any, len(fields))
		for i, f := range fields {
			row[f.Name] = values[i]
		}
		preview = append(preview, row)
	}
	return preview, rows.Err()
}
