package repository

import (
	"context"
	"fmt"

	"github.com/epeers/marketsync/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CompanyRepository handles company_metadata in Postgres
type CompanyRepository struct {
	pool  *pgxpool.Pool
	table string
}

// NewCompanyRepository creates a new CompanyRepository writing to table
func NewCompanyRepository(pool *pgxpool.Pool, table string) *CompanyRepository {
	return &CompanyRepository{pool: pool, table: pgx.Identifier{table}.Sanitize()}
}

// UpsertCompanies inserts or updates companies keyed by symbol
func (r *CompanyRepository) UpsertCompanies(ctx context.Context, companies []models.CompanyRecord) error {
	if len(companies) == 0 {
		return nil
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (symbol, name, sector, headquarters, previous_headquarters)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (symbol) DO UPDATE
		SET name = EXCLUDED.name, sector = EXCLUDED.sector, headquarters = EXCLUDED.headquarters,
			previous_headquarters = EXCLUDED.previous_headquarters
	`, r.table)

	batch := &pgx.Batch{}
	for _, c := range companies {
		batch.Queue(query, c.Symbol, c.Name, c.Sector, c.Headquarters, c.PreviousHeadquarters)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	for _, c := range companies {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("failed to upsert company %s: %w", c.Symbol, err)
		}
	}
	return nil
}

// GetCompanies returns companies keyed by symbol. A nil symbols slice returns every company.
func (r *CompanyRepository) GetCompanies(ctx context.Context, symbols []string) (map[string]models.CompanyRecord, error) {
	query := fmt.Sprintf(`SELECT symbol, name, sector, headquarters, previous_headquarters FROM %s`, r.table)
	args := []any{}
	if symbols != nil {
		query += ` WHERE symbol = ANY($1)`
		args = append(args, symbols)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query companies: %w", err)
	}
	defer rows.Close()

	result := make(map[string]models.CompanyRecord)
	for rows.Next() {
		var c models.CompanyRecord
		if err := rows.Scan(&c.Symbol, &c.Name, &c.Sector, &c.Headquarters, &c.PreviousHeadquarters); err != nil {
			return nil, fmt.Errorf("failed to scan company: %w", err)
		}
		result[c.Symbol] = c
	}
	return result, rows.Err()
}
