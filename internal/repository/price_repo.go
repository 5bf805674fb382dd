package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/epeers/marketsync/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PriceRepository handles daily bars in Postgres
type PriceRepository struct {
	pool  *pgxpool.Pool
	table string
}

// NewPriceRepository creates a new PriceRepository writing to table
func NewPriceRepository(pool *pgxpool.Pool, table string) *PriceRepository {
	return &PriceRepository{pool: pool, table: pgx.Identifier{table}.Sanitize()}
}

// LatestDate returns MAX(date) for symbol
func (r *PriceRepository) LatestDate(ctx context.Context, symbol string) (time.Time, bool, error) {
	query := fmt.Sprintf(`SELECT MAX(date) FROM %s WHERE symbol = $1`, r.table)

	var latest *time.Time
	if err := r.pool.QueryRow(ctx, query, symbol).Scan(&latest); err != nil {
		return time.Time{}, false, fmt.Errorf("failed to get latest date for %s: %w", symbol, err)
	}
	if latest == nil {
		return time.Time{}, false, nil
	}
	return latest.UTC(), true, nil
}

// UpsertPrices stores daily bars, overwriting any bar with the same (symbol, date)
func (r *PriceRepository) UpsertPrices(ctx context.Context, bars []models.PriceBar) error {
	if len(bars) == 0 {
		return nil
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (symbol, date, open, high, low, close, volume)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (symbol, date) DO UPDATE
		SET open = EXCLUDED.open, high = EXCLUDED.high, low = EXCLUDED.low,
		    close = EXCLUDED.close, volume = EXCLUDED.volume
	`, r.table)

	batch := &pgx.Batch{}
	for _, b := range bars {
		batch.Queue(query, b.Symbol, b.Date, b.Open, b.High, b.Low, b.Close, b.Volume)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range bars {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("failed to upsert price: %w", err)
		}
	}
	return nil
}

// RecentPrices retrieves the last limit bars for symbol, oldest first
func (r *PriceRepository) RecentPrices(ctx context.Context, symbol string, limit int) ([]models.PriceBar, error) {
	query := fmt.Sprintf(`
		SELECT symbol, date, open, high, low, close, volume FROM (
			SELECT symbol, date, open, high, low, close, volume
			FROM %s
			WHERE symbol = $1
			ORDER BY date DESC
			LIMIT $2
		) recent
		ORDER BY date ASC
	`, r.table)
	return r.queryBars(ctx, query, symbol, limit)
}

func (r *PriceRepository) queryBars(ctx context.Context, query string, args ...any) ([]models.PriceBar, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query prices: %w", err)
	}
	defer rows.Close()

	var bars []models.PriceBar
	for rows.Next() {
		var b models.PriceBar
		if err := rows.Scan(&b.Symbol, &b.Date, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("failed to scan price data: %w", err)
		}
		b.Date = b.Date.UTC()
		bars = append(bars, b)
	}
	return bars, rows.Err()
}
