package repository

import (
	"context"
	"fmt"

	"github.com/epeers/marketsync/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// EmbeddingRepository handles per-bar vectors in Postgres. Vectors are stored as real[].
type EmbeddingRepository struct {
	pool  *pgxpool.Pool
	table string
}

// NewEmbeddingRepository creates a new EmbeddingRepository writing to table
func NewEmbeddingRepository(pool *pgxpool.Pool, table string) *EmbeddingRepository {
	return &EmbeddingRepository{pool: pool, table: pgx.Identifier{table}.Sanitize()}
}

// UpsertEmbeddings stores vectors, replacing any vector with the same (symbol, date)
func (r *EmbeddingRepository) UpsertEmbeddings(ctx context.Context, records []models.EmbeddingRecord) error {
	if len(records) == 0 {
		return nil
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (symbol, date, model, embedding)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (symbol, date) DO UPDATE
		SET model = EXCLUDED.model, embedding = EXCLUDED.embedding
	`, r.table)

	batch := &pgx.Batch{}
	for _, e := range records {
		batch.Queue(query, e.Symbol, e.Date, e.Model, e.Vector)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range records {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("failed to upsert embedding: %w", err)
		}
	}
	return nil
}

// ListEmbeddings loads every vector produced by model
func (r *EmbeddingRepository) ListEmbeddings(ctx context.Context, model string) ([]models.EmbeddingRecord, error) {
	query := fmt.Sprintf(`
		SELECT symbol, date, model, embedding
		FROM %s
		WHERE model = $1
		ORDER BY symbol, date
	`, r.table)

	rows, err := r.pool.Query(ctx, query, model)
	if err != nil {
		return nil, fmt.Errorf("failed to query embeddings: %w", err)
	}
	defer rows.Close()

	var records []models.EmbeddingRecord
	for rows.Next() {
		var e models.EmbeddingRecord
		if err := rows.Scan(&e.Symbol, &e.Date, &e.Model, &e.Vector); err != nil {
			return nil, fmt.Errorf("failed to scan embedding: %w", err)
		}
		e.Date = e.Date.UTC()
		records = append(records, e)
	}
	return records, rows.Err()
}

// CountOtherModels counts vectors produced by any model other than model
func (r *EmbeddingRepository) CountOtherModels(ctx context.Context, model string) (int64, error) {
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE model <> $1`, r.table)

	var n int64
	if err := r.pool.QueryRow(ctx, query, model).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count embeddings: %w", err)
	}
	return n, nil
}
