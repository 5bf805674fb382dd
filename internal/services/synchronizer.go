package services

import (
	"context"
	"fmt"
	"time"

	"github.com/epeers/marketsync/internal/models"
	"github.com/epeers/marketsync/internal/repository"
	"github.com/epeers/marketsync/internal/util"
	log "github.com/sirupsen/logrus"
)

// DefaultStoreBatchSize is the number of rows written per upsert call
const DefaultStoreBatchSize = 100

// BatchResult reports how many rows reached the store and which batches did not
type BatchResult struct {
	Stored   int
	Failures []models.BatchFailure
}

// Synchronizer writes rows to the store in fixed-size batches.
// A batch that still fails after retries is recorded and skipped; later batches are still written.
type Synchronizer struct {
	store     repository.Store
	tables    repository.Tables
	batchSize int
	retry     util.RetryPolicy
}

// NewSynchronizer creates a Synchronizer. batchSize <= 0 uses DefaultStoreBatchSize.
func NewSynchronizer(store repository.Store, tables repository.Tables, batchSize int, retry util.RetryPolicy) *Synchronizer {
	if batchSize <= 0 {
		batchSize = DefaultStoreBatchSize
	}
	return &Synchronizer{store: store, tables: tables, batchSize: batchSize, retry: retry}
}

// SyncCompanies upserts company records keyed by symbol
func (s *Synchronizer) SyncCompanies(ctx context.Context, companies []models.CompanyRecord) BatchResult {
	return upsertBatches(ctx, s, s.tables.Companies, "", companies, s.store.UpsertCompanies)
}

// SyncPrices upserts one symbol's bars, in input order
func (s *Synchronizer) SyncPrices(ctx context.Context, symbol string, bars []models.PriceBar) BatchResult {
	return upsertBatches(ctx, s, s.tables.Prices, symbol, bars, s.store.UpsertPrices)
}

// SyncEmbeddings upserts one symbol's vectors, in input order
func (s *Synchronizer) SyncEmbeddings(ctx context.Context, symbol string, records []models.EmbeddingRecord) BatchResult {
	return upsertBatches(ctx, s, s.tables.Embeddings, symbol, records, s.store.UpsertEmbeddings)
}

func upsertBatches[T any](ctx context.Context, s *Synchronizer, table, symbol string, rows []T, upsert func(context.Context, []T) error) BatchResult {
	var result BatchResult
	start := time.Now()

	for batch, lo := 0, 0; lo < len(rows); batch, lo = batch+1, lo+s.batchSize {
		if ctx.Err() != nil {
			break
		}
		hi := min(lo+s.batchSize, len(rows))
		chunk := rows[lo:hi]

		name := fmt.Sprintf("upsert %s batch %d", table, batch)
		err := s.retry.Do(ctx, name, func(ctx context.Context) error {
			return upsert(ctx, chunk)
		})
		if err != nil {
			failure := models.BatchFailure{
				Table:      table,
				Symbol:     symbol,
				BatchIndex: batch,
				FirstRow:   lo,
				LastRow:    hi - 1,
				Error:      err.Error(),
			}
			log.WithFields(log.Fields{
				"table":  table,
				"symbol": symbol,
				"batch":  batch,
				"rows":   fmt.Sprintf("%d-%d", lo, hi-1),
			}).Errorf("Batch upsert failed: %v", err)
			result.Failures = append(result.Failures, failure)
			continue
		}
		result.Stored += len(chunk)
	}

	log.WithFields(log.Fields{"table": table, "symbol": symbol}).
		Debugf("Stored %d/%d rows in %d ms", result.Stored, len(rows), time.Since(start).Milliseconds())
	return result
}
