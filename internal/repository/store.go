package repository

import (
	"context"
	"time"

	"github.com/epeers/marketsync/internal/models"
)

// CompanyStore persists company_metadata rows keyed by symbol
type CompanyStore interface {
	UpsertCompanies(ctx context.Context, companies []models.CompanyRecord) error
	GetCompanies(ctx context.Context, symbols []string) (map[string]models.CompanyRecord, error)
}

// PriceStore persists daily bars keyed by (symbol, date)
type PriceStore interface {
	// LatestDate returns the watermark for symbol. found is false when no bar is stored.
	LatestDate(ctx context.Context, symbol string) (date time.Time, found bool, err error)
	UpsertPrices(ctx context.Context, bars []models.PriceBar) error
	// RecentPrices returns the most recent limit bars, ascending
	RecentPrices(ctx context.Context, symbol string, limit int) ([]models.PriceBar, error)
}

// EmbeddingStore persists vectors keyed by (symbol, date)
type EmbeddingStore interface {
	UpsertEmbeddings(ctx context.Context, records []models.EmbeddingRecord) error
	// UnembeddedBars returns the stored bars of symbol that have no vector from model, ascending.
	// Gaps left by failed embedding batches and vectors from older models are both picked up.
	UnembeddedBars(ctx context.Context, symbol, model string) ([]models.PriceBar, error)
	// ListEmbeddings returns every vector produced by model, in storage order (symbol, date)
	ListEmbeddings(ctx context.Context, model string) ([]models.EmbeddingRecord, error)
	// CountOtherModels counts stored vectors not produced by model
	CountOtherModels(ctx context.Context, model string) (int64, error)
}

// Inspector reports row counts and a preview of each table
type Inspector interface {
	TableCounts(ctx context.Context, previewRows int) ([]models.TableCount, error)
}

// Store is everything the sync pipeline and query façade need from a backend
type Store interface {
	CompanyStore
	PriceStore
	EmbeddingStore
	Inspector
}

// Tables names the three logical tables
type Tables struct {
	Companies  string
	Prices     string
	Embeddings string
}
