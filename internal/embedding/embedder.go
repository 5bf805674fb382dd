package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/epeers/marketsync/internal/models"
	log "github.com/sirupsen/logrus"
)

// DefaultBatchSize is the number of texts sent to the embedder per call
const DefaultBatchSize = 50

// ErrBatchMismatch is returned when an embedder answers a batch with the wrong number of vectors
var ErrBatchMismatch = errors.New("embedder returned wrong number of vectors")

// Embedder converts texts into fixed-length vectors, one per input, in input order.
// Model is the identity stored alongside every vector it produces.
type Embedder interface {
	Model() string
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Generator batches texts through an Embedder
type Generator struct {
	embedder       Embedder
	batchSize      int
	includeProfile bool
}

// NewGenerator creates a Generator. batchSize <= 0 uses DefaultBatchSize.
// includeProfile controls whether company name and sector appear in bar text.
func NewGenerator(e Embedder, batchSize int, includeProfile bool) *Generator {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Generator{embedder: e, batchSize: batchSize, includeProfile: includeProfile}
}

// Model returns the identity of the underlying embedder
func (g *Generator) Model() string { return g.embedder.Model() }

// Embed returns exactly len(texts) vectors in input order. No texts means no embedder call.
func (g *Generator) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	out := make([][]float32, 0, len(texts))
	for batch, lo := 0, 0; lo < len(texts); batch, lo = batch+1, lo+g.batchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		hi := min(lo+g.batchSize, len(texts))

		start := time.Now()
		vectors, err := g.embedder.Embed(ctx, texts[lo:hi])
		if err != nil {
			return nil, fmt.Errorf("embed batch %d (rows %d-%d): %w", batch, lo, hi-1, err)
		}
		if len(vectors) != hi-lo {
			return nil, fmt.Errorf("batch %d: %w: sent %d, got %d", batch, ErrBatchMismatch, hi-lo, len(vectors))
		}
		log.WithFields(log.Fields{"batch": batch, "size": hi - lo}).Debugf("Embedded batch in %d ms", time.Since(start).Milliseconds())

		out = append(out, vectors...)
	}
	return out, nil
}

// EmbedBars synthesizes one text per bar and returns one record per bar, keyed by (symbol, date)
func (g *Generator) EmbedBars(ctx context.Context, company models.CompanyRecord, bars []models.PriceBar) ([]models.EmbeddingRecord, error) {
	texts := make([]string, len(bars))
	for i, b := range bars {
		texts[i] = BarText(b, company, g.includeProfile)
	}

	vectors, err := g.Embed(ctx, texts)
	if err != nil {
		return nil, err
	}

	model := g.Model()
	records := make([]models.EmbeddingRecord, len(bars))
	for i, b := range bars {
		records[i] = models.EmbeddingRecord{
			Symbol: b.Symbol,
			Date:   b.Date,
			Model:  model,
			Vector: vectors[i],
		}
	}
	return records, nil
}
