package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/epeers/marketsync/internal/cache"
	"github.com/epeers/marketsync/internal/embedding"
	"github.com/epeers/marketsync/internal/marketdata"
	"github.com/epeers/marketsync/internal/models"
	"github.com/epeers/marketsync/internal/repository"
	log "github.com/sirupsen/logrus"
)

// ErrEmptyQuery is returned for a blank query string
var ErrEmptyQuery = errors.New("query must not be blank")

// MaxTopK bounds the number of matches a caller may request
const MaxTopK = 100

// SearchService answers similarity queries over the stored embeddings
type SearchService struct {
	store        repository.Store
	embedder     embedding.Embedder
	vectors      cache.VectorCache
	history      *cache.MemoryCache
	topK         int
	historyLimit int
}

// NewSearchService creates a SearchService. vectors and history may be nil to disable caching.
func NewSearchService(
	store repository.Store,
	embedder embedding.Embedder,
	vectors cache.VectorCache,
	history *cache.MemoryCache,
	topK, historyLimit int,
) *SearchService {
	return &SearchService{
		store:        store,
		embedder:     embedder,
		vectors:      vectors,
		history:      history,
		topK:         topK,
		historyLimit: historyLimit,
	}
}

// Model returns the embedding model queries are compared under
func (s *SearchService) Model() string { return s.embedder.Model() }

type scoredRecord struct {
	record models.EmbeddingRecord
	score  float64
}

// Search embeds query and returns the topK most similar stored vectors, each
// joined with its company and recent price history. topK <= 0 uses the default.
// An empty store is reported as SearchEmpty, not as an error.
func (s *SearchService) Search(ctx context.Context, query string, topK int) (*models.SearchResponse, error) {
	defer TrackTime("SearchService.Search", time.Now())

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	ctx, wc := NewWarningContext(ctx)
	model := s.embedder.Model()

	resp := &models.SearchResponse{
		Query:   query,
		Model:   model,
		Matches: []models.SearchMatch{},
	}

	topK = s.clampTopK(ctx, topK)

	records, err := s.store.ListEmbeddings(ctx, model)
	if err != nil {
		return nil, fmt.Errorf("failed to load embeddings: %w", err)
	}
	if len(records) == 0 {
		resp.Status = models.SearchEmpty
		resp.Message = fmt.Sprintf("no embeddings stored for model %s; run sync first", model)

		other, err := s.store.CountOtherModels(ctx, model)
		if err != nil {
			log.Warnf("Failed to count vectors from other models: %v", err)
		} else if other > 0 {
			AddWarningf(ctx, models.WarnModelMismatch,
				"%d stored vectors were produced by a different model than %s", other, model)
		}
		resp.Warnings = wc.Warnings()
		return resp, nil
	}

	qv, err := s.queryVector(ctx, model, query)
	if err != nil {
		return nil, err
	}

	scored := make([]scoredRecord, len(records))
	for i, r := range records {
		scored[i] = scoredRecord{record: r, score: CosineSimilarity(qv, r.Vector)}
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].score > scored[j].score
	})
	scored = scored[:min(topK, len(scored))]

	symbols := make([]string, 0, len(scored))
	seen := make(map[string]bool)
	for _, sr := range scored {
		if !seen[sr.record.Symbol] {
			seen[sr.record.Symbol] = true
			symbols = append(symbols, sr.record.Symbol)
		}
	}

	companies, err := s.store.GetCompanies(ctx, symbols)
	if err != nil {
		return nil, fmt.Errorf("failed to load companies: %w", err)
	}

	histories := make(map[string][]models.PriceBarDTO, len(symbols))
	for _, sym := range symbols {
		histories[sym] = s.matchHistory(ctx, sym)
	}

	for i, sr := range scored {
		company, ok := companies[sr.record.Symbol]
		if !ok {
			company = models.CompanyRecord{Name: models.UnknownField, Sector: models.UnknownField}
		}
		resp.Matches = append(resp.Matches, models.SearchMatch{
			Rank:       i + 1,
			Symbol:     sr.record.Symbol,
			Name:       company.Name,
			Sector:     company.Sector,
			Date:       models.NewDate(sr.record.Date),
			Similarity: sr.score,
			History:    histories[sr.record.Symbol],
		})
	}

	resp.Status = models.SearchOK
	resp.Warnings = wc.Warnings()
	return resp, nil
}

// History returns the most recent limit bars of symbol, ascending. limit <= 0 uses the configured limit.
func (s *SearchService) History(ctx context.Context, symbol string, limit int) ([]models.PriceBar, error) {
	symbol = marketdata.NormalizeSymbol(symbol)
	if limit <= 0 {
		limit = s.historyLimit
	}
	if s.history != nil {
		if bars, ok := s.history.GetHistory(symbol, limit); ok {
			return bars, nil
		}
	}

	bars, err := s.store.RecentPrices(ctx, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get prices for %s: %w", symbol, err)
	}
	// unknown symbols are not cached so request paths cannot grow the cache
	if s.history != nil && len(bars) > 0 {
		s.history.SetHistory(symbol, limit, bars)
	}
	return bars, nil
}

func (s *SearchService) matchHistory(ctx context.Context, symbol string) []models.PriceBarDTO {
	if s.historyLimit == 0 {
		return []models.PriceBarDTO{}
	}
	bars, err := s.History(ctx, symbol, s.historyLimit)
	if err != nil {
		log.WithField("symbol", symbol).Warnf("History lookup failed: %v", err)
		AddWarningf(ctx, models.WarnHistoryUnavailable, "price history unavailable for %s", symbol)
		return []models.PriceBarDTO{}
	}
	if len(bars) == 0 {
		AddWarningf(ctx, models.WarnNoPriceHistory, "no stored price history for %s", symbol)
	}
	return models.NewPriceBarDTOs(bars)
}

func (s *SearchService) clampTopK(ctx context.Context, topK int) int {
	switch {
	case topK == 0:
		return s.topK
	case topK < 0:
		AddWarningf(ctx, models.WarnTopKClamped, "top_k %d is not positive, using %d", topK, s.topK)
		return s.topK
	case topK > MaxTopK:
		AddWarningf(ctx, models.WarnTopKClamped, "top_k %d exceeds the maximum, using %d", topK, MaxTopK)
		return MaxTopK
	}
	return topK
}

func (s *SearchService) queryVector(ctx context.Context, model, query string) ([]float32, error) {
	if s.vectors != nil {
		if v, ok := s.vectors.GetVector(ctx, model, query); ok {
			return v, nil
		}
	}

	vectors, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("%w: sent 1, got %d", embedding.ErrBatchMismatch, len(vectors))
	}

	if s.vectors != nil {
		s.vectors.SetVector(ctx, model, query, vectors[0])
	}
	return vectors[0], nil
}

// CosineSimilarity returns the cosine of the angle between a and b, in [-1, 1].
// Zero vectors and vectors of different length score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return math.Max(-1, math.Min(1, dot/(math.Sqrt(na)*math.Sqrt(nb))))
}
