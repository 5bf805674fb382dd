package services

import (
	"context"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/epeers/marketsync/internal/cache"
	"github.com/epeers/marketsync/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedEmbedder returns the same vector for every text
type fixedEmbedder struct {
	model  string
	vector []float32
	calls  atomic.Int32
}

func (e *fixedEmbedder) Model() string { return e.model }

func (e *fixedEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.calls.Add(1)
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = e.vector
	}
	return out, nil
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"orthogonal", []float32{1, 0}, []float32{0, 5}, 0},
		{"zero vector", []float32{0, 0}, []float32{1, 1}, 0},
		{"length mismatch", []float32{1, 0}, []float32{1, 0, 0}, 0},
		{"empty", nil, nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, CosineSimilarity(tt.a, tt.b), 1e-9)
		})
	}
}

func TestSearch_BlankQuery(t *testing.T) {
	svc := NewSearchService(newSQLiteStore(t), &fixedEmbedder{model: "m"}, nil, nil, 5, 90)

	_, err := svc.Search(context.Background(), "   ", 0)
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestSearch_EmptyStore(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t)
	emb := &fixedEmbedder{model: "m", vector: []float32{1, 0}}
	svc := NewSearchService(store, emb, nil, nil, 5, 90)

	resp, err := svc.Search(ctx, "tech rally", 0)
	require.NoError(t, err)
	assert.Equal(t, models.SearchEmpty, resp.Status)
	assert.NotNil(t, resp.Matches)
	assert.Empty(t, resp.Matches)
	assert.Empty(t, resp.Warnings)
	assert.Zero(t, emb.calls.Load(), "query is not embedded when nothing can match")

	require.NoError(t, store.UpsertEmbeddings(ctx, []models.EmbeddingRecord{
		{Symbol: "AAA", Date: day("2024-01-02"), Model: "older", Vector: []float32{1, 0}},
	}))
	resp, err = svc.Search(ctx, "tech rally", 0)
	require.NoError(t, err)
	assert.Equal(t, models.SearchEmpty, resp.Status)
	require.Len(t, resp.Warnings, 1)
	assert.Equal(t, models.WarnModelMismatch, resp.Warnings[0].Code)
}

func TestSearch_RankingAndJoin(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t)

	require.NoError(t, store.UpsertCompanies(ctx, []models.CompanyRecord{
		{Symbol: "AAA", Name: "Alpha", Sector: "Tech", Headquarters: "X"},
		{Symbol: "MMM", Name: "Mu", Sector: "Industrials", Headquarters: "Y"},
	}))
	require.NoError(t, store.UpsertPrices(ctx, makeBars("AAA", "2024-01-02", "2024-01-03", "2024-01-04")))
	require.NoError(t, store.UpsertEmbeddings(ctx, []models.EmbeddingRecord{
		{Symbol: "AAA", Date: day("2024-01-02"), Model: "m", Vector: []float32{1, 0}},
		{Symbol: "AAA", Date: day("2024-01-03"), Model: "m", Vector: []float32{0, 1}},
		{Symbol: "MMM", Date: day("2024-01-02"), Model: "m", Vector: []float32{2, 0}},
		{Symbol: "ZZZ", Date: day("2024-01-02"), Model: "m", Vector: []float32{-1, 0}},
	}))

	svc := NewSearchService(store, &fixedEmbedder{model: "m", vector: []float32{1, 0}}, nil, cache.NewMemoryCache(time.Minute), 5, 2)

	resp, err := svc.Search(ctx, "alpha", 3)
	require.NoError(t, err)
	assert.Equal(t, models.SearchOK, resp.Status)
	require.Len(t, resp.Matches, 3)

	// ties keep storage order (symbol, date)
	assert.Equal(t, "AAA", resp.Matches[0].Symbol)
	assert.Equal(t, "2024-01-02", resp.Matches[0].Date.String())
	assert.Equal(t, "MMM", resp.Matches[1].Symbol)
	assert.Equal(t, "AAA", resp.Matches[2].Symbol)
	assert.Equal(t, "2024-01-03", resp.Matches[2].Date.String())

	for i, m := range resp.Matches {
		assert.Equal(t, i+1, m.Rank)
		assert.GreaterOrEqual(t, m.Similarity, -1.0)
		assert.LessOrEqual(t, m.Similarity, 1.0)
		if i > 0 {
			assert.LessOrEqual(t, m.Similarity, resp.Matches[i-1].Similarity)
		}
	}

	assert.Equal(t, "Alpha", resp.Matches[0].Name)
	assert.Equal(t, "Tech", resp.Matches[0].Sector)
	require.Len(t, resp.Matches[0].History, 2, "history is capped at the configured limit")
	assert.Equal(t, "2024-01-03", resp.Matches[0].History[0].Date.String())
	assert.Equal(t, "2024-01-04", resp.Matches[0].History[1].Date.String())

	assert.Empty(t, resp.Matches[1].History)
	require.Len(t, resp.Warnings, 1)
	assert.Equal(t, models.WarnNoPriceHistory, resp.Warnings[0].Code)
}

func TestSearch_TopK(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t)
	var records []models.EmbeddingRecord
	for i, d := range []string{"2024-01-02", "2024-01-03", "2024-01-04"} {
		records = append(records, models.EmbeddingRecord{
			Symbol: "AAA", Date: day(d), Model: "m", Vector: []float32{1, float32(i)},
		})
	}
	require.NoError(t, store.UpsertEmbeddings(ctx, records))
	svc := NewSearchService(store, &fixedEmbedder{model: "m", vector: []float32{1, 0}}, nil, nil, 2, 0)

	resp, err := svc.Search(ctx, "q", 0)
	require.NoError(t, err)
	assert.Len(t, resp.Matches, 2, "default top_k")

	resp, err = svc.Search(ctx, "q", 50)
	require.NoError(t, err)
	assert.Len(t, resp.Matches, 3, "capped at the number of records")
	assert.Empty(t, resp.Warnings)

	resp, err = svc.Search(ctx, "q", -4)
	require.NoError(t, err)
	assert.Len(t, resp.Matches, 2)
	require.Len(t, resp.Warnings, 1)
	assert.Equal(t, models.WarnTopKClamped, resp.Warnings[0].Code)
	assert.False(t, math.IsNaN(resp.Matches[0].Similarity))
}

func TestSearch_CachesQueryVector(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t)
	require.NoError(t, store.UpsertEmbeddings(ctx, []models.EmbeddingRecord{
		{Symbol: "AAA", Date: day("2024-01-02"), Model: "m", Vector: []float32{1, 0}},
	}))
	emb := &fixedEmbedder{model: "m", vector: []float32{1, 0}}
	svc := NewSearchService(store, emb, cache.NewMemoryCache(time.Minute), nil, 5, 0)

	for range 3 {
		_, err := svc.Search(ctx, "same question", 1)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), emb.calls.Load())
}

func TestStatusService(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t)
	require.NoError(t, store.UpsertPrices(ctx, makeBars("AAA", "2024-01-02")))

	resp, err := NewStatusService(store, "m").Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, "m", resp.Model)
	require.Len(t, resp.Tables, 3)
	assert.Equal(t, int64(1), resp.Tables[1].Rows)
}
