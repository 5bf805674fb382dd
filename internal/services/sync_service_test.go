package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/epeers/marketsync/internal/cache"
	"github.com/epeers/marketsync/internal/embedding"
	"github.com/epeers/marketsync/internal/marketdata"
	"github.com/epeers/marketsync/internal/models"
	"github.com/epeers/marketsync/internal/repository"
	"github.com/epeers/marketsync/internal/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testTables = repository.Tables{Companies: "company_metadata", Prices: "stock_data", Embeddings: "stock_embeddings"}

// 10:00 in New York on 2024-01-10, so the last complete day is 2024-01-09
var testNow = time.Date(2024, 1, 10, 15, 0, 0, 0, time.UTC)

var noRetry = util.RetryPolicy{MaxRetries: 0, CallTimeout: 5 * time.Second}

func outcomeFor(r *models.RunReport, symbol string) (models.SymbolOutcome, bool) {
	for _, o := range r.Symbols {
		if o.Symbol == symbol {
			return o, true
		}
	}
	return models.SymbolOutcome{}, false
}

func day(s string) time.Time {
	d, err := time.Parse(models.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return d
}

func makeBars(symbol string, dates ...string) []models.PriceBar {
	out := make([]models.PriceBar, 0, len(dates))
	for i, d := range dates {
		out = append(out, models.PriceBar{
			Symbol: symbol, Date: day(d),
			Open: 10 + float64(i), High: 11 + float64(i), Low: 9 + float64(i), Close: 10.5 + float64(i),
			Volume: int64(100 * (i + 1)),
		})
	}
	return out
}

type fakeSource struct {
	mu    sync.Mutex
	bars  map[string][]models.PriceBar
	fail  map[string]error
	calls map[string]int
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		bars:  make(map[string][]models.PriceBar),
		fail:  make(map[string]error),
		calls: make(map[string]int),
	}
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) DailyBars(_ context.Context, symbol string, start, end time.Time) ([]models.PriceBar, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[symbol]++
	if err := f.fail[symbol]; err != nil {
		return nil, err
	}
	return marketdata.Normalize(symbol, f.bars[symbol], start, end), nil
}

func (f *fakeSource) Calls(symbol string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[symbol]
}

// switchEmbedder fails every call while broken is set
type switchEmbedder struct {
	embedding.Embedder
	mu     sync.Mutex
	broken bool
}

func (e *switchEmbedder) setBroken(b bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.broken = b
}

func (e *switchEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	broken := e.broken
	e.mu.Unlock()
	if broken {
		return nil, errors.New("embedding service unavailable")
	}
	return e.Embedder.Embed(ctx, texts)
}

// flakyStore rejects any price batch containing failDate
type flakyStore struct {
	repository.Store
	failDate time.Time
}

func (s *flakyStore) UpsertPrices(ctx context.Context, bars []models.PriceBar) error {
	for _, b := range bars {
		if b.Date.Equal(s.failDate) {
			return errors.New("connection reset")
		}
	}
	return s.Store.UpsertPrices(ctx, bars)
}

func newSQLiteStore(t *testing.T) *repository.SQLiteStore {
	t.Helper()
	s, err := repository.NewSQLiteStore(filepath.Join(t.TempDir(), "sync.db"), testTables)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func writeSymbols(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "symbols.csv")
	content := "Symbol,Security,GICS Sector\n"
	for _, l := range lines {
		content += l + "\n"
	}
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

type syncFixture struct {
	store    repository.Store
	source   *fakeSource
	embedder *switchEmbedder
	svc      *SyncService
}

func newSyncFixture(t *testing.T, store repository.Store, batchSize int, symbols ...string) *syncFixture {
	t.Helper()
	f := &syncFixture{
		store:    store,
		source:   newFakeSource(),
		embedder: &switchEmbedder{Embedder: embedding.NewHashEmbedder(16)},
	}
	gen := embedding.NewGenerator(f.embedder, 2, true)
	writer := NewSynchronizer(store, testTables, batchSize, noRetry)
	f.svc = NewSyncService(store, f.source, gen, writer, noRetry, cache.NewMemoryCache(time.Minute), SyncOptions{
		SymbolsPath: writeSymbols(t, symbols...),
		HorizonDays: 30,
		Workers:     2,
	})
	f.svc.now = func() time.Time { return testNow }
	return f
}

func TestNextWindow(t *testing.T) {
	today := day("2024-01-10")

	tests := []struct {
		name      string
		watermark time.Time
		found     bool
		start     time.Time
		upToDate  bool
	}{
		{"empty store uses horizon", time.Time{}, false, day("2023-12-11"), false},
		{"day after watermark", day("2024-01-05"), true, day("2024-01-06"), false},
		{"only yesterday missing", day("2024-01-08"), true, day("2024-01-09"), false},
		{"yesterday stored", day("2024-01-09"), true, day("2024-01-10"), true},
		{"today stored", day("2024-01-10"), true, day("2024-01-11"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end, upToDate := NextWindow(tt.watermark, tt.found, today, 30)
			assert.Equal(t, tt.start, start)
			assert.Equal(t, day("2024-01-09"), end)
			assert.Equal(t, tt.upToDate, upToDate)
		})
	}
}

func TestSyncService_FailureIsolation(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t)
	f := newSyncFixture(t, store, 100, "AAA,Alpha,Tech", "BBB,Beta,Energy", "CCC,Gamma,Utilities")
	f.source.bars["AAA"] = makeBars("AAA", "2024-01-02", "2024-01-03")
	f.source.bars["CCC"] = makeBars("CCC", "2024-01-04")
	f.source.fail["BBB"] = errors.New("upstream exploded")

	report, err := f.svc.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 3, report.Companies)
	assert.Equal(t, 2, report.Fetched)
	assert.Equal(t, 1, report.Failed)
	assert.Empty(t, report.BatchFailures)

	b, ok := outcomeFor(report, "BBB")
	require.True(t, ok)
	assert.Equal(t, models.SymbolFailed, b.Status)
	assert.Equal(t, models.StageFetch, b.Stage)
	assert.Contains(t, b.Error, "upstream exploded")

	a, _ := outcomeFor(report, "AAA")
	assert.Equal(t, 2, a.BarsStored)
	assert.Equal(t, 2, a.Embedded)
	assert.Equal(t, "2023-12-11", a.Start.String())
	assert.Equal(t, "2024-01-09", a.End.String())

	for sym, want := range map[string]int{"AAA": 2, "BBB": 0, "CCC": 1} {
		got, err := store.RecentPrices(ctx, sym, 100)
		require.NoError(t, err)
		assert.Len(t, got, want, sym)
	}
}

func TestSyncService_BatchFailureContinues(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{Store: newSQLiteStore(t), failDate: day("2024-01-03")}
	f := newSyncFixture(t, store, 2, "AAA,Alpha,Tech")
	f.source.bars["AAA"] = makeBars("AAA", "2024-01-02", "2024-01-03", "2024-01-04", "2024-01-05")

	report, err := f.svc.Run(ctx)
	require.NoError(t, err)

	require.Len(t, report.BatchFailures, 1)
	failure := report.BatchFailures[0]
	assert.Equal(t, "stock_data", failure.Table)
	assert.Equal(t, "AAA", failure.Symbol)
	assert.Equal(t, 0, failure.BatchIndex)
	assert.Equal(t, 0, failure.FirstRow)
	assert.Equal(t, 1, failure.LastRow)

	a, _ := outcomeFor(report, "AAA")
	assert.Equal(t, models.SymbolFetched, a.Status)
	assert.Equal(t, 4, a.BarsFetched)
	assert.Equal(t, 2, a.BarsStored)
	assert.Equal(t, 2, a.Embedded)

	stored, err := store.RecentPrices(ctx, "AAA", 100)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, day("2024-01-04"), stored[0].Date)
}

func TestSyncService_UpToDateSkipsFetch(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t)
	f := newSyncFixture(t, store, 100, "AAA,Alpha,Tech")
	f.source.bars["AAA"] = makeBars("AAA", "2024-01-02", "2024-01-03", "2024-01-08", "2024-01-09", "2024-01-10")

	first, err := f.svc.Run(ctx)
	require.NoError(t, err)
	a, _ := outcomeFor(first, "AAA")
	assert.Equal(t, models.SymbolFetched, a.Status)
	assert.Equal(t, 4, a.BarsStored, "today's bar is outside the window")

	latest, found, err := store.LatestDate(ctx, "AAA")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, day("2024-01-09"), latest)

	countsBefore, err := store.TableCounts(ctx, 0)
	require.NoError(t, err)

	second, err := f.svc.Run(ctx)
	require.NoError(t, err)
	a, _ = outcomeFor(second, "AAA")
	assert.Equal(t, models.SymbolUpToDate, a.Status)
	assert.Equal(t, 0, a.Embedded)
	assert.Equal(t, 1, second.UpToDate)
	assert.Equal(t, 1, f.source.Calls("AAA"), "fetcher is not called for an up-to-date symbol")

	countsAfter, err := store.TableCounts(ctx, 0)
	require.NoError(t, err)
	for i := range countsBefore {
		assert.Equal(t, countsBefore[i].Rows, countsAfter[i].Rows, countsBefore[i].Table)
	}
}

func TestSyncService_NoData(t *testing.T) {
	f := newSyncFixture(t, newSQLiteStore(t), 100, "AAA,Alpha,Tech")

	report, err := f.svc.Run(context.Background())
	require.NoError(t, err)
	a, _ := outcomeFor(report, "AAA")
	assert.Equal(t, models.SymbolNoData, a.Status)
	assert.Equal(t, 1, report.NoData)
}

func TestSyncService_EmbeddingCatchUp(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t)
	f := newSyncFixture(t, store, 100, "AAA,Alpha,Tech")
	f.source.bars["AAA"] = makeBars("AAA", "2024-01-04", "2024-01-05", "2024-01-08", "2024-01-09")

	f.embedder.setBroken(true)
	first, err := f.svc.Run(ctx)
	require.NoError(t, err)
	a, _ := outcomeFor(first, "AAA")
	assert.Equal(t, models.SymbolFailed, a.Status)
	assert.Equal(t, models.StageEmbed, a.Stage)
	assert.Equal(t, 4, a.BarsStored, "prices are kept when embedding fails")

	f.embedder.setBroken(false)
	second, err := f.svc.Run(ctx)
	require.NoError(t, err)
	a, _ = outcomeFor(second, "AAA")
	assert.Equal(t, models.SymbolUpToDate, a.Status)
	assert.Equal(t, 4, a.Embedded)

	vectors, err := store.ListEmbeddings(ctx, "hash-16")
	require.NoError(t, err)
	assert.Len(t, vectors, 4)
}

func TestSyncService_UnknownCompanyWarning(t *testing.T) {
	f := newSyncFixture(t, newSQLiteStore(t), 100, "AAA,Alpha,Tech")
	f.svc.opts.ProfilesPath = filepath.Join(t.TempDir(), "profiles.csv")
	require.NoError(t, os.WriteFile(f.svc.opts.ProfilesPath, []byte("Symbol,Headquarters\nZZZ,Nowhere\n"), 0o644))

	report, err := f.svc.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Warnings, 1)
	assert.Equal(t, models.WarnUnknownCompany, report.Warnings[0].Code)
}

func TestSyncService_RunInProgress(t *testing.T) {
	f := newSyncFixture(t, newSQLiteStore(t), 100, "AAA,Alpha,Tech")
	f.svc.running.Store(true)

	_, err := f.svc.Run(context.Background())
	assert.ErrorIs(t, err, ErrRunInProgress)
}

func TestSyncService_MissingSymbolsFile(t *testing.T) {
	f := newSyncFixture(t, newSQLiteStore(t), 100, "AAA,Alpha,Tech")
	f.svc.opts.SymbolsPath = filepath.Join(t.TempDir(), "missing.csv")

	_, err := f.svc.Run(context.Background())
	assert.Error(t, err)
	assert.False(t, f.svc.running.Load(), "guard is released after a failed run")
}

func TestSyncService_Cancelled(t *testing.T) {
	f := newSyncFixture(t, newSQLiteStore(t), 100, "AAA,Alpha,Tech", "BBB,Beta,Energy")
	f.source.bars["AAA"] = makeBars("AAA", "2024-01-02")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := f.svc.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, report)
	assert.Empty(t, report.Symbols)
	assert.Equal(t, 0, f.source.Calls("AAA"))
}
