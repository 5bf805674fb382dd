package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/epeers/marketsync/internal/cache"
	"github.com/epeers/marketsync/internal/embedding"
	"github.com/epeers/marketsync/internal/marketdata"
	"github.com/epeers/marketsync/internal/models"
	"github.com/epeers/marketsync/internal/reference"
	"github.com/epeers/marketsync/internal/repository"
	"github.com/epeers/marketsync/internal/util"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// ErrRunInProgress is returned when a sync is triggered while another one is running
var ErrRunInProgress = errors.New("sync run already in progress")

// SyncOptions are the run parameters taken from config
type SyncOptions struct {
	SymbolsPath  string
	ProfilesPath string
	FieldMapPath string
	HorizonDays  int
	Workers      int
}

// SyncService runs the incremental price and embedding pipeline
type SyncService struct {
	store     repository.Store
	source    marketdata.PriceSource
	generator *embedding.Generator
	writer    *Synchronizer
	retry     util.RetryPolicy
	history   *cache.MemoryCache
	opts      SyncOptions
	now       func() time.Time

	running atomic.Bool
}

// NewSyncService creates a SyncService. history may be nil; when set, cached
// price history is dropped after every run.
func NewSyncService(
	store repository.Store,
	source marketdata.PriceSource,
	generator *embedding.Generator,
	writer *Synchronizer,
	retry util.RetryPolicy,
	history *cache.MemoryCache,
	opts SyncOptions,
) *SyncService {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	return &SyncService{
		store:     store,
		source:    source,
		generator: generator,
		writer:    writer,
		retry:     retry,
		history:   history,
		opts:      opts,
		now:       time.Now,
	}
}

// NextWindow returns the closed fetch window [start, end] for a symbol.
// start is the day after the watermark, or today minus horizonDays when nothing is stored.
// end is yesterday since today's bar is not final. upToDate is true when start is after end.
func NextWindow(watermark time.Time, found bool, today time.Time, horizonDays int) (start, end time.Time, upToDate bool) {
	end = today.AddDate(0, 0, -1)
	if found {
		start = watermark.AddDate(0, 0, 1)
	} else {
		start = today.AddDate(0, 0, -horizonDays)
	}
	return start, end, start.After(end)
}

// Run loads the reference data, upserts company metadata, and then brings
// every symbol's prices and embeddings up to date. Per-symbol and per-batch
// failures are recorded in the report; only reference data errors abort the run.
func (s *SyncService) Run(ctx context.Context) (*models.RunReport, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	defer s.running.Store(false)
	defer TrackTime("SyncService.Run", time.Now())

	report := &models.RunReport{
		ID:            uuid.New(),
		StartedAt:     s.now().UTC(),
		Symbols:       []models.SymbolOutcome{},
		BatchFailures: []models.BatchFailure{},
	}
	logger := log.WithField("run", report.ID)

	companies, warnings, err := reference.LoadCompanies(s.opts.SymbolsPath, s.opts.ProfilesPath, s.opts.FieldMapPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load reference data: %w", err)
	}
	report.Warnings = warnings

	res := s.writer.SyncCompanies(ctx, companies)
	report.Companies = res.Stored
	report.BatchFailures = append(report.BatchFailures, res.Failures...)

	today := util.MarketToday(s.now())
	logger.WithFields(log.Fields{
		"symbols": len(companies),
		"workers": s.opts.Workers,
		"model":   s.generator.Model(),
	}).Info("Starting sync run")

	var (
		mu       sync.Mutex
		outcomes = make([]*models.SymbolOutcome, len(companies))
		g        errgroup.Group
	)
	g.SetLimit(s.opts.Workers)

	for i, company := range companies {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			outcome, failures := s.syncSymbol(ctx, today, company)

			mu.Lock()
			defer mu.Unlock()
			outcomes[i] = &outcome
			report.BatchFailures = append(report.BatchFailures, failures...)
			return nil
		})
	}
	_ = g.Wait()

	for _, o := range outcomes {
		if o != nil {
			report.Symbols = append(report.Symbols, *o)
		}
	}
	report.Tally()
	report.FinishedAt = s.now().UTC()

	if s.history != nil {
		s.history.InvalidateHistory()
	}

	logger.WithFields(log.Fields{
		"fetched":        report.Fetched,
		"up_to_date":     report.UpToDate,
		"no_data":        report.NoData,
		"failed":         report.Failed,
		"batch_failures": len(report.BatchFailures),
	}).Info("Sync run finished")

	if err := ctx.Err(); err != nil {
		return report, fmt.Errorf("sync run interrupted: %w", err)
	}
	return report, nil
}

// syncSymbol processes one symbol end to end: watermark, fetch, store, then embedding catch-up.
func (s *SyncService) syncSymbol(ctx context.Context, today time.Time, company models.CompanyRecord) (models.SymbolOutcome, []models.BatchFailure) {
	symbol := company.Symbol
	outcome := models.SymbolOutcome{Symbol: symbol}
	logger := log.WithField("symbol", symbol)

	fail := func(stage string, err error) models.SymbolOutcome {
		logger.WithField("stage", stage).Errorf("Symbol sync failed: %v", err)
		outcome.Status = models.SymbolFailed
		outcome.Stage = stage
		outcome.Error = err.Error()
		return outcome
	}

	var (
		watermark time.Time
		found     bool
	)
	err := s.retry.Do(ctx, "watermark "+symbol, func(ctx context.Context) error {
		var err error
		watermark, found, err = s.store.LatestDate(ctx, symbol)
		return err
	})
	if err != nil {
		return fail(models.StageWatermark, err), nil
	}

	start, end, upToDate := NextWindow(watermark, found, today, s.opts.HorizonDays)
	startDate, endDate := models.NewDate(start), models.NewDate(end)
	outcome.Start, outcome.End = &startDate, &endDate

	var failures []models.BatchFailure
	if upToDate {
		logger.Debug("Already up to date")
		outcome.Status = models.SymbolUpToDate
	} else {
		bars, err := s.source.DailyBars(ctx, symbol, start, end)
		if err != nil {
			return fail(models.StageFetch, err), nil
		}
		if len(bars) == 0 {
			logger.WithFields(log.Fields{"start": startDate, "end": endDate}).Info("No new bars")
			outcome.Status = models.SymbolNoData
		} else {
			outcome.Status = models.SymbolFetched
			outcome.BarsFetched = len(bars)
			res := s.writer.SyncPrices(ctx, symbol, bars)
			outcome.BarsStored = res.Stored
			failures = append(failures, res.Failures...)
		}
	}

	var pending []models.PriceBar
	err = s.retry.Do(ctx, "unembedded "+symbol, func(ctx context.Context) error {
		var err error
		pending, err = s.store.UnembeddedBars(ctx, symbol, s.generator.Model())
		return err
	})
	if err != nil {
		return fail(models.StageEmbed, err), failures
	}
	if len(pending) > 0 {
		records, err := s.generator.EmbedBars(ctx, company, pending)
		if err != nil {
			return fail(models.StageEmbed, err), failures
		}
		res := s.writer.SyncEmbeddings(ctx, symbol, records)
		outcome.Embedded = res.Stored
		failures = append(failures, res.Failures...)
	}

	logger.WithFields(log.Fields{
		"status":   outcome.Status,
		"fetched":  outcome.BarsFetched,
		"stored":   outcome.BarsStored,
		"embedded": outcome.Embedded,
	}).Info("Symbol synced")
	return outcome, failures
}
