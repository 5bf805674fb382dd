package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/epeers/marketsync/internal/models"
	"github.com/epeers/marketsync/internal/services"
	"github.com/epeers/marketsync/internal/util"
	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
)

// Runner is the sync entry point triggered on schedule
type Runner interface {
	Run(ctx context.Context) (*models.RunReport, error)
}

// Scheduler runs sync on a cron spec
type Scheduler struct {
	cron   *cron.Cron
	runner Runner
	ctx    context.Context
	now    func() time.Time
}

// New creates a Scheduler whose runs use ctx. The spec uses the standard five
// field format plus descriptors such as @daily, evaluated in New York time.
func New(ctx context.Context, runner Runner, spec string) (*Scheduler, error) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		loc = time.UTC
	}

	s := &Scheduler{
		cron:   cron.New(cron.WithLocation(loc)),
		runner: runner,
		ctx:    ctx,
		now:    time.Now,
	}
	if _, err := s.cron.AddFunc(spec, s.runOnce); err != nil {
		return nil, fmt.Errorf("invalid SYNC_CRON %q: %w", spec, err)
	}
	return s, nil
}

// Start begins firing scheduled runs
func (s *Scheduler) Start() {
	s.cron.Start()
	entries := s.cron.Entries()
	if len(entries) > 0 {
		log.WithFields(log.Fields{
			"next_run":         entries[0].Next,
			"next_market_data": util.NextMarketDate(s.now()),
		}).Info("Scheduler started")
	}
}

// Stop stops scheduling and waits for a running sync to finish
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	log.Info("Scheduler stopped")
}

func (s *Scheduler) runOnce() {
	if s.ctx.Err() != nil {
		return
	}
	log.Info("Running scheduled sync")

	report, err := s.runner.Run(s.ctx)
	if errors.Is(err, services.ErrRunInProgress) {
		log.Warn("Skipping scheduled sync, a run is already in progress")
		return
	}
	if err != nil {
		log.Errorf("Scheduled sync failed: %v", err)
		return
	}

	log.WithFields(log.Fields{
		"run":              report.ID,
		"fetched":          report.Fetched,
		"failed":           report.Failed,
		"next_market_data": util.NextMarketDate(s.now()),
	}).Info("Scheduled sync complete")
}
