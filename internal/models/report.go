package models

import (
	"time"

	"github.com/google/uuid"
)

// SymbolStatus is the outcome of one symbol within a sync run
type SymbolStatus string

const (
	SymbolFetched  SymbolStatus = "fetched"    // new bars were fetched and handed to the store
	SymbolUpToDate SymbolStatus = "up_to_date" // watermark already covers the window, fetcher not called
	SymbolNoData   SymbolStatus = "no_data"    // source returned no rows for the window
	SymbolFailed   SymbolStatus = "failed"     // fetch or embed failed, see Stage/Error
)

// Pipeline stages used in SymbolOutcome.Stage
const (
	StageWatermark = "watermark"
	StageFetch     = "fetch"
	StageEmbed     = "embed"
)

// SymbolOutcome is the typed result of processing one symbol
type SymbolOutcome struct {
	Symbol      string       `json:"symbol"`
	Status      SymbolStatus `json:"status"`
	Start       *Date        `json:"start,omitempty"`
	End         *Date        `json:"end,omitempty"`
	BarsFetched int          `json:"bars_fetched"`
	BarsStored  int          `json:"bars_stored"`
	Embedded    int          `json:"embedded"`
	Stage       string       `json:"stage,omitempty"`
	Error       string       `json:"error,omitempty"`
}

// BatchFailure describes one store batch that could not be written
type BatchFailure struct {
	Table      string `json:"table"`
	Symbol     string `json:"symbol,omitempty"`
	BatchIndex int    `json:"batch_index"`
	FirstRow   int    `json:"first_row"`
	LastRow    int    `json:"last_row"`
	Error      string `json:"error"`
}

// RunReport aggregates the outcome of a single sync run
type RunReport struct {
	ID            uuid.UUID       `json:"id"`
	StartedAt     time.Time       `json:"started_at"`
	FinishedAt    time.Time       `json:"finished_at"`
	Companies     int             `json:"companies"`
	Fetched       int             `json:"fetched"`
	UpToDate      int             `json:"up_to_date"`
	NoData        int             `json:"no_data"`
	Failed        int             `json:"failed"`
	Symbols       []SymbolOutcome `json:"symbols"`
	BatchFailures []BatchFailure  `json:"batch_failures"`
	Warnings      []Warning       `json:"warnings,omitempty"`
}

// Tally recomputes the per-status counters from Symbols
func (r *RunReport) Tally() {
	r.Fetched, r.UpToDate, r.NoData, r.Failed = 0, 0, 0, 0
	for _, s := range r.Symbols {
		switch s.Status {
		case SymbolFetched:
			r.Fetched++
		case SymbolUpToDate:
			r.UpToDate++
		case SymbolNoData:
			r.NoData++
		case SymbolFailed:
			r.Failed++
		}
	}
}
