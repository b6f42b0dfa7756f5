package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// SourceStatus is the outcome of one source within a run.
type SourceStatus string

const (
	SourceOK      SourceStatus = "ok"
	SourceSkipped SourceStatus = "skipped"
	SourceFailed  SourceStatus = "failed"
)

// SourceOutcome records what happened to a single source during a run.
type SourceOutcome struct {
	Name      string       `json:"name"`
	Status    SourceStatus `json:"status"`
	Reason    string       `json:"reason,omitempty"`
	ErrorKind string       `json:"error_kind,omitempty"`
	Records   int          `json:"records"`
}

// RunSummary is the operator-facing account of a pipeline run.
type RunSummary struct {
	Sources           []SourceOutcome `json:"sources"`
	PositionsBySource map[string]int  `json:"positions_by_source"`
	Positions         int             `json:"positions"`
	InvalidRecords    int             `json:"invalid_records"`
	PricesResolved    int             `json:"prices_resolved"`
	PricesMissing     int             `json:"prices_missing"`
}

// SourceCounts returns how many sources succeeded, were skipped and failed.
func (s RunSummary) SourceCounts() (succeeded, skipped, failed int) {
	counts := lo.CountValuesBy(s.Sources, func(o SourceOutcome) SourceStatus { return o.Status })
	return counts[SourceOK], counts[SourceSkipped], counts[SourceFailed]
}

// Snapshot is the immutable result of one pipeline run for an account.
type Snapshot struct {
	ID         uuid.UUID      `json:"id"`
	AccountID  string         `json:"account_id"`
	TakenAt    time.Time      `json:"taken_at"`
	Positions  []Position     `json:"positions"`
	Prices     []PriceRecord  `json:"prices"`
	Valuations []ValuationRow `json:"valuations"`
	Totals     Totals         `json:"totals"`
	Unresolved []string       `json:"unresolved"`
	FXRates    []FXRate       `json:"fx_rates,omitempty"`
	Summary    RunSummary     `json:"summary"`
}
