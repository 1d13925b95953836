// Package store defines the persistence interfaces and row types for
// cross-run risk state: equity history, mode transitions, thesis metrics,
// position snapshots, and the run log.
package store

import (
	"context"
	"time"
)

// ---------------------------------------------------------------------------
// Row types (on-disk schema)
// ---------------------------------------------------------------------------

// EquitySnapshot is one appended row of the equity history.
type EquitySnapshot struct {
	Timestamp time.Time
	Equity    float64
	Peak      float64
	Drawdown  float64
	Mode      string
	RiskScale float64
	Status    string
}

// ThesisMetric is one appended row of per-thesis metrics for a run.
type ThesisMetric struct {
	Timestamp     time.Time
	Thesis        string
	MV            float64
	StressPct     float64
	BudgetPct     float64
	WorstLoss     float64
	BudgetDollars float64
	Utilization   float64
	Action        string // "" persists as NULL
	Status        string
}

// PositionRecord is one appended row of the position snapshot for a run.
type PositionRecord struct {
	Timestamp      time.Time
	Broker         string
	AccountID      string
	Symbol         string
	InstrumentType string
	Qty            float64
	Multiplier     float64
	Price          float64
	MV             float64
	Currency       string
	Thesis         string
	Notes          string
}

// ModeChange is one appended row of the mode transition log.
type ModeChange struct {
	Timestamp time.Time
	OldMode   string
	NewMode   string
	Equity    float64
	Drawdown  float64
}

// RunRecord is one appended row of the run log.
type RunRecord struct {
	ID             string
	Timestamp      time.Time
	Status         string
	Message        string
	BrokerStatuses map[string]string
	Duration       time.Duration
}

// ---------------------------------------------------------------------------
// Interfaces
// ---------------------------------------------------------------------------

// Store is the persistence surface the risk engine depends on. All writes
// are append-only inserts; the engine never updates or deletes prior rows.
type Store interface {
	// GetPeak returns the historical peak equity, or 0 when no run has been
	// recorded yet.
	GetPeak(ctx context.Context) (float64, error)

	// GetLastMode returns the mode recorded by the most recent prior run,
	// or "" when none exists.
	GetLastMode(ctx context.Context) (string, error)

	// SaveEquitySnapshot appends one equity history row.
	SaveEquitySnapshot(ctx context.Context, snap EquitySnapshot) error

	// SaveModeChange appends one mode transition row.
	SaveModeChange(ctx context.Context, change ModeChange) error

	// SaveThesisMetrics appends the per-thesis rows for a run.
	SaveThesisMetrics(ctx context.Context, metrics []ThesisMetric) error

	// SavePositions appends the position snapshot rows for a run.
	SavePositions(ctx context.Context, positions []PositionRecord) error
}

// RunLogger records run executions outside the core computation.
type RunLogger interface {
	LogRun(ctx context.Context, rec RunRecord) error
}

// History exposes read-only queries over the persisted state for the
// dashboard API.
type History interface {
	EquityHistory(ctx context.Context, days int) ([]EquitySnapshot, error)
	ThesisHistory(ctx context.Context, thesis string, days int) ([]ThesisMetric, error)
	LatestPositions(ctx context.Context) ([]PositionRecord, error)
	ModeHistory(ctx context.Context, limit int) ([]ModeChange, error)
}
