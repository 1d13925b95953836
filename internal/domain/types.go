// Package domain defines the shared value types for the risk guard:
// normalized broker positions and accounts, thesis configuration, and the
// computed per-run results.
package domain

import (
	"fmt"
	"time"
)

// ---------------------------------------------------------------------------
// Enumerations
// ---------------------------------------------------------------------------

// RiskMode is the account-level risk scaling mode derived from drawdown.
// Severity is strictly ordered: Normal < Half < Min.
type RiskMode string

const (
	ModeNormal RiskMode = "NORMAL"
	ModeHalf   RiskMode = "HALF"
	ModeMin    RiskMode = "MIN"
)

// ParseRiskMode converts a stored mode string back into a RiskMode.
func ParseRiskMode(s string) (RiskMode, error) {
	switch RiskMode(s) {
	case ModeNormal, ModeHalf, ModeMin:
		return RiskMode(s), nil
	}
	return "", fmt.Errorf("unknown risk mode %q", s)
}

// ThesisStatus is the lifecycle status of a thesis.
type ThesisStatus string

const (
	ThesisActive ThesisStatus = "ACTIVE"
	ThesisWatch  ThesisStatus = "WATCH"
	ThesisBroken ThesisStatus = "BROKEN"
)

// ParseThesisStatus converts a configured status string into a ThesisStatus.
func ParseThesisStatus(s string) (ThesisStatus, error) {
	switch ThesisStatus(s) {
	case ThesisActive, ThesisWatch, ThesisBroken:
		return ThesisStatus(s), nil
	}
	return "", fmt.Errorf("unknown thesis status %q", s)
}

// InstrumentType classifies a position's instrument.
type InstrumentType string

const (
	InstrumentStock  InstrumentType = "STOCK"
	InstrumentETF    InstrumentType = "ETF"
	InstrumentOption InstrumentType = "OPTION"
	InstrumentCash   InstrumentType = "CASH"
	InstrumentOther  InstrumentType = "OTHER"
)

// AccountStatus is the ingestion status reported by a connector for one
// broker/account pair.
type AccountStatus string

const (
	AccountOK      AccountStatus = "OK"
	AccountError   AccountStatus = "ERROR"
	AccountPartial AccountStatus = "PARTIAL"
)

// RunStatus is the aggregate status of one risk computation run.
type RunStatus string

const (
	RunOK       RunStatus = "OK"
	RunDegraded RunStatus = "DEGRADED"
)

// ThesisUnmapped is the sentinel thesis for symbols no mapping rule matched.
const ThesisUnmapped = "_UNMAPPED"

// ---------------------------------------------------------------------------
// Broker-side inputs
// ---------------------------------------------------------------------------

// Position is one normalized holding as reported by a connector. Connectors
// produce positions without a thesis; the engine assigns one during mapping
// and the position is immutable afterwards.
type Position struct {
	Broker         string
	AccountID      string
	Symbol         string
	InstrumentType InstrumentType
	Qty            float64 // signed; negative = short
	Multiplier     float64 // 1 for equities, 100 for options
	Price          float64 // mark price
	MV             float64 // qty * price * multiplier
	Currency       string
	Thesis         string // set by the engine; ThesisUnmapped if no rule matched
	Notes          string
}

// AccountData is one broker/account pair's snapshot for a run.
type AccountData struct {
	Broker    string
	AccountID string
	Equity    float64 // net liquidation value
	Cash      float64
	Positions []Position
	Status    AccountStatus
	ErrorMsg  string
}

// Key returns the "broker:account" identifier used in status maps.
func (a AccountData) Key() string {
	return a.Broker + ":" + a.AccountID
}

// ---------------------------------------------------------------------------
// Thesis configuration and results
// ---------------------------------------------------------------------------

// ThesisConfig is the static per-thesis risk configuration.
type ThesisConfig struct {
	Name          string
	StressPct     float64 // fractional loss assumed under stress
	BudgetPct     float64 // fraction of total equity allotted
	Status        ThesisStatus
	Falsifier     string // condition that would invalidate the thesis
	TimeWindowEnd string // optional expiry, YYYY-MM-DD
}

// ThesisResult holds the computed risk metrics for one thesis in one run.
type ThesisResult struct {
	Name          string
	MV            float64
	StressPct     float64
	BudgetPct     float64
	WorstLoss     float64
	BudgetDollars float64
	Utilization   float64
	Action        string // "" when no action required
	ReduceAmount  float64
	TargetMV      float64
	Status        ThesisStatus
	Falsifier     string
	Positions     []Position
}

// RiskResult is the complete output of one engine run. It is constructed
// once and never mutated afterwards.
type RiskResult struct {
	Timestamp      time.Time
	Equity         float64
	Peak           float64
	Drawdown       float64
	Mode           RiskMode
	RiskScale      float64
	ThesisResults  []ThesisResult
	Positions      []Position
	Status         RunStatus
	BrokerStatuses map[string]string
	Actions        []string
	ModeChanged    bool
	OldMode        RiskMode // zero value when no prior mode was recorded
}

// Breaches returns the thesis results whose utilization exceeds 1.0.
func (r *RiskResult) Breaches() []ThesisResult {
	var out []ThesisResult
	for _, t := range r.ThesisResults {
		if t.Utilization > 1.0 {
			out = append(out, t)
		}
	}
	return out
}
