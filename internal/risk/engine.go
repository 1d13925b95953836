package risk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"nrg/internal/config"
	"nrg/internal/domain"
	"nrg/internal/store"
)

// ErrEquityUnavailable is returned by Compute when the aggregate equity
// across all OK accounts is zero or negative. The run is aborted with no
// persistence side effects.
var ErrEquityUnavailable = errors.New("risk: equity cannot be computed reliably")

// Engine runs one full risk computation pass over collected account data.
// It is single-threaded and synchronous; callers must serialize runs against
// the same store.
type Engine struct {
	store       store.Store
	resolver    *Resolver
	theses      map[string]domain.ThesisConfig
	drawdownX   float64
	scaleByMode map[string]float64
	log         *slog.Logger
	now         func() time.Time
}

// NewEngine creates an Engine wired with its persistence store, mapping
// resolver, thesis configuration, and account thresholds.
func NewEngine(st store.Store, resolver *Resolver, theses []domain.ThesisConfig, acct config.Account, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	byName := make(map[string]domain.ThesisConfig, len(theses))
	for _, t := range theses {
		byName[t.Name] = t
	}
	return &Engine{
		store:       st,
		resolver:    resolver,
		theses:      byName,
		drawdownX:   acct.DrawdownX,
		scaleByMode: acct.RiskScale,
		log:         log.With("component", "risk-engine"),
		now:         time.Now,
	}
}

// defaultThesisConfig covers theses observed in positions but absent from
// the configuration.
func defaultThesisConfig(name string) domain.ThesisConfig {
	return domain.ThesisConfig{
		Name:      name,
		StressPct: config.DefaultStressPct,
		BudgetPct: config.DefaultBudgetPct,
		Status:    domain.ThesisActive,
		Falsifier: "N/A",
	}
}

// Compute aggregates the given account data, classifies the risk mode from
// drawdown against the persisted peak, evaluates every observed thesis, and
// persists the run's snapshot rows. It fails with ErrEquityUnavailable,
// before any persistence, when aggregate equity is not positive.
func (e *Engine) Compute(ctx context.Context, accounts []domain.AccountData) (*domain.RiskResult, error) {
	timestamp := e.now()
	var actions []string
	brokerStatuses := make(map[string]string, len(accounts))

	// Aggregate equity and positions across all OK accounts. Connector
	// positions are copied so mapping never aliases the caller's slices.
	totalEquity := 0.0
	var positions []domain.Position
	status := domain.RunOK

	for _, acc := range accounts {
		brokerStatuses[acc.Key()] = string(acc.Status)
		if acc.Status == domain.AccountOK {
			totalEquity += acc.Equity
			positions = append(positions, acc.Positions...)
		} else {
			status = domain.RunDegraded
			e.log.Warn("account data degraded",
				"broker", acc.Broker,
				"account", acc.AccountID,
				"status", acc.Status,
				"error", acc.ErrorMsg)
		}
	}

	if totalEquity <= 0 {
		e.log.Error("cannot compute risk: equity is zero or negative")
		return nil, ErrEquityUnavailable
	}

	// Peak is monotonic across runs: the larger of history and now.
	historicalPeak, err := e.store.GetPeak(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading peak: %w", err)
	}
	peak := historicalPeak
	if totalEquity > peak {
		peak = totalEquity
	}
	drawdown := (totalEquity - peak) / peak

	mode, riskScale := classifyMode(drawdown, e.drawdownX, e.scaleByMode)

	lastMode, err := e.store.GetLastMode(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading last mode: %w", err)
	}
	var oldMode domain.RiskMode
	if lastMode != "" {
		oldMode, err = domain.ParseRiskMode(lastMode)
		if err != nil {
			e.log.Warn("ignoring unrecognized persisted mode", "mode", lastMode)
		}
	}
	modeChanged := oldMode != "" && oldMode != mode

	if modeChanged {
		actions = append(actions, fmt.Sprintf("MODE CHANGE: %s -> %s", oldMode, mode))
		err := e.store.SaveModeChange(ctx, store.ModeChange{
			Timestamp: timestamp,
			OldMode:   string(oldMode),
			NewMode:   string(mode),
			Equity:    totalEquity,
			Drawdown:  drawdown,
		})
		if err != nil {
			return nil, fmt.Errorf("recording mode change: %w", err)
		}
	}

	if mode != domain.ModeNormal {
		actions = append(actions, fmt.Sprintf(
			"Account in %s mode - risk scaled to %.0f%%", mode, riskScale*100))
	}

	// Resolve each position's thesis, then group preserving the order in
	// which thesis ids are first encountered.
	for i := range positions {
		thesis, _ := e.resolver.Resolve(positions[i].Symbol)
		positions[i].Thesis = thesis
	}

	byThesis := make(map[string][]domain.Position)
	var thesisOrder []string
	for _, p := range positions {
		if _, seen := byThesis[p.Thesis]; !seen {
			thesisOrder = append(thesisOrder, p.Thesis)
		}
		byThesis[p.Thesis] = append(byThesis[p.Thesis], p)
	}

	thesisResults := make([]domain.ThesisResult, 0, len(thesisOrder))
	for _, name := range thesisOrder {
		cfg, ok := e.theses[name]
		if !ok {
			cfg = defaultThesisConfig(name)
		}
		result, entries := evaluateThesis(cfg, byThesis[name], totalEquity, riskScale)
		actions = append(actions, entries...)
		thesisResults = append(thesisResults, result)
	}

	// Highest utilization first; ties keep first-encounter order.
	sort.SliceStable(thesisResults, func(i, j int) bool {
		return thesisResults[i].Utilization > thesisResults[j].Utilization
	})

	result := &domain.RiskResult{
		Timestamp:      timestamp,
		Equity:         totalEquity,
		Peak:           peak,
		Drawdown:       drawdown,
		Mode:           mode,
		RiskScale:      riskScale,
		ThesisResults:  thesisResults,
		Positions:      positions,
		Status:         status,
		BrokerStatuses: brokerStatuses,
		Actions:        actions,
		ModeChanged:    modeChanged,
		OldMode:        oldMode,
	}

	if err := e.persist(ctx, result); err != nil {
		return nil, err
	}

	return result, nil
}

// persist appends the run's snapshot rows. Each run writes a fresh
// timestamped row set; prior rows are never touched.
func (e *Engine) persist(ctx context.Context, r *domain.RiskResult) error {
	err := e.store.SaveEquitySnapshot(ctx, store.EquitySnapshot{
		Timestamp: r.Timestamp,
		Equity:    r.Equity,
		Peak:      r.Peak,
		Drawdown:  r.Drawdown,
		Mode:      string(r.Mode),
		RiskScale: r.RiskScale,
		Status:    string(r.Status),
	})
	if err != nil {
		return fmt.Errorf("saving equity snapshot: %w", err)
	}

	metrics := make([]store.ThesisMetric, 0, len(r.ThesisResults))
	for _, t := range r.ThesisResults {
		metrics = append(metrics, store.ThesisMetric{
			Timestamp:     r.Timestamp,
			Thesis:        t.Name,
			MV:            t.MV,
			StressPct:     t.StressPct,
			BudgetPct:     t.BudgetPct,
			WorstLoss:     t.WorstLoss,
			BudgetDollars: t.BudgetDollars,
			Utilization:   t.Utilization,
			Action:        t.Action,
			Status:        string(t.Status),
		})
	}
	if err := e.store.SaveThesisMetrics(ctx, metrics); err != nil {
		return fmt.Errorf("saving thesis metrics: %w", err)
	}

	records := make([]store.PositionRecord, 0, len(r.Positions))
	for _, p := range r.Positions {
		records = append(records, store.PositionRecord{
			Timestamp:      r.Timestamp,
			Broker:         p.Broker,
			AccountID:      p.AccountID,
			Symbol:         p.Symbol,
			InstrumentType: string(p.InstrumentType),
			Qty:            p.Qty,
			Multiplier:     p.Multiplier,
			Price:          p.Price,
			MV:             p.MV,
			Currency:       p.Currency,
			Thesis:         p.Thesis,
			Notes:          p.Notes,
		})
	}
	if err := e.store.SavePositions(ctx, records); err != nil {
		return fmt.Errorf("saving positions: %w", err)
	}

	return nil
}
