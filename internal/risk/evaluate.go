package risk

import (
	"fmt"
	"math"
	"strings"

	"nrg/internal/domain"
)

// ActionExit is the resolved action for a BROKEN thesis.
const ActionExit = "EXIT"

// evaluateThesis computes the risk metrics and required action for one
// thesis. It returns the result plus any entries for the run's action log
// (EXIT/REDUCE directives and the short-option advisory).
func evaluateThesis(cfg domain.ThesisConfig, positions []domain.Position, totalEquity, riskScale float64) (domain.ThesisResult, []string) {
	var actions []string

	var mv float64
	for _, p := range positions {
		mv += p.MV
	}

	// Short options are not modeled by the stress percentage; the numbers
	// stand, but the understatement is surfaced in the action log.
	for _, p := range positions {
		if p.InstrumentType == domain.InstrumentOption && p.Qty < 0 {
			actions = append(actions, fmt.Sprintf(
				"WARNING: %s has short options - risk may be understated (UNSUPPORTED_RISK)",
				cfg.Name))
			break
		}
	}

	worstLoss := math.Abs(mv) * cfg.StressPct
	budgetDollars := totalEquity * cfg.BudgetPct * riskScale

	utilization := math.Inf(1)
	if budgetDollars > 0 {
		utilization = worstLoss / budgetDollars
	}

	action := ""
	reduceAmount := 0.0
	targetMV := mv

	switch {
	case cfg.Status == domain.ThesisBroken:
		// BROKEN forces a full exit regardless of utilization.
		action = ActionExit
		reduceAmount = mv
		targetMV = 0
		actions = append(actions, fmt.Sprintf("%s: EXIT (thesis BROKEN)", cfg.Name))
	case utilization > 1.0:
		targetMV = budgetDollars / cfg.StressPct
		reduceAmount = mv - targetMV
		action = "REDUCE $" + formatMoney(reduceAmount)
		actions = append(actions, fmt.Sprintf("%s: %s (Util=%s)",
			cfg.Name, action, formatPct(utilization)))
	}

	return domain.ThesisResult{
		Name:          cfg.Name,
		MV:            mv,
		StressPct:     cfg.StressPct,
		BudgetPct:     cfg.BudgetPct,
		WorstLoss:     worstLoss,
		BudgetDollars: budgetDollars,
		Utilization:   utilization,
		Action:        action,
		ReduceAmount:  reduceAmount,
		TargetMV:      targetMV,
		Status:        cfg.Status,
		Falsifier:     cfg.Falsifier,
		Positions:     positions,
	}, actions
}

// formatMoney renders a dollar amount rounded to whole dollars with comma
// separators, e.g. 16666.67 -> "16,667".
func formatMoney(v float64) string {
	neg := v < 0
	n := int64(math.Round(math.Abs(v)))

	s := fmt.Sprintf("%d", n)
	if len(s) > 3 {
		var b strings.Builder
		start := len(s) % 3
		if start > 0 {
			b.WriteString(s[:start])
		}
		for i := start; i < len(s); i += 3 {
			if b.Len() > 0 {
				b.WriteByte(',')
			}
			b.WriteString(s[i : i+3])
		}
		s = b.String()
	}

	if neg {
		return "-" + s
	}
	return s
}

// formatPct renders a ratio as a percentage with one decimal, e.g.
// 1.5 -> "150.0%". Infinite utilization renders as "Inf%".
func formatPct(v float64) string {
	if math.IsInf(v, 1) {
		return "Inf%"
	}
	return fmt.Sprintf("%.1f%%", v*100)
}
