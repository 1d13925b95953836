package risk

import (
	"fmt"
	"math"
	"strings"

	"nrg/internal/domain"
)

// Summary renders a fixed-width human-readable report for one run, suitable
// for terminals and plain-text email bodies.
func Summary(r *domain.RiskResult) string {
	var b strings.Builder
	rule60 := strings.Repeat("=", 60)
	rule40 := strings.Repeat("-", 40)

	fmt.Fprintln(&b, rule60)
	fmt.Fprintf(&b, "NRG Daily Risk Summary - %s\n", r.Timestamp.Format("2006-01-02 15:04"))
	fmt.Fprintln(&b, rule60)
	fmt.Fprintln(&b)

	fmt.Fprintln(&b, "ACCOUNT STATUS")
	fmt.Fprintln(&b, rule40)
	fmt.Fprintf(&b, "  Equity:     $%15s\n", formatMoney2(r.Equity))
	fmt.Fprintf(&b, "  Peak:       $%15s\n", formatMoney2(r.Peak))
	fmt.Fprintf(&b, "  Drawdown:   %15.2f%%\n", r.Drawdown*100)
	fmt.Fprintf(&b, "  Mode:       %15s\n", r.Mode)
	fmt.Fprintf(&b, "  Risk Scale: %14.0f%%\n", r.RiskScale*100)
	fmt.Fprintf(&b, "  Status:     %15s\n", r.Status)
	fmt.Fprintln(&b)

	if r.ModeChanged {
		fmt.Fprintf(&b, "  *** MODE CHANGED: %s -> %s ***\n\n", r.OldMode, r.Mode)
	}

	fmt.Fprintln(&b, "THESIS UTILIZATION")
	fmt.Fprintln(&b, rule40)
	fmt.Fprintf(&b, "  %-20s %12s %8s %-15s\n", "Thesis", "MV", "Util", "Action")
	fmt.Fprintln(&b, strings.Repeat("-", 60))

	for _, t := range r.ThesisResults {
		util := ">9999%"
		if !math.IsInf(t.Utilization, 1) && t.Utilization < 100 {
			util = fmt.Sprintf("%.0f%%", t.Utilization*100)
		}
		fmt.Fprintf(&b, "  %-20s $%10s %8s %-15s\n",
			t.Name, formatMoney(t.MV), util, t.Action)
	}

	if len(r.Actions) > 0 {
		fmt.Fprintln(&b)
		fmt.Fprintln(&b, "ACTIONS REQUIRED")
		fmt.Fprintln(&b, rule40)
		for _, a := range r.Actions {
			fmt.Fprintf(&b, "  * %s\n", a)
		}
	}

	fmt.Fprintln(&b)
	fmt.Fprintln(&b, rule60)

	return b.String()
}

// formatMoney2 renders a dollar amount with cents and comma separators,
// e.g. 100000 -> "100,000.00".
func formatMoney2(v float64) string {
	whole := math.Floor(math.Abs(v))
	cents := math.Round((math.Abs(v) - whole) * 100)
	if cents >= 100 {
		whole++
		cents = 0
	}
	s := fmt.Sprintf("%s.%02d", formatMoney(whole), int(cents))
	if v < 0 {
		return "-" + s
	}
	return s
}
