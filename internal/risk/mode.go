package risk

import "nrg/internal/domain"

// classifyMode maps a drawdown to a risk mode and budget multiplier.
//
// Boundaries are inclusive toward the more severe mode: a drawdown exactly
// equal to -x yields HALF, exactly -2x yields MIN. The classification is
// recomputed from the current drawdown every run and never depends on the
// prior mode.
func classifyMode(drawdown, x float64, scaleByMode map[string]float64) (domain.RiskMode, float64) {
	var mode domain.RiskMode
	switch {
	case drawdown > -x:
		mode = domain.ModeNormal
	case drawdown > -2*x:
		mode = domain.ModeHalf
	default:
		mode = domain.ModeMin
	}

	scale, ok := scaleByMode[string(mode)]
	if !ok {
		scale = 1.0
	}
	return mode, scale
}
