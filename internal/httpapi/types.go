package httpapi

// EquityPointJSON is one equity history row in API responses.
type EquityPointJSON struct {
	Timestamp string  `json:"timestamp"`
	Equity    float64 `json:"equity"`
	Peak      float64 `json:"peak"`
	Drawdown  float64 `json:"drawdown"`
	Mode      string  `json:"mode"`
	RiskScale float64 `json:"risk_scale"`
	Status    string  `json:"status"`
}

// EquityResponse is the payload of GET /api/equity.
type EquityResponse struct {
	Days   int               `json:"days"`
	Points []EquityPointJSON `json:"points"`
}

// ThesisPointJSON is one thesis metric row in API responses.
type ThesisPointJSON struct {
	Timestamp     string  `json:"timestamp"`
	Thesis        string  `json:"thesis"`
	MV            float64 `json:"mv"`
	StressPct     float64 `json:"stress_pct"`
	BudgetPct     float64 `json:"budget_pct"`
	WorstLoss     float64 `json:"worst_loss"`
	BudgetDollars float64 `json:"budget_dollars"`
	Utilization   float64 `json:"utilization"`
	Action        string  `json:"action,omitempty"`
	Status        string  `json:"status"`
}

// ThesisResponse is the payload of GET /api/thesis/{name}.
type ThesisResponse struct {
	Thesis string            `json:"thesis"`
	Days   int               `json:"days"`
	Points []ThesisPointJSON `json:"points"`
}

// PositionJSON is one position row in API responses.
type PositionJSON struct {
	Timestamp      string  `json:"timestamp"`
	Broker         string  `json:"broker"`
	AccountID      string  `json:"account_id"`
	Symbol         string  `json:"symbol"`
	InstrumentType string  `json:"instrument_type"`
	Qty            float64 `json:"qty"`
	Price          float64 `json:"price"`
	MV             float64 `json:"mv"`
	Thesis         string  `json:"thesis"`
	Notes          string  `json:"notes,omitempty"`
}

// PositionsResponse is the payload of GET /api/positions.
type PositionsResponse struct {
	Positions []PositionJSON `json:"positions"`
}

// ModeChangeJSON is one mode transition row in API responses.
type ModeChangeJSON struct {
	Timestamp string  `json:"timestamp"`
	OldMode   string  `json:"old_mode"`
	NewMode   string  `json:"new_mode"`
	Equity    float64 `json:"equity"`
	Drawdown  float64 `json:"drawdown"`
}

// ModesResponse is the payload of GET /api/modes.
type ModesResponse struct {
	Changes []ModeChangeJSON `json:"changes"`
}
