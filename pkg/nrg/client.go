// Package nrg provides a Go client for the nrg-server history API.
package nrg

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Client provides a Go SDK for interacting with the nrg-server API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new nrg API client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// EquityPoint is one row of the account equity history.
type EquityPoint struct {
	Timestamp string  `json:"timestamp"`
	Equity    float64 `json:"equity"`
	Peak      float64 `json:"peak"`
	Drawdown  float64 `json:"drawdown"`
	Mode      string  `json:"mode"`
	RiskScale float64 `json:"risk_scale"`
	Status    string  `json:"status"`
}

// ThesisPoint is one row of a thesis metric history.
type ThesisPoint struct {
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

// Position is one row of the latest position snapshot.
type Position struct {
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

// ModeChange is one recorded risk mode transition.
type ModeChange struct {
	Timestamp string  `json:"timestamp"`
	OldMode   string  `json:"old_mode"`
	NewMode   string  `json:"new_mode"`
	Equity    float64 `json:"equity"`
	Drawdown  float64 `json:"drawdown"`
}

// GetEquityHistory retrieves equity history for the last days days.
// Zero days uses the server default.
func (c *Client) GetEquityHistory(ctx context.Context, days int) ([]EquityPoint, error) {
	params := url.Values{}
	if days > 0 {
		params.Set("days", strconv.Itoa(days))
	}
	var resp struct {
		Points []EquityPoint `json:"points"`
	}
	if err := c.get(ctx, "/api/equity", params, &resp); err != nil {
		return nil, err
	}
	return resp.Points, nil
}

// GetThesisHistory retrieves metric history for one thesis.
// Zero days uses the server default.
func (c *Client) GetThesisHistory(ctx context.Context, thesis string, days int) ([]ThesisPoint, error) {
	params := url.Values{}
	if days > 0 {
		params.Set("days", strconv.Itoa(days))
	}
	var resp struct {
		Points []ThesisPoint `json:"points"`
	}
	if err := c.get(ctx, "/api/thesis/"+url.PathEscape(thesis), params, &resp); err != nil {
		return nil, err
	}
	return resp.Points, nil
}

// GetPositions retrieves the position snapshot from the most recent run.
func (c *Client) GetPositions(ctx context.Context) ([]Position, error) {
	var resp struct {
		Positions []Position `json:"positions"`
	}
	if err := c.get(ctx, "/api/positions", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Positions, nil
}

// GetModeChanges retrieves the most recent mode transitions, newest first.
// Zero limit uses the server default.
func (c *Client) GetModeChanges(ctx context.Context, limit int) ([]ModeChange, error) {
	params := url.Values{}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	var resp struct {
		Changes []ModeChange `json:"changes"`
	}
	if err := c.get(ctx, "/api/modes", params, &resp); err != nil {
		return nil, err
	}
	return resp.Changes, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("nrg: GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("nrg: GET %s: status %d - %s", path, resp.StatusCode, body)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("nrg: decoding %s response: %w", path, err)
	}
	return nil
}
