package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"nrg/internal/config"
	"nrg/internal/domain"
	"nrg/internal/util"
)

// Compile-time interface check.
var _ Connector = (*SchwabConnector)(nil)

// tokenExpirySlack is how close to expiry a cached token is still trusted.
const tokenExpirySlack = 5 * time.Minute

// SchwabConnector fetches account data from the Schwab trader API using
// OAuth 2.0 with refresh-token handling and a token cache file.
type SchwabConnector struct {
	cfg        config.Schwab
	httpClient *http.Client
	limiter    *util.RateLimiter
	log        *slog.Logger

	accessToken  string
	tokenExpiry  time.Time
	refreshToken string
	accountIDs   []string
}

// NewSchwabConnector creates a SchwabConnector from its configuration.
func NewSchwabConnector(cfg config.Schwab) *SchwabConnector {
	return &SchwabConnector{
		cfg:          cfg,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		limiter:      util.NewRateLimiter(120),
		log:          slog.Default().With("connector", "schwab"),
		refreshToken: cfg.RefreshToken,
	}
}

// Name returns "Schwab".
func (c *SchwabConnector) Name() string { return "Schwab" }

// Connect validates credentials and obtains a usable access token.
func (c *SchwabConnector) Connect(ctx context.Context) error {
	if c.cfg.ClientID == "" || c.cfg.ClientSecret == "" || c.refreshToken == "" {
		return fmt.Errorf("schwab: missing client_id, client_secret, or refresh_token")
	}
	return c.ensureValidToken(ctx)
}

// Accounts returns the account numbers visible to the credentials.
func (c *SchwabConnector) Accounts(ctx context.Context) ([]string, error) {
	if len(c.accountIDs) > 0 {
		return c.accountIDs, nil
	}

	body, err := c.request(ctx, http.MethodGet, "/trader/v1/accounts/accountNumbers", nil)
	if err != nil {
		return nil, err
	}

	var entries []struct {
		AccountNumber string `json:"accountNumber"`
	}
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("schwab: decoding account numbers: %w", err)
	}

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.AccountNumber)
	}
	c.accountIDs = ids
	c.log.Info("found schwab accounts", "count", len(ids))
	return ids, nil
}

// schwabAccount mirrors the fields of GET /trader/v1/accounts/{id}?fields=positions
// that the risk engine needs.
type schwabAccount struct {
	SecuritiesAccount struct {
		CurrentBalances struct {
			LiquidationValue float64 `json:"liquidationValue"`
			CashBalance      float64 `json:"cashBalance"`
		} `json:"currentBalances"`
		Positions []schwabPosition `json:"positions"`
	} `json:"securitiesAccount"`
}

type schwabPosition struct {
	Instrument struct {
		Symbol    string `json:"symbol"`
		AssetType string `json:"assetType"`
	} `json:"instrument"`
	LongQuantity  float64 `json:"longQuantity"`
	ShortQuantity float64 `json:"shortQuantity"`
	MarketValue   float64 `json:"marketValue"`
}

// AccountData fetches equity and positions for one account.
func (c *SchwabConnector) AccountData(ctx context.Context, accountID string) (domain.AccountData, error) {
	body, err := c.request(ctx, http.MethodGet,
		"/trader/v1/accounts/"+accountID, url.Values{"fields": {"positions"}})
	if err != nil {
		return domain.AccountData{}, err
	}

	var acc schwabAccount
	if err := json.Unmarshal(body, &acc); err != nil {
		return domain.AccountData{}, fmt.Errorf("schwab: decoding account %s: %w", accountID, err)
	}

	sec := acc.SecuritiesAccount
	positions := make([]domain.Position, 0, len(sec.Positions))
	for _, pos := range sec.Positions {
		symbol := pos.Instrument.Symbol
		if symbol == "" {
			symbol = "UNKNOWN"
		}

		instType, multiplier := classifySchwabAsset(pos.Instrument.AssetType)

		qty := pos.LongQuantity - pos.ShortQuantity
		price := 0.0
		if qty != 0 {
			price = pos.MarketValue / (qty * multiplier)
		}

		positions = append(positions, domain.Position{
			Broker:         c.Name(),
			AccountID:      accountID,
			Symbol:         symbol,
			InstrumentType: instType,
			Qty:            qty,
			Multiplier:     multiplier,
			Price:          price,
			MV:             pos.MarketValue,
			Currency:       "USD",
			Notes:          "assetType=" + pos.Instrument.AssetType,
		})
	}

	return domain.AccountData{
		Broker:    c.Name(),
		AccountID: accountID,
		Equity:    sec.CurrentBalances.LiquidationValue,
		Cash:      sec.CurrentBalances.CashBalance,
		Positions: positions,
		Status:    domain.AccountOK,
	}, nil
}

// classifySchwabAsset maps a Schwab assetType to an instrument kind and
// contract multiplier.
func classifySchwabAsset(assetType string) (domain.InstrumentType, float64) {
	switch assetType {
	case "OPTION":
		return domain.InstrumentOption, 100
	case "CASH_EQUIVALENT":
		return domain.InstrumentCash, 1
	case "ETF", "COLLECTIVE_INVESTMENT":
		return domain.InstrumentETF, 1
	case "EQUITY":
		return domain.InstrumentStock, 1
	default:
		return domain.InstrumentStock, 1
	}
}

// ---------------------------------------------------------------------------
// OAuth token handling
// ---------------------------------------------------------------------------

// cachedToken is the JSON shape of the token cache file.
type cachedToken struct {
	AccessToken  string    `json:"access_token"`
	Expiry       time.Time `json:"expiry"`
	RefreshToken string    `json:"refresh_token,omitempty"`
}

// loadCachedToken restores a still-valid token from the cache file.
func (c *SchwabConnector) loadCachedToken() bool {
	data, err := os.ReadFile(c.cfg.TokenFile)
	if err != nil {
		return false
	}

	var tok cachedToken
	if err := json.Unmarshal(data, &tok); err != nil {
		c.log.Warn("failed to parse cached token", "error", err)
		return false
	}

	if time.Until(tok.Expiry) <= tokenExpirySlack {
		return false
	}
	c.accessToken = tok.AccessToken
	c.tokenExpiry = tok.Expiry
	if tok.RefreshToken != "" {
		c.refreshToken = tok.RefreshToken
	}
	c.log.Info("loaded cached schwab token")
	return true
}

// saveToken records the token in memory and in the cache file.
func (c *SchwabConnector) saveToken(accessToken string, expiresIn int, refreshToken string) {
	c.accessToken = accessToken
	c.tokenExpiry = time.Now().Add(time.Duration(expiresIn) * time.Second)
	if refreshToken != "" {
		c.refreshToken = refreshToken
	}

	tok := cachedToken{
		AccessToken:  accessToken,
		Expiry:       c.tokenExpiry,
		RefreshToken: refreshToken,
	}
	data, err := json.Marshal(tok)
	if err != nil {
		return
	}
	if dir := filepath.Dir(c.cfg.TokenFile); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			c.log.Warn("failed to create token cache dir", "error", err)
			return
		}
	}
	if err := os.WriteFile(c.cfg.TokenFile, data, 0o600); err != nil {
		c.log.Warn("failed to save token cache", "error", err)
		return
	}
	c.log.Info("saved schwab token to cache")
}

// refreshAccessToken exchanges the refresh token for a new access token.
func (c *SchwabConnector) refreshAccessToken(ctx context.Context) error {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {c.refreshToken},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/v1/oauth/token", strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.cfg.ClientID, c.cfg.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("schwab: token refresh: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("schwab: token refresh failed: %d - %s", resp.StatusCode, body)
	}

	var tok struct {
		AccessToken  string `json:"access_token"`
		ExpiresIn    int    `json:"expires_in"`
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return fmt.Errorf("schwab: decoding token response: %w", err)
	}
	if tok.ExpiresIn == 0 {
		tok.ExpiresIn = 1800
	}
	c.saveToken(tok.AccessToken, tok.ExpiresIn, tok.RefreshToken)
	return nil
}

// ensureValidToken guarantees a non-expired access token: current token,
// then cache file, then a refresh with backoff.
func (c *SchwabConnector) ensureValidToken(ctx context.Context) error {
	if c.accessToken != "" && time.Until(c.tokenExpiry) > tokenExpirySlack {
		return nil
	}
	if c.loadCachedToken() {
		return nil
	}
	return util.Retry(ctx, 3, time.Second, func() error {
		return c.refreshAccessToken(ctx)
	})
}

// ---------------------------------------------------------------------------
// Authenticated requests
// ---------------------------------------------------------------------------

// request performs one authenticated API call, refreshing the token on 401
// and honoring Retry-After on 429.
func (c *SchwabConnector) request(ctx context.Context, method, endpoint string, params url.Values) ([]byte, error) {
	if err := c.ensureValidToken(ctx); err != nil {
		return nil, err
	}

	u := c.cfg.BaseURL + endpoint
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	for attempt := 0; attempt < 3; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, method, u, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+c.accessToken)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			c.log.Warn("schwab request failed", "attempt", attempt+1, "error", err)
			if attempt == 2 {
				return nil, err
			}
			continue
		}

		switch resp.StatusCode {
		case http.StatusUnauthorized:
			resp.Body.Close()
			c.log.Warn("schwab token expired, refreshing")
			if err := c.refreshAccessToken(ctx); err != nil {
				return nil, err
			}
			continue

		case http.StatusTooManyRequests:
			retryAfter := 60
			if v := resp.Header.Get("Retry-After"); v != "" {
				if n, err := strconv.Atoi(v); err == nil {
					retryAfter = n
				}
			}
			resp.Body.Close()
			c.log.Warn("schwab rate limited", "retry_after_seconds", retryAfter)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(retryAfter) * time.Second):
			}
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("schwab: %s %s: status %d", method, endpoint, resp.StatusCode)
		}
		return body, nil
	}

	return nil, fmt.Errorf("schwab: %s %s: max retries exceeded", method, endpoint)
}
