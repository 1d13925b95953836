package connector

import (
	"context"
	"fmt"
	"log/slog"

	alpacaapi "github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/shopspring/decimal"

	"nrg/internal/config"
	"nrg/internal/domain"
)

// Compile-time interface check.
var _ Connector = (*AlpacaConnector)(nil)

// AlpacaConnector reads account equity and positions from the Alpaca
// brokerage API.
type AlpacaConnector struct {
	client *alpacaapi.Client
	log    *slog.Logger

	accountID string
}

// NewAlpacaConnector creates an AlpacaConnector from its configuration.
func NewAlpacaConnector(cfg config.Alpaca) *AlpacaConnector {
	return &AlpacaConnector{
		client: alpacaapi.NewClient(alpacaapi.ClientOpts{
			APIKey:    cfg.APIKey,
			APISecret: cfg.APISecret,
			BaseURL:   cfg.BaseURL,
		}),
		log: slog.Default().With("connector", "alpaca"),
	}
}

// Name returns "Alpaca".
func (c *AlpacaConnector) Name() string { return "Alpaca" }

// Connect verifies the credentials by fetching the account.
func (c *AlpacaConnector) Connect(_ context.Context) error {
	acct, err := c.client.GetAccount()
	if err != nil {
		return fmt.Errorf("alpaca: get account: %w", err)
	}
	c.accountID = acct.AccountNumber
	c.log.Info("alpaca connector ready", "account", c.accountID, "status", acct.Status)
	return nil
}

// Accounts returns the single account behind the API credentials.
func (c *AlpacaConnector) Accounts(ctx context.Context) ([]string, error) {
	if c.accountID == "" {
		if err := c.Connect(ctx); err != nil {
			return nil, err
		}
	}
	return []string{c.accountID}, nil
}

// AccountData fetches equity, cash, and open positions for the account.
func (c *AlpacaConnector) AccountData(_ context.Context, accountID string) (domain.AccountData, error) {
	acct, err := c.client.GetAccount()
	if err != nil {
		return domain.AccountData{}, fmt.Errorf("alpaca: get account: %w", err)
	}

	positions, err := c.client.GetPositions()
	if err != nil {
		return domain.AccountData{}, fmt.Errorf("alpaca: get positions: %w", err)
	}

	data := domain.AccountData{
		Broker:    c.Name(),
		AccountID: accountID,
		Equity:    acct.Equity.InexactFloat64(),
		Cash:      acct.Cash.InexactFloat64(),
		Status:    domain.AccountOK,
	}

	for _, p := range positions {
		instType := domain.InstrumentStock
		multiplier := 1.0
		if p.AssetClass == "us_option" {
			instType = domain.InstrumentOption
			multiplier = 100
		}
		data.Positions = append(data.Positions, domain.Position{
			Broker:         c.Name(),
			AccountID:      accountID,
			Symbol:         p.Symbol,
			InstrumentType: instType,
			Qty:            p.Qty.InexactFloat64(),
			Multiplier:     multiplier,
			Price:          decimalValue(p.CurrentPrice),
			MV:             decimalValue(p.MarketValue),
			Currency:       "USD",
		})
	}
	return data, nil
}

func decimalValue(d *decimal.Decimal) float64 {
	if d == nil {
		return 0
	}
	return d.InexactFloat64()
}
