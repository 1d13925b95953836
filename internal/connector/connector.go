// Package connector defines the Connector interface and provides broker
// implementations that produce normalized account and position data for the
// risk engine.
package connector

import (
	"context"
	"log/slog"

	"nrg/internal/domain"
)

// Connector abstracts one broker data source.
type Connector interface {
	// Name returns the broker identifier (e.g. "Schwab", "Fidelity").
	Name() string

	// Connect authenticates or otherwise prepares the data source.
	Connect(ctx context.Context) error

	// Accounts returns the account IDs available from this source.
	Accounts(ctx context.Context) ([]string, error)

	// AccountData fetches equity, cash, and positions for one account.
	AccountData(ctx context.Context, accountID string) (domain.AccountData, error)
}

// CollectAll gathers account data from every connector, isolating failures:
// a connector or account that errors contributes an ERROR-status AccountData
// (or a broker-level status entry) instead of aborting the run.
func CollectAll(ctx context.Context, connectors []Connector, log *slog.Logger) ([]domain.AccountData, map[string]string) {
	if log == nil {
		log = slog.Default()
	}
	var all []domain.AccountData
	brokerStatuses := make(map[string]string, len(connectors))

	for _, c := range connectors {
		if err := c.Connect(ctx); err != nil {
			brokerStatuses[c.Name()] = "CONNECT_FAILED"
			log.Warn("connector connect failed", "broker", c.Name(), "error", err)
			continue
		}

		ids, err := c.Accounts(ctx)
		if err != nil {
			brokerStatuses[c.Name()] = "ERROR: " + err.Error()
			log.Error("listing accounts failed", "broker", c.Name(), "error", err)
			continue
		}

		for _, id := range ids {
			data, err := c.AccountData(ctx, id)
			if err != nil {
				data = domain.AccountData{
					Broker:    c.Name(),
					AccountID: id,
					Status:    domain.AccountError,
					ErrorMsg:  err.Error(),
				}
			}
			all = append(all, data)
		}
		brokerStatuses[c.Name()] = "OK"
		log.Info("broker data loaded", "broker", c.Name(), "accounts", len(ids))
	}

	return all, brokerStatuses
}
