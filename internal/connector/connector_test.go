package connector

import (
	"context"
	"errors"
	"testing"

	"nrg/internal/domain"
)

// fakeConnector simulates a broker source with scriptable failures.
type fakeConnector struct {
	name        string
	connectErr  error
	accountsErr error
	accounts    []string
	dataErr     map[string]error
}

func (f *fakeConnector) Name() string { return f.name }

func (f *fakeConnector) Connect(ctx context.Context) error { return f.connectErr }

func (f *fakeConnector) Accounts(ctx context.Context) ([]string, error) {
	return f.accounts, f.accountsErr
}

func (f *fakeConnector) AccountData(ctx context.Context, accountID string) (domain.AccountData, error) {
	if err := f.dataErr[accountID]; err != nil {
		return domain.AccountData{}, err
	}
	return domain.AccountData{
		Broker:    f.name,
		AccountID: accountID,
		Equity:    100000,
		Status:    domain.AccountOK,
	}, nil
}

func TestCollectAllHealthy(t *testing.T) {
	connectors := []Connector{
		&fakeConnector{name: "Schwab", accounts: []string{"A1", "A2"}},
		&fakeConnector{name: "Fidelity", accounts: []string{"Z1"}},
	}

	accounts, statuses := CollectAll(context.Background(), connectors, nil)

	if len(accounts) != 3 {
		t.Fatalf("accounts = %d, want 3", len(accounts))
	}
	for name, status := range statuses {
		if status != "OK" {
			t.Errorf("status[%q] = %q, want OK", name, status)
		}
	}
}

func TestCollectAllConnectFailure(t *testing.T) {
	connectors := []Connector{
		&fakeConnector{name: "Schwab", connectErr: errors.New("auth expired")},
		&fakeConnector{name: "Fidelity", accounts: []string{"Z1"}},
	}

	accounts, statuses := CollectAll(context.Background(), connectors, nil)

	if statuses["Schwab"] != "CONNECT_FAILED" {
		t.Errorf("Schwab status = %q, want CONNECT_FAILED", statuses["Schwab"])
	}
	if statuses["Fidelity"] != "OK" {
		t.Errorf("Fidelity status = %q, want OK", statuses["Fidelity"])
	}
	if len(accounts) != 1 || accounts[0].Broker != "Fidelity" {
		t.Fatalf("accounts = %+v, want single Fidelity account", accounts)
	}
}

func TestCollectAllAccountsError(t *testing.T) {
	connectors := []Connector{
		&fakeConnector{name: "Schwab", accountsErr: errors.New("boom")},
	}

	accounts, statuses := CollectAll(context.Background(), connectors, nil)

	if statuses["Schwab"] != "ERROR: boom" {
		t.Errorf("status = %q, want %q", statuses["Schwab"], "ERROR: boom")
	}
	if len(accounts) != 0 {
		t.Errorf("accounts = %d, want 0", len(accounts))
	}
}

func TestCollectAllPerAccountError(t *testing.T) {
	connectors := []Connector{
		&fakeConnector{
			name:     "Schwab",
			accounts: []string{"A1", "A2"},
			dataErr:  map[string]error{"A2": errors.New("timeout")},
		},
	}

	accounts, statuses := CollectAll(context.Background(), connectors, nil)

	if statuses["Schwab"] != "OK" {
		t.Errorf("broker status = %q, want OK", statuses["Schwab"])
	}
	if len(accounts) != 2 {
		t.Fatalf("accounts = %d, want 2", len(accounts))
	}
	if accounts[0].Status != domain.AccountOK {
		t.Errorf("A1 status = %v, want OK", accounts[0].Status)
	}
	if accounts[1].Status != domain.AccountError || accounts[1].ErrorMsg != "timeout" {
		t.Errorf("A2 = %+v, want ERROR with message", accounts[1])
	}
}
