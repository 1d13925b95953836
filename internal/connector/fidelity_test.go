package connector

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"nrg/internal/config"
	"nrg/internal/domain"
)

const sampleFidelityCSV = `Account positions as of Mar-02-2026

Account Number,Symbol,Description,Quantity,Last Price,Current Value,Type
Z12345678,NVDA,NVIDIA CORP,100,"$500.00","$50,000.00",Stock
Z12345678,SPAXX,FIDELITY GOVERNMENT MONEY MARKET,5000,$1.00,"$5,000.00",Cash
Z12345678,LMT260619C500,LOCKHEED MARTIN CALL OPTION,2,$10.00,"$2,000.00",Option
Z12345678,XYZ,SOME LOSER,10,$50.00,"($500.00)",Stock
Z98765432,ITA,ISHARES US AEROSPACE DEFENSE ETF,80,$125.00,"$10,000.00",ETF
Account Total,,,,,"$66,500.00",
`

func writeFidelityCSV(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("writing csv: %v", err)
	}
}

func TestFidelityParsesLatestCSV(t *testing.T) {
	dir := t.TempDir()
	writeFidelityCSV(t, dir, "positions.csv", sampleFidelityCSV)

	c := NewFidelityConnector(config.Fidelity{Enabled: true, CSVDir: dir})
	ctx := context.Background()

	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	ids, err := c.Accounts(ctx)
	if err != nil {
		t.Fatalf("Accounts: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("Accounts = %v, want 2 accounts", ids)
	}

	acc, err := c.AccountData(ctx, "Z12345678")
	if err != nil {
		t.Fatalf("AccountData: %v", err)
	}
	if acc.Broker != "Fidelity" || acc.Status != domain.AccountOK {
		t.Errorf("account = %+v", acc)
	}
	if len(acc.Positions) != 4 {
		t.Fatalf("positions = %d, want 4 (total row skipped)", len(acc.Positions))
	}

	// Equity is the sum of position market values: 50000 + 5000 + 2000 - 500.
	if acc.Equity != 56500 {
		t.Errorf("Equity = %v, want 56500", acc.Equity)
	}
	if acc.Cash != 5000 {
		t.Errorf("Cash = %v, want 5000 from money market", acc.Cash)
	}

	bySymbol := make(map[string]domain.Position)
	for _, p := range acc.Positions {
		bySymbol[p.Symbol] = p
	}

	if p := bySymbol["NVDA"]; p.InstrumentType != domain.InstrumentStock || p.MV != 50000 {
		t.Errorf("NVDA = %+v", p)
	}
	if p := bySymbol["SPAXX"]; p.InstrumentType != domain.InstrumentCash {
		t.Errorf("SPAXX type = %v, want CASH", p.InstrumentType)
	}
	if p := bySymbol["LMT260619C500"]; p.InstrumentType != domain.InstrumentOption || p.Multiplier != 100 {
		t.Errorf("option = %+v", p)
	}
	if p := bySymbol["XYZ"]; p.MV != -500 {
		t.Errorf("XYZ MV = %v, want -500 from parenthesized value", p.MV)
	}

	other, err := c.AccountData(ctx, "Z98765432")
	if err != nil {
		t.Fatalf("AccountData: %v", err)
	}
	if len(other.Positions) != 1 || other.Positions[0].InstrumentType != domain.InstrumentETF {
		t.Errorf("second account = %+v", other)
	}
}

func TestFidelityPicksNewestCSV(t *testing.T) {
	dir := t.TempDir()
	writeFidelityCSV(t, dir, "old.csv", "Symbol,Quantity,Current Value\nOLD,1,$1.00\n")
	oldPath := filepath.Join(dir, "old.csv")
	past := time.Now().Add(-time.Hour)
	if err := os.Chtimes(oldPath, past, past); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	writeFidelityCSV(t, dir, "new.csv", "Symbol,Quantity,Current Value\nNEW,1,$2.00\n")

	c := NewFidelityConnector(config.Fidelity{CSVDir: dir})
	acc, err := c.AccountData(context.Background(), "default")
	if err != nil {
		t.Fatalf("AccountData: %v", err)
	}
	if len(acc.Positions) != 1 || acc.Positions[0].Symbol != "NEW" {
		t.Errorf("positions = %+v, want only the newer file's row", acc.Positions)
	}
}

func TestFidelityNoCSVFails(t *testing.T) {
	c := NewFidelityConnector(config.Fidelity{CSVDir: t.TempDir()})
	if err := c.Connect(context.Background()); err == nil {
		t.Fatal("Connect succeeded with no CSV files")
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"$1,234.56", 1234.56},
		{"(500.00)", -500},
		{"($1,000.00)", -1000},
		{"100", 100},
		{"--", 0},
		{"n/a", 0},
		{"", 0},
		{"garbage", 0},
	}
	for _, tt := range tests {
		if got := parseAmount(tt.in); got != tt.want {
			t.Errorf("parseAmount(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestClassifyFidelityRow(t *testing.T) {
	tests := []struct {
		symbol, description, typeStr string
		want                         domain.InstrumentType
	}{
		{"SPAXX", "FIDELITY GOVERNMENT MONEY MARKET", "", domain.InstrumentCash},
		{"FDRXX", "", "", domain.InstrumentCash},
		{"NVDA260619C1000", "", "", domain.InstrumentOption},
		{"AAPL", "APPLE JAN 500 CALL", "", domain.InstrumentOption},
		{"ITA", "AEROSPACE ETF", "", domain.InstrumentETF},
		{"VTI", "", "ETF", domain.InstrumentETF},
		{"NVDA", "NVIDIA CORP", "Stock", domain.InstrumentStock},
	}
	for _, tt := range tests {
		if got := classifyFidelityRow(tt.symbol, tt.description, tt.typeStr); got != tt.want {
			t.Errorf("classifyFidelityRow(%q, %q, %q) = %v, want %v",
				tt.symbol, tt.description, tt.typeStr, got, tt.want)
		}
	}
}
