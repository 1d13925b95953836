package connector

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"nrg/internal/config"
	"nrg/internal/domain"
)

// Compile-time interface check.
var _ Connector = (*FidelityConnector)(nil)

// FidelityConnector parses exported position CSV files from the Fidelity
// website. It watches a configured directory and reads the newest file.
type FidelityConnector struct {
	cfg config.Fidelity
	log *slog.Logger

	latestFile string
	parsed     []domain.AccountData
}

// NewFidelityConnector creates a FidelityConnector from its configuration.
func NewFidelityConnector(cfg config.Fidelity) *FidelityConnector {
	return &FidelityConnector{
		cfg: cfg,
		log: slog.Default().With("connector", "fidelity"),
	}
}

// Name returns "Fidelity".
func (c *FidelityConnector) Name() string { return "Fidelity" }

// Connect locates the newest CSV export in the watched directory.
func (c *FidelityConnector) Connect(_ context.Context) error {
	latest, err := c.findLatestCSV()
	if err != nil {
		return err
	}
	c.latestFile = latest
	c.log.Info("fidelity connector ready", "file", filepath.Base(latest))
	return nil
}

// Accounts returns the account IDs found in the parsed CSV.
func (c *FidelityConnector) Accounts(ctx context.Context) ([]string, error) {
	if err := c.ensureParsed(ctx); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(c.parsed))
	for _, acc := range c.parsed {
		ids = append(ids, acc.AccountID)
	}
	return ids, nil
}

// AccountData returns the parsed data for one account.
func (c *FidelityConnector) AccountData(ctx context.Context, accountID string) (domain.AccountData, error) {
	if err := c.ensureParsed(ctx); err != nil {
		return domain.AccountData{}, err
	}
	for _, acc := range c.parsed {
		if acc.AccountID == accountID {
			return acc, nil
		}
	}
	return domain.AccountData{}, fmt.Errorf("fidelity: account %s not found in CSV", accountID)
}

func (c *FidelityConnector) ensureParsed(ctx context.Context) error {
	if c.parsed != nil {
		return nil
	}
	if c.latestFile == "" {
		if err := c.Connect(ctx); err != nil {
			return err
		}
	}
	parsed, err := c.parseCSV(c.latestFile)
	if err != nil {
		return err
	}
	c.parsed = parsed
	return nil
}

// findLatestCSV returns the newest *.csv file in the watched directory by
// modification time.
func (c *FidelityConnector) findLatestCSV() (string, error) {
	entries, err := os.ReadDir(c.cfg.CSVDir)
	if err != nil {
		return "", fmt.Errorf("fidelity: csv directory: %w", err)
	}

	type candidate struct {
		path  string
		mtime int64
	}
	var files []candidate
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".csv") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, candidate{
			path:  filepath.Join(c.cfg.CSVDir, e.Name()),
			mtime: info.ModTime().UnixNano(),
		})
	}
	if len(files) == 0 {
		return "", fmt.Errorf("fidelity: no CSV files in %s", c.cfg.CSVDir)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].mtime > files[j].mtime })
	return files[0].path, nil
}

// ---------------------------------------------------------------------------
// CSV parsing
// ---------------------------------------------------------------------------

// Column name aliases seen across Fidelity export variants.
var fidelityColumns = map[string][]string{
	"symbol":      {"Symbol", "symbol", "SYMBOL"},
	"description": {"Description", "description", "Security Description"},
	"quantity":    {"Quantity", "quantity", "Shares", "shares", "Qty"},
	"price":       {"Last Price", "Price", "price", "Last"},
	"value":       {"Current Value", "Market Value", "Value", "value"},
	"account":     {"Account Number", "Account", "account", "Account Name/Number"},
	"type":        {"Type", "Security Type", "Asset Class"},
}

// findColumn returns the index of the first header matching one of the
// aliases for key, or -1.
func findColumn(headers []string, key string) int {
	for i, h := range headers {
		h = strings.TrimSpace(h)
		for _, alias := range fidelityColumns[key] {
			if h == alias {
				return i
			}
		}
	}
	return -1
}

// parseAmount parses Fidelity number formats: "$1,234.56" -> 1234.56,
// "(500.00)" -> -500. Blank and placeholder values parse to zero.
func parseAmount(s string) float64 {
	s = strings.TrimSpace(s)
	switch s {
	case "", "--", "n/a", "N/A":
		return 0
	}
	s = strings.NewReplacer("$", "", ",", "", " ", "").Replace(s)
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		s = "-" + s[1:len(s)-1]
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

// OCC-style option symbols: root + 6-digit date + C/P + strike.
var optionSymbolRe = regexp.MustCompile(`^[A-Z]+\d{6}[CP]\d+`)

// classifyFidelityRow infers the instrument type from symbol, description,
// and type columns.
func classifyFidelityRow(symbol, description, typeStr string) domain.InstrumentType {
	symbolUpper := strings.ToUpper(symbol)
	descUpper := strings.ToUpper(description)
	typeUpper := strings.ToUpper(typeStr)

	for _, marker := range []string{"MONEY MARKET", "CASH", "SPAXX", "FDRXX"} {
		if strings.Contains(descUpper, marker) {
			return domain.InstrumentCash
		}
	}
	switch symbolUpper {
	case "SPAXX", "FDRXX", "CORE", "CASH":
		return domain.InstrumentCash
	}

	for _, marker := range []string{"CALL", "PUT", "OPTION"} {
		if strings.Contains(descUpper, marker) {
			return domain.InstrumentOption
		}
	}
	if optionSymbolRe.MatchString(symbolUpper) {
		return domain.InstrumentOption
	}

	if strings.Contains(typeUpper, "ETF") || strings.Contains(descUpper, "ETF") {
		return domain.InstrumentETF
	}

	return domain.InstrumentStock
}

// parseCSV parses a Fidelity positions export into per-account data. Equity
// per account is the sum of position market values; cash rows are also
// accumulated into the Cash field.
func (c *FidelityConnector) parseCSV(path string) ([]domain.AccountData, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("fidelity: reading csv: %w", err)
	}
	content := strings.TrimPrefix(string(raw), "\ufeff")

	// Exports often carry preamble lines before the real header row.
	lines := strings.Split(strings.TrimSpace(content), "\n")
	headerIdx := 0
	for i, line := range lines {
		if strings.Contains(line, "Symbol") || strings.Contains(line, "Quantity") ||
			strings.Contains(line, "Current Value") {
			headerIdx = i
			break
		}
	}

	reader := csv.NewReader(strings.NewReader(strings.Join(lines[headerIdx:], "\n")))
	reader.FieldsPerRecord = -1

	headers, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("fidelity: reading header: %w", err)
	}

	symbolCol := findColumn(headers, "symbol")
	if symbolCol < 0 {
		return nil, fmt.Errorf("fidelity: no Symbol column in %s", filepath.Base(path))
	}
	qtyCol := findColumn(headers, "quantity")
	priceCol := findColumn(headers, "price")
	valueCol := findColumn(headers, "value")
	accountCol := findColumn(headers, "account")
	typeCol := findColumn(headers, "type")
	descCol := findColumn(headers, "description")

	field := func(row []string, col int) string {
		if col < 0 || col >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[col])
	}

	accounts := make(map[string]*domain.AccountData)
	var order []string

	for {
		row, err := reader.Read()
		if err != nil {
			break
		}

		symbol := field(row, symbolCol)
		if symbol == "" || strings.EqualFold(symbol, "total") ||
			strings.EqualFold(symbol, "account total") {
			continue
		}

		accountID := field(row, accountCol)
		if accountID == "" {
			accountID = "default"
		} else if i := strings.IndexByte(accountID, ' '); i > 0 {
			accountID = accountID[:i]
		}

		qty := parseAmount(field(row, qtyCol))
		price := parseAmount(field(row, priceCol))
		mv := parseAmount(field(row, valueCol))
		if mv != 0 && price == 0 && qty != 0 {
			price = mv / qty
		}
		if price != 0 && qty != 0 && mv == 0 {
			mv = price * qty
		}

		description := field(row, descCol)
		instType := classifyFidelityRow(symbol, description, field(row, typeCol))
		multiplier := 1.0
		if instType == domain.InstrumentOption {
			multiplier = 100
		}

		notes := description
		if len(notes) > 100 {
			notes = notes[:100]
		}

		acc, ok := accounts[accountID]
		if !ok {
			acc = &domain.AccountData{
				Broker:    c.Name(),
				AccountID: accountID,
				Status:    domain.AccountOK,
			}
			accounts[accountID] = acc
			order = append(order, accountID)
		}

		acc.Positions = append(acc.Positions, domain.Position{
			Broker:         c.Name(),
			AccountID:      accountID,
			Symbol:         symbol,
			InstrumentType: instType,
			Qty:            qty,
			Multiplier:     multiplier,
			Price:          price,
			MV:             mv,
			Currency:       "USD",
			Notes:          notes,
		})
		if instType == domain.InstrumentCash {
			acc.Cash += mv
		}
	}

	out := make([]domain.AccountData, 0, len(order))
	for _, id := range order {
		acc := accounts[id]
		for _, p := range acc.Positions {
			acc.Equity += p.MV
		}
		out = append(out, *acc)
	}
	return out, nil
}
