// Package publish writes run results to CSV files with a stable schema for
// dashboard consumption. Account, thesis, and position files are rewritten
// each run; the snapshots file is append-only history.
package publish

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"nrg/internal/domain"
)

// Output file names under the publish directory.
const (
	AccountFile   = "account.csv"
	ThesisFile    = "thesis.csv"
	PositionsFile = "positions.csv"
	SnapshotsFile = "snapshots.csv"
)

// Publisher writes dashboard CSV files into a directory.
type Publisher struct {
	dir string
	log *slog.Logger
}

// NewPublisher creates a Publisher writing into dir.
func NewPublisher(dir string) *Publisher {
	return &Publisher{
		dir: dir,
		log: slog.Default().With("component", "publisher"),
	}
}

// WriteAll writes every dashboard file for one run result.
func (p *Publisher) WriteAll(result *domain.RiskResult) error {
	if err := os.MkdirAll(p.dir, 0o755); err != nil {
		return fmt.Errorf("publish: creating directory: %w", err)
	}
	if err := p.writeAccount(result); err != nil {
		return err
	}
	if err := p.writeThesis(result); err != nil {
		return err
	}
	if err := p.writePositions(result); err != nil {
		return err
	}
	if err := p.appendSnapshot(result); err != nil {
		return err
	}
	p.log.Info("published dashboard files", "dir", p.dir)
	return nil
}

func (p *Publisher) writeAccount(result *domain.RiskResult) error {
	rows := [][]string{
		{"DateTime", "Equity", "Peak", "Drawdown", "Mode", "RiskScale", "Status"},
		{
			result.Timestamp.Format(time.RFC3339),
			num(result.Equity),
			num(result.Peak),
			num(result.Drawdown),
			string(result.Mode),
			num(result.RiskScale),
			string(result.Status),
		},
	}
	return p.writeFile(AccountFile, rows)
}

func (p *Publisher) writeThesis(result *domain.RiskResult) error {
	rows := [][]string{{
		"Thesis", "MV", "Stress%", "Budget%", "WorstLoss",
		"Budget$", "Utilization", "Action", "Status", "Falsifier",
	}}
	for _, t := range result.ThesisResults {
		rows = append(rows, []string{
			t.Name,
			num(t.MV),
			num(t.StressPct),
			num(t.BudgetPct),
			num(t.WorstLoss),
			num(t.BudgetDollars),
			num(t.Utilization),
			t.Action,
			string(t.Status),
			t.Falsifier,
		})
	}
	return p.writeFile(ThesisFile, rows)
}

func (p *Publisher) writePositions(result *domain.RiskResult) error {
	rows := [][]string{{
		"Broker", "Account", "Symbol", "Type", "Qty",
		"Price", "MV", "Thesis", "Notes",
	}}
	for _, pos := range result.Positions {
		rows = append(rows, []string{
			pos.Broker,
			pos.AccountID,
			pos.Symbol,
			string(pos.InstrumentType),
			num(pos.Qty),
			num(pos.Price),
			num(pos.MV),
			pos.Thesis,
			pos.Notes,
		})
	}
	return p.writeFile(PositionsFile, rows)
}

// appendSnapshot appends one history row, writing the header first when the
// file does not exist yet.
func (p *Publisher) appendSnapshot(result *domain.RiskResult) error {
	path := filepath.Join(p.dir, SnapshotsFile)

	_, statErr := os.Stat(path)
	newFile := os.IsNotExist(statErr)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("publish: opening %s: %w", SnapshotsFile, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if newFile {
		header := []string{
			"DateTime", "Equity", "Peak", "Drawdown", "Mode", "RiskScale",
			"Status", "TopThesis", "TopUtil", "NumActions", "ActionSummary",
		}
		if err := w.Write(header); err != nil {
			return fmt.Errorf("publish: writing snapshot header: %w", err)
		}
	}

	topThesis, topUtil := "", 0.0
	if len(result.ThesisResults) > 0 {
		topThesis = result.ThesisResults[0].Name
		topUtil = result.ThesisResults[0].Utilization
	}
	actionSummary := strings.Join(result.Actions[:min(len(result.Actions), 3)], "; ")
	if len(actionSummary) > 200 {
		actionSummary = actionSummary[:200]
	}

	row := []string{
		result.Timestamp.Format(time.RFC3339),
		num(result.Equity),
		num(result.Peak),
		num(result.Drawdown),
		string(result.Mode),
		num(result.RiskScale),
		string(result.Status),
		topThesis,
		num(topUtil),
		strconv.Itoa(len(result.Actions)),
		actionSummary,
	}
	if err := w.Write(row); err != nil {
		return fmt.Errorf("publish: appending snapshot: %w", err)
	}
	w.Flush()
	return w.Error()
}

func (p *Publisher) writeFile(name string, rows [][]string) error {
	f, err := os.Create(filepath.Join(p.dir, name))
	if err != nil {
		return fmt.Errorf("publish: creating %s: %w", name, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("publish: writing %s: %w", name, err)
	}
	return nil
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
