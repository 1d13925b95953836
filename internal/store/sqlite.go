package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface checks.
var _ Store = (*SQLiteStore)(nil)
var _ RunLogger = (*SQLiteStore)(nil)
var _ History = (*SQLiteStore)(nil)

// SQLiteStore implements Store, RunLogger, and History backed by a SQLite
// database. All writes are append-only inserts.
type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS equity_history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp TEXT NOT NULL,
	equity REAL NOT NULL,
	peak REAL NOT NULL,
	drawdown REAL NOT NULL,
	mode TEXT NOT NULL,
	risk_scale REAL NOT NULL,
	status TEXT NOT NULL,
	created_at TEXT DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS mode_history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp TEXT NOT NULL,
	old_mode TEXT,
	new_mode TEXT NOT NULL,
	equity REAL NOT NULL,
	drawdown REAL NOT NULL,
	created_at TEXT DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS thesis_metrics (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp TEXT NOT NULL,
	thesis TEXT NOT NULL,
	mv REAL NOT NULL,
	stress_pct REAL NOT NULL,
	budget_pct REAL NOT NULL,
	worst_loss REAL NOT NULL,
	budget_dollars REAL NOT NULL,
	utilization REAL NOT NULL,
	action TEXT,
	status TEXT NOT NULL,
	created_at TEXT DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS positions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp TEXT NOT NULL,
	broker TEXT NOT NULL,
	account_id TEXT NOT NULL,
	symbol TEXT NOT NULL,
	instrument_type TEXT NOT NULL,
	qty REAL NOT NULL,
	multiplier REAL NOT NULL,
	price REAL NOT NULL,
	mv REAL NOT NULL,
	currency TEXT NOT NULL,
	thesis TEXT NOT NULL,
	notes TEXT,
	created_at TEXT DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS run_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL,
	timestamp TEXT NOT NULL,
	status TEXT NOT NULL,
	message TEXT,
	brokers_status TEXT,
	duration_seconds REAL,
	created_at TEXT DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_equity_timestamp ON equity_history(timestamp);
CREATE INDEX IF NOT EXISTS idx_thesis_timestamp ON thesis_metrics(timestamp);
CREATE INDEX IF NOT EXISTS idx_positions_timestamp ON positions(timestamp);
`

// NewSQLiteStore opens (or creates) the database at dbPath, creating parent
// directories and the schema as needed.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const tsLayout = time.RFC3339Nano

func parseTS(s string) time.Time {
	t, err := time.Parse(tsLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// ---------------------------------------------------------------------------
// Store implementation
// ---------------------------------------------------------------------------

// GetPeak returns the maximum recorded peak equity, or 0 when the history
// is empty.
func (s *SQLiteStore) GetPeak(ctx context.Context) (float64, error) {
	var peak sql.NullFloat64
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(peak) FROM equity_history`).Scan(&peak)
	if err != nil {
		return 0, err
	}
	if !peak.Valid {
		return 0, nil
	}
	return peak.Float64, nil
}

// GetLastMode returns the mode of the most recent equity snapshot, or ""
// when the history is empty.
func (s *SQLiteStore) GetLastMode(ctx context.Context) (string, error) {
	var mode string
	err := s.db.QueryRowContext(ctx,
		`SELECT mode FROM equity_history ORDER BY timestamp DESC LIMIT 1`).Scan(&mode)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return mode, nil
}

// SaveEquitySnapshot appends one equity history row.
func (s *SQLiteStore) SaveEquitySnapshot(ctx context.Context, snap EquitySnapshot) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO equity_history
		(timestamp, equity, peak, drawdown, mode, risk_scale, status)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		snap.Timestamp.Format(tsLayout), snap.Equity, snap.Peak,
		snap.Drawdown, snap.Mode, snap.RiskScale, snap.Status)
	return err
}

// SaveModeChange appends one mode transition row.
func (s *SQLiteStore) SaveModeChange(ctx context.Context, change ModeChange) error {
	old := sql.NullString{String: change.OldMode, Valid: change.OldMode != ""}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO mode_history (timestamp, old_mode, new_mode, equity, drawdown)
		VALUES (?, ?, ?, ?, ?)`,
		change.Timestamp.Format(tsLayout), old, change.NewMode,
		change.Equity, change.Drawdown)
	return err
}

// SaveThesisMetrics appends the per-thesis rows for one run inside a single
// transaction.
func (s *SQLiteStore) SaveThesisMetrics(ctx context.Context, metrics []ThesisMetric) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO thesis_metrics
		(timestamp, thesis, mv, stress_pct, budget_pct, worst_loss,
		 budget_dollars, utilization, action, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, m := range metrics {
		action := sql.NullString{String: m.Action, Valid: m.Action != ""}
		_, err := stmt.ExecContext(ctx,
			m.Timestamp.Format(tsLayout), m.Thesis, m.MV, m.StressPct,
			m.BudgetPct, m.WorstLoss, m.BudgetDollars, m.Utilization,
			action, m.Status)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// SavePositions appends the position snapshot rows for one run inside a
// single transaction.
func (s *SQLiteStore) SavePositions(ctx context.Context, positions []PositionRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO positions
		(timestamp, broker, account_id, symbol, instrument_type, qty,
		 multiplier, price, mv, currency, thesis, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, p := range positions {
		notes := sql.NullString{String: p.Notes, Valid: p.Notes != ""}
		_, err := stmt.ExecContext(ctx,
			p.Timestamp.Format(tsLayout), p.Broker, p.AccountID, p.Symbol,
			p.InstrumentType, p.Qty, p.Multiplier, p.Price, p.MV,
			p.Currency, p.Thesis, notes)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ---------------------------------------------------------------------------
// RunLogger implementation
// ---------------------------------------------------------------------------

// LogRun appends one run log row. Broker statuses are stored as JSON.
func (s *SQLiteStore) LogRun(ctx context.Context, rec RunRecord) error {
	statuses, err := json.Marshal(rec.BrokerStatuses)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO run_log (run_id, timestamp, status, message, brokers_status, duration_seconds)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Timestamp.Format(tsLayout), rec.Status, rec.Message,
		string(statuses), rec.Duration.Seconds())
	return err
}

// ---------------------------------------------------------------------------
// History implementation
// ---------------------------------------------------------------------------

// EquityHistory returns equity snapshots for the last N days, newest first.
func (s *SQLiteStore) EquityHistory(ctx context.Context, days int) ([]EquitySnapshot, error) {
	cutoff := time.Now().AddDate(0, 0, -days).Format(tsLayout)
	rows, err := s.db.QueryContext(ctx, `
		SELECT timestamp, equity, peak, drawdown, mode, risk_scale, status
		FROM equity_history WHERE timestamp >= ?
		ORDER BY timestamp DESC`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EquitySnapshot
	for rows.Next() {
		var ts string
		var snap EquitySnapshot
		if err := rows.Scan(&ts, &snap.Equity, &snap.Peak, &snap.Drawdown,
			&snap.Mode, &snap.RiskScale, &snap.Status); err != nil {
			return nil, err
		}
		snap.Timestamp = parseTS(ts)
		out = append(out, snap)
	}
	return out, rows.Err()
}

// ThesisHistory returns metric rows for one thesis over the last N days,
// newest first.
func (s *SQLiteStore) ThesisHistory(ctx context.Context, thesis string, days int) ([]ThesisMetric, error) {
	cutoff := time.Now().AddDate(0, 0, -days).Format(tsLayout)
	rows, err := s.db.QueryContext(ctx, `
		SELECT timestamp, thesis, mv, stress_pct, budget_pct, worst_loss,
		       budget_dollars, utilization, action, status
		FROM thesis_metrics WHERE thesis = ? AND timestamp >= ?
		ORDER BY timestamp DESC`, thesis, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ThesisMetric
	for rows.Next() {
		var ts string
		var action sql.NullString
		var m ThesisMetric
		if err := rows.Scan(&ts, &m.Thesis, &m.MV, &m.StressPct, &m.BudgetPct,
			&m.WorstLoss, &m.BudgetDollars, &m.Utilization, &action,
			&m.Status); err != nil {
			return nil, err
		}
		m.Timestamp = parseTS(ts)
		m.Action = action.String
		out = append(out, m)
	}
	return out, rows.Err()
}

// LatestPositions returns the most recent position snapshot, largest market
// value first.
func (s *SQLiteStore) LatestPositions(ctx context.Context) ([]PositionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT timestamp, broker, account_id, symbol, instrument_type, qty,
		       multiplier, price, mv, currency, thesis, notes
		FROM positions
		WHERE timestamp = (SELECT MAX(timestamp) FROM positions)
		ORDER BY mv DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PositionRecord
	for rows.Next() {
		var ts string
		var notes sql.NullString
		var p PositionRecord
		if err := rows.Scan(&ts, &p.Broker, &p.AccountID, &p.Symbol,
			&p.InstrumentType, &p.Qty, &p.Multiplier, &p.Price, &p.MV,
			&p.Currency, &p.Thesis, &notes); err != nil {
			return nil, err
		}
		p.Timestamp = parseTS(ts)
		p.Notes = notes.String
		out = append(out, p)
	}
	return out, rows.Err()
}

// ModeHistory returns the most recent mode transitions, newest first.
func (s *SQLiteStore) ModeHistory(ctx context.Context, limit int) ([]ModeChange, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT timestamp, old_mode, new_mode, equity, drawdown
		FROM mode_history ORDER BY timestamp DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ModeChange
	for rows.Next() {
		var ts string
		var old sql.NullString
		var c ModeChange
		if err := rows.Scan(&ts, &old, &c.NewMode, &c.Equity, &c.Drawdown); err != nil {
			return nil, err
		}
		c.Timestamp = parseTS(ts)
		c.OldMode = old.String
		out = append(out, c)
	}
	return out, rows.Err()
}
