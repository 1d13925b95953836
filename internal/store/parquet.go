package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/parquet-go/parquet-go"
)

// ParquetArchive writes columnar snapshots of each run's positions, one file
// per day, for offline analysis outside the SQLite history. It is a supplement
// to the Store, not a replacement: the engine's cross-run state lives in
// SQLite only.
type ParquetArchive struct {
	DataDir string
}

// NewParquetArchive creates a ParquetArchive rooted at the given directory.
func NewParquetArchive(dataDir string) *ParquetArchive {
	return &ParquetArchive{DataDir: dataDir}
}

// ArchivedPosition is the Parquet schema for one archived position row.
type ArchivedPosition struct {
	Timestamp      int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Broker         string  `parquet:"broker"`
	AccountID      string  `parquet:"account_id"`
	Symbol         string  `parquet:"symbol"`
	InstrumentType string  `parquet:"instrument_type"`
	Qty            float64 `parquet:"qty"`
	Multiplier     float64 `parquet:"multiplier"`
	Price          float64 `parquet:"price"`
	MV             float64 `parquet:"mv"`
	Currency       string  `parquet:"currency"`
	Thesis         string  `parquet:"thesis"`
}

// WritePositions appends the run's positions to that day's archive file.
// Layout: <DataDir>/positions/<YYYY>/<YYYY-MM-DD>.parquet. Re-running within
// a day merges by (timestamp, broker, account, symbol), so an identical
// rerun is idempotent.
func (a *ParquetArchive) WritePositions(_ context.Context, positions []PositionRecord) error {
	if len(positions) == 0 {
		return nil
	}

	groups := make(map[string][]ArchivedPosition)
	for _, p := range positions {
		date := p.Timestamp.Format("2006-01-02")
		groups[date] = append(groups[date], ArchivedPosition{
			Timestamp:      p.Timestamp.UnixMilli(),
			Broker:         p.Broker,
			AccountID:      p.AccountID,
			Symbol:         p.Symbol,
			InstrumentType: p.InstrumentType,
			Qty:            p.Qty,
			Multiplier:     p.Multiplier,
			Price:          p.Price,
			MV:             p.MV,
			Currency:       p.Currency,
			Thesis:         p.Thesis,
		})
	}

	for date, records := range groups {
		t, _ := time.Parse("2006-01-02", date)
		path := a.positionsPath(t)

		existing, _ := readParquetFile[ArchivedPosition](path)
		merged := mergeArchivedPositions(existing, records)

		if err := writeParquetFile(path, merged); err != nil {
			return fmt.Errorf("archiving positions for %s: %w", date, err)
		}
	}
	return nil
}

// ReadPositions returns the archived positions for a single day, sorted by
// timestamp. A missing file yields an empty result.
func (a *ParquetArchive) ReadPositions(_ context.Context, day time.Time) ([]ArchivedPosition, error) {
	records, err := readParquetFile[ArchivedPosition](a.positionsPath(day))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].Timestamp < records[j].Timestamp
	})
	return records, nil
}

// positionsPath returns the archive file path for a day.
// Layout: <DataDir>/positions/<YYYY>/<YYYY-MM-DD>.parquet
func (a *ParquetArchive) positionsPath(t time.Time) string {
	return filepath.Join(a.DataDir, "positions",
		fmt.Sprintf("%d", t.Year()), t.Format("2006-01-02")+".parquet")
}

// ---------------------------------------------------------------------------
// Parquet file helpers
// ---------------------------------------------------------------------------

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

func readParquetFile[T any](path string) ([]T, error) {
	rows, err := parquet.ReadFile[T](path)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// mergeArchivedPositions deduplicates rows by (timestamp, broker, account,
// symbol), preferring incoming rows. Results are sorted by timestamp then
// symbol.
func mergeArchivedPositions(existing, incoming []ArchivedPosition) []ArchivedPosition {
	type key struct {
		ts      int64
		broker  string
		account string
		symbol  string
	}
	seen := make(map[key]ArchivedPosition, len(existing)+len(incoming))
	for _, r := range existing {
		seen[key{r.Timestamp, r.Broker, r.AccountID, r.Symbol}] = r
	}
	for _, r := range incoming {
		seen[key{r.Timestamp, r.Broker, r.AccountID, r.Symbol}] = r
	}

	merged := make([]ArchivedPosition, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].Timestamp != merged[j].Timestamp {
			return merged[i].Timestamp < merged[j].Timestamp
		}
		return merged[i].Symbol < merged[j].Symbol
	})
	return merged
}
