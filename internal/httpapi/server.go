// Package httpapi serves a read-only JSON view of the persisted risk state
// for dashboard consumption.
package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"nrg/internal/store"
)

const defaultHistoryDays = 30

// HistoryServer serves the history HTTP API.
type HistoryServer struct {
	history store.History
	log     *slog.Logger
}

// NewHistoryServer creates a new history HTTP server over the given store.
func NewHistoryServer(history store.History, log *slog.Logger) *HistoryServer {
	return &HistoryServer{history: history, log: log}
}

// RegisterRoutes registers all API routes on the given mux.
func (s *HistoryServer) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/equity", s.handleEquity)
	mux.HandleFunc("GET /api/thesis/{name}", s.handleThesis)
	mux.HandleFunc("GET /api/positions", s.handlePositions)
	mux.HandleFunc("GET /api/modes", s.handleModes)
}

// Handler returns an http.Handler with CORS middleware.
func (s *HistoryServer) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// parseIntParam extracts a positive integer query param, falling back to def.
func parseIntParam(r *http.Request, name string, def int) int {
	s := r.URL.Query().Get(name)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func (s *HistoryServer) handleEquity(w http.ResponseWriter, r *http.Request) {
	days := parseIntParam(r, "days", defaultHistoryDays)

	snaps, err := s.history.EquityHistory(r.Context(), days)
	if err != nil {
		s.log.Error("querying equity history", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read equity history")
		return
	}

	points := make([]EquityPointJSON, 0, len(snaps))
	for _, snap := range snaps {
		points = append(points, EquityPointJSON{
			Timestamp: snap.Timestamp.Format(time.RFC3339),
			Equity:    snap.Equity,
			Peak:      snap.Peak,
			Drawdown:  snap.Drawdown,
			Mode:      snap.Mode,
			RiskScale: snap.RiskScale,
			Status:    snap.Status,
		})
	}
	writeJSON(w, EquityResponse{Days: days, Points: points})
}

func (s *HistoryServer) handleThesis(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if name == "" {
		writeError(w, http.StatusBadRequest, "thesis name required")
		return
	}
	days := parseIntParam(r, "days", defaultHistoryDays)

	metrics, err := s.history.ThesisHistory(r.Context(), name, days)
	if err != nil {
		s.log.Error("querying thesis history", "thesis", name, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read thesis history")
		return
	}

	points := make([]ThesisPointJSON, 0, len(metrics))
	for _, m := range metrics {
		points = append(points, ThesisPointJSON{
			Timestamp:     m.Timestamp.Format(time.RFC3339),
			Thesis:        m.Thesis,
			MV:            m.MV,
			StressPct:     m.StressPct,
			BudgetPct:     m.BudgetPct,
			WorstLoss:     m.WorstLoss,
			BudgetDollars: m.BudgetDollars,
			Utilization:   m.Utilization,
			Action:        m.Action,
			Status:        m.Status,
		})
	}
	writeJSON(w, ThesisResponse{Thesis: name, Days: days, Points: points})
}

func (s *HistoryServer) handlePositions(w http.ResponseWriter, r *http.Request) {
	records, err := s.history.LatestPositions(r.Context())
	if err != nil {
		s.log.Error("querying latest positions", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read positions")
		return
	}

	positions := make([]PositionJSON, 0, len(records))
	for _, rec := range records {
		positions = append(positions, PositionJSON{
			Timestamp:      rec.Timestamp.Format(time.RFC3339),
			Broker:         rec.Broker,
			AccountID:      rec.AccountID,
			Symbol:         rec.Symbol,
			InstrumentType: rec.InstrumentType,
			Qty:            rec.Qty,
			Price:          rec.Price,
			MV:             rec.MV,
			Thesis:         rec.Thesis,
			Notes:          rec.Notes,
		})
	}
	writeJSON(w, PositionsResponse{Positions: positions})
}

func (s *HistoryServer) handleModes(w http.ResponseWriter, r *http.Request) {
	limit := parseIntParam(r, "limit", 20)

	changes, err := s.history.ModeHistory(r.Context(), limit)
	if err != nil {
		s.log.Error("querying mode history", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read mode history")
		return
	}

	out := make([]ModeChangeJSON, 0, len(changes))
	for _, c := range changes {
		out = append(out, ModeChangeJSON{
			Timestamp: c.Timestamp.Format(time.RFC3339),
			OldMode:   c.OldMode,
			NewMode:   c.NewMode,
			Equity:    c.Equity,
			Drawdown:  c.Drawdown,
		})
	}
	writeJSON(w, ModesResponse{Changes: out})
}
