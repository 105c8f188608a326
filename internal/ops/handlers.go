// Package ops exposes the operator HTTP API: runtime config, kill switch,
// leaderboard, positions, and trade statistics. Read endpoints degrade to
// empty results instead of failing so dashboards stay up during a store
// outage.
package ops

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"hijackwatch/internal/autotrader"
	"hijackwatch/internal/model"
	"hijackwatch/internal/riskctl"
)

// LeaderboardFn returns the current force leaderboard, strongest first.
type LeaderboardFn func(ctx context.Context) []model.ForceReading

// StatsFn returns the aggregated trade statistics.
type StatsFn func(ctx context.Context) autotrader.Stats

// EventsFn returns the newest hijack events. May be nil when no journal is
// wired.
type EventsFn func(ctx context.Context, limit int) ([]model.HijackEvent, error)

// Server holds the handler dependencies.
type Server struct {
	ctl         *riskctl.Controller
	store       model.PositionStore
	leaderboard LeaderboardFn
	stats       StatsFn
	events      EventsFn
	startedAt   time.Time
}

// NewServer creates the ops API server. events may be nil.
func NewServer(ctl *riskctl.Controller, store model.PositionStore, leaderboard LeaderboardFn, stats StatsFn, events EventsFn) *Server {
	return &Server{
		ctl:         ctl,
		store:       store,
		leaderboard: leaderboard,
		stats:       stats,
		events:      events,
		startedAt:   time.Now(),
	}
}

// setCORS sets CORS headers for REST endpoints.
func setCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if code != http.StatusOK {
		w.WriteHeader(code)
	}
	json.NewEncoder(w).Encode(v)
}

// RegisterRoutes registers all ops routes on the provided mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/config", s.handleConfig)
	mux.HandleFunc("/api/kill", s.handleKill)
	mux.HandleFunc("/api/release", s.handleRelease)
	mux.HandleFunc("/api/reset", s.handleReset)
	mux.HandleFunc("/api/leaderboard", s.handleLeaderboard)
	mux.HandleFunc("/api/positions", s.handlePositions)
	mux.HandleFunc("/api/stats", s.handleStats)
	mux.HandleFunc("/api/events", s.handleEvents)
	mux.HandleFunc("/health", s.handleHealth)
}

// handleConfig serves the runtime config: GET returns the snapshot, PATCH
// (or POST) merges a partial update. Invalid values are rejected with 400
// and leave the live config untouched.
func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	setCORS(w)
	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.ctl.Current())
	case http.MethodPatch, http.MethodPost:
		var patch riskctl.Patch
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
			return
		}
		cfg, err := s.ctl.Update(r.Context(), patch)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, cfg)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// handleKill engages the kill switch. Never guarded: stopping trading must
// always work.
func (s *Server) handleKill(w http.ResponseWriter, r *http.Request) {
	setCORS(w)
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Reason string `json:"reason"`
	}
	json.NewDecoder(r.Body).Decode(&req)
	if req.Reason == "" {
		req.Reason = "manual"
	}
	cfg := s.ctl.Kill(r.Context(), req.Reason)
	writeJSON(w, http.StatusOK, cfg)
}

// handleRelease disengages the kill switch, re-enabling paper trading only.
func (s *Server) handleRelease(w http.ResponseWriter, r *http.Request) {
	setCORS(w)
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		TOTP string `json:"totp"`
	}
	json.NewDecoder(r.Body).Decode(&req)
	cfg, err := s.ctl.Release(r.Context(), req.TOTP)
	if err != nil {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// handleReset restores the default config.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	setCORS(w)
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		TOTP string `json:"totp"`
	}
	json.NewDecoder(r.Body).Decode(&req)
	cfg, err := s.ctl.Reset(r.Context(), req.TOTP)
	if err != nil {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	setCORS(w)
	readings := s.leaderboard(r.Context())
	if readings == nil {
		readings = []model.ForceReading{}
	}
	writeJSON(w, http.StatusOK, readings)
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	setCORS(w)
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}
	positions, err := s.store.AllPositions(r.Context(), limit)
	if err != nil {
		log.Printf("[ops] positions query failed: %v", err)
		positions = nil
	}
	if positions == nil {
		positions = []model.Position{}
	}
	writeJSON(w, http.StatusOK, positions)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	setCORS(w)
	writeJSON(w, http.StatusOK, s.stats(r.Context()))
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	setCORS(w)
	if s.events == nil {
		writeJSON(w, http.StatusOK, []model.HijackEvent{})
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}
	events, err := s.events(r.Context(), limit)
	if err != nil {
		log.Printf("[ops] events query failed: %v", err)
		events = nil
	}
	if events == nil {
		events = []model.HijackEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	setCORS(w)
	cfg := s.ctl.Current()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":        "ok",
		"kill_switch":   cfg.KillSwitch,
		"paper_trading": cfg.PaperTrading,
		"uptime_sec":    int64(time.Since(s.startedAt).Seconds()),
		"ts":            time.Now().UTC().Format(time.RFC3339Nano),
	})
}
