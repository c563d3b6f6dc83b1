// Package server exposes the governance core over HTTP. Every route is a
// thin JSON adapter over the governor; no decision logic lives here.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/DHARANI2D/AEGIS/internal/governor"
	"github.com/DHARANI2D/AEGIS/internal/investigation"
	"github.com/DHARANI2D/AEGIS/internal/ledger"
	"github.com/DHARANI2D/AEGIS/internal/logging"
	"github.com/DHARANI2D/AEGIS/internal/model"
	"github.com/DHARANI2D/AEGIS/internal/policy"
	"github.com/DHARANI2D/AEGIS/internal/store"
)

// Config holds HTTP server configuration.
type Config struct {
	Port      int
	RulesPath string
}

// Server serves the governance API.
type Server struct {
	gov  *governor.Governor
	cfg  Config
	http *http.Server
}

// New creates a server over an already constructed governor.
func New(gov *governor.Governor, cfg Config) *Server {
	s := &Server{gov: gov, cfg: cfg}
	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler builds the route table. Exposed separately for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /evaluate", s.handleEvaluate)
	mux.HandleFunc("POST /identity/issue", s.handleIssue)
	mux.HandleFunc("POST /governance/purge", s.handlePurge)
	mux.HandleFunc("GET /agents", s.handleListAgents)
	mux.HandleFunc("GET /agents/{id}", s.handleGetAgent)
	mux.HandleFunc("GET /agents/{id}/investigation", s.handleInvestigation)
	mux.HandleFunc("GET /agents/{id}/investigations", s.handleInvestigationHistory)
	mux.HandleFunc("POST /agents/{id}/restore", s.handleRestore)
	mux.HandleFunc("POST /agents/{id}/confirm-breach", s.handleConfirmBreach)
	mux.HandleFunc("GET /stats", s.handleStats)
	mux.HandleFunc("GET /logs", s.handleLogs)
	mux.HandleFunc("GET /audit/verify", s.handleVerify)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	return withRequestID(mux)
}

// Serve starts the HTTP server. Blocks until Shutdown.
func (s *Server) Serve() error {
	log.Info().Int("port", s.cfg.Port).Msg("governance API listening")
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// ReloadRules atomically swaps in the rule table from disk. Called by the
// hot-reloader on file change.
func (s *Server) ReloadRules() error {
	snap, hash, err := policy.LoadWithHash(s.cfg.RulesPath)
	if err != nil {
		return fmt.Errorf("reload rule table: %w", err)
	}
	s.gov.SetPolicy(snap, hash)
	return nil
}

func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, id := logging.WithRequestID(r.Context(), r.Header.Get("X-Request-ID"))
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type evaluateRequest struct {
	AgentID string       `json:"agent_id"`
	Intent  model.Intent `json:"intent"`
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	verdict, err := s.gov.Evaluate(req.AgentID, &req.Intent)
	if err != nil {
		writeGovernorError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, verdict)
}

type issueRequest struct {
	AgentID string `json:"agent_id"`
}

func (s *Server) handleIssue(w http.ResponseWriter, r *http.Request) {
	var req issueRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	issued, err := s.gov.IssueIdentity(req.AgentID)
	if err != nil {
		writeGovernorError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{
		"agent_id":    issued.AgentID,
		"public_key":  issued.PublicKey,
		"private_key": issued.PrivateKey,
	})
}

type purgeRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handlePurge(w http.ResponseWriter, r *http.Request) {
	var req purgeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	revoked, err := s.gov.Purge(req.Reason)
	if err != nil {
		writeGovernorError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"revoked": revoked})
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := s.gov.Agents()
	if err != nil {
		writeGovernorError(w, r, err)
		return
	}
	if agents == nil {
		agents = []*model.Agent{}
	}
	writeJSON(w, http.StatusOK, agents)
}

func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	agent, err := s.gov.Agent(r.PathValue("id"))
	if err != nil {
		writeGovernorError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, agent)
}

func (s *Server) handleInvestigation(w http.ResponseWriter, r *http.Request) {
	inv, err := s.gov.Investigation(r.PathValue("id"))
	if err != nil {
		writeGovernorError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

func (s *Server) handleInvestigationHistory(w http.ResponseWriter, r *http.Request) {
	history, err := s.gov.InvestigationHistory(r.PathValue("id"))
	if err != nil {
		writeGovernorError(w, r, err)
		return
	}
	if history == nil {
		history = []*model.Investigation{}
	}
	writeJSON(w, http.StatusOK, history)
}

type resolveRequest struct {
	Notes string `json:"notes"`
}

func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	agent, err := s.gov.Restore(r.PathValue("id"), req.Notes)
	if err != nil {
		writeGovernorError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, agent)
}

func (s *Server) handleConfirmBreach(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	agent, err := s.gov.ConfirmBreach(r.PathValue("id"), req.Notes)
	if err != nil {
		writeGovernorError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, agent)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.gov.Stats()
	if err != nil {
		writeGovernorError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", v))
			return
		}
		limit = n
	}

	entries, err := s.gov.Logs(limit)
	if err != nil {
		writeGovernorError(w, r, err)
		return
	}
	if entries == nil {
		entries = []*ledger.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	result, err := s.gov.VerifyChain()
	var integrity *ledger.IntegrityError
	if err != nil && !errors.As(err, &integrity) {
		writeGovernorError(w, r, err)
		return
	}
	// A broken chain is a well-formed verification outcome, not a 5xx.
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	_, hash := s.gov.Policy()
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"rule_hash": hash,
	})
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("encode response")
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeGovernorError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, governor.ErrInvalidIntent):
		status = http.StatusBadRequest
	case errors.Is(err, governor.ErrUnknownAgent), errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, governor.ErrAgentExists), errors.Is(err, investigation.ErrIllegalTransition):
		status = http.StatusConflict
	case errors.Is(err, ledger.ErrHalted):
		status = http.StatusServiceUnavailable
	}

	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	writeError(w, status, err)
}
