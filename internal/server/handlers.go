package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/interstitch/sectorwars-intel/internal/domain"
)

// handleHealth reports liveness.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type visitRequest struct {
	ShipID   string `json:"ship_id"`
	SectorID string `json:"sector_id"`
}

func (s *Server) handleRecordVisit(w http.ResponseWriter, r *http.Request) {
	playerID := chi.URLParam(r, "playerID")
	var req visitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, domain.ErrInvalidInput)
		return
	}

	record, err := s.engine.RecordVisit(r.Context(), playerID, req.ShipID, req.SectorID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, record)
}

func (s *Server) handleHasVisited(w http.ResponseWriter, r *http.Request) {
	playerID := chi.URLParam(r, "playerID")
	sectorID := chi.URLParam(r, "sectorID")

	visits, err := s.engine.HasVisited(r.Context(), playerID, sectorID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"sector_id":   sectorID,
		"visited":     visits > 0,
		"visit_count": visits,
	})
}

type observationRequest struct {
	PortID    string  `json:"port_id"`
	SectorID  string  `json:"sector_id"`
	Commodity string  `json:"commodity"`
	Price     float64 `json:"price"`
	Quantity  int     `json:"quantity"`
}

func (s *Server) handleRecordObservation(w http.ResponseWriter, r *http.Request) {
	playerID := chi.URLParam(r, "playerID")
	var req observationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, domain.ErrInvalidInput)
		return
	}

	intel, err := s.engine.RecordObservation(r.Context(), playerID, req.PortID, req.SectorID,
		domain.Commodity(req.Commodity), req.Price, req.Quantity)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, intel)
}

func (s *Server) handleGetIntelligence(w http.ResponseWriter, r *http.Request) {
	playerID := chi.URLParam(r, "playerID")
	portID := chi.URLParam(r, "portID")
	commodity := domain.Commodity(chi.URLParam(r, "commodity"))

	intel, err := s.engine.GetIntelligence(r.Context(), playerID, portID, commodity)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if intel == nil {
		s.writeJSON(w, http.StatusNotFound, map[string]string{
			"error":   "not_found",
			"message": "no intelligence recorded for this market",
		})
		return
	}
	s.writeJSON(w, http.StatusOK, intel)
}

type forecastRequest struct {
	PortID    string `json:"port_id"`
	Commodity string `json:"commodity"`
	Quantity  int    `json:"quantity"`
}

func (s *Server) handleGenerateStates(w http.ResponseWriter, r *http.Request) {
	playerID := chi.URLParam(r, "playerID")
	var req forecastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, domain.ErrInvalidInput)
		return
	}

	states, err := s.engine.GenerateStates(r.Context(), playerID, req.PortID,
		domain.Commodity(req.Commodity), req.Quantity)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"states": states})
}

type ghostTradeRequest struct {
	PortID    string `json:"port_id"`
	Commodity string `json:"commodity"`
	Action    string `json:"action"`
	Quantity  int    `json:"quantity"`
}

func (s *Server) handleGhostTrade(w http.ResponseWriter, r *http.Request) {
	playerID := chi.URLParam(r, "playerID")
	var req ghostTradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, domain.ErrInvalidInput)
		return
	}

	result, err := s.engine.EvaluateGhostTrade(r.Context(), playerID, req.PortID,
		domain.Commodity(req.Commodity), domain.TradeAction(req.Action), req.Quantity)
	if err != nil {
		s.writeError(w, err)
		return
	}
	// Hit status travels as a header so repeat evaluations within the
	// TTL stay byte-identical in the body.
	if result.Cached {
		w.Header().Set("X-Cache", "HIT")
	} else {
		w.Header().Set("X-Cache", "MISS")
	}
	s.writeJSON(w, http.StatusOK, result)
}

type cascadeRequest struct {
	StartSectorID string  `json:"start_sector_id"`
	TargetProfit  float64 `json:"target_profit"`
	MaxJumps      int     `json:"max_jumps"`
}

func (s *Server) handlePlanCascade(w http.ResponseWriter, r *http.Request) {
	playerID := chi.URLParam(r, "playerID")
	var req cascadeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, domain.ErrInvalidInput)
		return
	}

	plan, err := s.engine.PlanCascade(r.Context(), playerID, req.StartSectorID, req.TargetProfit, req.MaxJumps)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, plan)
}

type tradeOutcomeRequest struct {
	Fingerprint string  `json:"fingerprint,omitempty"`
	Commodity   string  `json:"commodity"`
	Action      string  `json:"action"`
	Quantity    int     `json:"quantity"`
	Profit      float64 `json:"profit"`
}

func (s *Server) handleTradeOutcome(w http.ResponseWriter, r *http.Request) {
	playerID := chi.URLParam(r, "playerID")
	var req tradeOutcomeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, domain.ErrInvalidInput)
		return
	}

	pattern, err := s.engine.RecordTradeOutcome(r.Context(), playerID, domain.TradeResult{
		Fingerprint: req.Fingerprint,
		Commodity:   domain.Commodity(req.Commodity),
		Action:      domain.TradeAction(req.Action),
		Quantity:    req.Quantity,
		Profit:      req.Profit,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, pattern)
}

func (s *Server) handleTopPatterns(w http.ResponseWriter, r *http.Request) {
	playerID := chi.URLParam(r, "playerID")
	patternType := r.URL.Query().Get("type")

	patterns, err := s.engine.TopPatterns(r.Context(), playerID, patternType)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"patterns": patterns})
}

func (s *Server) handleSecurityStatus(w http.ResponseWriter, r *http.Request) {
	playerID := chi.URLParam(r, "playerID")

	status, err := s.engine.SecurityStatus(r.Context(), playerID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, status)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode response")
	}
}

// writeError maps engine errors to HTTP responses. Internal details never
// reach the client.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	code := "internal_error"
	message := "internal error"

	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		status, code, message = http.StatusForbidden, "unauthorized", "not authorized for this action"
	case errors.Is(err, domain.ErrRateLimited):
		status, code, message = http.StatusTooManyRequests, "rate_limited", "query budget exhausted, retry shortly"
	case errors.Is(err, domain.ErrInvalidInput):
		status, code, message = http.StatusBadRequest, "invalid_input", err.Error()
	case errors.Is(err, domain.ErrInsufficientExploration):
		status, code, message = http.StatusUnprocessableEntity, "insufficient_exploration", "explore more sectors to enable this"
	case errors.Is(err, domain.ErrInsufficientData):
		status, code, message = http.StatusUnprocessableEntity, "insufficient_data", "needs more visits"
	case errors.Is(err, domain.ErrNoProfitableRoute):
		status, code, message = http.StatusUnprocessableEntity, "no_profitable_routes", "no profitable routes found in explored territory"
	case errors.Is(err, domain.ErrTransientStore):
		status, code, message = http.StatusServiceUnavailable, "store_unavailable", "storage temporarily unavailable, safe to retry"
	default:
		s.log.Error().Err(err).Msg("Unhandled error in request")
	}

	s.writeJSON(w, status, map[string]string{"error": code, "message": message})
}
