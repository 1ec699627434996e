package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/Moneymaker1996/finivo-backend/internal/impulse"
	"github.com/Moneymaker1996/finivo-backend/internal/memory"
	"github.com/Moneymaker1996/finivo-backend/internal/models"
	"github.com/Moneymaker1996/finivo-backend/internal/nudge"
	"github.com/Moneymaker1996/finivo-backend/internal/plan"
)

// earnEntry is one E.A.R.N. session as returned by the inspection endpoint.
type earnEntry struct {
	Plan      plan.Tier          `json:"plan"`
	Timestamp time.Time          `json:"timestamp"`
	Source    models.Source      `json:"source"`
	Intent    string             `json:"intent"`
	Script    *models.EARNScript `json:"earn_script"`
}

type earnSessionsResponse struct {
	UserID  int64       `json:"user_id"`
	Entries []earnEntry `json:"entries"`
}

type planUpdateResponse struct {
	UserID int64     `json:"user_id"`
	Plan   plan.Tier `json:"plan"`
}

type memoryStoreResponse struct {
	UserID int64 `json:"user_id"`
	Stored bool  `json:"stored"`
}

func userIDFromPath(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)["user_id"], 10, 64)
	if err != nil || id <= 0 {
		return 0, models.ErrInvalidUserID
	}
	return id, nil
}

// queryLimit parses the optional limit query parameter.
func queryLimit(r *http.Request, def int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func toImpulseInput(req models.NudgeRequest) impulse.Input {
	return impulse.Input{
		Text:             req.SpendingIntent,
		Item:             req.ItemName,
		Mood:             req.Mood,
		PatternMatch:     req.PatternMatch,
		Urgency:          req.Urgency,
		UrgencyText:      req.UrgencyText,
		LastPurchaseDays: req.LastPurchaseDaysAgo,
		Situation:        req.Situation,
		Explanation:      req.Explanation,
	}
}

// nudgeHandler evaluates a spending intent and returns the composed nudge.
func (s *Server) nudgeHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	userID, err := userIDFromPath(r)
	if err != nil {
		writeError(w, "Server.nudgeHandler", err)
		return
	}
	var req models.NudgeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.nudgeHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if req.Source != "" && !models.IsValidSource(req.Source) {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid source"))
		return
	}

	res, err := s.engine.Evaluate(r.Context(), nudge.Request{
		UserID: userID,
		Input:  toImpulseInput(req),
		Source: req.Source,
	})
	if err != nil {
		writeError(w, "Server.nudgeHandler", err)
		return
	}
	if res.ShortCircuit != nil {
		slog.Info("Server.nudgeHandler: request gated", "user_id", userID, "kind", res.ShortCircuit.Kind)
		writeJSONResponse(w, http.StatusOK, models.Limited(res.Message, res))
		return
	}
	slog.Info("Server.nudgeHandler: nudge composed", "user_id", userID, "plan", res.Tier, "outcome", res.Composition.Outcome)
	writeJSONResponse(w, http.StatusOK, models.Success(res))
}

// nudgeHistoryHandler lists a user's nudges, newest first.
func (s *Server) nudgeHistoryHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromPath(r)
	if err != nil {
		writeError(w, "Server.nudgeHistoryHandler", err)
		return
	}
	records, err := s.st.ListNudges(r.Context(), userID, queryLimit(r, 0))
	if err != nil {
		slog.Error("Server.nudgeHistoryHandler: failed to list nudges", "user_id", userID, "error", err)
		writeJSONResponse(w, http.StatusServiceUnavailable, models.Error("Nudge history unavailable"))
		return
	}
	if records == nil {
		records = []models.NudgeRecord{}
	}
	writeJSONResponse(w, http.StatusOK, models.Success(records))
}

// earnSessionsHandler lists recent E.A.R.N. scripts. Admin mode only.
func (s *Server) earnSessionsHandler(w http.ResponseWriter, r *http.Request) {
	if !s.opts.AdminMode {
		writeJSONResponse(w, http.StatusForbidden, models.Error("Not authorized"))
		return
	}
	userID, err := userIDFromPath(r)
	if err != nil {
		writeError(w, "Server.earnSessionsHandler", err)
		return
	}
	resp := earnSessionsResponse{UserID: userID, Entries: []earnEntry{}}
	records, err := s.st.ListEARNSessions(r.Context(), userID, queryLimit(r, DefaultEARNLimit))
	if err != nil {
		slog.Warn("Server.earnSessionsHandler: listing failed, returning empty result", "user_id", userID, "error", err)
		writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("E.A.R.N. sessions unavailable", resp))
		return
	}
	for _, rec := range records {
		resp.Entries = append(resp.Entries, earnEntry{
			Plan:      rec.Plan,
			Timestamp: rec.Timestamp,
			Source:    rec.Source,
			Intent:    rec.SpendingIntent,
			Script:    rec.Script,
		})
	}
	if len(resp.Entries) == 0 {
		writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("No E.A.R.N. sessions found", resp))
		return
	}
	slog.Debug("Server.earnSessionsHandler: returning sessions", "user_id", userID, "count", len(resp.Entries))
	writeJSONResponse(w, http.StatusOK, models.Success(resp))
}

// planUpdateHandler changes a user's tier. Admin mode only.
func (s *Server) planUpdateHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if !s.opts.AdminMode {
		writeJSONResponse(w, http.StatusForbidden, models.Error("Not authorized"))
		return
	}
	userID, err := userIDFromPath(r)
	if err != nil {
		writeError(w, "Server.planUpdateHandler", err)
		return
	}
	var req models.PlanUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, "Server.planUpdateHandler", err)
		return
	}
	tier := plan.Tier(req.Plan)
	if err := s.plans.SetUserPlan(r.Context(), userID, tier); err != nil {
		writeError(w, "Server.planUpdateHandler", err)
		return
	}
	slog.Info("Server.planUpdateHandler: plan changed", "user_id", userID, "plan", tier)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Plan updated", planUpdateResponse{UserID: userID, Plan: tier}))
}

// memoryStoreHandler ingests a regret memory.
func (s *Server) memoryStoreHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	userID, err := userIDFromPath(r)
	if err != nil {
		writeError(w, "Server.memoryStoreHandler", err)
		return
	}
	var req models.MemoryStoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, "Server.memoryStoreHandler", err)
		return
	}
	var ts time.Time
	if req.Timestamp != nil {
		ts = *req.Timestamp
	}
	stored, err := s.memory.Store(r.Context(), userID, req.Content, ts)
	if err != nil {
		writeError(w, "Server.memoryStoreHandler", err)
		return
	}
	resp := memoryStoreResponse{UserID: userID, Stored: stored}
	if !stored {
		writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Memory already stored", resp))
		return
	}
	writeJSONResponse(w, http.StatusCreated, models.RecordedWithMessage("Memory stored", resp))
}

// memorySearchHandler returns a user's memories ranked by similarity.
func (s *Server) memorySearchHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	userID, err := userIDFromPath(r)
	if err != nil {
		writeError(w, "Server.memorySearchHandler", err)
		return
	}
	var req models.MemorySearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, "Server.memorySearchHandler", err)
		return
	}
	limit := req.Limit
	if limit <= 0 {
		limit = memory.DefaultSearchLimit
	}
	results, err := s.memory.Search(r.Context(), userID, req.Query, limit)
	if err != nil {
		writeError(w, "Server.memorySearchHandler", err)
		return
	}
	if len(results) == 0 {
		writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage(nudge.NoMemoryNote, []models.RegretMemory{}))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(results))
}

// healthHandler provides a health check endpoint for monitoring and load balancing.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"tiers":     plan.Tiers(),
	})
}
