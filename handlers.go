package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"cloud.google.com/go/civil"
	"github.com/gorilla/mux"
)

type userHandler func(w http.ResponseWriter, r *http.Request, userID string)

func (s *Server) withUser(next userHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := s.tokens.userFromRequest(r, false)
		if err != nil {
			writeError(w, err)
			return
		}
		next(w, r, userID)
	}
}

func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := s.tokens.adminFromRequest(r); err != nil {
			writeError(w, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleGetProgress(w http.ResponseWriter, r *http.Request, userID string) {
	progress, err := s.rewards.GetProgress(r.Context(), userID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, progress)
}

func (s *Server) handleGetTransactions(w http.ResponseWriter, r *http.Request, userID string) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	history, err := s.rewards.GetTransactionHistory(r.Context(), userID, limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": history,
	})
}

func (s *Server) handleGetUnlockedBadges(w http.ResponseWriter, r *http.Request, userID string) {
	badges, err := s.rewards.GetUnlockedBadges(r.Context(), userID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"badges": badges,
	})
}

func (s *Server) handleGetBadgeCatalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"badges": s.rewards.BadgeCatalog(),
	})
}

func (s *Server) handleLogTrip(w http.ResponseWriter, r *http.Request, userID string) {
	var req struct {
		ID           string      `json:"id"`
		TransitType  TransitType `json:"transit_type"`
		Distance     float64     `json:"distance"`
		CO2Saved     float64     `json:"co2_saved"`
		PointsEarned int         `json:"points_earned"`
		Date         civil.Date  `json:"date"`
		Status       TripStatus  `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Invalid request")
		return
	}

	outcome, err := s.rewards.LogTrip(r.Context(), TripRecord{
		ID:           req.ID,
		UserID:       userID,
		TransitType:  req.TransitType,
		Distance:     req.Distance,
		CO2Saved:     req.CO2Saved,
		PointsEarned: req.PointsEarned,
		Date:         req.Date,
		Status:       req.Status,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}

	status := http.StatusCreated
	if outcome.AlreadyCredited {
		status = http.StatusOK
	}
	writeJSON(w, status, outcome)
}

func (s *Server) handleGetTrips(w http.ResponseWriter, r *http.Request, userID string) {
	trips, err := s.rewards.ListTrips(r.Context(), userID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"trips": trips,
	})
}

func (s *Server) handleRecordActivity(w http.ResponseWriter, r *http.Request, userID string) {
	var req struct {
		Date civil.Date `json:"date"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Invalid request")
		return
	}

	progress, err := s.rewards.RecordTripActivity(r.Context(), userID, req.Date)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, progress)
}

func (s *Server) handleGetRewards(w http.ResponseWriter, r *http.Request, userID string) {
	rewards, err := s.rewards.ListRewards(r.Context(), userID, r.URL.Query().Get("category"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rewards": rewards,
	})
}

func (s *Server) handleRedeemReward(w http.ResponseWriter, r *http.Request, userID string) {
	rewardID := mux.Vars(r)["id"]

	claim, err := s.rewards.RedeemReward(r.Context(), userID, rewardID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"success": true,
		"claim":   claim,
	})
}

func (s *Server) handleGetClaims(w http.ResponseWriter, r *http.Request, userID string) {
	claims, err := s.rewards.ListClaims(r.Context(), userID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"claims": claims,
	})
}

func (s *Server) handleUseClaim(w http.ResponseWriter, r *http.Request, userID string) {
	claim, err := s.rewards.MarkClaimUsed(r.Context(), userID, mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, claim)
}

func (s *Server) handleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	sortBy := r.URL.Query().Get("sort")
	if sortBy == "" {
		sortBy = "points-desc"
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	entries, err := s.rewards.Leaderboard(r.Context(), sortBy, limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"leaderboard": entries,
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var credentials struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&credentials); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Invalid request")
		return
	}

	if err := s.admins.Authenticate(r.Context(), credentials.Email, credentials.Password); err != nil {
		s.fail(w, r, err)
		return
	}

	token, err := s.tokens.Issue(credentials.Email, roleAdmin)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "session",
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   int(s.cfg.SessionTTL.Seconds()),
	})

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"email":   credentials.Email,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     "session",
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Logged out successfully",
	})
}

func (s *Server) handleUpsertReward(w http.ResponseWriter, r *http.Request) {
	var reward RewardDefinition
	if err := json.NewDecoder(r.Body).Decode(&reward); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Invalid request")
		return
	}
	reward.ID = mux.Vars(r)["id"]

	if err := s.rewards.Catalog().Upsert(r.Context(), reward); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reward)
}

func (s *Server) handleDeactivateReward(w http.ResponseWriter, r *http.Request) {
	if err := s.rewards.Catalog().Deactivate(r.Context(), mux.Vars(r)["id"]); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
	})
}

func (s *Server) handleAdminCredit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Points    int     `json:"points"`
		CO2Saved  float64 `json:"co2_saved"`
		TripCount *int    `json:"trip_count"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Invalid request")
		return
	}
	trips := 1
	if req.TripCount != nil {
		trips = *req.TripCount
	}

	progress, err := s.rewards.CreditTrip(r.Context(), mux.Vars(r)["id"], req.Points, req.CO2Saved, trips)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, progress)
}

func (s *Server) handleAdminDebit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Points int `json:"points"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Invalid request")
		return
	}

	progress, err := s.rewards.DebitPoints(r.Context(), mux.Vars(r)["id"], req.Points)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, progress)
}

func (s *Server) handleAdminAdjust(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount int    `json:"amount"`
		Note   string `json:"note"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Invalid request")
		return
	}

	progress, err := s.rewards.AdjustPoints(r.Context(), mux.Vars(r)["id"], req.Amount, req.Note)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, progress)
}

func (s *Server) handleResetStreak(w http.ResponseWriter, r *http.Request) {
	progress, err := s.rewards.ResetStreak(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, progress)
}

func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["id"]
	err := s.rewards.Reconcile(r.Context(), userID)
	if err != nil && !errors.Is(err, ErrCorruptRecord) {
		s.fail(w, r, err)
		return
	}

	response := map[string]interface{}{
		"user_id":    userID,
		"reconciled": err == nil,
	}
	if err != nil {
		response["error"] = err.Error()
	}
	writeJSON(w, http.StatusOK, response)
}

// Helper functions

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, _ := errorStatus(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeError(w, err)
}

func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, ErrInsufficientBalance):
		return http.StatusUnprocessableEntity, "insufficient_balance"
	case errors.Is(err, ErrRewardNotFound):
		return http.StatusNotFound, "reward_not_found"
	case errors.Is(err, ErrClaimNotFound):
		return http.StatusNotFound, "claim_not_found"
	case errors.Is(err, ErrAlreadyClaimed):
		return http.StatusConflict, "already_claimed"
	case errors.Is(err, ErrClaimUsed):
		return http.StatusConflict, "claim_used"
	case errors.Is(err, ErrStaleActivity):
		return http.StatusConflict, "stale_activity"
	case errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrInvalidTrip),
		errors.Is(err, ErrInvalidReward), errors.Is(err, ErrInvalidUser):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, ErrStorageUnavailable):
		return http.StatusServiceUnavailable, "storage_unavailable"
	case errors.Is(err, ErrCorruptRecord):
		return http.StatusInternalServerError, "corrupt_record"
	}
	return http.StatusInternalServerError, "internal"
}

func writeError(w http.ResponseWriter, err error) {
	status, code := errorStatus(err)
	writeJSONError(w, status, code, err.Error())
}

func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"success": false,
		"error":   code,
		"message": message,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
