package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	apperrors "github.com/lateshift-app/afterhours-server/internal/errors"
	"github.com/lateshift-app/afterhours-server/internal/middleware"
	"github.com/lateshift-app/afterhours-server/internal/service"
)

type MatchHandler struct {
	matcherService *service.MatcherService
	declineService *service.DeclineService
}

func NewMatchHandler(matcherService *service.MatcherService, declineService *service.DeclineService) *MatchHandler {
	return &MatchHandler{
		matcherService: matcherService,
		declineService: declineService,
	}
}

func (h *MatchHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/{sessionID}/candidates", h.Candidates)
	r.Post("/{sessionID}/declines", h.Decline)

	return r
}

// GET /v1/matching/{sessionID}/candidates
func (h *MatchHandler) Candidates(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	sessionID := chi.URLParam(r, "sessionID")

	candidates, err := h.matcherService.Candidates(r.Context(), sessionID, userID)
	if err != nil {
		if !apperrors.IsAppError(err) {
			log.Error().Err(err).Msg("candidate search failed")
		}
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"candidates": candidates})
}

type declineRequest struct {
	UserID string `json:"userId"`
}

// POST /v1/matching/{sessionID}/declines
func (h *MatchHandler) Decline(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	sessionID := chi.URLParam(r, "sessionID")

	var req declineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.ValidationError("Invalid request body"))
		return
	}

	if err := h.declineService.Decline(r.Context(), sessionID, userID, req.UserID); err != nil {
		if !apperrors.IsAppError(err) {
			log.Error().Err(err).Msg("failed to record decline")
		}
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "declined"})
}
