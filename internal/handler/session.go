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

type SessionHandler struct {
	sessionService *service.SessionService
}

func NewSessionHandler(sessionService *service.SessionService) *SessionHandler {
	return &SessionHandler{
		sessionService: sessionService,
	}
}

func (h *SessionHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.StartSession)
	r.Get("/current", h.CurrentSession)
	r.Delete("/{sessionID}", h.EndSession)

	return r
}

type startSessionRequest struct {
	Lat               float64 `json:"lat"`
	Lon               float64 `json:"lon"`
	Gender            string  `json:"gender"`
	SeekingGender     string  `json:"seekingGender"`
	MaxDistanceMeters float64 `json:"maxDistanceMeters"`
}

// POST /v1/sessions
func (h *SessionHandler) StartSession(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req startSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.ValidationError("Invalid request body"))
		return
	}

	session, err := h.sessionService.Start(r.Context(), userID, service.StartSessionParams{
		Lat:           req.Lat,
		Lon:           req.Lon,
		Gender:        req.Gender,
		SeekingGender: req.SeekingGender,
		MaxDistanceM:  req.MaxDistanceMeters,
	})
	if err != nil {
		if !apperrors.IsAppError(err) {
			log.Error().Err(err).Msg("failed to start session")
		}
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, session)
}

// GET /v1/sessions/current
func (h *SessionHandler) CurrentSession(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	session, err := h.sessionService.ActiveFor(r.Context(), userID)
	if err != nil {
		log.Error().Err(err).Msg("failed to fetch current session")
		writeError(w, err)
		return
	}
	if session == nil {
		writeError(w, apperrors.NotFound("Session"))
		return
	}

	writeJSON(w, http.StatusOK, session)
}

// DELETE /v1/sessions/{sessionID}
func (h *SessionHandler) EndSession(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	sessionID := chi.URLParam(r, "sessionID")

	if err := h.sessionService.End(r.Context(), sessionID, userID); err != nil {
		if !apperrors.IsAppError(err) {
			log.Error().Err(err).Msg("failed to end session")
		}
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ended"})
}
