package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	apperrors "github.com/lateshift-app/afterhours-server/internal/errors"
	"github.com/lateshift-app/afterhours-server/internal/middleware"
	"github.com/lateshift-app/afterhours-server/internal/service"
	"github.com/lateshift-app/afterhours-server/internal/sse"
)

type ConnectionHandler struct {
	connectionService *service.ConnectionService
	convertService    *service.ConvertService
	broker            *sse.Broker
}

func NewConnectionHandler(connectionService *service.ConnectionService, convertService *service.ConvertService, broker *sse.Broker) *ConnectionHandler {
	return &ConnectionHandler{
		connectionService: connectionService,
		convertService:    convertService,
		broker:            broker,
	}
}

func (h *ConnectionHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.OpenConnection)
	r.Get("/{connectionID}/messages", h.ListMessages)
	r.Post("/{connectionID}/messages", h.SendMessage)
	r.Post("/{connectionID}/save", h.CastSaveVote)
	r.Get("/{connectionID}/events", h.StreamEvents)

	return r
}

type openConnectionRequest struct {
	SessionID    string `json:"sessionId"`
	TargetUserID string `json:"targetUserId"`
}

// POST /v1/connections
func (h *ConnectionHandler) OpenConnection(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req openConnectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.ValidationError("Invalid request body"))
		return
	}
	if req.SessionID == "" {
		writeError(w, apperrors.InvalidInput("sessionId", "is required"))
		return
	}

	conn, err := h.connectionService.Open(r.Context(), req.SessionID, userID, req.TargetUserID)
	if err != nil {
		if !apperrors.IsAppError(err) {
			log.Error().Err(err).Msg("failed to open connection")
		}
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, conn)
}

type sendMessageRequest struct {
	Body string `json:"body"`
}

// POST /v1/connections/{connectionID}/messages
func (h *ConnectionHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	connectionID := chi.URLParam(r, "connectionID")

	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.ValidationError("Invalid request body"))
		return
	}

	msg, err := h.connectionService.Send(r.Context(), connectionID, userID, req.Body)
	if err != nil {
		if !apperrors.IsAppError(err) {
			log.Error().Err(err).Msg("failed to send message")
		}
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, msg)
}

// GET /v1/connections/{connectionID}/messages
func (h *ConnectionHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	connectionID := chi.URLParam(r, "connectionID")

	messages, err := h.connectionService.Messages(r.Context(), connectionID, userID)
	if err != nil {
		if !apperrors.IsAppError(err) {
			log.Error().Err(err).Msg("failed to list messages")
		}
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

// POST /v1/connections/{connectionID}/save
func (h *ConnectionHandler) CastSaveVote(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	connectionID := chi.URLParam(r, "connectionID")

	result, err := h.convertService.CastSaveVote(r.Context(), connectionID, userID)
	if err != nil {
		if !apperrors.IsAppError(err) {
			log.Error().Err(err).Msg("failed to cast save vote")
		}
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}
