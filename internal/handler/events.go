package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	apperrors "github.com/lateshift-app/afterhours-server/internal/errors"
	"github.com/lateshift-app/afterhours-server/internal/middleware"
	"github.com/lateshift-app/afterhours-server/internal/sse"
)

// GET /v1/connections/{connectionID}/events
//
// Streams the connection's live events over SSE. The stream only carries
// events emitted while subscribed; clients resynchronize history through
// the messages endpoint after reconnecting.
func (h *ConnectionHandler) StreamEvents(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	connectionID := chi.URLParam(r, "connectionID")

	if _, err := h.connectionService.VerifyParticipant(r.Context(), connectionID, userID); err != nil {
		if !apperrors.IsAppError(err) {
			log.Error().Err(err).Msg("failed to verify participant")
		}
		writeError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, apperrors.Internal("Streaming not supported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	client := h.broker.Subscribe(connectionID)
	defer h.broker.Unsubscribe(client)

	sendRawEvent(w, "connected", []byte(`{}`))
	flusher.Flush()

	heartbeat := time.NewTicker(sse.HeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return

		case <-client.Done:
			return

		case <-heartbeat.C:
			fmt.Fprint(w, ": heartbeat\n\n")
			flusher.Flush()

		case event := <-client.Events:
			data, err := json.Marshal(event)
			if err != nil {
				log.Error().Err(err).Msg("failed to marshal sse event")
				continue
			}
			sendRawEvent(w, event.Type, data)
			flusher.Flush()
		}
	}
}

func sendRawEvent(w http.ResponseWriter, eventType string, data []byte) {
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventType, data)
}
