package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/mvale/housetab/internal/balance"
	"github.com/mvale/housetab/internal/events"
	"github.com/mvale/housetab/internal/websocket"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// respondError maps engine errors onto HTTP statuses: missing entities
// are 404, rejected input is 400, illegal payment transitions are 409.
// Anything else is a 500 logged with the caller's message.
func respondError(w http.ResponseWriter, err error, fallback string) {
	var notFound *balance.NotFoundError
	if errors.As(err, &notFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": notFound.Error()})
		return
	}
	var validation *balance.ValidationError
	if errors.As(err, &validation) {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error":  validation.Message,
			"reason": validation.Reason,
		})
		return
	}
	var state *balance.InvalidStateError
	if errors.As(err, &state) {
		writeJSON(w, http.StatusConflict, map[string]string{"error": state.Error()})
		return
	}
	log.Printf("%s: %v", fallback, err)
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": fallback})
}

// notify fans a committed mutation out to websocket watchers and the
// event bus. Failures are logged and swallowed; the mutation is already
// committed and must not be rolled back for a notification problem.
func notify(ctx context.Context, hub *websocket.Hub, pub *events.Publisher, entity, action, id, familyID string) {
	if hub != nil {
		hub.Broadcast(websocket.NewMessage(entity, action, id, familyID, nil))
	}
	if err := pub.Publish(ctx, events.NewEvent(entity, action, id, familyID)); err != nil {
		log.Printf("publish %s.%s event: %v", entity, action, err)
	}
}
