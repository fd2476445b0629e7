package webapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const socketWriteTimeout = 10 * time.Second

// HandleRunStream streams run events as server-sent events, one
// "data: <json>" frame per event. The stream ends once the run's
// subscription is released after its done event.
func (h *Handlers) HandleRunStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming is not supported")
		return
	}

	sub, err := h.runs.Subscribe(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	defer h.runs.Unsubscribe(sub)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "\n") //nolint:errcheck
	flusher.Flush()

	for {
		select {
		case evt, ok := <-sub.Events():
			if !ok {
				return
			}
			data, err := json.Marshal(evt)
			if err != nil {
				h.logger.Error("Encoding run event", "runID", sub.RunID(), "error", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

// HandleRunSocket streams run events over a websocket, one JSON text
// message per event, and closes normally when the subscription ends.
func (h *Handlers) HandleRunSocket(w http.ResponseWriter, r *http.Request) {
	sub, err := h.runs.Subscribe(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	defer h.runs.Unsubscribe(sub)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client.
		h.logger.Debug("Websocket upgrade failed", "runID", sub.RunID(), "error", err)
		return
	}
	defer conn.Close() //nolint:errcheck

	// Clients only ever close; reading is how the close is noticed.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case evt, ok := <-sub.Events():
			if !ok {
				msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "run finished")
				conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(socketWriteTimeout)) //nolint:errcheck
				return
			}
			conn.SetWriteDeadline(time.Now().Add(socketWriteTimeout)) //nolint:errcheck
			if err := conn.WriteJSON(evt); err != nil {
				h.logger.Debug("Websocket write failed", "runID", sub.RunID(), "error", err)
				return
			}
		case <-gone:
			return
		}
	}
}
