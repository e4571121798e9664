package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"

	"github.com/edvin/homedock/internal/api/response"
	"github.com/edvin/homedock/internal/broadcast"
	"github.com/edvin/homedock/internal/model"
)

const wsWriteTimeout = 10 * time.Second

type StateHub interface {
	State() model.State
	TriggerRefresh() error
	Subscribe() *broadcast.Subscription
}

type State struct {
	hub StateHub
}

func NewState(hub StateHub) *State {
	return &State{hub: hub}
}

func (h *State) Get(w http.ResponseWriter, _ *http.Request) {
	response.WriteJSON(w, http.StatusOK, h.hub.State())
}

func (h *State) Refresh(w http.ResponseWriter, _ *http.Request) {
	if err := h.hub.TriggerRefresh(); err != nil {
		response.WriteError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	response.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "refresh scheduled"})
}

// Stream upgrades to WebSocket and sends every state change as a JSON text
// frame. Messages from the client are ignored.
func (h *State) Stream(w http.ResponseWriter, r *http.Request) {
	logger := zerolog.Ctx(r.Context())

	// The stream outlives the server read and write timeouts.
	rc := http.NewResponseController(w)
	if err := rc.SetReadDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		logger.Warn().Err(err).Msg("failed to clear read deadline")
	}
	if err := rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		logger.Warn().Err(err).Msg("failed to clear write deadline")
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // Origin differs from Host when the UI is served elsewhere.
	})
	if err != nil {
		logger.Error().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer ws.CloseNow()

	sub := h.hub.Subscribe()
	defer sub.Close()

	ctx := ws.CloseRead(r.Context())
	for {
		select {
		case <-ctx.Done():
			return
		case st, ok := <-sub.C():
			if !ok {
				ws.Close(websocket.StatusGoingAway, "server shutting down")
				return
			}
			data, err := json.Marshal(st)
			if err != nil {
				logger.Error().Err(err).Msg("encode state")
				ws.Close(websocket.StatusInternalError, "encode state")
				return
			}
			wctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
			err = ws.Write(wctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				logger.Debug().Err(err).Msg("state subscriber gone")
				return
			}
		}
	}
}
