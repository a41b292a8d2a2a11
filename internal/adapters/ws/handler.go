// Package ws carries the same request and response records as the socket
// server, one JSON document per WebSocket text message.
package ws

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/tablekeeper/internal/adapters/wire"
	"github.com/dkeye/tablekeeper/internal/app"
	"github.com/dkeye/tablekeeper/internal/core"
)

const writeWait = 5 * time.Second

type Dispatcher interface {
	Handle(ctx context.Context, req app.Request) app.Response
}

type Handler struct {
	Dispatcher Dispatcher
	Registry   *app.Registry
	ReadLimit  int64
	PingPeriod time.Duration

	upgrader websocket.Upgrader
}

func NewHandler(d Dispatcher, reg *app.Registry, readLimit int64, pingPeriod time.Duration) *Handler {
	return &Handler{
		Dispatcher: d,
		Registry:   reg,
		ReadLimit:  readLimit,
		PingPeriod: pingPeriod,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Serve upgrades the request and blocks until the connection ends or ctx is done.
func (h *Handler) Serve(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	sid := core.NewSessionID()
	logger := log.With().Str("module", "adapters.ws").Str("sid", string(sid)).Str("remote", r.RemoteAddr).Logger()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error().Err(err).Msg("ws upgrade")
		return
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	if h.Registry != nil {
		h.Registry.Open(sid, "ws", r.RemoteAddr)
		defer h.Registry.Close(sid)
	}

	send := make(chan []byte, 16)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		h.writePump(logger, conn, send)
	}()

	h.readPump(logger.WithContext(ctx), logger, sid, conn, send, writerDone)
	close(send)
	<-writerDone
}

func (h *Handler) readPump(ctx context.Context, logger zerolog.Logger, sid core.SessionID, conn *websocket.Conn, send chan<- []byte, writerDone <-chan struct{}) {
	if h.ReadLimit > 0 {
		conn.SetReadLimit(h.ReadLimit)
	}
	if h.PingPeriod > 0 {
		pongWait := h.PingPeriod * 10 / 9
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn().Err(err).Msg("readPump read error")
			} else {
				logger.Info().Msg("readPump closing")
			}
			return
		}

		var req app.Request
		var resp app.Response
		if err := wire.Unmarshal(data, &req); err != nil {
			logger.Warn().Err(err).Msg("undecodable request")
			resp = app.MalformedResponse(err)
		} else {
			if h.Registry != nil {
				h.Registry.Observe(sid, req)
			}
			resp = h.Dispatcher.Handle(ctx, req)
		}

		out, err := wire.Marshal(resp)
		if err != nil {
			logger.Error().Err(err).Msg("marshal response")
			return
		}
		select {
		case send <- out:
		case <-writerDone:
			return
		}
	}
}

func (h *Handler) writePump(logger zerolog.Logger, conn *websocket.Conn, send <-chan []byte) {
	defer conn.Close()

	var tick <-chan time.Time
	if h.PingPeriod > 0 {
		ticker := time.NewTicker(h.PingPeriod)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case data, ok := <-send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				if !errors.Is(err, websocket.ErrCloseSent) {
					logger.Error().Err(err).Msg("writePump write error")
				}
				return
			}
		case <-tick:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				logger.Warn().Err(err).Msg("writePump ping failed")
				return
			}
		}
	}
}

