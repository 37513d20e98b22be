package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/freeeve/enclaves/internal/auth"
	"github.com/freeeve/enclaves/internal/model"
)

const (
	writeWait     = 10 * time.Second
	pongWait      = 60 * time.Second
	pingPeriod    = pongWait * 9 / 10
	lookupTimeout = 5 * time.Second
	maxMsgSize    = 4096
	sendBufSize   = 256
)

// Any origin may connect; the token is the credential.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// SessionLookup resolves a session the user owns.
type SessionLookup interface {
	GetSession(ctx context.Context, sessionID, userID string) (*model.Session, error)
}

// WSHandler handles WebSocket connections.
type WSHandler struct {
	hub      *Hub
	jwtMgr   *auth.JWTManager
	sessions SessionLookup
}

// NewWSHandler creates a WSHandler.
func NewWSHandler(hub *Hub, jwtMgr *auth.JWTManager, sessions SessionLookup) *WSHandler {
	return &WSHandler{hub: hub, jwtMgr: jwtMgr, sessions: sessions}
}

// ServeWS handles GET /api/v1/ws. Browsers cannot set headers on a
// websocket handshake, so the access token comes as ?token=.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		writeError(w, http.StatusUnauthorized, "missing token parameter")
		return
	}
	claims, err := h.jwtMgr.ValidateAccess(token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid or expired token")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Str("userId", claims.UserID).Msg("WebSocket upgrade failed")
		return
	}

	c := &WSConn{conn: conn, userID: claims.UserID, send: make(chan []byte, sendBufSize)}
	h.hub.Register(c)
	h.hub.sendTo(c, WSEvent{Type: EventConnected, Data: map[string]any{}})

	go h.writePump(c)
	go h.readPump(c)

	log.Info().Str("userId", c.userID).Int("total", h.hub.ConnectionCount()).Msg("WebSocket client connected")
}

// readPump handles subscribe requests until the client goes away.
func (h *WSHandler) readPump(c *WSConn) {
	l := log.With().Str("userId", c.userID).Logger()
	defer func() {
		h.hub.Unregister(c)
		c.conn.Close()
		l.Info().Msg("WebSocket client disconnected")
	}()

	c.conn.SetReadLimit(maxMsgSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			var syntaxErr *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
				l.Debug().Err(err).Msg("Ignoring malformed client message")
				continue
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				l.Warn().Err(err).Msg("WebSocket unexpected close")
			}
			return
		}
		h.handleClientMessage(c, msg)
	}
}

// handleClientMessage applies a subscribe or unsubscribe request. Only the
// session's owner may subscribe to it.
func (h *WSHandler) handleClientMessage(c *WSConn, msg ClientMessage) {
	if msg.SessionID == "" {
		return
	}
	switch msg.Action {
	case "subscribe":
		ctx, cancel := context.WithTimeout(context.Background(), lookupTimeout)
		defer cancel()
		if _, err := h.sessions.GetSession(ctx, msg.SessionID, c.userID); err != nil {
			log.Debug().Err(err).Str("userId", c.userID).Str("sessionId", msg.SessionID).Msg("Subscription refused")
			h.hub.sendTo(c, WSEvent{Type: EventSubscriptionError, SessionID: msg.SessionID, Data: map[string]string{"error": err.Error()}})
			return
		}
		h.hub.Subscribe(c, msg.SessionID)
		h.hub.sendTo(c, WSEvent{Type: EventSubscribed, SessionID: msg.SessionID, Data: map[string]any{}})
	case "unsubscribe":
		h.hub.Unsubscribe(c, msg.SessionID)
	}
}

// writePump sends one event per frame and keeps the connection alive with
// pings. It exits when the hub closes c.send or a write fails.
func (h *WSHandler) writePump(c *WSConn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
