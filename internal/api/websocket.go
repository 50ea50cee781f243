package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/ada-analyst/console/internal/logger"
	"github.com/ada-analyst/console/internal/session"
)

// WebSocket message types for the view stream
const (
	// Client -> Server messages
	MsgTypePing          = "ping"
	MsgTypeRefresh       = "view:refresh"
	MsgTypeAsk           = "ask"
	MsgTypeDismissNotice = "notice:dismiss"

	// Server -> Client messages
	MsgTypeConnected = "connected"
	MsgTypeView      = "view"
	MsgTypeError     = "error"
	MsgTypePong      = "pong"
)

// DefaultPushInterval is how often a connection checks its session for
// changes.
const DefaultPushInterval = 250 * time.Millisecond

const writeWait = 10 * time.Second

// WSMessage is the envelope of every websocket message.
type WSMessage struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// WSErrorResponse is the payload of an error message.
type WSErrorResponse struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// WebSocketHandler streams session views to the browser. A view is sent on
// connect and again whenever the session changes.
type WebSocketHandler struct {
	console  Console
	sessions *session.Manager
	interval time.Duration
	upgrader websocket.Upgrader
}

// NewWebSocketHandler creates a view stream handler. interval <= 0 uses
// DefaultPushInterval.
func NewWebSocketHandler(c Console, sessions *session.Manager, interval time.Duration) *WebSocketHandler {
	if interval <= 0 {
		interval = DefaultPushInterval
	}
	return &WebSocketHandler{
		console:  c,
		sessions: sessions,
		interval: interval,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 64 * 1024,
		},
	}
}

// wsConn serializes writes; gorilla connections allow one concurrent writer.
type wsConn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *wsConn) send(msg WSMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteJSON(msg)
}

// HandleWebSocket upgrades the connection and pushes views of the :id session.
func (wsh *WebSocketHandler) HandleWebSocket(c echo.Context) error {
	id := c.Param("id")
	s, ok := wsh.sessions.Get(id)
	if !ok {
		return NewNotFoundError("session", id)
	}

	ws, err := wsh.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer ws.Close()

	log, ctx := logger.With(c.Request().Context(), "session_id", id)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	conn := &wsConn{ws: ws}
	log.Debug("view stream connected")

	conn.send(WSMessage{Type: MsgTypeConnected, Timestamp: time.Now().UnixMilli()})
	last := wsh.pushView(ctx, conn, s)

	incoming := make(chan WSMessage)
	go func() {
		defer close(incoming)
		for {
			var msg WSMessage
			if err := ws.ReadJSON(&msg); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Warn("view stream read failed", "error", err)
				}
				return
			}
			select {
			case incoming <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()

	ticker := time.NewTicker(wsh.interval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-incoming:
			if !ok {
				log.Debug("view stream disconnected")
				return nil
			}
			if wsh.handleMessage(ctx, conn, s, msg) {
				last = wsh.pushView(ctx, conn, s)
			}

		case <-ticker.C:
			if _, ok := wsh.sessions.Get(id); !ok {
				wsh.sendError(conn, "session expired", "SESSION_NOT_FOUND")
				return nil
			}
			if s.Version() == last {
				continue
			}
			last = wsh.pushView(ctx, conn, s)
			s.Touch()
		}
	}
}

// handleMessage reacts to one client message and reports whether the view
// should be sent right away.
func (wsh *WebSocketHandler) handleMessage(ctx context.Context, conn *wsConn, s *session.Session, msg WSMessage) bool {
	switch msg.Type {
	case MsgTypePing:
		s.Touch()
		conn.send(WSMessage{Type: MsgTypePong, Timestamp: time.Now().UnixMilli()})
		return false
	case MsgTypeRefresh:
		return true
	case MsgTypeDismissNotice:
		s.ClearNotice()
		return true
	case MsgTypeAsk:
		var req AskRequest
		if err := json.Unmarshal(msg.Payload, &req); err != nil {
			wsh.sendError(conn, "Invalid ask payload: "+err.Error(), "INVALID_PAYLOAD")
			return false
		}
		// The answer arrives through the regular change push; the ticker
		// sends the processing placeholder first.
		go wsh.console.SubmitQuestion(context.WithoutCancel(ctx), s, req.Question)
		return false
	default:
		wsh.sendError(conn, "Unknown message type: "+msg.Type, "INVALID_TYPE")
		return false
	}
}

// pushView sends the current view and returns the version it showed.
func (wsh *WebSocketHandler) pushView(ctx context.Context, conn *wsConn, s *session.Session) uint64 {
	v := wsh.console.View(ctx, s)
	if err := conn.send(WSMessage{Type: MsgTypeView, Payload: mustJSON(v), Timestamp: time.Now().UnixMilli()}); err != nil {
		logger.FromContext(ctx).Debug("failed to push view", "error", err)
	}
	return v.Version
}

func (wsh *WebSocketHandler) sendError(conn *wsConn, message, code string) {
	conn.send(WSMessage{
		Type:      MsgTypeError,
		Timestamp: time.Now().UnixMilli(),
		Payload:   mustJSON(WSErrorResponse{Message: message, Code: code}),
	})
}

func mustJSON(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return data
}
