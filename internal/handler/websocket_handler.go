package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/Baaaki/pharmsoc-messaging/internal/realtime"
	"github.com/Baaaki/pharmsoc-messaging/internal/service"
	"github.com/Baaaki/pharmsoc-messaging/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const maxMessageSize = 64 * 1024 // 64 KB

type WebSocketHandler struct {
	gateway         *realtime.Gateway
	upgrader        websocket.Upgrader
	sessionLifetime time.Duration
}

func NewWebSocketHandler(gateway *realtime.Gateway, allowedOrigins []string, sessionLifetime time.Duration) *WebSocketHandler {
	return &WebSocketHandler{
		gateway: gateway,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		sessionLifetime: sessionLifetime,
	}
}

// originChecker accepts same-origin requests (no Origin header), any origin when
// "*" is configured, and otherwise only the configured origins.
func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		return slices.Contains(allowed, "*") || slices.Contains(allowed, origin)
	}
}

// HandleWebSocket upgrades an authenticated request and serves it until the
// peer leaves or the session expires.
// GET /api/ws
func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	claims, ok := principal(c)
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Log.Warn("WebSocket upgrade failed", zap.Uint64("user_id", claims.UserID), zap.Error(err))
		return
	}

	client := realtime.NewClient(conn, claims.UserID, claims.Name)
	h.gateway.Connect(client)
	defer h.gateway.Disconnect(client)

	go client.WritePump()

	if h.sessionLifetime > 0 {
		expiry := time.AfterFunc(h.sessionLifetime, func() {
			logger.Log.Info("WebSocket session expired",
				zap.Uint64("user_id", client.UserID),
				zap.Duration("lifetime", h.sessionLifetime),
			)
			client.Expire(fmt.Sprintf("session expired after %s", h.sessionLifetime))
		})
		defer expiry.Stop()
	}

	h.readLoop(c, client, conn)
}

func (h *WebSocketHandler) readLoop(c *gin.Context, client *realtime.Client, conn *websocket.Conn) {
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(realtime.PongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(realtime.PongWait))
		return nil
	})

	ctx := c.Request.Context()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				logger.Log.Debug("WebSocket read error", zap.Uint64("user_id", client.UserID), zap.Error(err))
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(realtime.PongWait))

		var req realtime.Request
		if err := json.Unmarshal(data, &req); err != nil {
			client.Send(realtime.EventError, realtime.ErrorPayload{
				Message: "malformed event",
				Code:    service.CodeInvalidArgument,
			})
			continue
		}

		h.gateway.Handle(ctx, client, req)
	}
}
