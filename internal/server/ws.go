package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/campuslabs/campus/backend/internal/chat"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 16 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// handleChatSocket serves the per-course chat room. The bearer token rides
// in the Authorization header or, for browser clients, the token query
// parameter. Authentication and the enrollment gate run before the upgrade;
// the room itself re-validates nothing.
func (h *httpHandler) handleChatSocket(c *gin.Context) {
	courseID, ok := parseID(c.Param("course_id"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_course_id"})
		return
	}

	token := strings.TrimSpace(strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer "))
	if token == "" {
		token = c.Query("token")
	}
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	claims, err := h.tokens.ValidateToken(token)
	if err != nil {
		h.logger.Warn("chat token validation failed", zap.Error(err))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	h.touchIdentity(claims)

	member, err := h.courseMember(c, courseID, claims.Subject)
	if err != nil {
		h.logger.Error("chat membership lookup failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "membership_lookup_failed"})
		return
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	stream, connID, cleanup := h.registry.Join(ctx, courseID)
	displayName := h.displayName(claims.Subject, claims.DisplayName)

	h.logger.Info("chat connection opened",
		zap.Uint("course_id", courseID),
		zap.String("user_id", claims.Subject),
		zap.String("conn_id", connID),
		zap.Int("room_size", h.registry.RoomSize(courseID)))

	errorFrames := make(chan chat.Envelope, 4)
	go h.chatWritePump(ctx, conn, stream, errorFrames)
	h.chatReadPump(ctx, conn, courseID, claims.Subject, displayName, errorFrames)

	cancel()
	cleanup()
	_ = conn.Close()
	h.logger.Info("chat connection closed",
		zap.Uint("course_id", courseID),
		zap.String("conn_id", connID))
}

// chatReadPump processes inbound frames one at a time, in arrival order,
// until the connection drops. Malformed frames are answered with an error
// envelope and do not terminate the connection.
func (h *httpHandler) chatReadPump(ctx context.Context, conn *websocket.Conn, courseID uint, userID, displayName string, errorFrames chan<- chat.Envelope) {
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("chat read failed", zap.Error(err))
			}
			return
		}

		_, err = h.chat.HandleInbound(ctx, courseID, userID, displayName, raw)
		if errors.Is(err, chat.ErrMalformedPayload) {
			select {
			case errorFrames <- chat.Envelope{Type: chat.EnvelopeTypeError, Message: "malformed_payload"}:
			default:
			}
			continue
		}
		if err != nil {
			h.logger.Error("chat inbound handling failed", zap.Error(err))
		}
	}
}

// chatWritePump is the single writer for the connection: it drains the room
// stream and the sender-local error frames, and keeps the connection alive
// with pings.
func (h *httpHandler) chatWritePump(ctx context.Context, conn *websocket.Conn, stream <-chan chat.Envelope, errorFrames <-chan chat.Envelope) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case envelope := <-stream:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(envelope); err != nil {
				return
			}
		case envelope := <-errorFrames:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(envelope); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
