package hub

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const maxClientFrame = 64 << 10

// WSSession adapts a WebSocket connection to Session.
type WSSession struct {
	id   string
	conn *websocket.Conn
}

func NewWSSession(conn *websocket.Conn) *WSSession {
	conn.SetReadLimit(maxClientFrame)
	return &WSSession{id: uuid.NewString(), conn: conn}
}

func (s *WSSession) ID() string { return s.id }

func (s *WSSession) Send(ctx context.Context, v any) error {
	return wsjson.Write(ctx, s.conn, v)
}

// Serve runs the read loop of one connection until the client goes away or
// ctx ends. The session is always disconnected from the hub on return.
func (h *Hub) Serve(ctx context.Context, conn *websocket.Conn) error {
	s := NewWSSession(conn)
	h.Connect(s)
	defer h.DisconnectAll(s)

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || errors.Is(err, context.Canceled) {
				return nil
			}
			h.Log.Warn("WebSocket read failed", zap.String("sessionId", s.ID()), zap.Error(err))
			return err
		}
		if err := h.HandleClientMessage(ctx, s, data); err != nil {
			h.Log.Warn("WebSocket reply failed", zap.String("sessionId", s.ID()), zap.Error(err))
			_ = conn.Close(websocket.StatusInternalError, "reply failed")
			return err
		}
	}
}
