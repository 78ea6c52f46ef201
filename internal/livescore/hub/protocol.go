package hub

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"
)

const (
	ActionSubscribe   = "subscribe"
	ActionUnsubscribe = "unsubscribe"
	ActionPing        = "ping"
)

// ClientMessage is a frame sent by a live client.
type ClientMessage struct {
	Action   string   `json:"action"`
	Channels []string `json:"channels,omitempty"`
}

// Reply is a frame sent back to a client in response to a ClientMessage.
type Reply struct {
	Type     string   `json:"type"`
	Channels []string `json:"channels,omitempty"`
}

// HandleClientMessage applies one client frame to the hub and sends the
// reply. Undecodable frames and unknown actions are ignored; only a failed
// reply is returned as an error.
func (h *Hub) HandleClientMessage(ctx context.Context, s Session, raw []byte) error {
	var msg ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		h.Log.Debug("Ignoring undecodable client frame", zap.String("sessionId", s.ID()), zap.Error(err))
		return nil
	}

	channels := cleanChannels(msg.Channels)
	switch strings.ToLower(strings.TrimSpace(msg.Action)) {
	case ActionSubscribe:
		for _, ch := range channels {
			if err := h.Subscribe(ch, s); err != nil {
				return err
			}
		}
		return s.Send(ctx, Reply{Type: "subscribed", Channels: channels})
	case ActionUnsubscribe:
		for _, ch := range channels {
			h.Unsubscribe(ch, s)
		}
		return s.Send(ctx, Reply{Type: "unsubscribed", Channels: channels})
	case ActionPing:
		return s.Send(ctx, Reply{Type: "pong"})
	default:
		h.Log.Debug("Ignoring unknown client action", zap.String("sessionId", s.ID()), zap.String("action", msg.Action))
		return nil
	}
}

func cleanChannels(in []string) []string {
	out := make([]string, 0, len(in))
	for _, ch := range in {
		if ch = strings.TrimSpace(ch); ch != "" {
			out = append(out, ch)
		}
	}
	return out
}
