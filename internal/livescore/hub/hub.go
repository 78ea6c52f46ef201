package hub

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"livescore/internal/livescore/model"
)

const DefaultSendTimeout = 5 * time.Second

// ErrNotConnected is returned when subscribing a session the hub does not
// know, including one that has already been disconnected.
var ErrNotConnected = errors.New("hub: session not connected")

// Session is one live client connection.
type Session interface {
	ID() string
	Send(ctx context.Context, v any) error
}

type State int

const (
	StateConnected State = iota
	StateSubscribed
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateSubscribed:
		return "subscribed"
	default:
		return "disconnected"
	}
}

type client struct {
	session  Session
	channels map[string]struct{}
}

// Hub tracks which sessions listen on which channel. All state lives behind
// one RWMutex; sends happen outside the lock.
type Hub struct {
	Log         *zap.Logger
	SendTimeout time.Duration

	mu       sync.RWMutex
	channels map[string]map[string]Session
	clients  map[string]*client
}

func New(log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		Log:         log,
		SendTimeout: DefaultSendTimeout,
		channels:    make(map[string]map[string]Session),
		clients:     make(map[string]*client),
	}
}

// Connect registers a new session in the Connected state.
func (h *Hub) Connect(s Session) {
	h.mu.Lock()
	if _, ok := h.clients[s.ID()]; !ok {
		h.clients[s.ID()] = &client{session: s, channels: make(map[string]struct{})}
	}
	h.mu.Unlock()
	h.Log.Info("WebSocket connected", zap.String("sessionId", s.ID()))
}

// Subscribe adds the session to channel. Subscribing twice is a no-op.
func (h *Hub) Subscribe(channel string, s Session) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, ok := h.clients[s.ID()]
	if !ok {
		return ErrNotConnected
	}
	set, ok := h.channels[channel]
	if !ok {
		set = make(map[string]Session)
		h.channels[channel] = set
	}
	set[s.ID()] = s
	c.channels[channel] = struct{}{}
	h.Log.Debug("WebSocket subscribed", zap.String("sessionId", s.ID()), zap.String("channel", channel))
	return nil
}

// Unsubscribe removes the session from channel and drops the channel once
// nobody listens on it. Unknown sessions and channels are ignored.
func (h *Hub) Unsubscribe(channel string, s Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(channel, s.ID())
	h.Log.Debug("WebSocket unsubscribed", zap.String("sessionId", s.ID()), zap.String("channel", channel))
}

// DisconnectAll removes the session from every channel. After it returns
// the session is Disconnected and cannot subscribe again.
func (h *Hub) DisconnectAll(s Session) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, ok := h.clients[s.ID()]
	if !ok {
		return
	}
	for ch := range c.channels {
		h.removeLocked(ch, s.ID())
	}
	delete(h.clients, s.ID())
	h.Log.Info("WebSocket disconnected", zap.String("sessionId", s.ID()))
}

func (h *Hub) removeLocked(channel, sessionID string) {
	if set, ok := h.channels[channel]; ok {
		delete(set, sessionID)
		if len(set) == 0 {
			delete(h.channels, channel)
		}
	}
	if c, ok := h.clients[sessionID]; ok {
		delete(c.channels, channel)
	}
}

// Broadcast sends msg to every session on channel and returns how many
// sends succeeded. Sessions whose send fails are removed from the channel
// once every send has finished.
func (h *Hub) Broadcast(ctx context.Context, channel string, msg any) int {
	h.mu.RLock()
	targets := make([]Session, 0, len(h.channels[channel]))
	for _, s := range h.channels[channel] {
		targets = append(targets, s)
	}
	h.mu.RUnlock()
	if len(targets) == 0 {
		return 0
	}

	timeout := h.SendTimeout
	if timeout <= 0 {
		timeout = DefaultSendTimeout
	}

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		failed []string
	)
	for _, s := range targets {
		wg.Add(1)
		go func(s Session) {
			defer wg.Done()
			sendCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			if err := s.Send(sendCtx, msg); err != nil {
				cerr := &model.ConnectionError{SessionID: s.ID(), Err: err}
				h.Log.Warn("WebSocket send failed", zap.String("channel", channel), zap.Error(cerr))
				mu.Lock()
				failed = append(failed, s.ID())
				mu.Unlock()
			}
		}(s)
	}
	wg.Wait()

	if len(failed) > 0 {
		h.mu.Lock()
		for _, id := range failed {
			h.removeLocked(channel, id)
		}
		h.mu.Unlock()
	}
	return len(targets) - len(failed)
}

// Channels returns the subscriber count of every active channel.
func (h *Hub) Channels() map[string]int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[string]int, len(h.channels))
	for ch, set := range h.channels {
		out[ch] = len(set)
	}
	return out
}

func (h *Hub) SubscriberCount(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[channel])
}

// SessionChannels lists the channels a session is subscribed to, sorted.
func (h *Hub) SessionChannels(sessionID string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.clients[sessionID]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(c.channels))
	for ch := range c.channels {
		out = append(out, ch)
	}
	sort.Strings(out)
	return out
}

func (h *Hub) State(sessionID string) State {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.clients[sessionID]
	switch {
	case !ok:
		return StateDisconnected
	case len(c.channels) > 0:
		return StateSubscribed
	default:
		return StateConnected
	}
}

func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
