package hub

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSession struct {
	id   string
	fail bool

	mu   sync.Mutex
	sent []any
}

func newFakeSession(id string) *fakeSession { return &fakeSession{id: id} }

func (f *fakeSession) ID() string { return f.id }

func (f *fakeSession) Send(_ context.Context, v any) error {
	if f.fail {
		return errors.New("broken pipe")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, v)
	return nil
}

func (f *fakeSession) received() []any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]any(nil), f.sent...)
}

// blockingSession never completes a send until its context ends.
type blockingSession struct{ id string }

func (b *blockingSession) ID() string { return b.id }

func (b *blockingSession) Send(ctx context.Context, _ any) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestBroadcast_Isolation(t *testing.T) {
	h := New(zap.NewNop())
	s1, s2, s3 := newFakeSession("1"), newFakeSession("2"), newFakeSession("3")
	s2.fail = true
	for _, s := range []*fakeSession{s1, s2, s3} {
		h.Connect(s)
		require.NoError(t, h.Subscribe("match:42", s))
	}

	n := h.Broadcast(context.Background(), "match:42", map[string]string{"type": "match_update"})

	assert.Equal(t, 2, n)
	assert.Len(t, s1.received(), 1)
	assert.Len(t, s3.received(), 1)
	assert.Equal(t, 2, h.SubscriberCount("match:42"))
	assert.NotContains(t, h.SessionChannels("2"), "match:42")
}

func TestBroadcast_SlowClientDoesNotBlockOthers(t *testing.T) {
	h := New(zap.NewNop())
	h.SendTimeout = 20 * time.Millisecond
	slow := &blockingSession{id: "slow"}
	fast := newFakeSession("fast")
	h.Connect(slow)
	h.Connect(fast)
	require.NoError(t, h.Subscribe("all", slow))
	require.NoError(t, h.Subscribe("all", fast))

	start := time.Now()
	n := h.Broadcast(context.Background(), "all", "x")

	assert.Equal(t, 1, n)
	assert.Less(t, time.Since(start), time.Second)
	assert.Len(t, fast.received(), 1)
	assert.Equal(t, 1, h.SubscriberCount("all"))
}

func TestBroadcast_EmptyChannel(t *testing.T) {
	h := New(zap.NewNop())
	assert.Equal(t, 0, h.Broadcast(context.Background(), "match:1", "x"))
}

func TestSubscribe_IdempotentAndGC(t *testing.T) {
	h := New(zap.NewNop())
	s := newFakeSession("a")
	h.Connect(s)
	assert.Equal(t, StateConnected, h.State("a"))

	require.NoError(t, h.Subscribe("live:all", s))
	require.NoError(t, h.Subscribe("live:all", s))
	assert.Equal(t, 1, h.SubscriberCount("live:all"))
	assert.Equal(t, StateSubscribed, h.State("a"))

	h.Unsubscribe("live:all", s)
	h.Unsubscribe("live:all", s)
	_, ok := h.Channels()["live:all"]
	assert.False(t, ok, "empty channel should be removed")
	assert.Equal(t, StateConnected, h.State("a"))
}

func TestDisconnectAll_IsTerminal(t *testing.T) {
	h := New(zap.NewNop())
	s := newFakeSession("a")
	other := newFakeSession("b")
	h.Connect(s)
	h.Connect(other)
	require.NoError(t, h.Subscribe("match:1", s))
	require.NoError(t, h.Subscribe("league:epl", s))
	require.NoError(t, h.Subscribe("match:1", other))

	h.DisconnectAll(s)

	assert.Equal(t, map[string]int{"match:1": 1}, h.Channels())
	assert.Equal(t, StateDisconnected, h.State("a"))
	assert.ErrorIs(t, h.Subscribe("match:2", s), ErrNotConnected)
	assert.Equal(t, 1, h.SessionCount())

	h.DisconnectAll(s)
}

func TestHandleClientMessage(t *testing.T) {
	ctx := context.Background()
	h := New(zap.NewNop())
	s := newFakeSession("a")
	h.Connect(s)

	require.NoError(t, h.HandleClientMessage(ctx, s, []byte(`{"action":"subscribe","channels":["match:42"," live:all ",""]}`)))
	assert.Equal(t, []string{"live:all", "match:42"}, h.SessionChannels("a"))

	require.NoError(t, h.HandleClientMessage(ctx, s, []byte(`{"action":"unsubscribe","channels":["match:42"]}`)))
	require.NoError(t, h.HandleClientMessage(ctx, s, []byte(`{"action":"ping"}`)))
	require.NoError(t, h.HandleClientMessage(ctx, s, []byte(`{"action":"favourite","channels":["x"]}`)))
	require.NoError(t, h.HandleClientMessage(ctx, s, []byte(`not json`)))

	assert.Equal(t, []any{
		Reply{Type: "subscribed", Channels: []string{"match:42", "live:all"}},
		Reply{Type: "unsubscribed", Channels: []string{"match:42"}},
		Reply{Type: "pong"},
	}, s.received())
	assert.Equal(t, []string{"live:all"}, h.SessionChannels("a"))
}

func TestHandleClientMessage_ReplyFailure(t *testing.T) {
	h := New(zap.NewNop())
	s := newFakeSession("a")
	s.fail = true
	h.Connect(s)

	assert.Error(t, h.HandleClientMessage(context.Background(), s, []byte(`{"action":"ping"}`)))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "connected", StateConnected.String())
	assert.Equal(t, "subscribed", StateSubscribed.String())
	assert.Equal(t, "disconnected", StateDisconnected.String())
}
