package bus

import (
	"context"
	"sync"
)

// Local is an in-process Bus for single-instance runs and tests. Like Redis
// pub/sub it is best-effort: a subscriber whose buffer is full misses the message.
type Local struct {
	mu   sync.RWMutex
	subs map[*localSubscription]struct{}
	buf  int
}

func NewLocal(buffer int) *Local {
	if buffer <= 0 {
		buffer = 256
	}
	return &Local{subs: make(map[*localSubscription]struct{}), buf: buffer}
}

func (l *Local) Publish(_ context.Context, channel string, payload []byte) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for s := range l.subs {
		s.deliver(channel, payload)
	}
	return nil
}

func (l *Local) Subscribe(ctx context.Context, channels ...string) (Subscription, error) {
	return l.add(ctx, channels, false), nil
}

func (l *Local) PSubscribe(ctx context.Context, patterns ...string) (Subscription, error) {
	return l.add(ctx, patterns, true), nil
}

func (l *Local) add(ctx context.Context, keys []string, pattern bool) *localSubscription {
	s := &localSubscription{
		bus:     l,
		keys:    append([]string(nil), keys...),
		pattern: pattern,
		out:     make(chan Message, l.buf),
	}
	l.mu.Lock()
	l.subs[s] = struct{}{}
	l.mu.Unlock()

	go func() {
		<-ctx.Done()
		_ = s.Close()
	}()
	return s
}

type localSubscription struct {
	bus     *Local
	keys    []string
	pattern bool

	mu     sync.Mutex
	closed bool
	out    chan Message
}

func (s *localSubscription) deliver(channel string, payload []byte) {
	for _, k := range s.keys {
		msg := Message{Channel: channel, Payload: payload}
		if s.pattern {
			if !MatchPattern(k, channel) {
				continue
			}
			msg.Pattern = k
		} else if k != channel {
			continue
		}

		s.mu.Lock()
		if !s.closed {
			select {
			case s.out <- msg:
			default:
			}
		}
		s.mu.Unlock()
		return
	}
}

func (s *localSubscription) Messages() <-chan Message { return s.out }

func (s *localSubscription) Close() error {
	s.bus.mu.Lock()
	delete(s.bus.subs, s)
	s.bus.mu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.out)
	}
	return nil
}
