package bridge

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"livescore/internal/livescore/bus"
)

// Broadcaster receives every message the bridge reads from the bus.
type Broadcaster interface {
	Broadcast(ctx context.Context, channel string, msg any) int
}

// Bridge forwards bus messages to live clients. It runs two loops: one on
// the static channels and one on the match/league patterns.
type Bridge struct {
	Log        *zap.Logger
	Subscriber bus.Subscriber
	Hub        Broadcaster

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func New(log *zap.Logger, sub bus.Subscriber, hub Broadcaster) *Bridge {
	if log == nil {
		log = zap.NewNop()
	}
	return &Bridge{Log: log, Subscriber: sub, Hub: hub}
}

// Start subscribes both loops and returns once they are listening. Calling
// Start on a running bridge does nothing.
func (b *Bridge) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		b.Log.Warn("Bridge already running")
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	static, err := b.Subscriber.Subscribe(runCtx, bus.ChannelAll, bus.ChannelLiveAll)
	if err != nil {
		cancel()
		return err
	}
	patterns, err := b.Subscriber.PSubscribe(runCtx, bus.PatternMatch, bus.PatternLeague)
	if err != nil {
		_ = static.Close()
		cancel()
		return err
	}

	b.cancel = cancel
	b.running = true
	b.wg.Add(2)
	go b.loop(runCtx, "static", static)
	go b.loop(runCtx, "pattern", patterns)

	b.Log.Info("Bridge started")
	return nil
}

// Stop cancels both loops and waits for them. No broadcast happens after
// Stop returns.
func (b *Bridge) Stop() {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return
	}
	b.cancel()
	b.running = false
	b.mu.Unlock()

	b.wg.Wait()
	b.Log.Info("Bridge stopped")
}

func (b *Bridge) Running() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}

func (b *Bridge) loop(ctx context.Context, name string, sub bus.Subscription) {
	defer b.wg.Done()
	defer func() {
		if err := sub.Close(); err != nil {
			b.Log.Debug("Subscription close failed", zap.String("loop", name), zap.Error(err))
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.Messages():
			if !ok {
				if ctx.Err() == nil {
					b.Log.Warn("Bus subscription closed", zap.String("loop", name))
				}
				return
			}
			if ctx.Err() != nil {
				return
			}
			b.forward(ctx, msg)
		}
	}
}

func (b *Bridge) forward(ctx context.Context, msg bus.Message) {
	var env bus.Envelope
	if err := json.Unmarshal(msg.Payload, &env); err != nil {
		b.Log.Warn("Dropping malformed bus message", zap.String("channel", msg.Channel), zap.Error(err))
		return
	}
	env.Channel = msg.Channel
	n := b.Hub.Broadcast(ctx, msg.Channel, env)
	b.Log.Debug("Bus message forwarded",
		zap.String("channel", msg.Channel),
		zap.String("type", env.Type),
		zap.Int("delivered", n),
	)
}
