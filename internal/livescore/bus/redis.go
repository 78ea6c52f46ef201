package bus

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Redis is a Bus over Redis pub/sub. Nothing is persisted or replayed.
type Redis struct {
	Client *redis.Client
}

func NewRedis(opt *redis.Options) *Redis {
	return &Redis{Client: redis.NewClient(opt)}
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.Client.Ping(ctx).Err()
}

func (r *Redis) Close() error {
	return r.Client.Close()
}

func (r *Redis) Publish(ctx context.Context, channel string, payload []byte) error {
	return r.Client.Publish(ctx, channel, payload).Err()
}

func (r *Redis) Subscribe(ctx context.Context, channels ...string) (Subscription, error) {
	ps := r.Client.Subscribe(ctx, channels...)
	return startRedisSubscription(ctx, ps)
}

func (r *Redis) PSubscribe(ctx context.Context, patterns ...string) (Subscription, error) {
	ps := r.Client.PSubscribe(ctx, patterns...)
	return startRedisSubscription(ctx, ps)
}

type redisSubscription struct {
	ps   *redis.PubSub
	out  chan Message
	once sync.Once
	done chan struct{}
}

func startRedisSubscription(ctx context.Context, ps *redis.PubSub) (Subscription, error) {
	// Wait for the subscribe confirmation so errors surface here.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}
	s := &redisSubscription{
		ps:   ps,
		out:  make(chan Message, 256),
		done: make(chan struct{}),
	}
	go s.pump(ctx)
	return s, nil
}

func (s *redisSubscription) pump(ctx context.Context) {
	defer close(s.out)
	in := s.ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case msg, ok := <-in:
			if !ok {
				return
			}
			select {
			case s.out <- Message{Channel: msg.Channel, Pattern: msg.Pattern, Payload: []byte(msg.Payload)}:
			case <-ctx.Done():
				return
			case <-s.done:
				return
			}
		}
	}
}

func (s *redisSubscription) Messages() <-chan Message { return s.out }

func (s *redisSubscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.ps.Close()
	})
	return err
}
