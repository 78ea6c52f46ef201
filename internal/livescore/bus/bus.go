package bus

import (
	"context"
	"encoding/json"
	"time"
)

// Channel names shared by the notifier and the bridge.
const (
	ChannelAll     = "all"
	ChannelLiveAll = "live:all"
	PatternMatch   = "match:*"
	PatternLeague  = "league:*"
)

func MatchChannel(id string) string  { return "match:" + id }
func LeagueChannel(id string) string { return "league:" + id }

// Envelope is the JSON message published on every channel.
type Envelope struct {
	Type      string          `json:"type"`
	Channel   string          `json:"channel"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// Message is one delivery from a subscription. Pattern is set for pattern
// subscriptions; Channel is always the concrete channel it was published on.
type Message struct {
	Channel string
	Pattern string
	Payload []byte
}

type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// Subscription delivers messages until Close is called or its context ends.
type Subscription interface {
	Messages() <-chan Message
	Close() error
}

type Subscriber interface {
	Subscribe(ctx context.Context, channels ...string) (Subscription, error)
	PSubscribe(ctx context.Context, patterns ...string) (Subscription, error)
}

// Bus is both ends of the pub/sub transport.
type Bus interface {
	Publisher
	Subscriber
}

// MatchPattern reports whether channel matches a Redis PSUBSCRIBE glob such
// as "match:*". '*' and '?' match any byte including '/', "[...]" is a class
// ("^" negates, "a-z" is a range) and '\\' escapes. An unterminated class
// never matches.
func MatchPattern(pattern, channel string) bool {
	p, s := 0, 0
	star, mark := -1, 0
	for s < len(channel) {
		if p < len(pattern) {
			if pattern[p] == '*' {
				star, mark = p, s
				p++
				continue
			}
			next, ok, valid := matchOne(pattern, p, channel[s])
			if !valid {
				return false
			}
			if ok {
				p, s = next, s+1
				continue
			}
		}
		if star < 0 {
			return false
		}
		// 回溯：让上一个 * 多吃一个字节
		mark++
		p, s = star+1, mark
	}
	for p < len(pattern) && pattern[p] == '*' {
		p++
	}
	return p == len(pattern)
}

// matchOne matches c against the single-byte token at pattern[p] and returns
// the index after the token.
func matchOne(pattern string, p int, c byte) (next int, ok, valid bool) {
	switch pattern[p] {
	case '?':
		return p + 1, true, true
	case '\\':
		if p+1 < len(pattern) {
			return p + 2, pattern[p+1] == c, true
		}
		return p + 1, c == '\\', true
	case '[':
		return matchClass(pattern, p+1, c)
	default:
		return p + 1, pattern[p] == c, true
	}
}

func matchClass(pattern string, i int, c byte) (next int, ok, valid bool) {
	negate := i < len(pattern) && pattern[i] == '^'
	if negate {
		i++
	}
	for {
		if i >= len(pattern) {
			return 0, false, false
		}
		ch := pattern[i]
		switch {
		case ch == ']':
			return i + 1, ok != negate, true
		case ch == '\\' && i+1 < len(pattern):
			ok = ok || pattern[i+1] == c
			i += 2
		case i+2 < len(pattern) && pattern[i+1] == '-' && pattern[i+2] != ']':
			lo, hi := ch, pattern[i+2]
			if lo > hi {
				lo, hi = hi, lo
			}
			ok = ok || (c >= lo && c <= hi)
			i += 3
		default:
			ok = ok || ch == c
			i++
		}
	}
}
