package bus

import (
	"context"
	"sync"

	"github.com/highera/swarm/internal/logging"
)

// subscriptionBuffer is the per-subscription queue depth. A subscriber
// that falls further behind than this loses messages, consistent with the
// at-most-once contract.
const subscriptionBuffer = 64

// MemoryBus is an in-process Bus for single-node deployments and tests.
type MemoryBus struct {
	mu     sync.RWMutex
	subs   map[string][]*memorySubscription // channel -> subscriptions
	closed bool
	log    *logging.Logger
}

// NewMemoryBus creates an empty MemoryBus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{
		subs: make(map[string][]*memorySubscription),
		log:  logging.With("component", "membus"),
	}
}

// Publish delivers msg to every live subscription of channel. Messages for
// channels without subscribers, or for subscribers whose buffer is full,
// are dropped.
func (b *MemoryBus) Publish(ctx context.Context, channel string, msg *Message) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	subs := b.subs[channel]
	if len(subs) == 0 {
		b.log.Debug("message dropped, no subscribers", "channel", channel, "type", string(msg.Type))
		return nil
	}
	for _, sub := range subs {
		select {
		case sub.ch <- msg:
		default:
			b.log.Warn("message dropped, subscriber buffer full", "channel", channel, "type", string(msg.Type))
		}
	}
	return nil
}

// Subscribe opens a subscription over the given channels.
func (b *MemoryBus) Subscribe(ctx context.Context, channels ...string) (Subscription, error) {
	sub := &memorySubscription{
		bus:      b,
		channels: append([]string(nil), channels...),
		ch:       make(chan *Message, subscriptionBuffer),
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, channel := range channels {
		b.subs[channel] = append(b.subs[channel], sub)
	}
	return sub, nil
}

// Close drops all subscriptions.
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	seen := make(map[*memorySubscription]bool)
	for _, subs := range b.subs {
		for _, sub := range subs {
			if !seen[sub] {
				seen[sub] = true
				close(sub.ch)
			}
		}
	}
	b.subs = make(map[string][]*memorySubscription)
	return nil
}

type memorySubscription struct {
	bus      *MemoryBus
	channels []string
	ch       chan *Message
	once     sync.Once
}

func (s *memorySubscription) C() <-chan *Message { return s.ch }

func (s *memorySubscription) Channels() []string {
	return append([]string(nil), s.channels...)
}

func (s *memorySubscription) Close() error {
	s.once.Do(func() {
		s.bus.mu.Lock()
		defer s.bus.mu.Unlock()
		if s.bus.closed {
			return
		}
		for _, channel := range s.channels {
			subs := s.bus.subs[channel]
			for i, sub := range subs {
				if sub == s {
					s.bus.subs[channel] = append(subs[:i], subs[i+1:]...)
					break
				}
			}
			if len(s.bus.subs[channel]) == 0 {
				delete(s.bus.subs, channel)
			}
		}
		close(s.ch)
	})
	return nil
}

var _ Bus = (*MemoryBus)(nil)
