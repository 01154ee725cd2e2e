package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/highera/swarm/internal/logging"
)

// RedisBus implements Bus over Redis pub/sub. Redis pub/sub is inherently
// at-most-once: messages published while a subscriber is disconnected are
// gone. On a transport error a subscription makes a single reconnect
// attempt, resubscribing to every channel it held; a delivered message
// restores the budget, so each failure event gets its own attempt. A
// failed reconnect, or a second error before any message arrives, closes
// the receive channel and surfaces to the consumer.
type RedisBus struct {
	client *redis.Client
	log    *logging.Logger
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisBus connects a RedisBus. The connection is verified with a ping.
func NewRedisBus(ctx context.Context, cfg RedisConfig) (*RedisBus, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}
	return &RedisBus{
		client: client,
		log:    logging.With("component", "redisbus"),
	}, nil
}

// Publish sends a message to a channel.
func (b *RedisBus) Publish(ctx context.Context, channel string, msg *Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}
	if err := b.client.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", channel, err)
	}
	return nil
}

// Subscribe opens a subscription over the given channels.
func (b *RedisBus) Subscribe(ctx context.Context, channels ...string) (Subscription, error) {
	open := func(ctx context.Context) (pubsubConn, error) {
		pubsub := b.client.Subscribe(ctx, channels...)
		if _, err := pubsub.Receive(ctx); err != nil {
			pubsub.Close()
			return nil, fmt.Errorf("failed to subscribe: %w", err)
		}
		return pubsub, nil
	}
	pubsub, err := open(ctx)
	if err != nil {
		return nil, err
	}

	sub := &redisSubscription{
		pubsub:   pubsub,
		resub:    open,
		channels: append([]string(nil), channels...),
		ch:       make(chan *Message, subscriptionBuffer),
		done:     make(chan struct{}),
		log:      b.log,
	}
	go sub.receiveLoop(ctx)
	return sub, nil
}

// Close releases the Redis connection.
func (b *RedisBus) Close() error {
	return b.client.Close()
}

// pubsubConn is the slice of redis.PubSub the subscription drives; tests
// substitute a scripted connection.
type pubsubConn interface {
	ReceiveMessage(ctx context.Context) (*redis.Message, error)
	Close() error
}

type redisSubscription struct {
	mu       sync.Mutex
	pubsub   pubsubConn
	resub    func(ctx context.Context) (pubsubConn, error)
	channels []string
	ch       chan *Message
	done     chan struct{}
	once     sync.Once
	log      *logging.Logger
}

func (s *redisSubscription) C() <-chan *Message { return s.ch }

func (s *redisSubscription) Channels() []string {
	return append([]string(nil), s.channels...)
}

func (s *redisSubscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		s.mu.Lock()
		err = s.pubsub.Close()
		s.mu.Unlock()
	})
	return err
}

// receiveLoop pumps messages from Redis into the receive channel. Each
// transport failure gets one reconnect attempt with full resubscription;
// a delivered message restores the budget, so a later blip is treated as
// a fresh failure rather than draining a lifetime allowance.
func (s *redisSubscription) receiveLoop(ctx context.Context) {
	defer close(s.ch)
	reconnected := false

	for {
		s.mu.Lock()
		pubsub := s.pubsub
		s.mu.Unlock()

		raw, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			select {
			case <-s.done:
				return
			default:
			}
			if ctx.Err() != nil {
				return
			}
			if reconnected {
				s.log.Error("subscription lost after reconnect", "error", err)
				return
			}
			reconnected = true
			s.log.Warn("transport error, attempting reconnect", "error", err)
			if rerr := s.reconnect(ctx); rerr != nil {
				s.log.Error("reconnect failed", "error", rerr)
				return
			}
			s.log.Info("resubscribed after transport error", "channels", len(s.channels))
			continue
		}
		reconnected = false

		var msg Message
		if err := json.Unmarshal([]byte(raw.Payload), &msg); err != nil {
			s.log.Warn("discarding malformed message", "channel", raw.Channel, "error", err)
			continue
		}
		select {
		case s.ch <- &msg:
		default:
			s.log.Warn("message dropped, subscriber buffer full", "channel", raw.Channel)
		}
	}
}

// reconnect replaces the underlying pubsub and resubscribes to every
// channel the subscription held before the failure.
func (s *redisSubscription) reconnect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pubsub.Close()
	pubsub, err := s.resub(ctx)
	if err != nil {
		return err
	}
	s.pubsub = pubsub
	return nil
}

var _ Bus = (*RedisBus)(nil)
