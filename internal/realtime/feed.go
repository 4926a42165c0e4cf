// Package realtime fans live updates (leaderboards, question lists, submission history)
// out to WebSocket subscribers on this node and, through Redis or NATS, on every other node.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/codearena-api/internal/observability"
)

const subscriberBufferSize = 16

// Message is a single push delivered to subscribers of a topic.
type Message struct {
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload"`
	SentAt  time.Time       `json:"sent_at"`
}

// Publisher pushes payloads to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload interface{}) error
}

// Subscriber opens a stream of pushes for a topic. The returned func closes it.
type Subscriber interface {
	Subscribe(topic string) (<-chan Message, func())
}

// Topic names.
func LeaderboardTopic(eventID string) string {
	return "leaderboard:" + eventID
}

func QuestionsTopic(eventID string) string {
	return "questions:" + eventID
}

func SubmissionsTopic(eventID, questionID, userID string) string {
	return fmt.Sprintf("submissions:%s:%s:%s", eventID, questionID, userID)
}

// Options configures cross-node fan-out. Both transports are optional.
type Options struct {
	Redis   *redis.Client
	NATS    *nats.Conn
	Channel string
}

// Feed is an in-process broker with optional Redis pub/sub and NATS relays.
type Feed struct {
	redis       *redis.Client
	redisStream string
	nats        *nats.Conn
	natsSubject string
	logger      zerolog.Logger
	nodeID      string

	mu          sync.RWMutex
	subscribers map[string]map[chan Message]struct{}
}

type envelope struct {
	Source  string  `json:"source"`
	Message Message `json:"message"`
}

// NewFeed constructs a feed. Channel names the relay stream, e.g. "codearena:live".
func NewFeed(opts Options, logger zerolog.Logger) *Feed {
	channel := opts.Channel
	if channel == "" {
		channel = "codearena:live"
	}

	return &Feed{
		redis:       opts.Redis,
		redisStream: channel,
		nats:        opts.NATS,
		natsSubject: strings.ReplaceAll(channel, ":", "."),
		logger:      logger.With().Str("component", "live_feed").Logger(),
		nodeID:      uuid.NewString(),
		subscribers: make(map[string]map[chan Message]struct{}),
	}
}

// Start subscribes to the configured relays. Consumers stop when ctx is cancelled.
func (f *Feed) Start(ctx context.Context) error {
	if f.redis != nil {
		pubsub := f.redis.Subscribe(ctx, f.redisStream)
		if _, err := pubsub.Receive(ctx); err != nil {
			_ = pubsub.Close()
			return fmt.Errorf("subscribe redis live feed: %w", err)
		}
		go f.consumeRedis(ctx, pubsub)
	}

	if f.nats != nil {
		sub, err := f.nats.Subscribe(f.natsSubject, func(msg *nats.Msg) {
			f.handleEnvelope(msg.Data)
		})
		if err != nil {
			return fmt.Errorf("subscribe nats live feed: %w", err)
		}
		go func() {
			<-ctx.Done()
			if err := sub.Drain(); err != nil {
				f.logger.Warn().Err(err).Msg("failed to drain live feed nats subscription")
			}
		}()
	}

	return nil
}

// Subscribe registers a buffered stream for topic. Slow readers miss pushes rather than block publishers.
func (f *Feed) Subscribe(topic string) (<-chan Message, func()) {
	ch := make(chan Message, subscriberBufferSize)

	f.mu.Lock()
	if _, ok := f.subscribers[topic]; !ok {
		f.subscribers[topic] = make(map[chan Message]struct{})
	}
	f.subscribers[topic][ch] = struct{}{}
	f.mu.Unlock()

	kind := feedKind(topic)
	observability.LiveSubscribers().WithLabelValues(kind).Inc()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			f.mu.Lock()
			if subscribers, ok := f.subscribers[topic]; ok {
				delete(subscribers, ch)
				if len(subscribers) == 0 {
					delete(f.subscribers, topic)
				}
			}
			close(ch)
			f.mu.Unlock()
			observability.LiveSubscribers().WithLabelValues(kind).Dec()
		})
	}
}

// Publish delivers payload to local subscribers and relays it to other nodes.
// Local delivery happens even when a relay fails.
func (f *Feed) Publish(ctx context.Context, topic string, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode live payload: %w", err)
	}

	msg := Message{Topic: topic, Payload: raw, SentAt: time.Now().UTC()}
	f.broadcast(msg)

	return f.relay(ctx, msg)
}

func (f *Feed) relay(ctx context.Context, msg Message) error {
	if f.redis == nil && f.nats == nil {
		return nil
	}

	data, err := json.Marshal(envelope{Source: f.nodeID, Message: msg})
	if err != nil {
		return err
	}

	var errs []error
	if f.redis != nil {
		if err := f.redis.Publish(ctx, f.redisStream, data).Err(); err != nil {
			errs = append(errs, fmt.Errorf("redis relay: %w", err))
		}
	}
	if f.nats != nil {
		if err := f.nats.Publish(f.natsSubject, data); err != nil {
			errs = append(errs, fmt.Errorf("nats relay: %w", err))
		}
	}

	return errors.Join(errs...)
}

func (f *Feed) consumeRedis(ctx context.Context, pubsub *redis.PubSub) {
	defer func() { _ = pubsub.Close() }()

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, redis.ErrClosed) {
				return
			}
			f.logger.Error().Err(err).Msg("live feed redis subscription closed")
			return
		}
		f.handleEnvelope([]byte(msg.Payload))
	}
}

func (f *Feed) handleEnvelope(data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		f.logger.Warn().Err(err).Msg("invalid live feed payload")
		return
	}

	// Our own relays come back through the transport; they were already delivered locally.
	if env.Source == f.nodeID {
		return
	}

	f.broadcast(env.Message)
}

func (f *Feed) broadcast(msg Message) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	kind := feedKind(msg.Topic)
	for ch := range f.subscribers[msg.Topic] {
		select {
		case ch <- msg:
			observability.LiveMessages().WithLabelValues(kind, "delivered").Inc()
		default:
			observability.LiveMessages().WithLabelValues(kind, "dropped").Inc()
		}
	}
}

func feedKind(topic string) string {
	if idx := strings.IndexByte(topic, ':'); idx > 0 {
		return topic[:idx]
	}
	return topic
}
