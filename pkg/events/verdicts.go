// Package events publishes judged submissions to Kafka for downstream consumers
// such as notification and analytics services.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// DefaultVerdictTopic is the topic judged submissions are written to.
const DefaultVerdictTopic = "submission.judged"

// SubmissionJudged is the record written for every persisted verdict.
type SubmissionJudged struct {
	SubmissionID  string `json:"submissionId"`
	EventID       string `json:"eventId"`
	QuestionID    string `json:"questionId"`
	UserID        string `json:"userId"`
	Language      string `json:"language"`
	Verdict       string `json:"verdict"`
	Points        int    `json:"points"`
	CorrelationID string `json:"correlationId,omitempty"`
	Timestamp     string `json:"timestamp"`
}

// VerdictPublisher emits judged submissions.
type VerdictPublisher interface {
	PublishJudged(ctx context.Context, event SubmissionJudged) error
	Close() error
}

// ErrQueueFull is returned when the background writer is too far behind to accept another verdict.
var ErrQueueFull = errors.New("verdict queue full")

// ErrPublisherClosed is returned after Close.
var ErrPublisherClosed = errors.New("verdict publisher closed")

const (
	defaultQueueSize    = 256
	maxBatchSize        = 100
	defaultWriteTimeout = 10 * time.Second
)

// MessageWriter is the subset of *kafka.Writer the publisher needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes verdicts keyed by user id so one user's verdicts stay ordered.
// PublishJudged only enqueues; a single background goroutine batches and writes, so a slow
// or unreachable broker never blocks the caller.
type KafkaPublisher struct {
	writer       MessageWriter
	topic        string
	logger       zerolog.Logger
	writeTimeout time.Duration

	mu     sync.RWMutex
	closed bool
	queue  chan kafka.Message
	done   chan struct{}
}

// NewKafkaPublisher builds a publisher for the given brokers.
func NewKafkaPublisher(brokers []string, topic string, logger zerolog.Logger) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers must not be empty")
	}
	if topic == "" {
		topic = DefaultVerdictTopic
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           10 * time.Millisecond,
		WriteTimeout:           5 * time.Second,
		MaxAttempts:            3,
		AllowAutoTopicCreation: true,
	}

	return NewPublisher(writer, topic, defaultQueueSize, logger), nil
}

// NewPublisher starts a publisher on an existing writer. queueSize bounds the verdicts held in memory.
func NewPublisher(writer MessageWriter, topic string, queueSize int, logger zerolog.Logger) *KafkaPublisher {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}

	p := &KafkaPublisher{
		writer:       writer,
		topic:        topic,
		logger:       logger.With().Str("component", "kafka_verdicts").Logger(),
		writeTimeout: defaultWriteTimeout,
		queue:        make(chan kafka.Message, queueSize),
		done:         make(chan struct{}),
	}
	go p.run()
	return p
}

// PublishJudged enqueues the verdict without waiting for the broker.
func (p *KafkaPublisher) PublishJudged(_ context.Context, event SubmissionJudged) error {
	if event.Timestamp == "" {
		event.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode verdict: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.UserID),
		Value: data,
	}
	if event.CorrelationID != "" {
		msg.Headers = []kafka.Header{{Key: "correlation_id", Value: []byte(event.CorrelationID)}}
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPublisherClosed
	}

	select {
	case p.queue <- msg:
		return nil
	default:
		return fmt.Errorf("submission %s: %w", event.SubmissionID, ErrQueueFull)
	}
}

func (p *KafkaPublisher) run() {
	defer close(p.done)

	for msg := range p.queue {
		batch := []kafka.Message{msg}
	collect:
		for len(batch) < maxBatchSize {
			select {
			case next, ok := <-p.queue:
				if !ok {
					break collect
				}
				batch = append(batch, next)
			default:
				break collect
			}
		}

		p.write(batch)
	}
}

func (p *KafkaPublisher) write(batch []kafka.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), p.writeTimeout)
	defer cancel()

	if err := p.writer.WriteMessages(ctx, batch...); err != nil {
		p.logger.Warn().Err(err).Int("messages", len(batch)).Str("topic", p.topic).Msg("failed to write verdicts")
		return
	}

	p.logger.Debug().Int("messages", len(batch)).Msg("verdicts published")
}

// Close stops accepting verdicts, flushes what is queued and closes the writer.
func (p *KafkaPublisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	<-p.done
	return p.writer.Close()
}

// NopPublisher drops every verdict; used when no brokers are configured.
type NopPublisher struct{}

func (NopPublisher) PublishJudged(context.Context, SubmissionJudged) error { return nil }

func (NopPublisher) Close() error { return nil }
