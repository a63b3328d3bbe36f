// Package kafka ships audit events to a Kafka topic. Append only buffers;
// delivery happens in Run so a slow or unavailable broker never blocks the
// caller emitting the event.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	audit "trustmesh/pkg/platform/audit"
)

// Producer is the subset of *kgo.Client used by the sink.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

type Sink struct {
	producer      Producer
	topic         string
	buffer        *RingBuffer
	batchSize     int
	flushInterval time.Duration
	logger        *slog.Logger
}

type Option func(*Sink)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Sink) {
		s.logger = logger
	}
}

func WithBufferCapacity(capacity int) Option {
	return func(s *Sink) {
		s.buffer = NewRingBuffer(capacity)
	}
}

func WithBatchSize(n int) Option {
	return func(s *Sink) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

func WithFlushInterval(d time.Duration) Option {
	return func(s *Sink) {
		if d > 0 {
			s.flushInterval = d
		}
	}
}

func New(producer Producer, topic string, opts ...Option) *Sink {
	s := &Sink{
		producer:      producer,
		topic:         topic,
		batchSize:     100,
		flushInterval: time.Second,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.buffer == nil {
		s.buffer = NewRingBuffer(0)
	}
	return s
}

// NewClient dials the brokers and makes sure the audit topic exists.
func NewClient(ctx context.Context, brokers []string, topic string) (*kgo.Client, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.ProducerLinger(50*time.Millisecond),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	if err := EnsureTopic(ctx, kadm.NewClient(client), topic); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

// EnsureTopic creates the topic with one partition if it does not exist.
func EnsureTopic(ctx context.Context, admin *kadm.Client, topic string) error {
	resp, err := admin.CreateTopics(ctx, 1, -1, nil, topic)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", topic, err)
	}
	for _, r := range resp {
		if r.Err != nil && !errors.Is(r.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", r.Topic, r.Err)
		}
	}
	return nil
}

// Append buffers the event for delivery.
func (s *Sink) Append(_ context.Context, event audit.Event) error {
	s.buffer.Enqueue(event)
	return nil
}

// Pending is the number of buffered events not yet delivered.
func (s *Sink) Pending() int {
	return s.buffer.Len()
}

// Dropped is the number of events lost to buffer overflow.
func (s *Sink) Dropped() int64 {
	return s.buffer.Dropped()
}

// Run flushes on every interval until ctx is cancelled, then makes a final
// best-effort flush.
func (s *Sink) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			err := s.Flush(flushCtx)
			cancel()
			if err != nil {
				s.logger.Warn("final audit flush failed", "error", err, "pending", s.Pending())
			}
			return nil
		case <-ticker.C:
			if err := s.Flush(ctx); err != nil {
				s.logger.Warn("audit flush failed", "error", err, "pending", s.Pending())
			}
		}
	}
}

// Flush delivers buffered events in batches. A failed batch is requeued and
// the error returned.
func (s *Sink) Flush(ctx context.Context) error {
	for {
		batch := s.buffer.DequeueBatch(s.batchSize)
		if len(batch) == 0 {
			return nil
		}
		records := make([]*kgo.Record, 0, len(batch))
		for _, event := range batch {
			value, err := json.Marshal(event)
			if err != nil {
				s.logger.Error("dropping unencodable audit event", "error", err, "action", event.Action)
				continue
			}
			records = append(records, &kgo.Record{
				Topic: s.topic,
				Key:   []byte(event.Subject),
				Value: value,
			})
		}
		if err := s.producer.ProduceSync(ctx, records...).FirstErr(); err != nil {
			s.buffer.Requeue(batch)
			return fmt.Errorf("produce audit batch: %w", err)
		}
	}
}
