// Package kafka delivers events to a Kafka topic with synchronous produces,
// so a nil error means the broker acknowledged the record.
//
// Records are keyed by the distinct ID, which keeps one device's events on
// one partition in order. The event name and device time travel as headers
// so consumers can deduplicate on (distinct id, event, device time) without
// decoding the value.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"beacon/internal/queue"
)

// Header names set on every record.
const (
	HeaderEvent      = "event"
	HeaderDeviceTime = "device_time"
)

// Producer is the subset of *kgo.Client the sink needs.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// Sink produces telemetry events to one topic.
type Sink struct {
	producer Producer
	topic    string

	mu         sync.RWMutex
	distinctID string
}

// New creates a Sink. The producer lifecycle is managed by the caller.
func New(producer Producer, topic string) (*Sink, error) {
	if producer == nil {
		return nil, fmt.Errorf("kafka producer is required")
	}
	if topic == "" {
		return nil, fmt.Errorf("kafka topic is required")
	}
	return &Sink{producer: producer, topic: topic}, nil
}

// NewClient builds a franz-go client tuned for acknowledged, ordered delivery.
func NewClient(brokers []string, opts ...kgo.Opt) (*kgo.Client, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("at least one kafka broker is required")
	}
	base := []kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	}
	client, err := kgo.NewClient(append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return client, nil
}

// EnsureTopic creates topic when it does not exist yet.
func EnsureTopic(ctx context.Context, client *kgo.Client, topic string, partitions int32) error {
	adm := kadm.NewClient(client)
	resp, err := adm.CreateTopic(ctx, partitions, -1, nil, topic)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", topic, err)
	}
	if resp.Err != nil && !errors.Is(resp.Err, kerr.TopicAlreadyExists) {
		return fmt.Errorf("create topic %s: %w", topic, resp.Err)
	}
	return nil
}

// Identify sets the record key for subsequent events.
func (s *Sink) Identify(_ context.Context, distinctID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.distinctID = distinctID
	return nil
}

type recordValue struct {
	Event      string         `json:"event"`
	DistinctID string         `json:"distinct_id"`
	Properties map[string]any `json:"properties"`
}

// NewRecord builds the record produced for one event.
func NewRecord(topic, distinctID, event string, props map[string]any) (*kgo.Record, error) {
	value, err := json.Marshal(recordValue{Event: event, DistinctID: distinctID, Properties: props})
	if err != nil {
		return nil, fmt.Errorf("marshal record: %w", err)
	}
	rec := &kgo.Record{
		Topic: topic,
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: HeaderEvent, Value: []byte(event)},
		},
	}
	if distinctID != "" {
		rec.Key = []byte(distinctID)
	}
	if ts, ok := props[queue.DeviceTimeProperty].(string); ok {
		rec.Headers = append(rec.Headers, kgo.RecordHeader{Key: HeaderDeviceTime, Value: []byte(ts)})
	}
	return rec, nil
}

// Deliver produces one record and waits for the broker acknowledgement.
func (s *Sink) Deliver(ctx context.Context, event string, props map[string]any) error {
	s.mu.RLock()
	distinctID := s.distinctID
	s.mu.RUnlock()

	rec, err := NewRecord(s.topic, distinctID, event, props)
	if err != nil {
		return err
	}
	if err := s.producer.ProduceSync(ctx, rec).FirstErr(); err != nil {
		return fmt.Errorf("produce %s: %w", event, err)
	}
	return nil
}
