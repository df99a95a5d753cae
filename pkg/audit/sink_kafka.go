package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

const defaultTopic = "geekship.audit"

// kafkaPayload is the JSON structure produced to the audit topic.
type kafkaPayload struct {
	Timestamp string `json:"timestamp"`
	Actor     string `json:"actor,omitempty"`
	Action    string `json:"action"`
	Subject   string `json:"subject,omitempty"`
	RequestID uint64 `json:"request_id,omitempty"`
	Detail    string `json:"detail,omitempty"`
}

// KafkaSink produces audit events to a Kafka topic. Events for the same SR
// share a partition key so per-request ordering survives the broker.
type KafkaSink struct {
	client *kgo.Client
	topic  string
}

type KafkaSinkOption func(*KafkaSink)

func WithTopic(topic string) KafkaSinkOption {
	return func(s *KafkaSink) { s.topic = topic }
}

func NewKafkaSink(brokers []string, opts ...KafkaSinkOption) (*KafkaSink, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka client: %w", err)
	}
	sink := &KafkaSink{client: client, topic: defaultTopic}
	for _, opt := range opts {
		opt(sink)
	}
	return sink, nil
}

func (s *KafkaSink) Append(ctx context.Context, event Event) error {
	payload := kafkaPayload{
		Timestamp: event.Timestamp.Format(time.RFC3339Nano),
		Action:    event.Action,
		Subject:   event.Subject,
		RequestID: uint64(event.RequestID),
		Detail:    event.Detail,
	}
	if !event.Actor.IsNil() {
		payload.Actor = event.Actor.String()
	}
	value, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}

	key := []byte(payload.Actor)
	if event.RequestID != 0 {
		key = []byte(strconv.FormatUint(uint64(event.RequestID), 10))
	}
	record := &kgo.Record{Topic: s.topic, Key: key, Value: value}
	return s.client.ProduceSync(ctx, record).FirstErr()
}

// Close flushes pending produces and releases the client.
func (s *KafkaSink) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.client.Flush(ctx)
	s.client.Close()
}
