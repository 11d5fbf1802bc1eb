package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// MessageWriter is the subset of *kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes notifications to Kafka, keyed by contract id so that events for one
// contract stay ordered within a partition.
type KafkaPublisher struct {
	writer       MessageWriter
	defaultTopic string
	topicByType  map[Type]string
}

// NewKafkaPublisher creates a publisher. Types without a topic mapping go to defaultTopic.
func NewKafkaPublisher(brokers []string, defaultTopic string, topicByType map[Type]string) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka publisher requires at least one broker")
	}
	if defaultTopic == "" {
		return nil, fmt.Errorf("kafka publisher requires a default topic")
	}
	return NewKafkaPublisherWithWriter(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		RequiredAcks: kafka.RequireAll,
		Balancer:     &kafka.Hash{},
	}, defaultTopic, topicByType), nil
}

// NewKafkaPublisherWithWriter creates a publisher over an existing writer.
func NewKafkaPublisherWithWriter(w MessageWriter, defaultTopic string, topicByType map[Type]string) *KafkaPublisher {
	return &KafkaPublisher{writer: w, defaultTopic: defaultTopic, topicByType: topicByType}
}

func (p *KafkaPublisher) Publish(ctx context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", e.Type, err)
	}
	topic := p.defaultTopic
	if mapped, ok := p.topicByType[e.Type]; ok && mapped != "" {
		topic = mapped
	}
	msg := kafka.Message{
		Topic: topic,
		Key:   []byte(e.ContractID.String()),
		Value: payload,
		Time:  time.Now().UTC(),
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(e.Type)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish %s event: %w", e.Type, err)
	}
	return nil
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
