package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"torashaout/internal/config"
	"torashaout/internal/logger"
	"torashaout/internal/models"
)

// MessageWriter is the subset of *kafka.Writer the producer uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Producer struct {
	writer MessageWriter
	topics config.TopicConfig
	log    *logger.Logger
}

// NewProducer writes to any topic on brokers; the topic is chosen per message.
func NewProducer(brokers []string, topics config.TopicConfig, log *logger.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
	return NewProducerWithWriter(writer, topics, log)
}

func NewProducerWithWriter(w MessageWriter, topics config.TopicConfig, log *logger.Logger) *Producer {
	return &Producer{writer: w, topics: topics, log: log}
}

// NewDisabledProducer accepts every event and drops it. Used when Kafka is off.
func NewDisabledProducer(log *logger.Logger) *Producer {
	return &Producer{log: log}
}

// Publish marshals value as JSON and writes it keyed by key, so events for one
// booking stay ordered within a partition.
func (p *Producer) Publish(ctx context.Context, topic, key string, value interface{}) error {
	if p.writer == nil {
		p.log.Debug("KAFKA", fmt.Sprintf("disabled, dropping event for %s", topic))
		return nil
	}

	msgBytes, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", topic, err)
	}

	if err := p.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: msgBytes,
	}); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	p.log.LogKafka("PUBLISH", topic, key)
	return nil
}

func (p *Producer) PublishBookingEvent(ctx context.Context, event models.BookingEvent) error {
	return p.Publish(ctx, p.topics.BookingEvents, event.BookingID, event)
}

func (p *Producer) PublishPaymentEvent(ctx context.Context, event models.PaymentEvent) error {
	return p.Publish(ctx, p.topics.PaymentEvents, event.BookingID, event)
}

func (p *Producer) PublishPayoutEvent(ctx context.Context, event models.PayoutEvent) error {
	return p.Publish(ctx, p.topics.PayoutEvents, event.TalentID, event)
}

// PublishReconciliation announces a payment whose booking could not be advanced.
func (p *Producer) PublishReconciliation(ctx context.Context, event models.PaymentEvent) error {
	return p.Publish(ctx, p.topics.Reconciliation, event.BookingID, event)
}

func (p *Producer) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
