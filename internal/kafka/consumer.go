package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/segmentio/kafka-go"

	"torashaout/internal/logger"
	"torashaout/internal/models"
)

// MessageReader is the subset of *kafka.Reader the consumer uses.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type CallbackHandler func(ctx context.Context, cb models.GatewayCallback) error

// Consumer feeds asynchronous gateway confirmations into the payment recorder.
type Consumer struct {
	reader MessageReader
	log    *logger.Logger
}

// NewConsumer creates a new Kafka consumer for the given topic and group
func NewConsumer(brokers []string, topic, groupID string, log *logger.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})
	return NewConsumerWithReader(reader, log)
}

func NewConsumerWithReader(r MessageReader, log *logger.Logger) *Consumer {
	return &Consumer{reader: r, log: log}
}

// Start consumes until ctx is cancelled. A message is committed once handled or
// once it is found to be unparseable; handler failures leave it uncommitted so the
// group redelivers it.
func (c *Consumer) Start(ctx context.Context, handler CallbackHandler) error {
	c.log.LogProcess("KAFKA_CONSUMER", "gateway callback consumer started")

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				c.log.LogProcess("KAFKA_CONSUMER", "stopped")
				return nil
			}
			c.log.Error("KAFKA", fmt.Sprintf("error reading message: %v", err))
			continue
		}

		var cb models.GatewayCallback
		if err := json.Unmarshal(msg.Value, &cb); err != nil {
			c.log.Warn("KAFKA", fmt.Sprintf("dropping malformed callback at offset %d: %v", msg.Offset, err))
			c.commit(ctx, msg)
			continue
		}

		c.log.LogKafka("RECEIVE", msg.Topic, cb.Reference)
		if err := handler(ctx, cb); err != nil {
			c.log.Error("KAFKA", fmt.Sprintf("callback %s not applied: %v", cb.Reference, err))
			continue
		}
		c.commit(ctx, msg)
	}
}

func (c *Consumer) commit(ctx context.Context, msg kafka.Message) {
	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		c.log.Error("KAFKA", fmt.Sprintf("commit offset %d: %v", msg.Offset, err))
	}
}

// Close gracefully shuts down the Kafka reader
func (c *Consumer) Close() error {
	return c.reader.Close()
}
