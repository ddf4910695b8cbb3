// Package kafka wraps segmentio/kafka-go writers and readers for JSON events.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

// ErrDisabled is returned when no broker address is configured.
var ErrDisabled = errors.New("kafka disabled")

// Client knows the broker addresses.
type Client struct {
	Brokers []string
}

// NewClient parses a comma separated broker list.
func NewClient(brokersCSV string) *Client {
	brokers := []string{}
	for _, b := range strings.Split(brokersCSV, ",") {
		b = strings.TrimSpace(b)
		if b != "" {
			brokers = append(brokers, b)
		}
	}
	return &Client{Brokers: brokers}
}

// Enabled reports whether at least one broker is configured.
func (c *Client) Enabled() bool {
	return len(c.Brokers) > 0
}

// NewWriter returns a writer that partitions by message key, so events of one
// aggregate stay ordered.
func (c *Client) NewWriter(topic string) (*kafka.Writer, error) {
	if !c.Enabled() {
		return nil, ErrDisabled
	}
	return &kafka.Writer{
		Addr:                   kafka.TCP(c.Brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}, nil
}

// NewReader returns a consumer-group reader for topic. A group without
// committed offsets starts at the end of the topic.
func (c *Client) NewReader(topic, groupID string) (*kafka.Reader, error) {
	if !c.Enabled() {
		return nil, ErrDisabled
	}
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:     c.Brokers,
		Topic:       topic,
		GroupID:     groupID,
		StartOffset: kafka.LastOffset,
		MinBytes:    10e3,
		MaxBytes:    10e6,
	}), nil
}

// PublishJSON marshals payload and writes it under key.
func PublishJSON(ctx context.Context, writer *kafka.Writer, key string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal kafka payload: %w", err)
	}
	return writer.WriteMessages(ctx, kafka.Message{Key: []byte(key), Value: data, Time: time.Now().UTC()})
}

// Consume reads messages until ctx is done and hands each value to handler.
// Offsets are committed only after handler succeeds; a failed message is
// committed too so the group does not stall on it.
func Consume(ctx context.Context, reader *kafka.Reader, handler func(ctx context.Context, value []byte) error, onError func(error)) error {
	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("failed to fetch kafka message: %w", err)
		}
		if err := handler(ctx, msg.Value); err != nil && onError != nil {
			onError(fmt.Errorf("offset %d: %w", msg.Offset, err))
		}
		if err := reader.CommitMessages(ctx, msg); err != nil {
			return fmt.Errorf("failed to commit kafka offset: %w", err)
		}
	}
}
