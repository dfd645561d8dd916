// Package kafka wraps segmentio/kafka-go. The producer publishes import
// events as JSON; the consumer feeds import requests to a MessageHandler.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/nysenate/openleg-sync/pkg/config"
	apperrors "github.com/nysenate/openleg-sync/pkg/errors"
	"github.com/nysenate/openleg-sync/pkg/resilience"
)

// MessageHandler processes one message. A retryable error (see
// apperrors.IsRetryable) makes the consumer handle the same message again;
// any other error drops it.
type MessageHandler func(ctx context.Context, key, value []byte) error

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads one topic as part of a consumer group.
type Consumer struct {
	reader  messageReader
	logger  *slog.Logger
	handler MessageHandler
	retry   resilience.RetryConfig
	hold    time.Duration
}

// NewConsumer creates a group consumer for topic. retry controls how a
// message that fails with a retryable error is handled again.
func NewConsumer(cfg config.KafkaConfig, topic string, handler MessageHandler, retry resilience.RetryConfig, logger *slog.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       topic,
		GroupID:     cfg.ConsumerGroup,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafka.FirstOffset,
	})
	return newConsumer(r, topic, handler, retry, logger)
}

func newConsumer(r messageReader, topic string, handler MessageHandler, retry resilience.RetryConfig, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	retry.Retryable = apperrors.IsRetryable
	hold := retry.MaxDelay
	if hold <= 0 {
		hold = 30 * time.Second
	}
	return &Consumer{
		reader:  r,
		logger:  logger.With("component", "kafka-consumer", "topic", topic),
		handler: handler,
		retry:   retry,
		hold:    hold,
	}
}

// Run consumes until ctx is cancelled. Messages are handled one at a time.
// A message is committed once it succeeds or fails permanently; while it
// keeps failing with retryable errors the partition does not advance.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info("consumer started")
	defer c.reader.Close()
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("consumer stopping", "reason", ctx.Err())
				return nil
			}
			if errors.Is(err, context.Canceled) {
				return nil
			}
			c.logger.Error("failed to fetch message", "error", err)
			continue
		}
		log := c.logger.With("partition", msg.Partition, "offset", msg.Offset)
		if !c.handle(ctx, log, msg) {
			return nil
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			log.Error("failed to commit message", "error", err)
		}
	}
}

// handle runs the handler until msg is done with. It returns false only when
// ctx is cancelled first.
func (c *Consumer) handle(ctx context.Context, log *slog.Logger, msg kafka.Message) bool {
	for {
		err := resilience.Retry(ctx, "handle message", c.retry, func(ctx context.Context) error {
			return c.handler(ctx, msg.Key, msg.Value)
		})
		switch {
		case err == nil:
			return true
		case ctx.Err() != nil:
			log.Warn("message left uncommitted", "reason", ctx.Err())
			return false
		case !apperrors.IsRetryable(err):
			log.Error("dropping message", "key", string(msg.Key), "error", err)
			return true
		}
		log.Error("message still failing, holding partition", "key", string(msg.Key), "error", err, "wait", c.hold)
		select {
		case <-time.After(c.hold):
		case <-ctx.Done():
			return false
		}
	}
}

// DecodeJSON unmarshals a message value into T.
func DecodeJSON[T any](value []byte) (T, error) {
	var result T
	if err := json.Unmarshal(value, &result); err != nil {
		return result, fmt.Errorf("decoding kafka message: %w", err)
	}
	return result, nil
}
