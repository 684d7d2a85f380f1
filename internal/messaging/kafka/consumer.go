package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/IgorGrieder/short-url/internal/events"
	"github.com/IgorGrieder/short-url/internal/infrastructure/logger"
	kafkago "github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafkago.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// ClickApplier persists one click. links.Service satisfies it.
type ClickApplier interface {
	ApplyClick(ctx context.Context, code string, at time.Time) error
}

type ConsumerOptions struct {
	OperationTimeout time.Duration
	Backoff          time.Duration
}

type ClickConsumer struct {
	reader  messageReader
	applier ClickApplier
	opts    ConsumerOptions
}

func NewReader(brokers []string, topic, groupID, clientID string, maxWait time.Duration) *kafkago.Reader {
	return kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     brokers,
		Topic:       topic,
		GroupID:     groupID,
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     maxWait,
		StartOffset: kafkago.FirstOffset,
		Dialer:      &kafkago.Dialer{ClientID: clientID, Timeout: 10 * time.Second, DualStack: true},
	})
}

func NewClickConsumer(reader messageReader, applier ClickApplier, opts ConsumerOptions) *ClickConsumer {
	if opts.OperationTimeout <= 0 {
		opts.OperationTimeout = 5 * time.Second
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 500 * time.Millisecond
	}
	return &ClickConsumer{reader: reader, applier: applier, opts: opts}
}

// Run consumes until ctx is cancelled. A message whose click cannot be
// applied is retried in place with backoff; the reader does not move past it
// and nothing later on its partition is committed until it succeeds.
func (c *ClickConsumer) Run(ctx context.Context) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			logger.Error("failed to fetch kafka message", zap.Error(err))
			if !c.sleep(ctx) {
				return nil
			}
			continue
		}

		if !c.handle(ctx, msg) {
			return nil
		}
	}
}

// handle applies msg, retrying until it succeeds, then commits it. It
// returns false when ctx ends first; the message stays uncommitted.
func (c *ClickConsumer) handle(ctx context.Context, msg kafkago.Message) bool {
	consumeCtx, span := otel.Tracer("click-consumer").Start(
		extractHeaders(ctx, msg.Headers),
		"kafka.consume.click_recorded",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination.name", msg.Topic),
			attribute.String("messaging.operation", "process"),
			attribute.Int("messaging.kafka.partition", msg.Partition),
			attribute.Int64("messaging.kafka.offset", msg.Offset),
		),
	)
	defer span.End()

	for attempt := 1; ; attempt++ {
		err := c.process(consumeCtx, msg)
		if err == nil {
			break
		}
		span.RecordError(err)
		logger.Error("failed to process click event, retrying",
			zap.Error(err),
			zap.String("topic", msg.Topic),
			zap.Int("partition", msg.Partition),
			zap.Int64("offset", msg.Offset),
			zap.Int("attempt", attempt),
		)
		if !c.sleep(ctx) {
			span.SetStatus(codes.Error, "click event not applied before shutdown")
			return false
		}
	}

	if err := c.reader.CommitMessages(consumeCtx, msg); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "commit kafka offset failed")
		logger.Error("failed to commit kafka offset",
			zap.Error(err),
			zap.Int64("offset", msg.Offset),
		)
	}
	return true
}

// process returns nil for payloads that can never succeed so they are
// committed and skipped.
func (c *ClickConsumer) process(ctx context.Context, msg kafkago.Message) error {
	var event events.ClickRecorded
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		logger.Warn("invalid click event payload, skipping",
			zap.Error(err),
			zap.ByteString("payload", msg.Value),
		)
		return nil
	}
	if strings.TrimSpace(event.ShortCode) == "" {
		logger.Warn("click event missing short code, skipping", zap.String("event_id", event.EventID))
		return nil
	}

	occurredAt, ok := event.OccurredTime(msg.Time)
	if !ok && event.OccurredAt != "" {
		logger.Warn("invalid event occurredAt, using kafka timestamp", zap.String("event_id", event.EventID))
	}

	opCtx, cancel := context.WithTimeout(ctx, c.opts.OperationTimeout)
	defer cancel()

	return c.applier.ApplyClick(opCtx, event.ShortCode, occurredAt)
}

func (c *ClickConsumer) sleep(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(c.opts.Backoff):
		return true
	}
}

func (c *ClickConsumer) Close() error {
	return c.reader.Close()
}
