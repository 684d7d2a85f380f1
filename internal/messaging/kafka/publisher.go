// Package kafka streams redirect clicks through a Kafka topic so counter
// updates leave the redirect path.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IgorGrieder/short-url/internal/events"
	"github.com/IgorGrieder/short-url/internal/processing/links"
	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

type ClickPublisher struct {
	writer  messageWriter
	topic   string
	timeout time.Duration
}

func NewWriter(brokers []string, topic string) *kafkago.Writer {
	return &kafkago.Writer{
		Addr:                   kafkago.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafkago.Hash{},
		BatchTimeout:           10 * time.Millisecond,
		RequiredAcks:           kafkago.RequireOne,
		AllowAutoTopicCreation: true,
	}
}

func NewClickPublisher(writer messageWriter, topic string, timeout time.Duration) *ClickPublisher {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &ClickPublisher{writer: writer, topic: topic, timeout: timeout}
}

// PublishClick writes one ClickRecorded event keyed by short code, so all
// clicks for a code land on the same partition.
func (p *ClickPublisher) PublishClick(ctx context.Context, code string, at time.Time) error {
	event := events.ClickRecorded{
		EventID:    uuid.NewString(),
		ShortCode:  code,
		OccurredAt: at.UTC().Format(time.RFC3339Nano),
	}
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal click event: %w", err)
	}

	ctx, span := otel.Tracer("click-publisher").Start(ctx,
		"kafka.publish.click_recorded",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination.name", p.topic),
			attribute.String("messaging.operation", "publish"),
			attribute.String("messaging.message.id", event.EventID),
			attribute.String("messaging.kafka.message_key", code),
		),
	)
	defer span.End()

	writeCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err = p.writer.WriteMessages(writeCtx, kafkago.Message{
		Key:     []byte(code),
		Value:   value,
		Time:    at.UTC(),
		Headers: injectHeaders(ctx),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "kafka publish failed")
		return fmt.Errorf("publish click event: %w", err)
	}
	return nil
}

func (p *ClickPublisher) Close() error {
	return p.writer.Close()
}

var _ links.ClickPublisher = (*ClickPublisher)(nil)
