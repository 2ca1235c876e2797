package outbox

import (
	"context"

	"github.com/md-rashed-zaman/propertyhub/libs/kafkax"
	otelx "github.com/md-rashed-zaman/propertyhub/libs/otel"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Producer is the subset of kafkax.Producer the sender needs.
type Producer interface {
	Produce(ctx context.Context, msg kafka.Message) error
}

// KafkaSender publishes entries to the topic named by their destination, keyed by
// stream id so one stream stays on one partition.
type KafkaSender struct {
	producer Producer
}

func NewKafkaSender(p Producer) *KafkaSender {
	return &KafkaSender{producer: p}
}

func (s *KafkaSender) Send(ctx context.Context, e Entry) error {
	ctx = otelx.ContextWithTraceContext(ctx, e.Traceparent, e.Tracestate)
	ctx, span := otelx.Tracer("outbox").Start(ctx, "outbox.send "+e.Destination,
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination.name", e.Destination),
			attribute.String("messaging.message.id", e.EventID),
			attribute.Int("outbox.retry_count", e.RetryCount),
		),
	)
	defer span.End()

	msg := Encode(ctx, e)
	if err := s.producer.Produce(ctx, msg); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

// Encode renders an entry as the Kafka message consumers receive.
func Encode(ctx context.Context, e Entry) kafka.Message {
	meta := kafkax.EventMeta{
		EventID:       e.EventID,
		EventType:     e.EventType,
		SchemaVersion: e.SchemaVersion,
		TenantID:      e.TenantID,
	}
	return kafka.Message{
		Topic:   e.Destination,
		Key:     []byte(e.StreamID),
		Value:   e.Payload,
		Headers: kafkax.InjectTraceHeaders(ctx, meta.Headers()),
	}
}
