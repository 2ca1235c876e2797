package outbox

import (
	"context"
	"errors"
	"testing"

	"github.com/md-rashed-zaman/propertyhub/libs/kafkax"
	"github.com/segmentio/kafka-go"
)

type recordingProducer struct {
	msgs []kafka.Message
	err  error
}

func (p *recordingProducer) Produce(_ context.Context, msg kafka.Message) error {
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, msg)
	return nil
}

func TestKafkaSenderMessageShape(t *testing.T) {
	prod := &recordingProducer{}
	sender := NewKafkaSender(prod)
	e := Entry{
		ID: 1, EventID: "e-1", StreamID: "o-1", TenantID: "t-1",
		EventType: "organization.renamed.v1", Destination: "organization.renamed.v1",
		SchemaVersion: "1.0.0", Payload: []byte(`{"id":"o-1"}`),
	}
	if err := sender.Send(context.Background(), e); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(prod.msgs) != 1 {
		t.Fatalf("expected one message, got %d", len(prod.msgs))
	}
	m := prod.msgs[0]
	if m.Topic != "organization.renamed.v1" || string(m.Key) != "o-1" || string(m.Value) != `{"id":"o-1"}` {
		t.Fatalf("unexpected message: %+v", m)
	}
	meta := kafkax.ExtractEventMeta(m)
	if meta.EventID != "e-1" || meta.SchemaVersion != "1.0.0" || meta.TenantID != "t-1" {
		t.Fatalf("unexpected headers: %+v", meta)
	}
}

func TestKafkaSenderReturnsBrokerError(t *testing.T) {
	boom := errors.New("leader not available")
	sender := NewKafkaSender(&recordingProducer{err: boom})
	if err := sender.Send(context.Background(), Entry{ID: 1, Destination: "x.y.v1"}); !errors.Is(err, boom) {
		t.Fatalf("expected broker error, got %v", err)
	}
}
