package bus

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func waitFor(t *testing.T, ch <-chan *domain.Message) *domain.Message {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
		return nil
	}
}

func TestChannelBus(t *testing.T) {
	bus := NewChannelBus(100)
	defer bus.Close()

	ctx := context.Background()

	t.Run("PublishAndSubscribe", func(t *testing.T) {
		got := make(chan *domain.Message, 1)
		_, err := bus.Subscribe(ctx, "test.topic", func(ctx context.Context, msg *domain.Message) error {
			got <- msg
			return nil
		})
		if err != nil {
			t.Fatalf("subscribe failed: %v", err)
		}

		if err := bus.Publish(ctx, "test.topic", []byte("hello")); err != nil {
			t.Fatalf("publish failed: %v", err)
		}

		msg := waitFor(t, got)
		if string(msg.Payload) != "hello" {
			t.Errorf("expected payload 'hello', got '%s'", string(msg.Payload))
		}
		if msg.Topic != "test.topic" {
			t.Errorf("expected topic 'test.topic', got '%s'", msg.Topic)
		}
		if msg.ID == "" {
			t.Error("expected message id")
		}
	})

	t.Run("TopicIsolation", func(t *testing.T) {
		var received atomic.Int32
		bus.Subscribe(ctx, "other.topic", func(ctx context.Context, msg *domain.Message) error {
			received.Add(1)
			return nil
		})

		bus.Publish(ctx, "isolation.topic", []byte("msg1"))
		time.Sleep(50 * time.Millisecond)

		if received.Load() != 0 {
			t.Errorf("other.topic should receive 0 messages, got %d", received.Load())
		}
	})

	t.Run("Unsubscribe", func(t *testing.T) {
		var count atomic.Int32
		sub, _ := bus.Subscribe(ctx, "unsub.topic", func(ctx context.Context, msg *domain.Message) error {
			count.Add(1)
			return nil
		})

		bus.Publish(ctx, "unsub.topic", []byte("msg1"))
		time.Sleep(50 * time.Millisecond)

		if err := sub.Unsubscribe(); err != nil {
			t.Fatalf("unsubscribe failed: %v", err)
		}

		bus.Publish(ctx, "unsub.topic", []byte("msg2"))
		time.Sleep(50 * time.Millisecond)

		if count.Load() != 1 {
			t.Errorf("expected 1 message before unsubscribe, got %d", count.Load())
		}
	})

	t.Run("MultipleSubscribers", func(t *testing.T) {
		first := make(chan *domain.Message, 1)
		second := make(chan *domain.Message, 1)
		bus.Subscribe(ctx, "multi.topic", func(ctx context.Context, msg *domain.Message) error {
			first <- msg
			return nil
		})
		bus.Subscribe(ctx, "multi.topic", func(ctx context.Context, msg *domain.Message) error {
			second <- msg
			return nil
		})

		bus.Publish(ctx, "multi.topic", []byte("broadcast"))

		waitFor(t, first)
		waitFor(t, second)
	})

	t.Run("SubscriptionTopic", func(t *testing.T) {
		sub, _ := bus.Subscribe(ctx, "my.topic", func(ctx context.Context, msg *domain.Message) error {
			return nil
		})
		if sub.Topic() != "my.topic" {
			t.Errorf("expected topic 'my.topic', got '%s'", sub.Topic())
		}
	})
}

func TestChannelBusRequestTopics(t *testing.T) {
	bus := NewChannelBus(100)
	defer bus.Close()
	ctx := context.Background()

	var first, second atomic.Int32
	topic := domain.RequestTopic(domain.PipelineClaims)
	bus.Subscribe(ctx, topic, func(ctx context.Context, msg *domain.Message) error {
		first.Add(1)
		return nil
	})
	bus.Subscribe(ctx, topic, func(ctx context.Context, msg *domain.Message) error {
		second.Add(1)
		return nil
	})

	for i := 0; i < 10; i++ {
		bus.Publish(ctx, topic, []byte("req"))
	}

	deadline := time.Now().Add(time.Second)
	for first.Load()+second.Load() < 10 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	if first.Load()+second.Load() != 10 {
		t.Fatalf("expected each request delivered once, got %d", first.Load()+second.Load())
	}
	if first.Load() != 5 || second.Load() != 5 {
		t.Errorf("expected requests shared 5/5, got %d/%d", first.Load(), second.Load())
	}
}

func TestMessageTrace(t *testing.T) {
	bus := NewChannelBus(10)
	defer bus.Close()

	tid := trace.TraceID{0x4b, 0xf9, 0x2f, 0x35, 0x77, 0xb3, 0x4d, 0xa6, 0xa3, 0xce, 0x92, 0x9d, 0x0e, 0x0e, 0x47, 0x36}
	sid := trace.SpanID{0x00, 0xf0, 0x67, 0xaa, 0x0b, 0xa9, 0x02, 0xb7}
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    tid,
		SpanID:     sid,
		TraceFlags: trace.FlagsSampled,
	}))

	got := make(chan *domain.Message, 1)
	bus.Subscribe(context.Background(), "trace.topic", func(ctx context.Context, msg *domain.Message) error {
		got <- msg
		return nil
	})
	bus.Publish(ctx, "trace.topic", []byte("x"))

	msg := waitFor(t, got)
	if msg.Metadata[MetadataTraceID] != tid.String() {
		t.Fatalf("expected trace id %s, got %q", tid, msg.Metadata[MetadataTraceID])
	}

	carried := trace.SpanContextFromContext(WithMessageTrace(context.Background(), msg))
	if carried.TraceID() != tid {
		t.Errorf("expected trace id restored from message, got %s", carried.TraceID())
	}

	untraced := WithMessageTrace(context.Background(), &domain.Message{})
	if trace.SpanContextFromContext(untraced).HasTraceID() {
		t.Error("expected no trace id for an untraced message")
	}
}

func TestChannelBusClose(t *testing.T) {
	bus := NewChannelBus(10)
	ctx := context.Background()

	bus.Subscribe(ctx, "close.topic", func(ctx context.Context, msg *domain.Message) error {
		return nil
	})

	if err := bus.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if err := bus.Close(); err != nil {
		t.Errorf("second close should be a no-op, got %v", err)
	}

	if err := bus.Publish(ctx, "close.topic", []byte("data")); err == nil {
		t.Error("expected error publishing to closed bus")
	}
	if _, err := bus.Subscribe(ctx, "close.topic", nil); err == nil {
		t.Error("expected error subscribing to closed bus")
	}
	if err := bus.Ping(ctx); err == nil {
		t.Error("expected ping error on closed bus")
	}
}

func TestNewBus(t *testing.T) {
	t.Run("Channel", func(t *testing.T) {
		b, err := New(domain.EventBusConfig{Type: "channel", ChannelBufferSize: 10})
		if err != nil {
			t.Fatalf("failed to create channel bus: %v", err)
		}
		defer b.Close()
		if _, ok := b.(*ChannelBus); !ok {
			t.Errorf("expected *ChannelBus, got %T", b)
		}
	})

	t.Run("None", func(t *testing.T) {
		b, err := New(domain.EventBusConfig{Type: "none"})
		if err != nil {
			t.Fatalf("failed to create nop bus: %v", err)
		}
		if err := b.Publish(context.Background(), "any", nil); err != nil {
			t.Errorf("nop publish failed: %v", err)
		}
	})

	t.Run("Unsupported", func(t *testing.T) {
		if _, err := New(domain.EventBusConfig{Type: "kafka"}); err == nil {
			t.Error("expected error for unsupported bus type")
		}
	})
}

func TestDecisionPublisher(t *testing.T) {
	b := NewChannelBus(10)
	defer b.Close()
	ctx := context.Background()

	got := make(chan *domain.Message, 1)
	b.Subscribe(ctx, domain.TopicFraudDecision, func(ctx context.Context, msg *domain.Message) error {
		got <- msg
		return nil
	})

	pub := NewDecisionPublisher(b)
	pub.Publish(ctx, domain.PipelineFraud, &domain.FraudDecision{ClaimID: "CLM-9", Status: domain.FraudHighRisk})

	msg := waitFor(t, got)
	var decision domain.FraudDecision
	if err := json.Unmarshal(msg.Payload, &decision); err != nil {
		t.Fatalf("failed to decode payload: %v", err)
	}
	if decision.ClaimID != "CLM-9" || decision.Status != domain.FraudHighRisk {
		t.Errorf("unexpected decision: %+v", decision)
	}

	// Publishing to a closed bus only logs.
	b.Close()
	pub.Publish(ctx, domain.PipelineFraud, &domain.FraudDecision{})
}

func TestChannelBusHighLoad(t *testing.T) {
	bus := NewChannelBus(10000)
	defer bus.Close()

	ctx := context.Background()
	var received atomic.Int64

	bus.Subscribe(ctx, "load.topic", func(ctx context.Context, msg *domain.Message) error {
		received.Add(1)
		return nil
	})

	const total = 1000
	for i := 0; i < total; i++ {
		bus.Publish(ctx, "load.topic", []byte("msg"))
	}

	deadline := time.Now().Add(2 * time.Second)
	for received.Load() < total && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	if received.Load() != total {
		t.Errorf("expected %d messages, got %d", total, received.Load())
	}
}
