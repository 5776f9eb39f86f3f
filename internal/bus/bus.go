package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// MetadataTraceID is the message metadata key carrying the publisher's trace id.
const MetadataTraceID = "trace_id"

// newMessage builds the envelope for payload, stamping the trace id found in ctx.
func newMessage(ctx context.Context, topic string, payload []byte) *domain.Message {
	msg := &domain.Message{
		ID:        uuid.New().String(),
		Topic:     topic,
		Payload:   payload,
		Metadata:  make(map[string]string),
		Timestamp: time.Now().UnixNano(),
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		msg.Metadata[MetadataTraceID] = sc.TraceID().String()
	}
	return msg
}

// WithMessageTrace returns ctx carrying the trace id stamped on msg, so work
// triggered by a message is published under the same trace.
func WithMessageTrace(ctx context.Context, msg *domain.Message) context.Context {
	tid, err := trace.TraceIDFromHex(msg.Metadata[MetadataTraceID])
	if err != nil {
		return ctx
	}
	return trace.ContextWithSpanContext(ctx, trace.NewSpanContext(trace.SpanContextConfig{TraceID: tid}))
}

// New creates a new event bus based on configuration.
// "channel" returns a ChannelBus, "nats" a NATSBus and "none" a bus that drops everything.
func New(cfg domain.EventBusConfig) (domain.EventBus, error) {
	switch cfg.Type {
	case "channel":
		return NewChannelBus(cfg.ChannelBufferSize), nil

	case "nats":
		return NewNATSBus(cfg)

	case "none", "":
		return NopBus{}, nil

	default:
		return nil, fmt.Errorf("unsupported event bus type: %s", cfg.Type)
	}
}

// NopBus accepts and discards every message.
type NopBus struct{}

func (NopBus) Publish(context.Context, string, []byte) error { return nil }

func (NopBus) Subscribe(_ context.Context, topic string, _ domain.MessageHandler) (domain.Subscription, error) {
	return nopSubscription(topic), nil
}

func (NopBus) Ping(context.Context) error { return nil }
func (NopBus) Close() error               { return nil }

type nopSubscription string

func (nopSubscription) Unsubscribe() error { return nil }
func (s nopSubscription) Topic() string    { return string(s) }

// DecisionPublisher publishes pipeline decisions on their decision topic.
type DecisionPublisher struct {
	bus domain.EventBus
}

// NewDecisionPublisher wraps bus. A nil bus publishes nothing.
func NewDecisionPublisher(bus domain.EventBus) *DecisionPublisher {
	if bus == nil {
		bus = NopBus{}
	}
	return &DecisionPublisher{bus: bus}
}

// Publish encodes decision as JSON and publishes it for pipeline.
// Failures are logged and never returned; publishing is fire-and-forget.
func (p *DecisionPublisher) Publish(ctx context.Context, pipeline string, decision any) {
	payload, err := json.Marshal(decision)
	if err != nil {
		slog.Error("failed to encode decision", "pipeline", pipeline, "error", err)
		return
	}

	topic := domain.DecisionTopic(pipeline)
	if err := p.bus.Publish(ctx, topic, payload); err != nil {
		slog.Warn("failed to publish decision",
			"pipeline", pipeline,
			"topic", topic,
			"error", err,
		)
	}
}
