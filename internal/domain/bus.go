package domain

import (
	"context"
	"strings"
)

// EventBus defines the interface for publishing decision events.
// Supports Go channels (standalone) or NATS (cluster).
type EventBus interface {
	// Publish sends a message to a topic.
	Publish(ctx context.Context, topic string, payload []byte) error

	// Subscribe registers a handler for a topic.
	// Returns a subscription that can be used to unsubscribe.
	Subscribe(ctx context.Context, topic string, handler MessageHandler) (Subscription, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// MessageHandler processes incoming messages.
type MessageHandler func(ctx context.Context, msg *Message) error

// Message represents an event message.
type Message struct {
	ID        string            `json:"id"`
	Topic     string            `json:"topic"`
	Payload   []byte            `json:"payload"`
	Metadata  map[string]string `json:"metadata"`
	Timestamp int64             `json:"timestamp"`
}

// Subscription represents an active subscription.
type Subscription interface {
	// Unsubscribe stops receiving messages.
	Unsubscribe() error

	// Topic returns the subscribed topic.
	Topic() string
}

// EventBusConfig holds configuration for event bus initialization.
type EventBusConfig struct {
	// Type is the bus type: "channel", "nats" or "none"
	Type string `json:"type" mapstructure:"type"`

	// Channel settings (standalone profile)
	ChannelBufferSize int `json:"channelBufferSize" mapstructure:"channel_buffer_size"`

	// NATS settings (cluster profile)
	NATSUrl           string `json:"natsUrl" mapstructure:"nats_url"`
	NATSToken         string `json:"-" mapstructure:"nats_token"`
	NATSMaxReconnects int    `json:"natsMaxReconnects" mapstructure:"nats_max_reconnects"`
	NATSReconnectWait int    `json:"natsReconnectWait" mapstructure:"nats_reconnect_wait"` // seconds

	// NATSQueueGroup load-balances request topics across replicas.
	NATSQueueGroup string `json:"natsQueueGroup" mapstructure:"nats_queue_group"`
}

// Decision topics, one per pipeline.
const (
	TopicClaimDecision        = "kestrel.decision.claims"
	TopicFraudDecision        = "kestrel.decision.fraud"
	TopicUnderwritingDecision = "kestrel.decision.underwriting"
)

// DecisionTopic returns the topic decisions of the named pipeline are published on.
func DecisionTopic(pipeline string) string {
	return "kestrel.decision." + pipeline
}

const requestTopicPrefix = "kestrel.request."

// RequestTopic returns the topic the async worker consumes requests for pipeline from.
func RequestTopic(pipeline string) string {
	return requestTopicPrefix + pipeline
}

// IsRequestTopic reports whether topic carries evaluation requests. Each request
// is delivered to one subscriber; every other topic fans out.
func IsRequestTopic(topic string) bool {
	return strings.HasPrefix(topic, requestTopicPrefix)
}
