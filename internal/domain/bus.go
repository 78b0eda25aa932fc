package domain

import (
	"context"
)

// EventBus defines the interface for event-driven communication.
// Supports Go channels (Community) or NATS (Pro).
// Subjects are namespaced by scope: a company id or GlobalScope.
type EventBus interface {
	// Publish sends a message to a topic.
	Publish(ctx context.Context, scope string, topic string, payload []byte) error

	// Subscribe registers a handler for a topic.
	// Returns a subscription that can be used to unsubscribe.
	Subscribe(ctx context.Context, scope string, topic string, handler MessageHandler) (Subscription, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// QueueSubscriber is implemented by buses that can share a subject between
// competing consumers. Each message goes to one member of the queue group.
type QueueSubscriber interface {
	QueueSubscribe(ctx context.Context, scope, topic, queue string, handler MessageHandler) (Subscription, error)
}

// GlobalScope is the bus scope for events not owned by one company.
const GlobalScope = "global"

// MessageHandler processes incoming messages.
type MessageHandler func(ctx context.Context, msg *Message) error

// Message represents an event message.
type Message struct {
	ID        string            `json:"id"`
	Scope     string            `json:"scope"`
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
	// Type is the bus type: "channel" or "nats"
	Type string `yaml:"type"`

	// Channel settings (Community tier)
	ChannelBufferSize int `yaml:"channelBufferSize"`

	// NATS settings (Pro tier)
	NATSUrl           string `yaml:"natsUrl"`
	NATSToken         string `yaml:"natsToken"`
	NATSMaxReconnects int    `yaml:"natsMaxReconnects"`
	NATSReconnectWait int    `yaml:"natsReconnectWait"` // seconds
}

// Topics of the claim pipeline.
const (
	TopicClaimCreated      = "claimwatch.claim.created"
	TopicDuplicateRejected = "claimwatch.claim.duplicate_rejected"
	TopicFlagsGenerated    = "claimwatch.fraud.flags_generated"
	TopicReevaluate        = "claimwatch.fraud.reevaluate"
)

// ClaimEvent is the payload of claim lifecycle events.
type ClaimEvent struct {
	ClaimID     string `json:"claimId,omitempty"`
	ClaimNumber string `json:"claimNumber"`
	CompanyID   string `json:"companyId"`
	Check       string `json:"check,omitempty"`
}

// FlagsGeneratedEvent summarises one fraud evaluation.
type FlagsGeneratedEvent struct {
	ClaimID         string     `json:"claimId"`
	FlagsCount      int        `json:"flagsCount"`
	HighestSeverity Severity   `json:"highestSeverity"`
	FlagTypes       []FlagType `json:"flagTypes"`
}

// ReevaluateRequest asks the worker to re-run fraud detection for a claim.
type ReevaluateRequest struct {
	ClaimID     string `json:"claimId"`
	RequestedBy string `json:"requestedBy,omitempty"`
}
