// Package bus carries claim pipeline events between the service and its
// consumers, over Go channels or NATS.
package bus

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/claimwatch/internal/domain"
)

var (
	// ErrScopeRequired is returned when publishing or subscribing without a scope.
	ErrScopeRequired = errors.New("bus scope is required")

	// ErrClosed is returned by a bus after Close.
	ErrClosed = errors.New("bus is closed")
)

// New creates the event bus named by cfg.Type.
func New(cfg domain.EventBusConfig) (domain.EventBus, error) {
	switch cfg.Type {
	case "channel", "":
		return NewChannelBus(cfg.ChannelBufferSize), nil

	case "nats":
		return NewNATSBus(cfg)

	default:
		return nil, fmt.Errorf("unsupported event bus type: %s", cfg.Type)
	}
}

// Subject returns the wire subject of a topic in a scope. The scope is the
// last token so consumers can subscribe to "<topic>.*" across companies.
func Subject(scope, topic string) string {
	return topic + "." + scope
}

func newMessage(scope, topic string, payload []byte) *domain.Message {
	return &domain.Message{
		ID:        uuid.New().String(),
		Scope:     scope,
		Topic:     topic,
		Payload:   payload,
		Metadata:  make(map[string]string),
		Timestamp: time.Now().UnixNano(),
	}
}
