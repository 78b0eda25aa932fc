package bus

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/opensource-finance/claimwatch/internal/domain"
)

// ChannelBus is the in-process event bus of the community tier. Each
// subscription owns a buffered channel drained by its own goroutine.
type ChannelBus struct {
	mu            sync.RWMutex
	bufferSize    int
	subscriptions map[string][]*channelSubscription
	closed        bool
	turn          atomic.Uint64 // round-robin cursor for queue groups
}

type channelSubscription struct {
	id      string
	subject string
	topic   string
	queue   string
	handler domain.MessageHandler
	msgCh   chan *domain.Message
	ctx     context.Context
	cancel  context.CancelFunc
	bus     *ChannelBus
}

// NewChannelBus creates a new channel-based event bus.
func NewChannelBus(bufferSize int) *ChannelBus {
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	return &ChannelBus{
		bufferSize:    bufferSize,
		subscriptions: make(map[string][]*channelSubscription),
	}
}

// Publish delivers a message to every plain subscriber of the topic in scope
// and to one member of each queue group. Delivery is non-blocking: a
// subscriber with a full buffer misses the message.
func (b *ChannelBus) Publish(_ context.Context, scope string, topic string, payload []byte) error {
	if scope == "" {
		return ErrScopeRequired
	}

	msg := newMessage(scope, topic, payload)

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return ErrClosed
	}

	var groups map[string][]*channelSubscription
	for _, sub := range b.subscriptions[Subject(scope, topic)] {
		if sub.queue == "" {
			sub.deliver(msg)
			continue
		}
		if groups == nil {
			groups = make(map[string][]*channelSubscription)
		}
		groups[sub.queue] = append(groups[sub.queue], sub)
	}
	for _, members := range groups {
		members[b.turn.Add(1)%uint64(len(members))].deliver(msg)
	}
	return nil
}

// Subscribe registers a handler for a topic in scope. The handler runs on
// its own goroutine until the subscription or ctx is cancelled.
func (b *ChannelBus) Subscribe(ctx context.Context, scope string, topic string, handler domain.MessageHandler) (domain.Subscription, error) {
	return b.subscribe(ctx, scope, topic, "", handler)
}

// QueueSubscribe registers handler as a member of queue. Members of one
// group take turns receiving the topic's messages.
func (b *ChannelBus) QueueSubscribe(ctx context.Context, scope, topic, queue string, handler domain.MessageHandler) (domain.Subscription, error) {
	if queue == "" {
		return nil, errors.New("queue group name is required")
	}
	return b.subscribe(ctx, scope, topic, queue, handler)
}

func (b *ChannelBus) subscribe(ctx context.Context, scope, topic, queue string, handler domain.MessageHandler) (domain.Subscription, error) {
	if scope == "" {
		return nil, ErrScopeRequired
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrClosed
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &channelSubscription{
		id:      uuid.New().String(),
		subject: Subject(scope, topic),
		topic:   topic,
		queue:   queue,
		handler: handler,
		msgCh:   make(chan *domain.Message, b.bufferSize),
		ctx:     subCtx,
		cancel:  cancel,
		bus:     b,
	}

	go sub.run()

	b.subscriptions[sub.subject] = append(b.subscriptions[sub.subject], sub)
	return sub, nil
}

// Ping checks bus health.
func (b *ChannelBus) Ping(context.Context) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}
	return nil
}

// Close cancels every subscription. Messages still buffered are discarded.
func (b *ChannelBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	for _, subs := range b.subscriptions {
		for _, sub := range subs {
			sub.cancel()
		}
	}
	b.subscriptions = make(map[string][]*channelSubscription)
	return nil
}

func (b *ChannelBus) remove(sub *channelSubscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subscriptions[sub.subject]
	for i, s := range subs {
		if s.id == sub.id {
			b.subscriptions[sub.subject] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(b.subscriptions[sub.subject]) == 0 {
		delete(b.subscriptions, sub.subject)
	}
}

func (s *channelSubscription) deliver(msg *domain.Message) {
	select {
	case s.msgCh <- msg:
	default:
		slog.Warn("event dropped, subscriber buffer full",
			"topic", msg.Topic,
			"scope", msg.Scope,
			"queue", s.queue,
			"message_id", msg.ID,
		)
	}
}

func (s *channelSubscription) run() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case msg := <-s.msgCh:
			if err := s.handler(s.ctx, msg); err != nil {
				slog.Error("handler error",
					"topic", msg.Topic,
					"message_id", msg.ID,
					"error", err,
				)
			}
		}
	}
}

// Unsubscribe stops receiving messages.
func (s *channelSubscription) Unsubscribe() error {
	s.cancel()
	s.bus.remove(s)
	return nil
}

// Topic returns the subscribed topic.
func (s *channelSubscription) Topic() string {
	return s.topic
}
