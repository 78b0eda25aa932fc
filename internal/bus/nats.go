package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/opensource-finance/claimwatch/internal/domain"
)

// NATSBus carries events between ClaimWatch nodes over NATS core subjects.
// Payloads travel inside a JSON domain.Message envelope.
type NATSBus struct {
	conn *nats.Conn

	mu   sync.Mutex
	subs map[string]*natsSubscription
}

type natsSubscription struct {
	id    string
	topic string
	queue string
	sub   *nats.Subscription
	owner *NATSBus
}

// NewNATSBus dials cfg.NATSUrl. The first connection is attempted
// NATSMaxReconnects times, NATSReconnectWait seconds apart; afterwards the
// client library handles reconnects with the same limits.
func NewNATSBus(cfg domain.EventBusConfig) (*NATSBus, error) {
	url := cfg.NATSUrl
	if url == "" {
		url = nats.DefaultURL
	}
	attempts := cfg.NATSMaxReconnects
	if attempts <= 0 {
		attempts = 10
	}
	wait := time.Duration(cfg.NATSReconnectWait) * time.Second
	if wait <= 0 {
		wait = 5 * time.Second
	}

	conn, err := dial(url, natsOptions(cfg.NATSToken, attempts, wait), attempts, wait)
	if err != nil {
		return nil, err
	}

	slog.Info("connected to NATS",
		"url", conn.ConnectedUrl(),
		"server_id", conn.ConnectedServerId(),
	)
	return &NATSBus{conn: conn, subs: make(map[string]*natsSubscription)}, nil
}

func natsOptions(token string, maxReconnects int, wait time.Duration) []nats.Option {
	opts := []nats.Option{
		nats.Name("claimwatch"),
		nats.MaxReconnects(maxReconnects),
		nats.ReconnectWait(wait),
		nats.ReconnectBufSize(8 * 1024 * 1024),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			slog.Warn("lost NATS connection", "error", err, "will_reconnect", !nc.IsClosed())
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			slog.Info("NATS connection closed")
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			var subject string
			if sub != nil {
				subject = sub.Subject
			}
			slog.Error("asynchronous NATS error", "subject", subject, "error", err)
		}),
	}
	if token != "" {
		opts = append(opts, nats.Token(token))
	}
	return opts
}

func dial(url string, opts []nats.Option, attempts int, wait time.Duration) (*nats.Conn, error) {
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		conn, err := nats.Connect(url, opts...)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		slog.Warn("NATS dial failed", "url", url, "attempt", attempt, "of", attempts, "error", err)
		if attempt < attempts {
			time.Sleep(wait)
		}
	}
	return nil, fmt.Errorf("dial NATS %s: gave up after %d attempts: %w", url, attempts, lastErr)
}

// Publish sends payload to the topic's subject in scope.
func (b *NATSBus) Publish(_ context.Context, scope string, topic string, payload []byte) error {
	if scope == "" {
		return ErrScopeRequired
	}

	envelope, err := json.Marshal(newMessage(scope, topic, payload))
	if err != nil {
		return fmt.Errorf("encode %s envelope: %w", topic, err)
	}
	if err := b.conn.Publish(Subject(scope, topic), envelope); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Subscribe delivers every message of the topic in scope to handler.
func (b *NATSBus) Subscribe(ctx context.Context, scope string, topic string, handler domain.MessageHandler) (domain.Subscription, error) {
	return b.subscribe(ctx, scope, topic, "", handler)
}

// QueueSubscribe joins the queue group; NATS hands each message to one
// member across all connected nodes.
func (b *NATSBus) QueueSubscribe(ctx context.Context, scope, topic, queue string, handler domain.MessageHandler) (domain.Subscription, error) {
	if queue == "" {
		return nil, errors.New("queue group name is required")
	}
	return b.subscribe(ctx, scope, topic, queue, handler)
}

func (b *NATSBus) subscribe(ctx context.Context, scope, topic, queue string, handler domain.MessageHandler) (domain.Subscription, error) {
	if scope == "" {
		return nil, ErrScopeRequired
	}

	subject := Subject(scope, topic)
	cb := envelopeHandler(ctx, handler)

	var (
		ns  *nats.Subscription
		err error
	)
	if queue == "" {
		ns, err = b.conn.Subscribe(subject, cb)
	} else {
		ns, err = b.conn.QueueSubscribe(subject, queue, cb)
	}
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}

	s := &natsSubscription{id: uuid.New().String(), topic: topic, queue: queue, sub: ns, owner: b}
	b.mu.Lock()
	b.subs[s.id] = s
	b.mu.Unlock()
	return s, nil
}

// envelopeHandler decodes the JSON envelope and runs handler. Undecodable
// messages and handler errors are logged and dropped.
func envelopeHandler(ctx context.Context, handler domain.MessageHandler) nats.MsgHandler {
	return func(m *nats.Msg) {
		var msg domain.Message
		if err := json.Unmarshal(m.Data, &msg); err != nil {
			slog.Error("dropping undecodable event", "subject", m.Subject, "error", err)
			return
		}
		if err := handler(ctx, &msg); err != nil {
			slog.Error("event handler failed",
				"subject", m.Subject,
				"message_id", msg.ID,
				"error", err,
			)
		}
	}
}

// Ping flushes the connection to confirm the server is reachable.
func (b *NATSBus) Ping(ctx context.Context) error {
	if !b.conn.IsConnected() {
		return fmt.Errorf("NATS connection is %s", b.conn.Status())
	}
	return b.conn.FlushWithContext(ctx)
}

// Close unsubscribes everything and closes the connection. Handlers still
// running are not waited for.
func (b *NATSBus) Close() error {
	b.mu.Lock()
	subs := b.subs
	b.subs = make(map[string]*natsSubscription)
	b.mu.Unlock()

	for _, s := range subs {
		if err := s.sub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
			slog.Warn("NATS unsubscribe failed", "topic", s.topic, "error", err)
		}
	}
	b.conn.Close()
	return nil
}

// Stats exposes the client's message and byte counters.
func (b *NATSBus) Stats() nats.Statistics {
	return b.conn.Stats()
}

func (s *natsSubscription) Unsubscribe() error {
	s.owner.mu.Lock()
	delete(s.owner.subs, s.id)
	s.owner.mu.Unlock()
	return s.sub.Unsubscribe()
}

func (s *natsSubscription) Topic() string {
	return s.topic
}

var (
	_ domain.EventBus        = (*ChannelBus)(nil)
	_ domain.EventBus        = (*NATSBus)(nil)
	_ domain.QueueSubscriber = (*ChannelBus)(nil)
	_ domain.QueueSubscriber = (*NATSBus)(nil)
)
