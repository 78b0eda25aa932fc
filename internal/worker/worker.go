// Package worker consumes fraud re-evaluation requests from the event bus.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opensource-finance/claimwatch/internal/domain"
)

// QueueGroup is the bus queue group shared by every node's worker, so each
// request is evaluated once across the deployment.
const QueueGroup = "claimwatch-reevaluate"

// Evaluator re-runs fraud detection for one claim.
type Evaluator interface {
	EvaluateFraud(ctx context.Context, claimID string) ([]*domain.FraudFlag, error)
}

// Worker processes re-evaluation requests with a fixed pool of goroutines.
type Worker struct {
	bus       domain.EventBus
	evaluator Evaluator

	mu            sync.Mutex
	subscriptions []domain.Subscription
	jobs          chan domain.ReevaluateRequest
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc

	processed atomic.Int64
	failed    atomic.Int64
	flagged   atomic.Int64
}

// Config holds worker configuration.
type Config struct {
	// Scopes to subscribe in. Empty means domain.GlobalScope only.
	Scopes []string

	// WorkerCount is the number of concurrent evaluations.
	WorkerCount int
}

// NewWorker creates a worker that evaluates through evaluator.
func NewWorker(bus domain.EventBus, evaluator Evaluator) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:       bus,
		evaluator: evaluator,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start subscribes to the re-evaluation topic and starts the pool.
func (w *Worker) Start(cfg Config) error {
	count := cfg.WorkerCount
	if count <= 0 {
		count = 1
	}
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{domain.GlobalScope}
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.jobs != nil {
		return errors.New("worker already started")
	}
	w.jobs = make(chan domain.ReevaluateRequest, count)

	for _, scope := range scopes {
		sub, err := w.subscribe(scope)
		if err != nil {
			for _, s := range w.subscriptions {
				_ = s.Unsubscribe()
			}
			w.subscriptions = nil
			return fmt.Errorf("subscribe %s in %s: %w", domain.TopicReevaluate, scope, err)
		}
		w.subscriptions = append(w.subscriptions, sub)
	}

	for i := 0; i < count; i++ {
		w.wg.Add(1)
		go w.run()
	}

	slog.Info("workers started",
		"scopes", scopes,
		"worker_count", count,
		"topic", domain.TopicReevaluate,
	)
	return nil
}

func (w *Worker) subscribe(scope string) (domain.Subscription, error) {
	if qs, ok := w.bus.(domain.QueueSubscriber); ok {
		return qs.QueueSubscribe(w.ctx, scope, domain.TopicReevaluate, QueueGroup, w.handleMessage)
	}
	return w.bus.Subscribe(w.ctx, scope, domain.TopicReevaluate, w.handleMessage)
}

// handleMessage decodes a request and hands it to the pool. It blocks while
// every worker is busy.
func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	var req domain.ReevaluateRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		w.failed.Add(1)
		return fmt.Errorf("failed to parse re-evaluation request %s: %w", msg.ID, err)
	}
	if req.ClaimID == "" {
		w.failed.Add(1)
		return fmt.Errorf("re-evaluation request %s has no claim id", msg.ID)
	}

	select {
	case w.jobs <- req:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-w.ctx.Done():
		return w.ctx.Err()
	}
}

func (w *Worker) run() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case req := <-w.jobs:
			w.process(req)
		}
	}
}

func (w *Worker) process(req domain.ReevaluateRequest) {
	start := time.Now()

	flags, err := w.evaluator.EvaluateFraud(w.ctx, req.ClaimID)
	if err != nil {
		w.failed.Add(1)
		slog.Error("re-evaluation failed",
			"claim_id", req.ClaimID,
			"requested_by", req.RequestedBy,
			"error", err,
		)
		return
	}

	w.processed.Add(1)
	w.flagged.Add(int64(len(flags)))
	slog.Info("claim re-evaluated",
		"claim_id", req.ClaimID,
		"requested_by", req.RequestedBy,
		"new_flags", len(flags),
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

// Stop unsubscribes and waits for in-flight evaluations to finish.
func (w *Worker) Stop() error {
	w.mu.Lock()
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil
	w.mu.Unlock()

	w.cancel()
	w.wg.Wait()

	slog.Info("workers stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
	Processed         int64    `json:"processed"`
	Failed            int64    `json:"failed"`
	FlagsCreated      int64    `json:"flagsCreated"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
		Processed:         w.processed.Load(),
		Failed:            w.failed.Load(),
		FlagsCreated:      w.flagged.Load(),
	}
}
