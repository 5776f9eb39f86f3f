// Package worker evaluates requests consumed from the event bus.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/claims"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/fraud"
	"github.com/opensource-finance/kestrel/internal/underwriting"
)

// Pipelines are the evaluators the worker dispatches to. A nil pipeline is not subscribed.
type Pipelines struct {
	Claims       *claims.Pipeline
	Fraud        *fraud.Detector
	Underwriting *underwriting.Assessor
}

// Worker consumes requests from kestrel.request.<pipeline> and publishes
// each decision on the matching decision topic.
type Worker struct {
	bus       domain.EventBus
	pipelines Pipelines
	publisher *bus.DecisionPublisher

	mu            sync.Mutex
	subscriptions []domain.Subscription
	cancel        context.CancelFunc

	processed atomic.Int64
	failed    atomic.Int64
}

// NewWorker creates a new async worker.
func NewWorker(b domain.EventBus, pipelines Pipelines) *Worker {
	return &Worker{
		bus:       b,
		pipelines: pipelines,
		publisher: bus.NewDecisionPublisher(b),
	}
}

// Start subscribes to the request topic of every configured pipeline.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cancel != nil {
		return fmt.Errorf("worker already started")
	}
	ctx, w.cancel = context.WithCancel(ctx)

	handlers := map[string]domain.MessageHandler{}
	if p := w.pipelines.Claims; p != nil {
		handlers[domain.PipelineClaims] = handle(w, domain.PipelineClaims,
			func(ctx context.Context, req *domain.ClaimRequest) (any, error) {
				return p.ProcessClaim(ctx, req), nil
			})
	}
	if p := w.pipelines.Fraud; p != nil {
		handlers[domain.PipelineFraud] = handle(w, domain.PipelineFraud,
			func(ctx context.Context, req *domain.FraudCheckRequest) (any, error) {
				return p.DetectFraud(ctx, req)
			})
	}
	if p := w.pipelines.Underwriting; p != nil {
		handlers[domain.PipelineUnderwriting] = handle(w, domain.PipelineUnderwriting,
			func(ctx context.Context, req *domain.UnderwritingRequest) (any, error) {
				return p.AssessRisk(ctx, req)
			})
	}

	for _, pipeline := range []string{domain.PipelineClaims, domain.PipelineFraud, domain.PipelineUnderwriting} {
		handler, ok := handlers[pipeline]
		if !ok {
			continue
		}
		topic := domain.RequestTopic(pipeline)
		sub, err := w.bus.Subscribe(ctx, topic, handler)
		if err != nil {
			w.stopLocked()
			return fmt.Errorf("subscribe %s: %w", topic, err)
		}
		w.subscriptions = append(w.subscriptions, sub)
	}

	slog.Info("worker started", "subscriptions", len(w.subscriptions))
	return nil
}

// handle decodes a request of type T, evaluates it and publishes the decision.
func handle[T any, PT interface {
	*T
	Validate() error
}](w *Worker, pipeline string, evaluate func(context.Context, PT) (any, error)) domain.MessageHandler {
	return func(ctx context.Context, msg *domain.Message) error {
		start := time.Now()
		ctx = bus.WithMessageTrace(ctx, msg)

		req := PT(new(T))
		if err := json.Unmarshal(msg.Payload, req); err != nil {
			w.failed.Add(1)
			slog.Error("failed to parse request message",
				"pipeline", pipeline,
				"message_id", msg.ID,
				"error", err,
			)
			return err
		}
		if err := req.Validate(); err != nil {
			w.failed.Add(1)
			slog.Warn("rejected invalid request message",
				"pipeline", pipeline,
				"message_id", msg.ID,
				"error", err,
			)
			return err
		}

		decision, err := evaluate(ctx, req)
		if err != nil {
			w.failed.Add(1)
			slog.Error("async evaluation failed",
				"pipeline", pipeline,
				"message_id", msg.ID,
				"error", err,
			)
			return err
		}

		w.publisher.Publish(ctx, pipeline, decision)
		w.processed.Add(1)

		slog.Debug("request processed",
			"pipeline", pipeline,
			"message_id", msg.ID,
			"trace_id", msg.Metadata[bus.MetadataTraceID],
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return nil
	}
}

// Stop unsubscribes from every topic.
func (w *Worker) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.stopLocked()
	slog.Info("worker stopped",
		"processed", w.processed.Load(),
		"failed", w.failed.Load(),
	)
	return nil
}

func (w *Worker) stopLocked() {
	if w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
	Processed         int64    `json:"processed"`
	Failed            int64    `json:"failed"`
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
	}
}
