package router

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/cgk-platform/agentcore/internal/models"
	"github.com/cgk-platform/agentcore/internal/store"
)

// DefaultMaxConcurrency bounds parallel work against the persistence layer
// during a queue run.
const DefaultMaxConcurrency = 10

// QueueConfig tunes one ProcessEventQueue run.
type QueueConfig struct {
	// TenantID limits the run to one tenant; empty processes all tenants.
	TenantID string
	// MaxConcurrency is the number of events pulled and processed in
	// parallel. Defaults to DefaultMaxConcurrency.
	MaxConcurrency int
	// OnSuccess and OnError are observability callbacks invoked per event.
	OnSuccess func(event models.IntegrationEvent)
	OnError   func(event models.IntegrationEvent, err error)
}

// QueueStats summarizes one queue run.
type QueueStats struct {
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// ProcessEventQueue is the retry/catch-up path: it pulls up to MaxConcurrency
// pending events, claims each with a conditional update, dispatches it to its
// registered handler, and marks it completed or failed. Cooperative batch
// draining meant to run on a worker tick, not a long-lived stream consumer.
//
// Two concurrent runs never double-process an event: the pending->processing
// claim is the lease, and the run that loses the claim race skips the event
// without counting it as processed.
func (r *Router) ProcessEventQueue(ctx context.Context, cfg QueueConfig) (QueueStats, error) {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = DefaultMaxConcurrency
	}

	pending, err := store.ListPendingIntegrationEvents(r.db, cfg.TenantID, cfg.MaxConcurrency)
	if err != nil {
		return QueueStats{}, fmt.Errorf("list pending events: %w", err)
	}

	var processed, succeeded, failed atomic.Int64

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.MaxConcurrency)

	for _, event := range pending {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			if err := store.ClaimIntegrationEvent(r.db, event.ID); err != nil {
				if errors.Is(err, store.ErrEventNotClaimable) {
					// Another worker won the claim; skip silently.
					return nil
				}
				return err
			}
			processed.Add(1)

			if dispatchErr := r.dispatchQueued(ctx, event); dispatchErr != nil {
				failed.Add(1)
				if markErr := store.MarkIntegrationEventFailed(r.db, event.ID, dispatchErr.Error()); markErr != nil {
					return markErr
				}
				r.logger.Warn("queued event failed",
					"event_id", event.ID,
					"channel", string(event.Channel),
					"event_type", event.EventType,
					"error", dispatchErr.Error())
				if cfg.OnError != nil {
					cfg.OnError(event, dispatchErr)
				}
				return nil
			}

			succeeded.Add(1)
			if markErr := store.MarkIntegrationEventCompleted(r.db, event.ID, event.AgentID); markErr != nil {
				return markErr
			}
			if cfg.OnSuccess != nil {
				cfg.OnSuccess(event)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return QueueStats{
			Processed: int(processed.Load()),
			Succeeded: int(succeeded.Load()),
			Failed:    int(failed.Load()),
		}, err
	}

	return QueueStats{
		Processed: int(processed.Load()),
		Succeeded: int(succeeded.Load()),
		Failed:    int(failed.Load()),
	}, nil
}

// dispatchQueued runs a claimed event through its registered handler. Unlike
// the inline path, an event with no handler fails here: requeueing it would
// loop forever, and the failure row (with its retained error) is what an
// operator works from.
func (r *Router) dispatchQueued(ctx context.Context, event models.IntegrationEvent) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("handler panic: %v", rec)
		}
	}()

	handler := r.handlerFor(event.Channel, event.EventType)
	if handler == nil {
		return fmt.Errorf("no handler registered for %s/%s", event.Channel, event.EventType)
	}

	env, err := NormalizeEvent(event.Channel, event.EventType, event.Payload)
	if err != nil {
		return err
	}

	agentID := event.AgentID
	if agentID == "" {
		// Resolution was deferred at receipt time; try again now.
		agentID, err = r.resolveAgent(event.TenantID, event.Channel)
		if err != nil {
			return err
		}
	}

	return handler(ctx, HandlerContext{
		TenantID:  event.TenantID,
		Channel:   event.Channel,
		EventType: event.EventType,
		AgentID:   agentID,
		Envelope:  env,
		Payload:   event.Payload,
	})
}
