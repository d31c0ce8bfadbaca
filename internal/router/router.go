// Package router is the composition root of the coordination core: it
// receives raw events from any channel, normalizes them, resolves the owning
// agent, and dispatches to a registered handler or queues the event for
// out-of-band processing.
package router

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/cgk-platform/agentcore/internal/models"
	"github.com/cgk-platform/agentcore/internal/store"
	"github.com/cgk-platform/agentcore/pkg/cache"
)

// configCacheScope namespaces agent-resolution snapshots in the router's cache.
const (
	configCacheScope = "tenant"
	configCacheKey   = "channel_agent_config"
	defaultConfigTTL = time.Minute
	configCacheWidth = 8
)

// HandlerContext carries everything a handler needs for one event.
type HandlerContext struct {
	TenantID  string
	Channel   models.Channel
	EventType string
	AgentID   string
	Envelope  Envelope
	Payload   json.RawMessage
}

// Handler processes one normalized event synchronously. Blocking work inside
// a handler must honor ctx; the router imposes no deadline of its own.
type Handler func(ctx context.Context, hc HandlerContext) error

// RouteResult is the outcome returned to the webhook layer. It never carries
// a Go error: the router is the top-level catch boundary, and the webhook must
// still acknowledge receipt to the vendor regardless of what happened here.
type RouteResult struct {
	Success bool   `json:"success"`
	AgentID string `json:"agent_id,omitempty"`
	Queued  bool   `json:"queued,omitempty"`
	EventID string `json:"event_id,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Router dispatches inbound channel events.
type Router struct {
	db       *sql.DB
	logger   *slog.Logger
	handlers map[models.Channel]map[string]Handler

	// configCache holds per-tenant agent-resolution snapshots with a TTL.
	// An explicit instance, not a package global: multiple tenants and
	// workers share one process without cross-contamination.
	configCache cache.Cache
	configTTL   time.Duration
}

// Option configures a Router.
type Option func(*Router)

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Router) { r.logger = l }
}

// WithConfigCache injects a shared cache instance.
func WithConfigCache(c cache.Cache) Option {
	return func(r *Router) { r.configCache = c }
}

// WithConfigTTL overrides how long agent-resolution snapshots are reused.
func WithConfigTTL(d time.Duration) Option {
	return func(r *Router) { r.configTTL = d }
}

// New constructs a Router over an initialized database.
func New(db *sql.DB, opts ...Option) *Router {
	r := &Router{
		db:        db,
		logger:    slog.Default(),
		handlers:  make(map[models.Channel]map[string]Handler),
		configTTL: defaultConfigTTL,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.configCache == nil {
		r.configCache = cache.NewLRU(configCacheWidth)
	}
	return r
}

// Register installs a handler for (channel, eventType). Events with no
// registered handler are queued instead of dispatched inline.
func (r *Router) Register(channel models.Channel, eventType string, h Handler) {
	if r.handlers[channel] == nil {
		r.handlers[channel] = make(map[string]Handler)
	}
	r.handlers[channel][eventType] = h
}

// deferredChannels are never handled inline: their webhooks must acknowledge
// fast, and their events tolerate out-of-band latency.
func isDeferredChannel(channel models.Channel) bool {
	return channel == models.ChannelSMS || channel == models.ChannelCalendar
}

// RouteEvent is the single entry point for all inbound channel activity.
//
// Known, synchronously-handleable event types run inline. Unrecognized event
// types and deferred channels enqueue a pending IntegrationEvent and return
// success immediately: the queue is a backpressure valve, and an
// unrecognized-but-valid event type is not an error the vendor should see.
// Any failure during synchronous handling is caught, logged, and returned in
// the result; it never propagates to the caller.
func (r *Router) RouteEvent(ctx context.Context, tenantID string, channel models.Channel, eventType string, payload json.RawMessage) RouteResult {
	result, err := r.route(ctx, tenantID, channel, eventType, payload)
	if err != nil {
		r.logger.Error("event routing failed",
			"tenant_id", tenantID,
			"channel", string(channel),
			"event_type", eventType,
			"error", err.Error())
		return RouteResult{Success: false, Error: err.Error()}
	}
	return result
}

func (r *Router) route(ctx context.Context, tenantID string, channel models.Channel, eventType string, payload json.RawMessage) (result RouteResult, err error) {
	// Handlers are arbitrary code; a panic here must not escape to the
	// webhook layer.
	defer func() {
		if rec := recover(); rec != nil {
			result = RouteResult{}
			err = fmt.Errorf("handler panic: %v", rec)
		}
	}()

	if tenantID == "" {
		return RouteResult{}, fmt.Errorf("tenant id is required")
	}
	if !channel.IsValid() {
		return RouteResult{}, fmt.Errorf("unknown channel: %q", channel)
	}
	if eventType == "" {
		return RouteResult{}, fmt.Errorf("event type is required")
	}

	agentID, err := r.resolveAgent(tenantID, channel)
	if err != nil {
		return RouteResult{}, err
	}

	handler := r.handlerFor(channel, eventType)
	if handler == nil || isDeferredChannel(channel) {
		event, err := store.EnqueueIntegrationEvent(r.db, tenantID, channel, eventType, payload, agentID)
		if err != nil {
			return RouteResult{}, err
		}
		return RouteResult{Success: true, Queued: true, AgentID: agentID, EventID: event.ID}, nil
	}

	env, err := NormalizeEvent(channel, eventType, payload)
	if err != nil {
		return RouteResult{}, err
	}

	if err := handler(ctx, HandlerContext{
		TenantID:  tenantID,
		Channel:   channel,
		EventType: eventType,
		AgentID:   agentID,
		Envelope:  env,
		Payload:   payload,
	}); err != nil {
		return RouteResult{}, err
	}

	return RouteResult{Success: true, AgentID: agentID}, nil
}

func (r *Router) handlerFor(channel models.Channel, eventType string) Handler {
	if byType, ok := r.handlers[channel]; ok {
		return byType[eventType]
	}
	return nil
}

// DetermineAgentForEvent resolves event ownership over a configuration
// snapshot: explicit channel mapping first, tenant-wide default as fallback,
// "" when neither is configured. Pure and side-effect-free so ownership rules
// are testable independently of dispatch.
func DetermineAgentForEvent(cfg *store.ChannelAgentConfig, channel models.Channel) string {
	return cfg.AgentFor(channel)
}

// resolveAgent loads the tenant's routing snapshot (through the TTL cache)
// and resolves the owning agent. An empty result is not an error: the event
// still queues with resolution deferred, so no data is dropped.
func (r *Router) resolveAgent(tenantID string, channel models.Channel) (string, error) {
	if entry, ok := r.configCache.Get(configCacheScope, tenantID, configCacheKey); ok {
		if cfg, ok := entry.Value.(*store.ChannelAgentConfig); ok {
			return DetermineAgentForEvent(cfg, channel), nil
		}
	}

	cfg, err := store.LoadChannelAgentConfig(r.db, tenantID)
	if err != nil {
		return "", err
	}
	r.configCache.Set(configCacheScope, tenantID, configCacheKey, cfg, cache.WithTTL(r.configTTL))
	return DetermineAgentForEvent(cfg, channel), nil
}

// InvalidateConfig drops a tenant's cached routing snapshot, forcing the next
// resolution to reload. Called after mapping changes.
func (r *Router) InvalidateConfig(tenantID string) {
	r.configCache.Delete(configCacheScope, tenantID, configCacheKey)
}
