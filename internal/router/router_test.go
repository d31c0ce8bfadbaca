package router

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cgk-platform/agentcore/internal/models"
	"github.com/cgk-platform/agentcore/internal/store"
)

func setupRouterDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := store.InitDBWithPath(t.TempDir() + "/router.db")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newTestRouter(t *testing.T, db *sql.DB, opts ...Option) *Router {
	t.Helper()

	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(db, append([]Option{WithLogger(quiet)}, opts...)...)
}

func TestRouteEvent_InlineDispatch(t *testing.T) {
	db := setupRouterDB(t)
	require.NoError(t, store.SetChannelAgent(db, "tenant-1", models.ChannelChat, "agent-chat"))

	r := newTestRouter(t, db)

	var got HandlerContext
	r.Register(models.ChannelChat, "message", func(_ context.Context, hc HandlerContext) error {
		got = hc
		return nil
	})

	result := r.RouteEvent(context.Background(), "tenant-1", models.ChannelChat, "message",
		json.RawMessage(`{"user":"U1","text":"hi"}`))

	assert.True(t, result.Success)
	assert.False(t, result.Queued)
	assert.Equal(t, "agent-chat", result.AgentID)
	assert.Empty(t, result.Error)

	assert.Equal(t, "tenant-1", got.TenantID)
	assert.Equal(t, "agent-chat", got.AgentID)
	assert.Equal(t, "U1", got.Envelope.SenderID)
	assert.Equal(t, "hi", got.Envelope.Content)
}

func TestRouteEvent_UnknownEventTypeQueuesWithSuccess(t *testing.T) {
	db := setupRouterDB(t)
	require.NoError(t, store.SetTenantDefaultAgent(db, "tenant-1", "agent-default"))

	r := newTestRouter(t, db)

	result := r.RouteEvent(context.Background(), "tenant-1", models.ChannelChat, "reaction.added",
		json.RawMessage(`{"user":"U1"}`))

	assert.True(t, result.Success, "unrecognized event types are not vendor-visible errors")
	assert.True(t, result.Queued)
	require.NotEmpty(t, result.EventID)

	event, err := store.GetIntegrationEvent(db, result.EventID)
	require.NoError(t, err)
	assert.Equal(t, models.EventStatusPending, event.Status)
	assert.Equal(t, "reaction.added", event.EventType)
	assert.Equal(t, "agent-default", event.AgentID)
}

func TestRouteEvent_DeferredChannelAlwaysQueues(t *testing.T) {
	db := setupRouterDB(t)
	r := newTestRouter(t, db)

	handlerRan := false
	r.Register(models.ChannelSMS, "inbound", func(_ context.Context, _ HandlerContext) error {
		handlerRan = true
		return nil
	})

	result := r.RouteEvent(context.Background(), "tenant-1", models.ChannelSMS, "inbound",
		json.RawMessage(`{"from":"+15550100","body":"hello"}`))

	assert.True(t, result.Success)
	assert.True(t, result.Queued)
	assert.False(t, handlerRan, "deferred channels never dispatch inline")
}

func TestRouteEvent_HandlerErrorIsCaught(t *testing.T) {
	db := setupRouterDB(t)
	r := newTestRouter(t, db)

	r.Register(models.ChannelChat, "message", func(_ context.Context, _ HandlerContext) error {
		return errors.New("downstream unavailable")
	})

	result := r.RouteEvent(context.Background(), "tenant-1", models.ChannelChat, "message",
		json.RawMessage(`{"text":"hi"}`))

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "downstream unavailable")
}

func TestRouteEvent_HandlerPanicIsCaught(t *testing.T) {
	db := setupRouterDB(t)
	r := newTestRouter(t, db)

	r.Register(models.ChannelChat, "message", func(_ context.Context, _ HandlerContext) error {
		panic("nil map write")
	})

	result := r.RouteEvent(context.Background(), "tenant-1", models.ChannelChat, "message",
		json.RawMessage(`{"text":"hi"}`))

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "handler panic")
}

func TestRouteEvent_Validation(t *testing.T) {
	db := setupRouterDB(t)
	r := newTestRouter(t, db)

	result := r.RouteEvent(context.Background(), "", models.ChannelChat, "message", nil)
	assert.False(t, result.Success)

	result = r.RouteEvent(context.Background(), "tenant-1", models.Channel("fax"), "message", nil)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "unknown channel")

	result = r.RouteEvent(context.Background(), "tenant-1", models.ChannelChat, "", nil)
	assert.False(t, result.Success)
}

func TestRouteEvent_NoAgentStillQueues(t *testing.T) {
	db := setupRouterDB(t)
	r := newTestRouter(t, db)

	// Tenant has no routing config at all; the event still lands in the queue.
	result := r.RouteEvent(context.Background(), "tenant-unconfigured", models.ChannelEmail, "inbound",
		json.RawMessage(`{"from":"a@b.com"}`))

	assert.True(t, result.Success)
	assert.True(t, result.Queued)
	assert.Empty(t, result.AgentID)
}

func TestDetermineAgentForEvent(t *testing.T) {
	cfg := &store.ChannelAgentConfig{
		TenantID:       "tenant-1",
		ChannelAgents:  map[models.Channel]string{models.ChannelChat: "agent-chat"},
		DefaultAgentID: "agent-default",
	}

	assert.Equal(t, "agent-chat", DetermineAgentForEvent(cfg, models.ChannelChat))
	assert.Equal(t, "agent-default", DetermineAgentForEvent(cfg, models.ChannelEmail))
}

func TestResolveAgent_CachesUntilInvalidated(t *testing.T) {
	db := setupRouterDB(t)
	require.NoError(t, store.SetChannelAgent(db, "tenant-1", models.ChannelChat, "agent-old"))

	r := newTestRouter(t, db, WithConfigTTL(time.Hour))

	agentID, err := r.resolveAgent("tenant-1", models.ChannelChat)
	require.NoError(t, err)
	assert.Equal(t, "agent-old", agentID)

	// Remap: the cached snapshot still answers until invalidated.
	require.NoError(t, store.SetChannelAgent(db, "tenant-1", models.ChannelChat, "agent-new"))

	agentID, err = r.resolveAgent("tenant-1", models.ChannelChat)
	require.NoError(t, err)
	assert.Equal(t, "agent-old", agentID)

	r.InvalidateConfig("tenant-1")

	agentID, err = r.resolveAgent("tenant-1", models.ChannelChat)
	require.NoError(t, err)
	assert.Equal(t, "agent-new", agentID)
}
