package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cgk-platform/agentcore/internal/models"
)

func TestAgentFor_Precedence(t *testing.T) {
	cfg := &ChannelAgentConfig{
		TenantID: "tenant-1",
		ChannelAgents: map[models.Channel]string{
			models.ChannelChat: "agent-chat",
		},
		DefaultAgentID: "agent-default",
	}

	assert.Equal(t, "agent-chat", cfg.AgentFor(models.ChannelChat), "explicit mapping wins")
	assert.Equal(t, "agent-default", cfg.AgentFor(models.ChannelEmail), "default fills unmapped channels")

	bare := &ChannelAgentConfig{TenantID: "tenant-1", ChannelAgents: map[models.Channel]string{}}
	assert.Empty(t, bare.AgentFor(models.ChannelSMS), "no mapping, no default")

	var nilCfg *ChannelAgentConfig
	assert.Empty(t, nilCfg.AgentFor(models.ChannelChat))
}

func TestSetChannelAgent_Upserts(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	require.NoError(t, SetChannelAgent(db, "tenant-1", models.ChannelChat, "agent-a"))
	require.NoError(t, SetChannelAgent(db, "tenant-1", models.ChannelChat, "agent-b"))

	cfg, err := LoadChannelAgentConfig(db, "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, "agent-b", cfg.ChannelAgents[models.ChannelChat])
	assert.Len(t, cfg.ChannelAgents, 1)
}

func TestSetTenantDefaultAgent_Upserts(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	require.NoError(t, SetTenantDefaultAgent(db, "tenant-1", "agent-a"))
	require.NoError(t, SetTenantDefaultAgent(db, "tenant-1", "agent-b"))

	cfg, err := LoadChannelAgentConfig(db, "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, "agent-b", cfg.DefaultAgentID)
}

func TestLoadChannelAgentConfig_EmptyTenant(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	cfg, err := LoadChannelAgentConfig(db, "tenant-unconfigured")
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Empty(t, cfg.ChannelAgents)
	assert.Empty(t, cfg.DefaultAgentID)
}

func TestLoadChannelAgentConfig_TenantIsolation(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	require.NoError(t, SetChannelAgent(db, "tenant-1", models.ChannelEmail, "agent-1"))
	require.NoError(t, SetChannelAgent(db, "tenant-2", models.ChannelEmail, "agent-2"))

	cfg, err := LoadChannelAgentConfig(db, "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, "agent-1", cfg.ChannelAgents[models.ChannelEmail])

	cfg, err = LoadChannelAgentConfig(db, "tenant-2")
	require.NoError(t, err)
	assert.Equal(t, "agent-2", cfg.ChannelAgents[models.ChannelEmail])
}
