package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/cgk-platform/agentcore/internal/models"
)

// ChannelAgentConfig is a point-in-time snapshot of a tenant's agent routing
// configuration: explicit channel mappings plus the tenant-wide default.
// Resolution over a snapshot keeps DetermineAgentForEvent pure and testable
// without a database.
type ChannelAgentConfig struct {
	TenantID       string                    `json:"tenant_id"`
	ChannelAgents  map[models.Channel]string `json:"channel_agents"`
	DefaultAgentID string                    `json:"default_agent_id,omitempty"`
}

// AgentFor resolves the owning agent for a channel: explicit mapping first,
// tenant default as fallback, "" when neither is configured.
func (c *ChannelAgentConfig) AgentFor(channel models.Channel) string {
	if c == nil {
		return ""
	}
	if agentID, ok := c.ChannelAgents[channel]; ok && agentID != "" {
		return agentID
	}
	return c.DefaultAgentID
}

// SetChannelAgent upserts the explicit channel -> agent mapping for a tenant.
func SetChannelAgent(db *sql.DB, tenantID string, channel models.Channel, agentID string) error {
	if tenantID == "" {
		return errors.New("tenant id is required")
	}
	if !channel.IsValid() {
		return fmt.Errorf("unknown channel: %q", channel)
	}
	if agentID == "" {
		return errors.New("agent id is required")
	}

	return Transact(db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(context.Background(), `
			INSERT INTO channel_agents (tenant_id, channel, agent_id, updated_at)
			VALUES (?, ?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT(tenant_id, channel) DO UPDATE SET
				agent_id = excluded.agent_id,
				updated_at = CURRENT_TIMESTAMP
		`, tenantID, string(channel), agentID)
		if err != nil {
			return fmt.Errorf("failed to set channel agent: %w", err)
		}
		return nil
	})
}

// SetTenantDefaultAgent upserts the tenant-wide fallback agent.
func SetTenantDefaultAgent(db *sql.DB, tenantID, agentID string) error {
	if tenantID == "" {
		return errors.New("tenant id is required")
	}
	if agentID == "" {
		return errors.New("agent id is required")
	}

	return Transact(db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(context.Background(), `
			INSERT INTO tenant_default_agents (tenant_id, agent_id, updated_at)
			VALUES (?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT(tenant_id) DO UPDATE SET
				agent_id = excluded.agent_id,
				updated_at = CURRENT_TIMESTAMP
		`, tenantID, agentID)
		if err != nil {
			return fmt.Errorf("failed to set tenant default agent: %w", err)
		}
		return nil
	})
}

// LoadChannelAgentConfig loads the routing snapshot for a tenant. A tenant
// with no rows gets an empty config (resolution then yields "" and events
// queue with deferred resolution rather than being dropped).
func LoadChannelAgentConfig(db *sql.DB, tenantID string) (*ChannelAgentConfig, error) {
	if tenantID == "" {
		return nil, errors.New("tenant id is required")
	}

	cfg := &ChannelAgentConfig{
		TenantID:      tenantID,
		ChannelAgents: make(map[models.Channel]string),
	}

	err := RetryWithBackoff(func() error {
		rows, err := db.QueryContext(context.Background(), `
			SELECT channel, agent_id FROM channel_agents WHERE tenant_id = ?
		`, tenantID)
		if err != nil {
			return err
		}
		defer func() { _ = rows.Close() }()

		for rows.Next() {
			var channel, agentID string
			if scanErr := rows.Scan(&channel, &agentID); scanErr != nil {
				return scanErr
			}
			cfg.ChannelAgents[models.Channel(channel)] = agentID
		}
		if rowsErr := rows.Err(); rowsErr != nil {
			return rowsErr
		}

		var defaultAgent sql.NullString
		err = db.QueryRowContext(context.Background(), `
			SELECT agent_id FROM tenant_default_agents WHERE tenant_id = ?
		`, tenantID).Scan(&defaultAgent)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		cfg.DefaultAgentID = scanNullString(defaultAgent)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load channel agent config: %w", err)
	}
	return cfg, nil
}
