package commands

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/cgk-platform/agentcore/internal/models"
	"github.com/cgk-platform/agentcore/internal/output"
	"github.com/cgk-platform/agentcore/internal/store"
)

// NewChannelCmd creates the channel command group
func NewChannelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "channel",
		Short: "Configure per-tenant channel-to-agent routing",
		Args:  cobra.NoArgs,
	}

	cmd.AddCommand(newChannelSetCmd())
	cmd.AddCommand(newChannelSetDefaultCmd())
	cmd.AddCommand(newChannelShowCmd())

	return cmd
}

func newChannelSetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Map a channel to an owning agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			tenantID, err := tenantFromFlags(cmd)
			if err != nil {
				return cmdErr(err)
			}
			channel, _ := cmd.Flags().GetString("channel")
			agentID, _ := cmd.Flags().GetString("agent")
			if channel == "" {
				return cmdErr(errors.New("--channel is required"))
			}
			if agentID == "" {
				return cmdErr(errors.New("--agent is required"))
			}

			if err := withDB(func(db *DB) error {
				return store.SetChannelAgent(db, tenantID, models.Channel(channel), agentID)
			}); err != nil {
				return err
			}

			type resp struct {
				TenantID string `json:"tenant_id"`
				Channel  string `json:"channel"`
				AgentID  string `json:"agent_id"`
			}
			return output.PrintSuccess(resp{TenantID: tenantID, Channel: channel, AgentID: agentID})
		},
	}

	cmd.Flags().String("channel", "", "Channel: chat|email|sms|calendar (required)")
	cmd.Flags().String("agent", "", "Owning agent ID (required)")

	cmd.Annotations = map[string]string{"mutates": "true"}
	return cmd
}

func newChannelSetDefaultCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set-default",
		Short: "Set the tenant-wide fallback agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			tenantID, err := tenantFromFlags(cmd)
			if err != nil {
				return cmdErr(err)
			}
			agentID, _ := cmd.Flags().GetString("agent")
			if agentID == "" {
				return cmdErr(errors.New("--agent is required"))
			}

			if err := withDB(func(db *DB) error {
				return store.SetTenantDefaultAgent(db, tenantID, agentID)
			}); err != nil {
				return err
			}

			type resp struct {
				TenantID string `json:"tenant_id"`
				AgentID  string `json:"agent_id"`
			}
			return output.PrintSuccess(resp{TenantID: tenantID, AgentID: agentID})
		},
	}

	cmd.Flags().String("agent", "", "Fallback agent ID (required)")

	cmd.Annotations = map[string]string{"mutates": "true"}
	return cmd
}

func newChannelShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show a tenant's routing configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			tenantID, err := tenantFromFlags(cmd)
			if err != nil {
				return cmdErr(err)
			}

			var cfg *store.ChannelAgentConfig
			if err := withDB(func(db *DB) error {
				c, err := store.LoadChannelAgentConfig(db, tenantID)
				if err != nil {
					return err
				}
				cfg = c
				return nil
			}); err != nil {
				return err
			}

			type resp struct {
				Config *store.ChannelAgentConfig `json:"config"`
			}
			return output.PrintSuccess(resp{Config: cfg})
		},
	}

	return cmd
}
