package commands

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/cgk-platform/agentcore/internal/app"
	"github.com/cgk-platform/agentcore/internal/models"
	"github.com/cgk-platform/agentcore/internal/output"
	"github.com/cgk-platform/agentcore/internal/store"
)

// NewHandoffCmd creates the handoff command group
func NewHandoffCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "handoff",
		Short: "Manage conversation handoffs between agents",
		Long:  "Offer, accept, decline, and complete conversation ownership transfers. Transitions: pending -> accepted|declined, accepted -> completed",
		Args:  cobra.NoArgs,
	}

	cmd.AddCommand(newHandoffCreateCmd())
	cmd.AddCommand(newHandoffAcceptCmd())
	cmd.AddCommand(newHandoffDeclineCmd())
	cmd.AddCommand(newHandoffCompleteCmd())
	cmd.AddCommand(newHandoffGetCmd())
	cmd.AddCommand(newHandoffListCmd())
	cmd.AddCommand(newHandoffArchiveCmd())

	return cmd
}

func newHandoffCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Offer a conversation to another agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			tenantID, err := tenantFromFlags(cmd)
			if err != nil {
				return cmdErr(err)
			}
			from, _ := cmd.Flags().GetString("from")
			to, _ := cmd.Flags().GetString("to")
			conversationID, _ := cmd.Flags().GetString("conversation")
			channel, _ := cmd.Flags().GetString("channel")
			channelRef, _ := cmd.Flags().GetString("channel-ref")
			reason, _ := cmd.Flags().GetString("reason")
			summary, _ := cmd.Flags().GetString("summary")
			keyPoints, _ := cmd.Flags().GetStringArray("key-point")

			var handoff *models.AgentHandoff
			if err := withDB(func(db *DB) error {
				h, err := store.CreateHandoff(db, store.CreateHandoffInput{
					TenantID:       tenantID,
					FromAgentID:    from,
					ToAgentID:      to,
					ConversationID: conversationID,
					Channel:        models.Channel(channel),
					ChannelRefID:   channelRef,
					Reason:         reason,
					ContextSummary: summary,
					KeyPoints:      keyPoints,
				})
				if err != nil {
					return err
				}
				handoff = h
				return nil
			}); err != nil {
				return err
			}

			type resp struct {
				Handoff *models.AgentHandoff `json:"handoff"`
			}
			return output.PrintSuccess(resp{Handoff: handoff})
		},
	}

	cmd.Flags().String("from", "", "Sending agent ID (required)")
	cmd.Flags().String("to", "", "Receiving agent ID (required)")
	cmd.Flags().String("conversation", "", "Conversation ID (required)")
	cmd.Flags().String("channel", "", "Conversation channel: chat|email|sms|calendar (required)")
	cmd.Flags().String("channel-ref", "", "Channel-native reference, e.g. a thread timestamp")
	cmd.Flags().String("reason", "", "Why the conversation is being handed off (required)")
	cmd.Flags().String("summary", "", "Context summary for the receiving agent")
	cmd.Flags().StringArray("key-point", nil, "Key point to carry over (repeatable)")

	cmd.Annotations = map[string]string{"mutates": "true"}
	return cmd
}

// newHandoffTransitionCmd builds accept/decline/complete, which differ only in
// the store call and the remediation hint on refusal.
func newHandoffTransitionCmd(use, short string, transition func(db *DB, handoffID, actorID string) (*models.AgentHandoff, error), refusalReason, refusalAction string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			handoffID, _ := cmd.Flags().GetString("id")
			agentID, _ := cmd.Flags().GetString("agent")
			if handoffID == "" {
				return cmdErr(errors.New("--id is required"))
			}
			if agentID == "" {
				return cmdErr(errors.New("--agent is required"))
			}

			var handoff *models.AgentHandoff
			if err := withDB(func(db *DB) error {
				h, err := transition(db, handoffID, agentID)
				if err != nil {
					return err
				}
				if h == nil {
					return &store.TransitionError{
						Code:       "NOT_ELIGIBLE",
						EntityType: models.EntityHandoff,
						EntityID:   handoffID,
						Reason:     refusalReason,
						Action:     refusalAction,
					}
				}
				handoff = h
				return nil
			}); err != nil {
				return err
			}

			type resp struct {
				Handoff *models.AgentHandoff `json:"handoff"`
			}
			return output.PrintSuccess(resp{Handoff: handoff})
		},
	}

	cmd.Flags().String("id", "", "Handoff ID (required)")
	cmd.Flags().String("agent", "", "Acting agent ID (required)")

	cmd.Annotations = map[string]string{"mutates": "true"}
	return cmd
}

func newHandoffAcceptCmd() *cobra.Command {
	return newHandoffTransitionCmd("accept", "Accept a pending handoff",
		store.AcceptHandoff,
		"handoff is not pending",
		"agentcore handoff get --id <id> to inspect its current status")
}

func newHandoffDeclineCmd() *cobra.Command {
	return newHandoffTransitionCmd("decline", "Decline a pending handoff",
		store.DeclineHandoff,
		"handoff is not pending",
		"declined and stale handoffs stay closed; create a new one if needed")
}

func newHandoffCompleteCmd() *cobra.Command {
	return newHandoffTransitionCmd("complete", "Complete an accepted handoff",
		store.CompleteHandoff,
		"handoff is not accepted",
		"accept the handoff before completing it")
}

func newHandoffGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get",
		Short: "Get one handoff",
		RunE: func(cmd *cobra.Command, args []string) error {
			handoffID, _ := cmd.Flags().GetString("id")
			if handoffID == "" {
				return cmdErr(errors.New("--id is required"))
			}

			var handoff *models.AgentHandoff
			if err := withDB(func(db *DB) error {
				h, err := store.GetHandoff(db, handoffID)
				if err != nil {
					return err
				}
				if h == nil {
					return errors.New("handoff not found: " + handoffID)
				}
				handoff = h
				return nil
			}); err != nil {
				return err
			}

			type resp struct {
				Handoff *models.AgentHandoff `json:"handoff"`
			}
			return output.PrintSuccess(resp{Handoff: handoff})
		},
	}

	cmd.Flags().String("id", "", "Handoff ID (required)")
	return cmd
}

func newHandoffListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List pending handoffs offered to an agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			agentID, _ := cmd.Flags().GetString("agent")
			if agentID == "" {
				return cmdErr(errors.New("--agent is required"))
			}

			var handoffs []models.AgentHandoff
			if err := withDB(func(db *DB) error {
				list, err := store.ListPendingHandoffs(db, agentID)
				if err != nil {
					return err
				}
				handoffs = list
				return nil
			}); err != nil {
				return err
			}

			type resp struct {
				Handoffs []models.AgentHandoff `json:"handoffs"`
				Count    int                   `json:"count"`
			}
			return output.PrintSuccess(resp{Handoffs: handoffs, Count: len(handoffs)})
		},
	}

	cmd.Flags().String("agent", "", "Receiving agent ID (required)")
	return cmd
}

func newHandoffArchiveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Purge completed handoffs older than a cutoff",
		RunE: func(cmd *cobra.Command, args []string) error {
			days, _ := cmd.Flags().GetInt("days")
			if days <= 0 {
				days = app.EffectiveCoordinationSettings().HandoffArchiveDays
			}

			var purged int64
			if err := withDB(func(db *DB) error {
				n, err := store.ArchiveOldHandoffs(db, days)
				if err != nil {
					return err
				}
				purged = n
				return nil
			}); err != nil {
				return err
			}

			type resp struct {
				Purged int64 `json:"purged"`
				Days   int   `json:"days"`
			}
			return output.PrintSuccess(resp{Purged: purged, Days: days})
		},
	}

	cmd.Flags().Int("days", 0, "Age cutoff in days (default from config)")

	cmd.Annotations = map[string]string{"mutates": "true"}
	return cmd
}
