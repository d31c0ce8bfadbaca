package commands

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/cgk-platform/agentcore/internal/app"
	"github.com/cgk-platform/agentcore/internal/models"
	"github.com/cgk-platform/agentcore/internal/output"
	"github.com/cgk-platform/agentcore/internal/store"
)

// NewApprovalCmd creates the approval command group
func NewApprovalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "approval",
		Short: "Manage human approval gates for sensitive agent actions",
		Long:  "Open, decide, and sweep approval requests. Statuses: pending, approved, rejected, expired. Only pending, unexpired requests can be decided.",
		Args:  cobra.NoArgs,
	}

	cmd.AddCommand(newApprovalCreateCmd())
	cmd.AddCommand(newApprovalApproveCmd())
	cmd.AddCommand(newApprovalRejectCmd())
	cmd.AddCommand(newApprovalCancelCmd())
	cmd.AddCommand(newApprovalCheckCmd())
	cmd.AddCommand(newApprovalListCmd())
	cmd.AddCommand(newApprovalExpireCmd())

	return cmd
}

func newApprovalCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Open an approval gate on a sensitive action",
		RunE: func(cmd *cobra.Command, args []string) error {
			tenantID, err := tenantFromFlags(cmd)
			if err != nil {
				return cmdErr(err)
			}
			agentID, _ := cmd.Flags().GetString("agent")
			action, _ := cmd.Flags().GetString("action")
			ttlHours, _ := cmd.Flags().GetInt("ttl-hours")

			if agentID == "" {
				return cmdErr(errors.New("--agent is required"))
			}
			if action == "" {
				return cmdErr(errors.New("--action is required"))
			}
			if ttlHours <= 0 {
				ttlHours = app.EffectiveCoordinationSettings().ApprovalDefaultTTLHours
			}

			var request *models.AgentApprovalRequest
			if err := withDB(func(db *DB) error {
				r, err := store.CreateApprovalRequest(db, store.CreateApprovalRequestInput{
					TenantID:        tenantID,
					AgentID:         agentID,
					RequestedAction: json.RawMessage(action),
					ExpiresAt:       time.Now().UTC().Add(time.Duration(ttlHours) * time.Hour),
				})
				if err != nil {
					return err
				}
				request = r
				return nil
			}); err != nil {
				return err
			}

			type resp struct {
				Request *models.AgentApprovalRequest `json:"request"`
				Urgency models.UrgencyLevel          `json:"urgency"`
			}
			return output.PrintSuccess(resp{
				Request: request,
				Urgency: models.UrgencyFor(request.ExpiresAt, time.Now().UTC()),
			})
		},
	}

	cmd.Flags().String("agent", "", "Requesting agent ID (required)")
	cmd.Flags().String("action", "", "Requested action as JSON (required)")
	cmd.Flags().Int("ttl-hours", 0, "Hours until the request expires (default from config)")

	cmd.Annotations = map[string]string{"mutates": "true"}
	return cmd
}

// newApprovalDecisionCmd builds approve/reject, which differ only in the store call.
func newApprovalDecisionCmd(use, short string, decide func(db *DB, requestID, approverID, note string) (*models.AgentApprovalRequest, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			requestID, _ := cmd.Flags().GetString("id")
			approverID, _ := cmd.Flags().GetString("approver")
			note, _ := cmd.Flags().GetString("note")
			if requestID == "" {
				return cmdErr(errors.New("--id is required"))
			}
			if approverID == "" {
				return cmdErr(errors.New("--approver is required"))
			}

			var request *models.AgentApprovalRequest
			if err := withDB(func(db *DB) error {
				r, err := decide(db, requestID, approverID, note)
				if err != nil {
					return err
				}
				if r == nil {
					return &store.TransitionError{
						Code:       "NOT_ELIGIBLE",
						EntityType: models.EntityApproval,
						EntityID:   requestID,
						Reason:     "request is not pending or already past expiry",
						Action:     "agentcore approval check --id " + requestID,
					}
				}
				request = r
				return nil
			}); err != nil {
				return err
			}

			type resp struct {
				Request *models.AgentApprovalRequest `json:"request"`
			}
			return output.PrintSuccess(resp{Request: request})
		},
	}

	cmd.Flags().String("id", "", "Approval request ID (required)")
	cmd.Flags().String("approver", "", "Deciding human's ID (required)")
	cmd.Flags().String("note", "", "Optional response note")

	cmd.Annotations = map[string]string{"mutates": "true"}
	return cmd
}

func newApprovalApproveCmd() *cobra.Command {
	return newApprovalDecisionCmd("approve", "Approve a pending request", store.ApproveRequest)
}

func newApprovalRejectCmd() *cobra.Command {
	return newApprovalDecisionCmd("reject", "Reject a pending request", store.RejectRequest)
}

func newApprovalCancelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cancel",
		Short: "Withdraw your own pending request",
		RunE: func(cmd *cobra.Command, args []string) error {
			requestID, _ := cmd.Flags().GetString("id")
			agentID, _ := cmd.Flags().GetString("agent")
			if requestID == "" {
				return cmdErr(errors.New("--id is required"))
			}
			if agentID == "" {
				return cmdErr(errors.New("--agent is required"))
			}

			var request *models.AgentApprovalRequest
			if err := withDB(func(db *DB) error {
				r, err := store.CancelRequest(db, requestID, agentID)
				if err != nil {
					return err
				}
				if r == nil {
					return &store.TransitionError{
						Code:       "NOT_ELIGIBLE",
						EntityType: models.EntityApproval,
						EntityID:   requestID,
						Reason:     "request is not pending or not owned by this agent",
						Action:     "agentcore approval check --id " + requestID,
					}
				}
				request = r
				return nil
			}); err != nil {
				return err
			}

			type resp struct {
				Request *models.AgentApprovalRequest `json:"request"`
			}
			return output.PrintSuccess(resp{Request: request})
		},
	}

	cmd.Flags().String("id", "", "Approval request ID (required)")
	cmd.Flags().String("agent", "", "Requesting agent ID (required)")

	cmd.Annotations = map[string]string{"mutates": "true"}
	return cmd
}

func newApprovalCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check whether a request is still decidable and whether it is approved",
		RunE: func(cmd *cobra.Command, args []string) error {
			requestID, _ := cmd.Flags().GetString("id")
			if requestID == "" {
				return cmdErr(errors.New("--id is required"))
			}

			var request *models.AgentApprovalRequest
			if err := withDB(func(db *DB) error {
				r, err := store.GetApprovalRequest(db, requestID)
				if err != nil {
					return err
				}
				if r == nil {
					return errors.New("approval request not found: " + requestID)
				}
				request = r
				return nil
			}); err != nil {
				return err
			}

			now := time.Now().UTC()
			type resp struct {
				Request  *models.AgentApprovalRequest `json:"request"`
				Valid    bool                         `json:"valid"`
				Approved bool                         `json:"approved"`
				Urgency  models.UrgencyLevel          `json:"urgency"`
			}
			return output.PrintSuccess(resp{
				Request:  request,
				Valid:    request.IsValid(now),
				Approved: request.IsApproved(),
				Urgency:  models.UrgencyFor(request.ExpiresAt, now),
			})
		},
	}

	cmd.Flags().String("id", "", "Approval request ID (required)")
	return cmd
}

func newApprovalListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List an agent's pending requests, soonest expiry first",
		RunE: func(cmd *cobra.Command, args []string) error {
			agentID, _ := cmd.Flags().GetString("agent")
			if agentID == "" {
				return cmdErr(errors.New("--agent is required"))
			}

			var requests []models.AgentApprovalRequest
			if err := withDB(func(db *DB) error {
				list, err := store.ListPendingApprovals(db, agentID)
				if err != nil {
					return err
				}
				requests = list
				return nil
			}); err != nil {
				return err
			}

			now := time.Now().UTC()
			type item struct {
				Request models.AgentApprovalRequest `json:"request"`
				Urgency models.UrgencyLevel         `json:"urgency"`
			}
			items := make([]item, 0, len(requests))
			for _, r := range requests {
				items = append(items, item{Request: r, Urgency: models.UrgencyFor(r.ExpiresAt, now)})
			}

			type resp struct {
				Requests []item `json:"requests"`
				Count    int    `json:"count"`
			}
			return output.PrintSuccess(resp{Requests: items, Count: len(items)})
		},
	}

	cmd.Flags().String("agent", "", "Requesting agent ID (required)")
	return cmd
}

func newApprovalExpireCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "expire",
		Short: "Sweep pending requests past expiry into the expired state",
		RunE: func(cmd *cobra.Command, args []string) error {
			var expired int64
			if err := withDB(func(db *DB) error {
				n, err := store.ExpirePendingApprovals(db)
				if err != nil {
					return err
				}
				expired = n
				return nil
			}); err != nil {
				return err
			}

			type resp struct {
				Expired int64 `json:"expired"`
			}
			return output.PrintSuccess(resp{Expired: expired})
		},
	}

	cmd.Annotations = map[string]string{"mutates": "true"}
	return cmd
}
