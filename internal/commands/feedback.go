package commands

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/cgk-platform/agentcore/internal/models"
	"github.com/cgk-platform/agentcore/internal/output"
	"github.com/cgk-platform/agentcore/internal/store"
)

// NewFeedbackCmd creates the feedback command group
func NewFeedbackCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "feedback",
		Short: "Record and process user feedback on agent responses",
		Long:  "Record positive/negative/correction feedback and convert it into learnings. Each feedback row is converted at most once.",
		Args:  cobra.NoArgs,
	}

	cmd.AddCommand(newFeedbackCreateCmd())
	cmd.AddCommand(newFeedbackProcessCmd())
	cmd.AddCommand(newFeedbackListCmd())

	return cmd
}

func newFeedbackCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Record a user reaction to an agent response",
		RunE: func(cmd *cobra.Command, args []string) error {
			tenantID, err := tenantFromFlags(cmd)
			if err != nil {
				return cmdErr(err)
			}
			agentID, _ := cmd.Flags().GetString("agent")
			feedbackType, _ := cmd.Flags().GetString("type")
			rating, _ := cmd.Flags().GetInt("rating")
			original, _ := cmd.Flags().GetString("original")
			correction, _ := cmd.Flags().GetString("correction")

			in := store.CreateFeedbackInput{
				TenantID:         tenantID,
				AgentID:          agentID,
				FeedbackType:     models.FeedbackType(feedbackType),
				OriginalResponse: original,
				Correction:       correction,
			}
			if cmd.Flags().Changed("rating") {
				in.Rating = &rating
			}

			var feedback *models.AgentFeedback
			if err := withDB(func(db *DB) error {
				f, err := store.CreateFeedback(db, in)
				if err != nil {
					return err
				}
				feedback = f
				return nil
			}); err != nil {
				return err
			}

			type resp struct {
				Feedback *models.AgentFeedback `json:"feedback"`
			}
			return output.PrintSuccess(resp{Feedback: feedback})
		},
	}

	cmd.Flags().String("agent", "", "Agent the feedback is about (required)")
	cmd.Flags().String("type", "", "Feedback type: positive|negative|correction (required)")
	cmd.Flags().Int("rating", 0, "Optional numeric rating")
	cmd.Flags().String("original", "", "The agent response being rated")
	cmd.Flags().String("correction", "", "Corrected content (required for correction feedback)")

	cmd.Annotations = map[string]string{"mutates": "true"}
	return cmd
}

func newFeedbackProcessCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "process",
		Short: "Convert one feedback row into a learning reference",
		RunE: func(cmd *cobra.Command, args []string) error {
			feedbackID, _ := cmd.Flags().GetString("id")
			learningID, _ := cmd.Flags().GetString("learning")
			if feedbackID == "" {
				return cmdErr(errors.New("--id is required"))
			}
			if learningID == "" {
				return cmdErr(errors.New("--learning is required"))
			}

			var feedback *models.AgentFeedback
			if err := withDB(func(db *DB) error {
				f, err := store.ProcessFeedback(db, feedbackID, learningID)
				if err != nil {
					return err
				}
				if f == nil {
					return &store.TransitionError{
						Code:       "ALREADY_PROCESSED",
						EntityType: models.EntityFeedback,
						EntityID:   feedbackID,
						Reason:     "feedback is missing or already converted",
						Action:     "the existing learning reference stands; no action needed",
					}
				}
				feedback = f
				return nil
			}); err != nil {
				return err
			}

			type resp struct {
				Feedback *models.AgentFeedback `json:"feedback"`
			}
			return output.PrintSuccess(resp{Feedback: feedback})
		},
	}

	cmd.Flags().String("id", "", "Feedback ID (required)")
	cmd.Flags().String("learning", "", "Learning record ID created from this feedback (required)")

	cmd.Annotations = map[string]string{"mutates": "true"}
	return cmd
}

func newFeedbackListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List an agent's unprocessed feedback, oldest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			agentID, _ := cmd.Flags().GetString("agent")
			limit, _ := cmd.Flags().GetInt("limit")
			if agentID == "" {
				return cmdErr(errors.New("--agent is required"))
			}

			var items []models.AgentFeedback
			if err := withDB(func(db *DB) error {
				list, err := store.ListUnprocessedFeedback(db, agentID, limit)
				if err != nil {
					return err
				}
				items = list
				return nil
			}); err != nil {
				return err
			}

			type resp struct {
				Feedback []models.AgentFeedback `json:"feedback"`
				Count    int                    `json:"count"`
			}
			return output.PrintSuccess(resp{Feedback: items, Count: len(items)})
		},
	}

	cmd.Flags().String("agent", "", "Agent ID (required)")
	cmd.Flags().Int("limit", 50, "Maximum rows to return")
	return cmd
}
