package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/cgk-platform/agentcore/internal/app"
	"github.com/cgk-platform/agentcore/internal/models"
	"github.com/cgk-platform/agentcore/internal/output"
	"github.com/cgk-platform/agentcore/internal/router"
	"github.com/cgk-platform/agentcore/internal/store"
)

// NewEventCmd creates the event command group
func NewEventCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "event",
		Short: "Route and manage integration events",
		Long:  "Ingest channel events, inspect the queue, and run queue maintenance. Valid statuses: pending, processing, completed, failed",
		Args:  cobra.NoArgs,
	}

	cmd.AddCommand(newEventRouteCmd())
	cmd.AddCommand(newEventGetCmd())
	cmd.AddCommand(newEventListCmd())
	cmd.AddCommand(newEventRequeueCmd())
	cmd.AddCommand(newEventQueueRunCmd())
	cmd.AddCommand(newEventReleaseStaleCmd())

	return cmd
}

func newEventRouteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "route",
		Short: "Route one inbound channel event",
		RunE: func(cmd *cobra.Command, args []string) error {
			tenantID, err := tenantFromFlags(cmd)
			if err != nil {
				return cmdErr(err)
			}
			channel, _ := cmd.Flags().GetString("channel")
			eventType, _ := cmd.Flags().GetString("type")
			payload, _ := cmd.Flags().GetString("payload")

			if channel == "" {
				return cmdErr(errors.New("--channel is required"))
			}
			if eventType == "" {
				return cmdErr(errors.New("--type is required"))
			}
			if payload != "" && !json.Valid([]byte(payload)) {
				return cmdErr(errors.New("--payload must be valid JSON"))
			}

			var result router.RouteResult
			if err := withDB(func(db *DB) error {
				r := router.New(db)
				result = r.RouteEvent(cmd.Context(), tenantID, models.Channel(channel), eventType, json.RawMessage(payload))
				return nil
			}); err != nil {
				return err
			}

			// The route result is the response even on failure: routing never
			// propagates errors to the webhook layer, and the CLI mirrors that.
			return output.PrintSuccess(result)
		},
	}

	cmd.Flags().String("channel", "", "Source channel: chat|email|sms|calendar (required)")
	cmd.Flags().String("type", "", "Channel event type, e.g. message or inbound (required)")
	cmd.Flags().String("payload", "", "Raw event payload as JSON")

	cmd.Annotations = map[string]string{"mutates": "true"}
	return cmd
}

func newEventGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get",
		Short: "Get one integration event",
		RunE: func(cmd *cobra.Command, args []string) error {
			eventID, _ := cmd.Flags().GetString("id")
			if eventID == "" {
				return cmdErr(errors.New("--id is required"))
			}

			var event *models.IntegrationEvent
			if err := withDB(func(db *DB) error {
				e, err := store.GetIntegrationEvent(db, eventID)
				if err != nil {
					return err
				}
				event = e
				return nil
			}); err != nil {
				return err
			}

			type resp struct {
				Event *models.IntegrationEvent `json:"event"`
			}
			return output.PrintSuccess(resp{Event: event})
		},
	}

	cmd.Flags().String("id", "", "Event ID (required)")
	return cmd
}

func newEventListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List integration events by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			tenantID, _ := cmd.Flags().GetString("tenant")
			status, _ := cmd.Flags().GetString("status")
			limit, _ := cmd.Flags().GetInt("limit")

			eventStatus := models.EventStatus(status)
			switch eventStatus {
			case models.EventStatusPending, models.EventStatusProcessing,
				models.EventStatusCompleted, models.EventStatusFailed:
			default:
				return cmdErr(fmt.Errorf("unknown status: %q", status))
			}

			var events []models.IntegrationEvent
			if err := withDB(func(db *DB) error {
				list, err := store.ListIntegrationEventsByStatus(db, tenantID, eventStatus, limit)
				if err != nil {
					return err
				}
				events = list
				return nil
			}); err != nil {
				return err
			}

			type resp struct {
				Events []models.IntegrationEvent `json:"events"`
				Count  int                       `json:"count"`
			}
			return output.PrintSuccess(resp{Events: events, Count: len(events)})
		},
	}

	cmd.Flags().String("status", "pending", "Event status: pending|processing|completed|failed")
	cmd.Flags().Int("limit", 50, "Maximum events to return")
	return cmd
}

func newEventRequeueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "requeue",
		Short: "Return a failed event to the queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			eventID, _ := cmd.Flags().GetString("id")
			actorID, _ := cmd.Flags().GetString("actor")
			if eventID == "" {
				return cmdErr(errors.New("--id is required"))
			}

			var event *models.IntegrationEvent
			if err := withDB(func(db *DB) error {
				if err := store.RequeueIntegrationEvent(db, eventID, actorID); err != nil {
					if errors.Is(err, store.ErrNotEligible) {
						return &store.TransitionError{
							Code:       "NOT_ELIGIBLE",
							EntityType: models.EntityIntegrationEvent,
							EntityID:   eventID,
							Reason:     "only failed events can be requeued",
							Action:     "agentcore event get --id " + eventID,
						}
					}
					return err
				}
				e, err := store.GetIntegrationEvent(db, eventID)
				if err != nil {
					return err
				}
				event = e
				return nil
			}); err != nil {
				return err
			}

			type resp struct {
				Event *models.IntegrationEvent `json:"event"`
			}
			return output.PrintSuccess(resp{Event: event})
		},
	}

	cmd.Flags().String("id", "", "Event ID (required)")
	cmd.Flags().String("actor", "", "Operator or agent performing the requeue")

	cmd.Annotations = map[string]string{"mutates": "true"}
	return cmd
}

func newEventQueueRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue-run",
		Short: "Process pending events through registered handlers",
		Long: "Drains up to --concurrency pending events. The standalone binary has no " +
			"business handlers; with --ack each event is acknowledged and completed, " +
			"which is useful for draining queues in development and operations.",
		RunE: func(cmd *cobra.Command, args []string) error {
			tenantID, _ := cmd.Flags().GetString("tenant")
			concurrency, _ := cmd.Flags().GetInt("concurrency")
			ack, _ := cmd.Flags().GetBool("ack")
			if concurrency <= 0 {
				concurrency = app.EffectiveCoordinationSettings().QueueMaxConcurrency
			}

			var stats router.QueueStats
			if err := withDB(func(db *DB) error {
				r := router.New(db)
				if ack {
					if err := registerAckHandlers(db, r, tenantID, concurrency); err != nil {
						return err
					}
				}
				s, err := r.ProcessEventQueue(cmd.Context(), router.QueueConfig{
					TenantID:       tenantID,
					MaxConcurrency: concurrency,
				})
				if err != nil {
					return err
				}
				stats = s
				return nil
			}); err != nil {
				return err
			}

			return output.PrintSuccess(stats)
		},
	}

	cmd.Flags().Int("concurrency", 0, "Parallel events per run (default from config)")
	cmd.Flags().Bool("ack", false, "Acknowledge events without business handling")

	cmd.Annotations = map[string]string{"mutates": "true"}
	return cmd
}

// registerAckHandlers installs a pass-through handler for every (channel, type)
// pair currently pending, so a drain run completes events instead of failing
// them for lack of a handler.
func registerAckHandlers(db *DB, r *router.Router, tenantID string, limit int) error {
	pending, err := store.ListPendingIntegrationEvents(db, tenantID, limit)
	if err != nil {
		return err
	}
	for _, event := range pending {
		r.Register(event.Channel, event.EventType, func(context.Context, router.HandlerContext) error {
			return nil
		})
	}
	return nil
}

func newEventReleaseStaleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "release-stale",
		Short: "Return events with stale processing claims to pending",
		RunE: func(cmd *cobra.Command, args []string) error {
			graceMinutes, _ := cmd.Flags().GetInt("grace-minutes")
			if graceMinutes <= 0 {
				graceMinutes = app.EffectiveCoordinationSettings().StaleClaimGraceMinutes
			}

			var released int64
			if err := withDB(func(db *DB) error {
				n, err := store.ReleaseStaleClaims(db, time.Duration(graceMinutes)*time.Minute)
				if err != nil {
					return err
				}
				released = n
				return nil
			}); err != nil {
				return err
			}

			type resp struct {
				Released     int64 `json:"released"`
				GraceMinutes int   `json:"grace_minutes"`
			}
			return output.PrintSuccess(resp{Released: released, GraceMinutes: graceMinutes})
		},
	}

	cmd.Flags().Int("grace-minutes", 0, "Claim age before release (default from config)")

	cmd.Annotations = map[string]string{"mutates": "true"}
	return cmd
}
