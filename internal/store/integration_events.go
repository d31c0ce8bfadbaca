package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cgk-platform/agentcore/internal/models"
)

const maxEventErrorLen = 2048

// EnqueueIntegrationEvent records an inbound channel occurrence with status
// pending. agentID may be empty when no agent was resolvable at receipt time;
// the event is still queued so data is never silently dropped.
func EnqueueIntegrationEvent(db *sql.DB, tenantID string, channel models.Channel, eventType string, payload json.RawMessage, agentID string) (*models.IntegrationEvent, error) {
	if tenantID == "" {
		return nil, errors.New("tenant id is required")
	}
	if !channel.IsValid() {
		return nil, fmt.Errorf("unknown channel: %q", channel)
	}
	if eventType == "" {
		return nil, errors.New("event type is required")
	}

	id := generatePrefixedID("evt")
	err := Transact(db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(context.Background(), `
			INSERT INTO integration_events (id, tenant_id, channel, event_type, payload, status, agent_id)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, id, tenantID, string(channel), eventType, nullableText(string(payload)), models.EventStatusPending, nullableText(agentID))
		if err != nil {
			return fmt.Errorf("failed to enqueue integration event: %w", err)
		}

		_, err = InsertAuditTx(tx, tenantID, models.AuditKindEventEnqueued, models.SystemActorID,
			models.EntityIntegrationEvent, id, fmt.Sprintf("queued %s event %q", channel, eventType), "")
		return err
	})
	if err != nil {
		return nil, err
	}

	return GetIntegrationEvent(db, id)
}

// ClaimIntegrationEventTx transitions one event pending -> processing,
// stamping claimed_at and incrementing attempt. The conditional update is the
// queue's lease: when two workers race, exactly one matches the pending
// pre-state; the other gets ErrEventNotClaimable and must skip the event.
func ClaimIntegrationEventTx(tx *sql.Tx, eventID string) error {
	if eventID == "" {
		return errors.New("event id is required")
	}

	result, err := tx.ExecContext(context.Background(), `
		UPDATE integration_events
		SET status = ?,
		    claimed_at = CURRENT_TIMESTAMP,
		    attempt = attempt + 1,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = ?
	`, models.EventStatusProcessing, eventID, models.EventStatusPending)
	if err != nil {
		return fmt.Errorf("failed to claim integration event: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrEventNotClaimable
	}

	return nil
}

// ClaimIntegrationEvent is the single-statement variant of ClaimIntegrationEventTx.
func ClaimIntegrationEvent(db *sql.DB, eventID string) error {
	return Transact(db, func(tx *sql.Tx) error {
		return ClaimIntegrationEventTx(tx, eventID)
	})
}

// MarkIntegrationEventCompleted transitions processing -> completed.
// Returns ErrNotEligible when the event is not currently processing.
func MarkIntegrationEventCompleted(db *sql.DB, eventID, agentID string) error {
	if eventID == "" {
		return errors.New("event id is required")
	}

	return Transact(db, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(context.Background(), `
			UPDATE integration_events
			SET status = ?,
			    agent_id = COALESCE(?, agent_id),
			    error = NULL,
			    updated_at = CURRENT_TIMESTAMP
			WHERE id = ? AND status = ?
		`, models.EventStatusCompleted, nullableText(agentID), eventID, models.EventStatusProcessing)
		if err != nil {
			return fmt.Errorf("failed to complete integration event: %w", err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return ErrNotEligible
		}

		tenantID, err := eventTenantTx(tx, eventID)
		if err != nil {
			return err
		}
		_, err = InsertAuditTx(tx, tenantID, models.AuditKindEventCompleted, models.SystemActorID,
			models.EntityIntegrationEvent, eventID, "event processed", "")
		return err
	})
}

// MarkIntegrationEventFailed transitions processing -> failed, retaining the
// error message. Failed events are not retried automatically; an operator (or
// a separate sweep) requeues them explicitly.
func MarkIntegrationEventFailed(db *sql.DB, eventID, errMsg string) error {
	if eventID == "" {
		return errors.New("event id is required")
	}
	if len(errMsg) > maxEventErrorLen {
		errMsg = errMsg[:maxEventErrorLen]
	}

	return Transact(db, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(context.Background(), `
			UPDATE integration_events
			SET status = ?,
			    error = ?,
			    updated_at = CURRENT_TIMESTAMP
			WHERE id = ? AND status = ?
		`, models.EventStatusFailed, errMsg, eventID, models.EventStatusProcessing)
		if err != nil {
			return fmt.Errorf("failed to mark integration event failed: %w", err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return ErrNotEligible
		}

		tenantID, err := eventTenantTx(tx, eventID)
		if err != nil {
			return err
		}
		_, err = InsertAuditTx(tx, tenantID, models.AuditKindEventFailed, models.SystemActorID,
			models.EntityIntegrationEvent, eventID, "event processing failed", "")
		return err
	})
}

// RequeueIntegrationEvent transitions failed -> pending so the next queue run
// picks the event up again. Administrative path, not part of routing.
func RequeueIntegrationEvent(db *sql.DB, eventID, actorID string) error {
	if eventID == "" {
		return errors.New("event id is required")
	}
	if actorID == "" {
		actorID = models.SystemActorID
	}

	return Transact(db, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(context.Background(), `
			UPDATE integration_events
			SET status = ?,
			    error = NULL,
			    claimed_at = NULL,
			    updated_at = CURRENT_TIMESTAMP
			WHERE id = ? AND status = ?
		`, models.EventStatusPending, eventID, models.EventStatusFailed)
		if err != nil {
			return fmt.Errorf("failed to requeue integration event: %w", err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return ErrNotEligible
		}

		tenantID, err := eventTenantTx(tx, eventID)
		if err != nil {
			return err
		}
		_, err = InsertAuditTx(tx, tenantID, models.AuditKindEventRequeued, actorID,
			models.EntityIntegrationEvent, eventID, "event requeued for processing", "")
		return err
	})
}

// ReleaseStaleClaims returns processing events whose claim is older than grace
// back to pending. Covers workers that crashed after claiming but before
// finishing. Idempotent: a second run matches zero rows.
func ReleaseStaleClaims(db *sql.DB, grace time.Duration) (int64, error) {
	if grace <= 0 {
		grace = 10 * time.Minute
	}
	graceSeconds := int(grace.Seconds())

	var released int64
	err := Transact(db, func(tx *sql.Tx) error {
		released = 0

		staleIDs, err := queryStaleClaimIDsTx(tx, graceSeconds)
		if err != nil {
			return err
		}

		for _, stale := range staleIDs {
			result, err := tx.ExecContext(context.Background(), `
				UPDATE integration_events
				SET status = ?,
				    claimed_at = NULL,
				    updated_at = CURRENT_TIMESTAMP
				WHERE id = ? AND status = ?
				  AND claimed_at IS NOT NULL
				  AND claimed_at <= datetime(CURRENT_TIMESTAMP, '-' || ? || ' seconds')
			`, models.EventStatusPending, stale.id, models.EventStatusProcessing, graceSeconds)
			if err != nil {
				return fmt.Errorf("failed to release stale claim: %w", err)
			}
			n, err := result.RowsAffected()
			if err != nil {
				return fmt.Errorf("failed to check rows affected: %w", err)
			}
			if n == 0 {
				continue
			}

			if _, err := InsertAuditTx(tx, stale.tenantID, models.AuditKindEventStaleClaim, models.SystemActorID,
				models.EntityIntegrationEvent, stale.id, "stale processing claim released", ""); err != nil {
				return err
			}
			released++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return released, nil
}

type staleClaim struct {
	id       string
	tenantID string
}

func queryStaleClaimIDsTx(tx *sql.Tx, graceSeconds int) ([]staleClaim, error) {
	rows, err := tx.QueryContext(context.Background(), `
		SELECT id, tenant_id FROM integration_events
		WHERE status = ?
		  AND claimed_at IS NOT NULL
		  AND claimed_at <= datetime(CURRENT_TIMESTAMP, '-' || ? || ' seconds')
		ORDER BY claimed_at ASC
	`, models.EventStatusProcessing, graceSeconds)
	if err != nil {
		return nil, fmt.Errorf("failed to query stale claims: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []staleClaim
	for rows.Next() {
		var s staleClaim
		if err := rows.Scan(&s.id, &s.tenantID); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// GetIntegrationEvent loads a single event by id.
func GetIntegrationEvent(db *sql.DB, eventID string) (*models.IntegrationEvent, error) {
	var event *models.IntegrationEvent
	err := RetryWithBackoff(func() error {
		row := db.QueryRowContext(context.Background(), `
			SELECT id, tenant_id, channel, event_type, payload, status, agent_id, error, attempt, claimed_at, created_at, updated_at
			FROM integration_events
			WHERE id = ?
		`, eventID)
		e, scanErr := scanIntegrationEventRow(row)
		if scanErr != nil {
			return scanErr
		}
		event = e
		return nil
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("integration event not found: %s", eventID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query integration event: %w", err)
	}
	return event, nil
}

// ListPendingIntegrationEvents returns up to limit pending events in arrival
// order. The queue processor claims each one individually; listing does not
// reserve anything.
func ListPendingIntegrationEvents(db *sql.DB, tenantID string, limit int) ([]models.IntegrationEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	return listIntegrationEvents(db, tenantID, models.EventStatusPending, limit)
}

// ListIntegrationEventsByStatus returns up to limit events with the given status.
func ListIntegrationEventsByStatus(db *sql.DB, tenantID string, status models.EventStatus, limit int) ([]models.IntegrationEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	return listIntegrationEvents(db, tenantID, status, limit)
}

func listIntegrationEvents(db *sql.DB, tenantID string, status models.EventStatus, limit int) ([]models.IntegrationEvent, error) {
	query := `
		SELECT id, tenant_id, channel, event_type, payload, status, agent_id, error, attempt, claimed_at, created_at, updated_at
		FROM integration_events
		WHERE status = ?
	`
	args := []any{status}
	if tenantID != "" {
		query += ` AND tenant_id = ?`
		args = append(args, tenantID)
	}
	query += ` ORDER BY created_at ASC, id ASC LIMIT ?`
	args = append(args, limit)

	var events []models.IntegrationEvent
	err := RetryWithBackoff(func() error {
		rows, err := db.QueryContext(context.Background(), query, args...)
		if err != nil {
			return err
		}
		defer func() { _ = rows.Close() }()

		events = events[:0]
		for rows.Next() {
			e, scanErr := scanIntegrationEventRow(rows)
			if scanErr != nil {
				return scanErr
			}
			events = append(events, *e)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list integration events: %w", err)
	}
	return events, nil
}

func eventTenantTx(tx *sql.Tx, eventID string) (string, error) {
	var tenantID string
	err := tx.QueryRowContext(context.Background(), `SELECT tenant_id FROM integration_events WHERE id = ?`, eventID).Scan(&tenantID)
	if err != nil {
		return "", fmt.Errorf("failed to resolve event tenant: %w", err)
	}
	return tenantID, nil
}

func scanIntegrationEventRow(row rowScanner) (*models.IntegrationEvent, error) {
	var (
		e         models.IntegrationEvent
		payload   sql.NullString
		agentID   sql.NullString
		errMsg    sql.NullString
		claimedAt sql.NullTime
	)
	err := row.Scan(&e.ID, &e.TenantID, &e.Channel, &e.EventType, &payload, &e.Status, &agentID, &errMsg, &e.Attempt, &claimedAt, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if payload.Valid {
		e.Payload = json.RawMessage(payload.String)
	}
	e.AgentID = scanNullString(agentID)
	e.Error = scanNullString(errMsg)
	e.ClaimedAt = scanNullTime(claimedAt)
	return &e, nil
}
