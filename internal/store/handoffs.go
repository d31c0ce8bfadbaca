package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cgk-platform/agentcore/internal/models"
)

// CreateHandoffInput carries everything a handoff offer needs.
type CreateHandoffInput struct {
	TenantID       string
	FromAgentID    string
	ToAgentID      string
	ConversationID string
	Channel        models.Channel
	ChannelRefID   string
	Reason         string
	ContextSummary string
	KeyPoints      []string
}

// CreateHandoff records a new ownership transfer offer. Always starts pending.
func CreateHandoff(db *sql.DB, in CreateHandoffInput) (*models.AgentHandoff, error) {
	if in.TenantID == "" {
		return nil, errors.New("tenant id is required")
	}
	if in.FromAgentID == "" || in.ToAgentID == "" {
		return nil, errors.New("from and to agent ids are required")
	}
	if in.ConversationID == "" {
		return nil, errors.New("conversation id is required")
	}
	if !in.Channel.IsValid() {
		return nil, fmt.Errorf("unknown channel: %q", in.Channel)
	}
	if in.Reason == "" {
		return nil, errors.New("handoff reason is required")
	}

	keyPointsJSON := ""
	if len(in.KeyPoints) > 0 {
		b, err := json.Marshal(in.KeyPoints)
		if err != nil {
			return nil, fmt.Errorf("failed to encode key points: %w", err)
		}
		keyPointsJSON = string(b)
	}

	id := generatePrefixedID("handoff")
	err := Transact(db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(context.Background(), `
			INSERT INTO agent_handoffs (
				id, tenant_id, from_agent_id, to_agent_id, conversation_id,
				channel, channel_ref_id, reason, context_summary, key_points, status
			)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, id, in.TenantID, in.FromAgentID, in.ToAgentID, in.ConversationID,
			string(in.Channel), nullableText(in.ChannelRefID), in.Reason,
			nullableText(in.ContextSummary), nullableText(keyPointsJSON), models.HandoffStatusPending)
		if err != nil {
			return fmt.Errorf("failed to create handoff: %w", err)
		}

		_, err = InsertAuditTx(tx, in.TenantID, models.AuditKindHandoffCreated, in.FromAgentID,
			models.EntityHandoff, id, fmt.Sprintf("handoff offered to %s: %s", in.ToAgentID, in.Reason), "")
		return err
	})
	if err != nil {
		return nil, err
	}

	return GetHandoff(db, id)
}

// AcceptHandoff transitions pending -> accepted, stamping accepted_at.
// Returns (nil, nil) when the handoff is missing or not pending: an illegal
// transition is a benign no-op, never an error, because the accepting agent
// may be racing a decline or a duplicate webhook delivery.
func AcceptHandoff(db *sql.DB, handoffID, actorID string) (*models.AgentHandoff, error) {
	return transitionHandoff(db, handoffID, actorID,
		models.HandoffStatusPending, models.HandoffStatusAccepted,
		models.AuditKindHandoffAccepted, "handoff accepted",
		`accepted_at = CURRENT_TIMESTAMP`)
}

// DeclineHandoff transitions pending -> declined. A declined handoff is never
// reopened; the sender creates a fresh one instead.
func DeclineHandoff(db *sql.DB, handoffID, actorID string) (*models.AgentHandoff, error) {
	return transitionHandoff(db, handoffID, actorID,
		models.HandoffStatusPending, models.HandoffStatusDeclined,
		models.AuditKindHandoffDeclined, "handoff declined", "")
}

// CompleteHandoff transitions accepted -> completed, stamping completed_at.
func CompleteHandoff(db *sql.DB, handoffID, actorID string) (*models.AgentHandoff, error) {
	return transitionHandoff(db, handoffID, actorID,
		models.HandoffStatusAccepted, models.HandoffStatusCompleted,
		models.AuditKindHandoffCompleted, "handoff completed",
		`completed_at = CURRENT_TIMESTAMP`)
}

// transitionHandoff applies one legal state-machine edge as a conditional
// update. The WHERE clause on the pre-state is the entire concurrency story:
// whichever racing caller lands first wins; the loser matches zero rows.
func transitionHandoff(db *sql.DB, handoffID, actorID string, from, to models.HandoffStatus, auditKind, auditMsg, extraSet string) (*models.AgentHandoff, error) {
	if handoffID == "" {
		return nil, errors.New("handoff id is required")
	}
	if actorID == "" {
		actorID = models.SystemActorID
	}

	query := `UPDATE agent_handoffs SET status = ?`
	if extraSet != "" {
		query += ", " + extraSet
	}
	query += ` WHERE id = ? AND status = ?`

	var updated bool
	err := Transact(db, func(tx *sql.Tx) error {
		updated = false
		result, err := tx.ExecContext(context.Background(), query, to, handoffID, from)
		if err != nil {
			return fmt.Errorf("failed to transition handoff: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to check rows affected: %w", err)
		}
		if n == 0 {
			return nil
		}
		updated = true

		var tenantID string
		if err := tx.QueryRowContext(context.Background(), `SELECT tenant_id FROM agent_handoffs WHERE id = ?`, handoffID).Scan(&tenantID); err != nil {
			return fmt.Errorf("failed to resolve handoff tenant: %w", err)
		}
		_, err = InsertAuditTx(tx, tenantID, auditKind, actorID, models.EntityHandoff, handoffID, auditMsg, "")
		return err
	})
	if err != nil {
		return nil, err
	}
	if !updated {
		return nil, nil
	}

	return GetHandoff(db, handoffID)
}

// GetHandoff loads a handoff by id. Returns (nil, nil) when absent.
func GetHandoff(db *sql.DB, handoffID string) (*models.AgentHandoff, error) {
	var handoff *models.AgentHandoff
	err := RetryWithBackoff(func() error {
		row := db.QueryRowContext(context.Background(), `
			SELECT id, tenant_id, from_agent_id, to_agent_id, conversation_id,
			       channel, channel_ref_id, reason, context_summary, key_points, status,
			       created_at, accepted_at, completed_at
			FROM agent_handoffs
			WHERE id = ?
		`, handoffID)
		h, scanErr := scanHandoffRow(row)
		if scanErr != nil {
			return scanErr
		}
		handoff = h
		return nil
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query handoff: %w", err)
	}
	return handoff, nil
}

// ListPendingHandoffs returns all pending handoffs where agentID is the
// recipient, oldest first. The primary query a receiving agent polls against.
func ListPendingHandoffs(db *sql.DB, agentID string) ([]models.AgentHandoff, error) {
	if agentID == "" {
		return nil, errors.New("agent id is required")
	}

	var handoffs []models.AgentHandoff
	err := RetryWithBackoff(func() error {
		rows, err := db.QueryContext(context.Background(), `
			SELECT id, tenant_id, from_agent_id, to_agent_id, conversation_id,
			       channel, channel_ref_id, reason, context_summary, key_points, status,
			       created_at, accepted_at, completed_at
			FROM agent_handoffs
			WHERE to_agent_id = ? AND status = ?
			ORDER BY created_at ASC, id ASC
		`, agentID, models.HandoffStatusPending)
		if err != nil {
			return err
		}
		defer func() { _ = rows.Close() }()

		handoffs = handoffs[:0]
		for rows.Next() {
			h, scanErr := scanHandoffRow(rows)
			if scanErr != nil {
				return scanErr
			}
			handoffs = append(handoffs, *h)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list pending handoffs: %w", err)
	}
	return handoffs, nil
}

// ArchiveOldHandoffs purges completed handoffs older than daysOld.
// Periodic hygiene, not part of the request path. Pending and declined rows
// are kept: pending ones are live offers, declined ones recent audit context.
func ArchiveOldHandoffs(db *sql.DB, daysOld int) (int64, error) {
	if daysOld <= 0 {
		daysOld = 30
	}

	var purged int64
	err := Transact(db, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(context.Background(), `
			DELETE FROM agent_handoffs
			WHERE status = ?
			  AND completed_at IS NOT NULL
			  AND completed_at <= datetime(CURRENT_TIMESTAMP, '-' || ? || ' days')
		`, models.HandoffStatusCompleted, daysOld)
		if err != nil {
			return fmt.Errorf("failed to archive old handoffs: %w", err)
		}
		purged, err = result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to count archived handoffs: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return purged, nil
}

func scanHandoffRow(row rowScanner) (*models.AgentHandoff, error) {
	var (
		h            models.AgentHandoff
		channelRefID sql.NullString
		summary      sql.NullString
		keyPoints    sql.NullString
		acceptedAt   sql.NullTime
		completedAt  sql.NullTime
	)
	err := row.Scan(&h.ID, &h.TenantID, &h.FromAgentID, &h.ToAgentID, &h.ConversationID,
		&h.Channel, &channelRefID, &h.Reason, &summary, &keyPoints, &h.Status,
		&h.CreatedAt, &acceptedAt, &completedAt)
	if err != nil {
		return nil, err
	}
	h.ChannelRefID = scanNullString(channelRefID)
	h.ContextSummary = scanNullString(summary)
	h.AcceptedAt = scanNullTime(acceptedAt)
	h.CompletedAt = scanNullTime(completedAt)
	if keyPoints.Valid && keyPoints.String != "" {
		if err := json.Unmarshal([]byte(keyPoints.String), &h.KeyPoints); err != nil {
			return nil, fmt.Errorf("failed to decode key points: %w", err)
		}
	}
	return &h, nil
}
