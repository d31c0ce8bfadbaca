package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/cgk-platform/agentcore/internal/models"
)

// CreateFeedbackInput is a user reaction to an agent response.
type CreateFeedbackInput struct {
	TenantID         string
	AgentID          string
	FeedbackType     models.FeedbackType
	Rating           *int
	OriginalResponse string
	Correction       string
}

// CreateFeedback records a user reaction, unprocessed.
func CreateFeedback(db *sql.DB, in CreateFeedbackInput) (*models.AgentFeedback, error) {
	if in.TenantID == "" {
		return nil, errors.New("tenant id is required")
	}
	if in.AgentID == "" {
		return nil, errors.New("agent id is required")
	}
	switch in.FeedbackType {
	case models.FeedbackPositive, models.FeedbackNegative, models.FeedbackCorrection:
	default:
		return nil, fmt.Errorf("unknown feedback type: %q", in.FeedbackType)
	}
	if in.FeedbackType == models.FeedbackCorrection && in.Correction == "" {
		return nil, errors.New("correction text is required for correction feedback")
	}

	var rating any
	if in.Rating != nil {
		rating = *in.Rating
	}

	id := generatePrefixedID("fb")
	err := Transact(db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(context.Background(), `
			INSERT INTO agent_feedback (id, tenant_id, agent_id, feedback_type, rating, original_response, correction)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, id, in.TenantID, in.AgentID, string(in.FeedbackType), rating,
			nullableText(in.OriginalResponse), nullableText(in.Correction))
		if err != nil {
			return fmt.Errorf("failed to create feedback: %w", err)
		}

		_, err = InsertAuditTx(tx, in.TenantID, models.AuditKindFeedbackReceived, in.AgentID,
			models.EntityFeedback, id, fmt.Sprintf("%s feedback received", in.FeedbackType), "")
		return err
	})
	if err != nil {
		return nil, err
	}

	return GetFeedback(db, id)
}

// ProcessFeedback converts an unprocessed feedback row into a learning
// reference, exactly once. The processed flag is the CAS pre-state: a second
// call (or a racing processor) matches zero rows and returns (nil, nil).
func ProcessFeedback(db *sql.DB, feedbackID, learningID string) (*models.AgentFeedback, error) {
	if feedbackID == "" {
		return nil, errors.New("feedback id is required")
	}
	if learningID == "" {
		return nil, errors.New("learning id is required")
	}

	var updated bool
	err := Transact(db, func(tx *sql.Tx) error {
		updated = false
		result, err := tx.ExecContext(context.Background(), `
			UPDATE agent_feedback
			SET processed = 1, learning_created = ?
			WHERE id = ? AND processed = 0
		`, learningID, feedbackID)
		if err != nil {
			return fmt.Errorf("failed to process feedback: %w", err)
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
		if err := tx.QueryRowContext(context.Background(), `SELECT tenant_id FROM agent_feedback WHERE id = ?`, feedbackID).Scan(&tenantID); err != nil {
			return fmt.Errorf("failed to resolve feedback tenant: %w", err)
		}
		_, err = InsertAuditTx(tx, tenantID, models.AuditKindFeedbackLearned, models.SystemActorID,
			models.EntityFeedback, feedbackID, fmt.Sprintf("converted to learning %s", learningID), "")
		return err
	})
	if err != nil {
		return nil, err
	}
	if !updated {
		return nil, nil
	}

	return GetFeedback(db, feedbackID)
}

// GetFeedback loads a feedback row by id. Returns (nil, nil) when absent.
func GetFeedback(db *sql.DB, feedbackID string) (*models.AgentFeedback, error) {
	var feedback *models.AgentFeedback
	err := RetryWithBackoff(func() error {
		row := db.QueryRowContext(context.Background(), `
			SELECT id, tenant_id, agent_id, feedback_type, rating, original_response,
			       correction, processed, learning_created, created_at
			FROM agent_feedback
			WHERE id = ?
		`, feedbackID)
		f, scanErr := scanFeedbackRow(row)
		if scanErr != nil {
			return scanErr
		}
		feedback = f
		return nil
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query feedback: %w", err)
	}
	return feedback, nil
}

// ListUnprocessedFeedback returns unprocessed feedback for an agent, oldest first.
func ListUnprocessedFeedback(db *sql.DB, agentID string, limit int) ([]models.AgentFeedback, error) {
	if agentID == "" {
		return nil, errors.New("agent id is required")
	}
	if limit <= 0 {
		limit = 50
	}

	var items []models.AgentFeedback
	err := RetryWithBackoff(func() error {
		rows, err := db.QueryContext(context.Background(), `
			SELECT id, tenant_id, agent_id, feedback_type, rating, original_response,
			       correction, processed, learning_created, created_at
			FROM agent_feedback
			WHERE agent_id = ? AND processed = 0
			ORDER BY created_at ASC, id ASC
			LIMIT ?
		`, agentID, limit)
		if err != nil {
			return err
		}
		defer func() { _ = rows.Close() }()

		items = items[:0]
		for rows.Next() {
			f, scanErr := scanFeedbackRow(rows)
			if scanErr != nil {
				return scanErr
			}
			items = append(items, *f)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list unprocessed feedback: %w", err)
	}
	return items, nil
}

func scanFeedbackRow(row rowScanner) (*models.AgentFeedback, error) {
	var (
		f          models.AgentFeedback
		rating     sql.NullInt64
		original   sql.NullString
		correction sql.NullString
		learning   sql.NullString
		processed  int
	)
	err := row.Scan(&f.ID, &f.TenantID, &f.AgentID, &f.FeedbackType, &rating, &original,
		&correction, &processed, &learning, &f.CreatedAt)
	if err != nil {
		return nil, err
	}
	if rating.Valid {
		v := int(rating.Int64)
		f.Rating = &v
	}
	f.OriginalResponse = scanNullString(original)
	f.Correction = scanNullString(correction)
	f.Processed = processed != 0
	f.LearningCreated = scanNullString(learning)
	return &f, nil
}
