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

// CanceledByAgentNote is the system-authored note written when an agent
// withdraws its own request. Distinguishes "I no longer need this" from a
// human's "no" in the audit trail.
const CanceledByAgentNote = "canceled by requesting agent"

// CreateApprovalRequestInput describes the gated action awaiting sign-off.
type CreateApprovalRequestInput struct {
	TenantID        string
	AgentID         string
	RequestedAction json.RawMessage
	ExpiresAt       time.Time
}

// CreateApprovalRequest opens a gate on a sensitive action. The caller must
// not execute the action until a later read observes status approved.
func CreateApprovalRequest(db *sql.DB, in CreateApprovalRequestInput) (*models.AgentApprovalRequest, error) {
	if in.TenantID == "" {
		return nil, errors.New("tenant id is required")
	}
	if in.AgentID == "" {
		return nil, errors.New("agent id is required")
	}
	if len(in.RequestedAction) == 0 || !json.Valid(in.RequestedAction) {
		return nil, errors.New("requested action must be valid JSON")
	}
	if in.ExpiresAt.IsZero() {
		return nil, errors.New("expiry is required")
	}

	id := generatePrefixedID("approval")
	// Store expiry in CURRENT_TIMESTAMP's text format so the SQL comparisons
	// in resolveApproval and the expiry sweep compare like with like.
	expiresAt := in.ExpiresAt.UTC().Format("2006-01-02 15:04:05")
	err := Transact(db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(context.Background(), `
			INSERT INTO agent_approval_requests (id, tenant_id, agent_id, requested_action, status, expires_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, id, in.TenantID, in.AgentID, string(in.RequestedAction), models.ApprovalStatusPending, expiresAt)
		if err != nil {
			return fmt.Errorf("failed to create approval request: %w", err)
		}

		_, err = InsertAuditTx(tx, in.TenantID, models.AuditKindApprovalCreated, in.AgentID,
			models.EntityApproval, id, "approval requested for gated action", "")
		return err
	})
	if err != nil {
		return nil, err
	}

	return GetApprovalRequest(db, id)
}

// ApproveRequest is the human approver's terminal yes.
// Returns (nil, nil) when the request is not pending or already past expiry:
// an expired request cannot be approved even before the sweep has run.
func ApproveRequest(db *sql.DB, requestID, approverID, note string) (*models.AgentApprovalRequest, error) {
	if approverID == "" {
		return nil, errors.New("approver id is required")
	}
	return resolveApproval(db, requestID, approverID, note,
		models.ApprovalStatusApproved, models.AuditKindApprovalApproved, "approval granted")
}

// RejectRequest is the human approver's terminal no.
func RejectRequest(db *sql.DB, requestID, approverID, note string) (*models.AgentApprovalRequest, error) {
	if approverID == "" {
		return nil, errors.New("approver id is required")
	}
	return resolveApproval(db, requestID, approverID, note,
		models.ApprovalStatusRejected, models.AuditKindApprovalRejected, "approval rejected")
}

// CancelRequest is the requesting agent's withdrawal of its own pending
// request, implemented as a reject with a system-authored note. Only the
// owning agent may cancel.
func CancelRequest(db *sql.DB, requestID, agentID string) (*models.AgentApprovalRequest, error) {
	if requestID == "" {
		return nil, errors.New("request id is required")
	}
	if agentID == "" {
		return nil, errors.New("agent id is required")
	}

	var updated bool
	err := Transact(db, func(tx *sql.Tx) error {
		updated = false
		result, err := tx.ExecContext(context.Background(), `
			UPDATE agent_approval_requests
			SET status = ?,
			    approver_id = ?,
			    response_note = ?,
			    responded_at = CURRENT_TIMESTAMP
			WHERE id = ? AND agent_id = ? AND status = ?
		`, models.ApprovalStatusRejected, agentID, CanceledByAgentNote,
			requestID, agentID, models.ApprovalStatusPending)
		if err != nil {
			return fmt.Errorf("failed to cancel approval request: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to check rows affected: %w", err)
		}
		if n == 0 {
			return nil
		}
		updated = true

		tenantID, err := approvalTenantTx(tx, requestID)
		if err != nil {
			return err
		}
		_, err = InsertAuditTx(tx, tenantID, models.AuditKindApprovalCanceled, agentID,
			models.EntityApproval, requestID, CanceledByAgentNote, "")
		return err
	})
	if err != nil {
		return nil, err
	}
	if !updated {
		return nil, nil
	}

	return GetApprovalRequest(db, requestID)
}

// resolveApproval applies a terminal human decision with a conditional update.
// The pre-state check includes expiry so a decision racing the sweep cannot
// resurrect a logically-expired request.
func resolveApproval(db *sql.DB, requestID, approverID, note string, to models.ApprovalStatus, auditKind, auditMsg string) (*models.AgentApprovalRequest, error) {
	if requestID == "" {
		return nil, errors.New("request id is required")
	}

	var updated bool
	err := Transact(db, func(tx *sql.Tx) error {
		updated = false
		result, err := tx.ExecContext(context.Background(), `
			UPDATE agent_approval_requests
			SET status = ?,
			    approver_id = ?,
			    response_note = ?,
			    responded_at = CURRENT_TIMESTAMP
			WHERE id = ? AND status = ? AND expires_at > CURRENT_TIMESTAMP
		`, to, approverID, nullableText(note), requestID, models.ApprovalStatusPending)
		if err != nil {
			return fmt.Errorf("failed to resolve approval request: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to check rows affected: %w", err)
		}
		if n == 0 {
			return nil
		}
		updated = true

		tenantID, err := approvalTenantTx(tx, requestID)
		if err != nil {
			return err
		}
		_, err = InsertAuditTx(tx, tenantID, auditKind, approverID,
			models.EntityApproval, requestID, auditMsg, "")
		return err
	})
	if err != nil {
		return nil, err
	}
	if !updated {
		return nil, nil
	}

	return GetApprovalRequest(db, requestID)
}

// ExpirePendingApprovals sweeps all pending requests past expiry into the
// expired terminal state. Idempotent: a second run matches zero rows and
// writes no further audit entries. The sweep is eventual-consistency cleanup;
// IsValid checks expiry independently so gated actions never rely on it.
func ExpirePendingApprovals(db *sql.DB) (int64, error) {
	var expired int64
	err := Transact(db, func(tx *sql.Tx) error {
		expired = 0

		rows, err := tx.QueryContext(context.Background(), `
			SELECT id, tenant_id FROM agent_approval_requests
			WHERE status = ? AND expires_at <= CURRENT_TIMESTAMP
			ORDER BY expires_at ASC
		`, models.ApprovalStatusPending)
		if err != nil {
			return fmt.Errorf("failed to query expirable approvals: %w", err)
		}

		type expirable struct{ id, tenantID string }
		var candidates []expirable
		func() {
			defer func() { _ = rows.Close() }()
			for rows.Next() {
				var c expirable
				if scanErr := rows.Scan(&c.id, &c.tenantID); scanErr != nil {
					err = scanErr
					return
				}
				candidates = append(candidates, c)
			}
			if rowsErr := rows.Err(); rowsErr != nil {
				err = rowsErr
			}
		}()
		if err != nil {
			return err
		}

		for _, c := range candidates {
			result, err := tx.ExecContext(context.Background(), `
				UPDATE agent_approval_requests
				SET status = ?,
				    responded_at = CURRENT_TIMESTAMP
				WHERE id = ? AND status = ? AND expires_at <= CURRENT_TIMESTAMP
			`, models.ApprovalStatusExpired, c.id, models.ApprovalStatusPending)
			if err != nil {
				return fmt.Errorf("failed to expire approval request: %w", err)
			}
			n, err := result.RowsAffected()
			if err != nil {
				return fmt.Errorf("failed to check rows affected: %w", err)
			}
			if n == 0 {
				continue
			}

			if _, err := InsertAuditTx(tx, c.tenantID, models.AuditKindApprovalExpired, models.SystemActorID,
				models.EntityApproval, c.id, "approval request expired without response", ""); err != nil {
				return err
			}
			expired++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return expired, nil
}

// GetApprovalRequest loads a request by id. Returns (nil, nil) when absent.
func GetApprovalRequest(db *sql.DB, requestID string) (*models.AgentApprovalRequest, error) {
	var request *models.AgentApprovalRequest
	err := RetryWithBackoff(func() error {
		row := db.QueryRowContext(context.Background(), `
			SELECT id, tenant_id, agent_id, approver_id, requested_action, status,
			       response_note, expires_at, created_at, responded_at
			FROM agent_approval_requests
			WHERE id = ?
		`, requestID)
		r, scanErr := scanApprovalRow(row)
		if scanErr != nil {
			return scanErr
		}
		request = r
		return nil
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query approval request: %w", err)
	}
	return request, nil
}

// IsRequestValid reports whether the gated action may still proceed: the
// request must be pending AND not past expiry, checked at time of execution
// rather than trusting status alone.
func IsRequestValid(db *sql.DB, requestID string, now time.Time) (bool, error) {
	request, err := GetApprovalRequest(db, requestID)
	if err != nil {
		return false, err
	}
	if request == nil {
		return false, nil
	}
	return request.IsValid(now), nil
}

// ListPendingApprovals returns an agent's pending requests, soonest expiry first.
func ListPendingApprovals(db *sql.DB, agentID string) ([]models.AgentApprovalRequest, error) {
	if agentID == "" {
		return nil, errors.New("agent id is required")
	}

	var requests []models.AgentApprovalRequest
	err := RetryWithBackoff(func() error {
		rows, err := db.QueryContext(context.Background(), `
			SELECT id, tenant_id, agent_id, approver_id, requested_action, status,
			       response_note, expires_at, created_at, responded_at
			FROM agent_approval_requests
			WHERE agent_id = ? AND status = ?
			ORDER BY expires_at ASC, id ASC
		`, agentID, models.ApprovalStatusPending)
		if err != nil {
			return err
		}
		defer func() { _ = rows.Close() }()

		requests = requests[:0]
		for rows.Next() {
			r, scanErr := scanApprovalRow(rows)
			if scanErr != nil {
				return scanErr
			}
			requests = append(requests, *r)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list pending approvals: %w", err)
	}
	return requests, nil
}

func approvalTenantTx(tx *sql.Tx, requestID string) (string, error) {
	var tenantID string
	err := tx.QueryRowContext(context.Background(), `SELECT tenant_id FROM agent_approval_requests WHERE id = ?`, requestID).Scan(&tenantID)
	if err != nil {
		return "", fmt.Errorf("failed to resolve approval tenant: %w", err)
	}
	return tenantID, nil
}

func scanApprovalRow(row rowScanner) (*models.AgentApprovalRequest, error) {
	var (
		r           models.AgentApprovalRequest
		approverID  sql.NullString
		action      string
		note        sql.NullString
		respondedAt sql.NullTime
	)
	err := row.Scan(&r.ID, &r.TenantID, &r.AgentID, &approverID, &action, &r.Status,
		&note, &r.ExpiresAt, &r.CreatedAt, &respondedAt)
	if err != nil {
		return nil, err
	}
	r.ApproverID = scanNullString(approverID)
	r.RequestedAction = json.RawMessage(action)
	r.ResponseNote = scanNullString(note)
	r.RespondedAt = scanNullTime(respondedAt)
	return &r, nil
}
