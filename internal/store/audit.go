package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/cgk-platform/agentcore/internal/models"
)

// Audit payload size constraints enforced by validateAuditEntry.
const (
	maxAuditKindLength     = 128
	maxAuditActorLength    = 128
	maxAuditMessageLength  = 4096
	maxAuditMetadataLength = 16384
)

func validateAuditEntry(kind, actorID, message, metadata string) error {
	kind = strings.TrimSpace(kind)
	actorID = strings.TrimSpace(actorID)
	message = strings.TrimSpace(message)

	if kind == "" {
		return errors.New("audit kind is required")
	}
	if len(kind) > maxAuditKindLength {
		return fmt.Errorf("audit kind exceeds max length (%d)", maxAuditKindLength)
	}
	if actorID == "" {
		return errors.New("audit actor is required")
	}
	if len(actorID) > maxAuditActorLength {
		return fmt.Errorf("audit actor exceeds max length (%d)", maxAuditActorLength)
	}
	if message == "" {
		return errors.New("audit message is required")
	}
	if len(message) > maxAuditMessageLength {
		return fmt.Errorf("audit message exceeds max length (%d)", maxAuditMessageLength)
	}
	if metadata != "" {
		if len(metadata) > maxAuditMetadataLength {
			return fmt.Errorf("audit metadata exceeds max length (%d)", maxAuditMetadataLength)
		}
		if !json.Valid([]byte(metadata)) {
			return errors.New("audit metadata must be valid JSON")
		}
	}

	return nil
}

// InsertAuditTx appends an audit row inside an existing transaction. Called by
// every state transition so the audit entry commits or rolls back with the
// transition itself.
//
//nolint:revive // argument-limit: audit params (tenant, kind, actor, entity, msg, metadata) are all required
func InsertAuditTx(tx *sql.Tx, tenantID, kind, actorID, entityType, entityID, message, metadata string) (int64, error) {
	if err := validateAuditEntry(kind, actorID, message, metadata); err != nil {
		return 0, err
	}

	result, err := tx.ExecContext(context.Background(), `
		INSERT INTO audit_log (tenant_id, kind, actor_id, entity_type, entity_id, message, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, tenantID, kind, actorID, entityType, entityID, message, nullableText(metadata))
	if err != nil {
		return 0, fmt.Errorf("failed to insert audit entry: %w", err)
	}

	auditID, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert id: %w", err)
	}

	return auditID, nil
}

// ListAuditForEntity returns the transition trail for one entity, oldest first.
func ListAuditForEntity(db *sql.DB, entityType, entityID string) ([]models.AuditEntry, error) {
	var entries []models.AuditEntry
	err := RetryWithBackoff(func() error {
		rows, err := db.QueryContext(context.Background(), `
			SELECT id, tenant_id, kind, actor_id, entity_type, entity_id, message, metadata, created_at
			FROM audit_log
			WHERE entity_type = ? AND entity_id = ?
			ORDER BY id ASC
		`, entityType, entityID)
		if err != nil {
			return err
		}
		defer func() { _ = rows.Close() }()

		entries = entries[:0]
		for rows.Next() {
			var e models.AuditEntry
			var metadata sql.NullString
			if err := rows.Scan(&e.ID, &e.TenantID, &e.Kind, &e.ActorID, &e.EntityType, &e.EntityID, &e.Message, &metadata, &e.CreatedAt); err != nil {
				return err
			}
			if metadata.Valid {
				e.Metadata = json.RawMessage(metadata.String)
			}
			entries = append(entries, e)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	return entries, nil
}

// CountAuditForEntity returns the number of audit rows for one entity.
// Used by sweeps' idempotency tests and by operators checking trail length.
func CountAuditForEntity(db *sql.DB, entityType, entityID string) (int64, error) {
	var count int64
	err := RetryWithBackoff(func() error {
		return db.QueryRowContext(context.Background(), `
			SELECT COUNT(*) FROM audit_log WHERE entity_type = ? AND entity_id = ?
		`, entityType, entityID).Scan(&count)
	})
	if err != nil {
		return 0, fmt.Errorf("count audit entries: %w", err)
	}
	return count, nil
}
