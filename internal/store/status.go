package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/cgk-platform/agentcore/internal/models"
)

// StatusCounts summarizes coordination state across all tenants.
type StatusCounts struct {
	EventsByStatus      map[string]int64 `json:"events_by_status"`
	PendingHandoffs     int64            `json:"pending_handoffs"`
	PendingApprovals    int64            `json:"pending_approvals"`
	UnprocessedFeedback int64            `json:"unprocessed_feedback"`
	AuditEntries        int64            `json:"audit_entries"`
}

// GetStatusCounts gathers row counts for the status command. Each count is a
// separate query; the snapshot is not transactional and may skew slightly
// under concurrent writes, which is fine for an overview.
func GetStatusCounts(db *sql.DB) (*StatusCounts, error) {
	ctx := context.Background()
	counts := &StatusCounts{EventsByStatus: make(map[string]int64)}

	rows, err := db.QueryContext(ctx, `
		SELECT status, COUNT(*) FROM integration_events GROUP BY status
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to count integration events: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan event count: %w", err)
		}
		counts.EventsByStatus[status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate event counts: %w", err)
	}

	scalars := []struct {
		query string
		args  []any
		dest  *int64
	}{
		{`SELECT COUNT(*) FROM agent_handoffs WHERE status = ?`, []any{models.HandoffStatusPending}, &counts.PendingHandoffs},
		{`SELECT COUNT(*) FROM agent_approval_requests WHERE status = ?`, []any{models.ApprovalStatusPending}, &counts.PendingApprovals},
		{`SELECT COUNT(*) FROM agent_feedback WHERE processed = 0`, nil, &counts.UnprocessedFeedback},
		{`SELECT COUNT(*) FROM audit_log`, nil, &counts.AuditEntries},
	}
	for _, s := range scalars {
		if err := db.QueryRowContext(ctx, s.query, s.args...).Scan(s.dest); err != nil {
			return nil, fmt.Errorf("failed to count rows: %w", err)
		}
	}

	return counts, nil
}

// Diagnostic is one consistency check result.
type Diagnostic struct {
	Check  string `json:"check"`
	OK     bool   `json:"ok"`
	Count  int64  `json:"count"`
	Detail string `json:"detail,omitempty"`
}

// RunDiagnostics checks cross-row consistency that normal operations should
// preserve. A failing check indicates a sweep that has not run (recoverable)
// or a write that bypassed the store layer.
func RunDiagnostics(db *sql.DB) ([]Diagnostic, error) {
	ctx := context.Background()
	checks := []struct {
		name   string
		query  string
		detail string
	}{
		{
			name:   "expired_pending_approvals",
			query:  `SELECT COUNT(*) FROM agent_approval_requests WHERE status = 'pending' AND expires_at <= CURRENT_TIMESTAMP`,
			detail: "pending requests past expiry; run 'agentcore approval expire'",
		},
		{
			name:   "processing_without_claim",
			query:  `SELECT COUNT(*) FROM integration_events WHERE status = 'processing' AND claimed_at IS NULL`,
			detail: "processing events missing a claim timestamp",
		},
		{
			name:   "terminal_handoffs_without_response",
			query:  `SELECT COUNT(*) FROM agent_handoffs WHERE status IN ('accepted', 'declined', 'completed') AND responded_at IS NULL`,
			detail: "responded handoffs missing a response timestamp",
		},
	}

	diagnostics := make([]Diagnostic, 0, len(checks))
	for _, c := range checks {
		var n int64
		if err := db.QueryRowContext(ctx, c.query).Scan(&n); err != nil {
			return nil, fmt.Errorf("failed to run diagnostic %s: %w", c.name, err)
		}
		d := Diagnostic{Check: c.name, OK: n == 0, Count: n}
		if n > 0 {
			d.Detail = c.detail
		}
		diagnostics = append(diagnostics, d)
	}

	return diagnostics, nil
}
