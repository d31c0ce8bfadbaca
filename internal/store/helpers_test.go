package store

import (
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/cgk-platform/agentcore/internal/models"
)

func setupTestDB(t *testing.T) (*sql.DB, func()) {
	t.Helper()

	tempDir := t.TempDir()
	testDBPath := tempDir + "/test.db"

	db, err := InitDBWithPath(testDBPath)
	if err != nil {
		t.Fatalf("Failed to initialize test database: %v", err)
	}

	cleanup := func() {
		_ = db.Close()
	}

	return db, cleanup
}

// enqueueTestEvent inserts a pending chat event with a minimal payload.
func enqueueTestEvent(t *testing.T, db *sql.DB, tenantID string) *models.IntegrationEvent {
	t.Helper()
	event, err := EnqueueIntegrationEvent(db, tenantID, models.ChannelChat, "message",
		json.RawMessage(`{"user":"u1","text":"hello"}`), "agent-1")
	if err != nil {
		t.Fatalf("enqueueTestEvent(%q): %v", tenantID, err)
	}
	return event
}

// createTestHandoff inserts a pending handoff offer between two fixed agents.
func createTestHandoff(t *testing.T, db *sql.DB, tenantID string) *models.AgentHandoff {
	t.Helper()
	handoff, err := CreateHandoff(db, CreateHandoffInput{
		TenantID:       tenantID,
		FromAgentID:    "agent-sales",
		ToAgentID:      "agent-support",
		ConversationID: "conv-1",
		Channel:        models.ChannelChat,
		Reason:         "customer asked for a refund",
		ContextSummary: "order #42, delivered damaged",
		KeyPoints:      []string{"order 42", "damaged on arrival"},
	})
	if err != nil {
		t.Fatalf("createTestHandoff(%q): %v", tenantID, err)
	}
	return handoff
}

// createTestApproval inserts a pending approval request expiring at expiresAt.
func createTestApproval(t *testing.T, db *sql.DB, tenantID string, expiresAt time.Time) *models.AgentApprovalRequest {
	t.Helper()
	request, err := CreateApprovalRequest(db, CreateApprovalRequestInput{
		TenantID:        tenantID,
		AgentID:         "agent-1",
		RequestedAction: json.RawMessage(`{"action":"refund","amount":750}`),
		ExpiresAt:       expiresAt,
	})
	if err != nil {
		t.Fatalf("createTestApproval(%q): %v", tenantID, err)
	}
	return request
}

// backdate rewrites a timestamp column on one row so sweeps see it as old.
func backdate(t *testing.T, db *sql.DB, table, column, id string, age time.Duration) {
	t.Helper()
	seconds := int(age.Seconds())
	_, err := db.Exec(
		`UPDATE `+table+` SET `+column+` = datetime(CURRENT_TIMESTAMP, '-' || ? || ' seconds') WHERE id = ?`,
		seconds, id)
	if err != nil {
		t.Fatalf("backdate %s.%s for %s: %v", table, column, id, err)
	}
}
