package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cgk-platform/agentcore/internal/models"
)

func TestCreateHandoff(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	handoff := createTestHandoff(t, db, "tenant-1")

	assert.NotEmpty(t, handoff.ID)
	assert.Equal(t, models.HandoffStatusPending, handoff.Status)
	assert.Equal(t, "agent-sales", handoff.FromAgentID)
	assert.Equal(t, "agent-support", handoff.ToAgentID)
	assert.Equal(t, []string{"order 42", "damaged on arrival"}, handoff.KeyPoints)
	assert.Nil(t, handoff.AcceptedAt)
	assert.Nil(t, handoff.CompletedAt)
}

func TestCreateHandoff_Validation(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	_, err := CreateHandoff(db, CreateHandoffInput{
		TenantID:       "tenant-1",
		FromAgentID:    "a",
		ToAgentID:      "b",
		ConversationID: "c",
		Channel:        models.ChannelChat,
	})
	assert.Error(t, err, "reason is required")

	_, err = CreateHandoff(db, CreateHandoffInput{
		TenantID:       "tenant-1",
		FromAgentID:    "a",
		ToAgentID:      "b",
		ConversationID: "c",
		Channel:        models.Channel("pigeon"),
		Reason:         "r",
	})
	assert.Error(t, err, "channel must be known")
}

func TestHandoffLifecycle_AcceptComplete(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	handoff := createTestHandoff(t, db, "tenant-1")

	accepted, err := AcceptHandoff(db, handoff.ID, "agent-support")
	require.NoError(t, err)
	require.NotNil(t, accepted)
	assert.Equal(t, models.HandoffStatusAccepted, accepted.Status)
	require.NotNil(t, accepted.AcceptedAt)

	completed, err := CompleteHandoff(db, handoff.ID, "agent-support")
	require.NoError(t, err)
	require.NotNil(t, completed)
	assert.Equal(t, models.HandoffStatusCompleted, completed.Status)
	require.NotNil(t, completed.CompletedAt)
}

func TestHandoffTransitions_AreMonotonic(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	handoff := createTestHandoff(t, db, "tenant-1")

	accepted, err := AcceptHandoff(db, handoff.ID, "agent-support")
	require.NoError(t, err)
	require.NotNil(t, accepted)

	// Declining an accepted handoff is a benign no-op: no error, no change.
	declined, err := DeclineHandoff(db, handoff.ID, "agent-support")
	require.NoError(t, err)
	assert.Nil(t, declined)

	// A second accept is likewise a no-op.
	again, err := AcceptHandoff(db, handoff.ID, "agent-support")
	require.NoError(t, err)
	assert.Nil(t, again)

	current, err := GetHandoff(db, handoff.ID)
	require.NoError(t, err)
	assert.Equal(t, models.HandoffStatusAccepted, current.Status)
}

func TestCompleteHandoff_RequiresAccepted(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	handoff := createTestHandoff(t, db, "tenant-1")

	completed, err := CompleteHandoff(db, handoff.ID, "agent-support")
	require.NoError(t, err)
	assert.Nil(t, completed, "pending -> completed is not a legal edge")

	current, err := GetHandoff(db, handoff.ID)
	require.NoError(t, err)
	assert.Equal(t, models.HandoffStatusPending, current.Status)
}

func TestDeclineHandoff_IsTerminal(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	handoff := createTestHandoff(t, db, "tenant-1")

	declined, err := DeclineHandoff(db, handoff.ID, "agent-support")
	require.NoError(t, err)
	require.NotNil(t, declined)
	assert.Equal(t, models.HandoffStatusDeclined, declined.Status)

	reopened, err := AcceptHandoff(db, handoff.ID, "agent-support")
	require.NoError(t, err)
	assert.Nil(t, reopened, "declined handoffs are never reopened")
}

func TestAcceptHandoff_MissingIsNoOp(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	handoff, err := AcceptHandoff(db, "handoff_missing", "agent-support")
	require.NoError(t, err)
	assert.Nil(t, handoff)
}

func TestListPendingHandoffs(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	first := createTestHandoff(t, db, "tenant-1")
	second := createTestHandoff(t, db, "tenant-1")

	_, err := AcceptHandoff(db, second.ID, "agent-support")
	require.NoError(t, err)

	pending, err := ListPendingHandoffs(db, "agent-support")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, first.ID, pending[0].ID)

	none, err := ListPendingHandoffs(db, "agent-nobody")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestHandoffTransitionsAreAudited(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	handoff := createTestHandoff(t, db, "tenant-1")
	_, err := AcceptHandoff(db, handoff.ID, "agent-support")
	require.NoError(t, err)
	_, err = CompleteHandoff(db, handoff.ID, "agent-support")
	require.NoError(t, err)

	trail, err := ListAuditForEntity(db, models.EntityHandoff, handoff.ID)
	require.NoError(t, err)
	require.Len(t, trail, 3)
	assert.Equal(t, models.AuditKindHandoffCreated, trail[0].Kind)
	assert.Equal(t, models.AuditKindHandoffAccepted, trail[1].Kind)
	assert.Equal(t, models.AuditKindHandoffCompleted, trail[2].Kind)
	assert.Equal(t, "agent-support", trail[1].ActorID)
}

func TestArchiveOldHandoffs(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	old := createTestHandoff(t, db, "tenant-1")
	_, err := AcceptHandoff(db, old.ID, "agent-support")
	require.NoError(t, err)
	_, err = CompleteHandoff(db, old.ID, "agent-support")
	require.NoError(t, err)
	backdate(t, db, "agent_handoffs", "completed_at", old.ID, 45*24*time.Hour)

	recent := createTestHandoff(t, db, "tenant-1")
	_, err = AcceptHandoff(db, recent.ID, "agent-support")
	require.NoError(t, err)
	_, err = CompleteHandoff(db, recent.ID, "agent-support")
	require.NoError(t, err)

	stillPending := createTestHandoff(t, db, "tenant-1")

	purged, err := ArchiveOldHandoffs(db, 30)
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)

	gone, err := GetHandoff(db, old.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)

	kept, err := GetHandoff(db, recent.ID)
	require.NoError(t, err)
	require.NotNil(t, kept)

	live, err := GetHandoff(db, stillPending.ID)
	require.NoError(t, err)
	require.NotNil(t, live, "pending offers are never archived")
}
