package store

import (
	"database/sql"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cgk-platform/agentcore/internal/models"
)

func TestValidateAuditEntry(t *testing.T) {
	cases := []struct {
		name     string
		kind     string
		actor    string
		message  string
		metadata string
		wantErr  string
	}{
		{"valid", "handoff_created", "agent-1", "msg", `{"k":"v"}`, ""},
		{"valid no metadata", "handoff_created", "agent-1", "msg", "", ""},
		{"missing kind", "", "agent-1", "msg", "", "kind is required"},
		{"missing actor", "k", "", "msg", "", "actor is required"},
		{"missing message", "k", "agent-1", "", "", "message is required"},
		{"kind too long", strings.Repeat("k", 129), "agent-1", "msg", "", "exceeds max length"},
		{"metadata not json", "k", "agent-1", "msg", "{oops", "valid JSON"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := validateAuditEntry(tc.kind, tc.actor, tc.message, tc.metadata)
			if tc.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.wantErr)
			}
		})
	}
}

func TestInsertAuditTx_OrderedTrail(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	err := Transact(db, func(tx *sql.Tx) error {
		if _, err := InsertAuditTx(tx, "tenant-1", "first_thing", "agent-1",
			models.EntityHandoff, "hof_1", "first", ""); err != nil {
			return err
		}
		_, err := InsertAuditTx(tx, "tenant-1", "second_thing", "agent-2",
			models.EntityHandoff, "hof_1", "second", `{"detail":42}`)
		return err
	})
	require.NoError(t, err)

	trail, err := ListAuditForEntity(db, models.EntityHandoff, "hof_1")
	require.NoError(t, err)
	require.Len(t, trail, 2)

	assert.Equal(t, "first_thing", trail[0].Kind)
	assert.Equal(t, "second_thing", trail[1].Kind)
	assert.Greater(t, trail[1].ID, trail[0].ID, "audit ids are monotonic")
	assert.JSONEq(t, `{"detail":42}`, string(trail[1].Metadata))
	assert.Nil(t, trail[0].Metadata)

	count, err := CountAuditForEntity(db, models.EntityHandoff, "hof_1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestInsertAuditTx_RollsBackWithTransition(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	err := Transact(db, func(tx *sql.Tx) error {
		if _, err := InsertAuditTx(tx, "tenant-1", "doomed", "agent-1",
			models.EntityHandoff, "hof_2", "never committed", ""); err != nil {
			return err
		}
		return assert.AnError
	})
	require.Error(t, err)

	count, err := CountAuditForEntity(db, models.EntityHandoff, "hof_2")
	require.NoError(t, err)
	assert.Zero(t, count)
}
