package db

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEscalationRules_Ladder(t *testing.T) {
	require.NotEmpty(t, EscalationRules)
	assert.Equal(t, 0, EscalationRules[0].Level)

	for i := 1; i < len(EscalationRules); i++ {
		prev, cur := EscalationRules[i-1], EscalationRules[i]
		assert.Equal(t, prev.Level+1, cur.Level, "levels must be contiguous")
		assert.Greater(t, cur.DelayMinutes, prev.DelayMinutes, "delays must increase")
	}

	assert.Equal(t, []int{0, 30, 120, 240}, []int{
		EscalationRules[0].DelayMinutes, EscalationRules[1].DelayMinutes,
		EscalationRules[2].DelayMinutes, EscalationRules[3].DelayMinutes,
	})
	assert.Equal(t, 3, MaxEscalationLevel())

	rule, ok := RuleForLevel(2)
	require.True(t, ok)
	assert.Equal(t, TargetSupervisors, rule.Target)
	assert.True(t, rule.HasChannel(ChannelPush))
	assert.False(t, rule.HasChannel(ChannelEmail))

	_, ok = RuleForLevel(9)
	assert.False(t, ok)
}

func TestStore_ListUnattendedHotLeads(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	lastTouch := now.Add(-90 * time.Minute)

	rows := sqlmock.NewRows([]string{
		"id", "tenant_id", "full_name", "lead_score", "is_hot_lead",
		"pipeline_stage", "days_in_stage", "assigned_agent_id", "status", "last_interaction_at",
	}).
		AddRow("c-1", "tenant-1", "Ana Pérez", 92, true, "qualifying", 2, "tu-1", "active", lastTouch).
		AddRow("c-2", "tenant-1", "Luis Gómez", 88, true, "proposal", 1, nil, "active", nil)

	mock.ExpectQuery("SELECT .* FROM crm_contacts c").
		WithArgs("active", "won", "lost", now.Add(-time.Hour), string(EscalationTypeHotLead), now.Add(-2*time.Hour), 100).
		WillReturnRows(rows)

	got, err := store.ListUnattendedHotLeads(context.Background(), now.Add(-time.Hour), now.Add(-2*time.Hour), 100)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "tu-1", got[0].AssignedAgentID)
	require.NotNil(t, got[0].LastInteractionAt)
	assert.True(t, got[0].LastInteractionAt.Equal(lastTouch))
	assert.Empty(t, got[1].AssignedAgentID)
	assert.Nil(t, got[1].LastInteractionAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_ListStaleContacts(t *testing.T) {
	store, mock := newMockStore(t)
	since := time.Date(2026, 2, 26, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT .* FROM crm_contacts c").
		WithArgs("active", "won", "lost", 14, string(EscalationTypeStaleContact), since, 100).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "tenant_id", "full_name", "lead_score", "is_hot_lead",
			"pipeline_stage", "days_in_stage", "assigned_agent_id", "status", "last_interaction_at",
		}).AddRow("c-3", "tenant-1", "Marta Ruiz", 40, false, "negotiation", 21, nil, "active", nil))

	got, err := store.ListStaleContacts(context.Background(), 14, since, 100)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 21, got[0].DaysInStage)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_ListOverdueTasks(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	due := now.Add(-30 * time.Hour)

	mock.ExpectQuery("SELECT .* FROM crm_tasks t").
		WithArgs("pending", now.Add(-24*time.Hour), string(EscalationTypeOverdueTask), now.Add(-24*time.Hour), 100).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "tenant_id", "title", "contact_id", "assigned_to", "priority", "due_date", "status",
		}).AddRow("t-1", "tenant-1", "Enviar cotización", "c-1", "user-7", "high", due, "pending"))

	got, err := store.ListOverdueTasks(context.Background(), now.Add(-24*time.Hour), now.Add(-24*time.Hour), 100)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "user-7", got[0].AssignedTo)
	assert.True(t, got[0].DueDate.Equal(due))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_TenantUsers(t *testing.T) {
	t.Run("agent user found", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery("SELECT user_id FROM tenant_users").
			WithArgs("tu-1").
			WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow("user-1"))

		id, err := store.GetAgentUserID(context.Background(), "tu-1")
		require.NoError(t, err)
		assert.Equal(t, "user-1", id)
	})

	t.Run("agent user missing", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery("SELECT user_id FROM tenant_users").
			WithArgs("tu-x").
			WillReturnError(sql.ErrNoRows)

		_, err := store.GetAgentUserID(context.Background(), "tu-x")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("users by role", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery("SELECT DISTINCT tu.user_id").
			WithArgs("tenant-1", sqlmock.AnyArg(), 5).
			WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow("u-1").AddRow("u-2"))

		ids, err := store.ListUserIDsByRoles(context.Background(), "tenant-1", []string{RoleAgencyAdmin}, 5)
		require.NoError(t, err)
		assert.Equal(t, []string{"u-1", "u-2"}, ids)
	})

	t.Run("recipients skip empty input", func(t *testing.T) {
		store, mock := newMockStore(t)
		got, err := store.ListRecipients(context.Background(), nil)
		require.NoError(t, err)
		assert.Nil(t, got)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestStore_Devices(t *testing.T) {
	t.Run("list filtered by platform", func(t *testing.T) {
		store, mock := newMockStore(t)
		seen := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
		mock.ExpectQuery("SELECT .* FROM push_devices").
			WithArgs("user-1", "ios").
			WillReturnRows(sqlmock.NewRows([]string{
				"id", "user_id", "token", "platform", "app_version", "is_active", "created_at", "last_seen_at",
			}).AddRow("d-1", "user-1", "tok-1", "ios", "2.3.0", true, seen, seen))

		devices, err := store.ListActiveDevices(context.Background(), "user-1", PlatformIOS)
		require.NoError(t, err)
		require.Len(t, devices, 1)
		assert.Equal(t, "tok-1", devices[0].Token)
	})

	t.Run("upsert returns stored id", func(t *testing.T) {
		store, mock := newMockStore(t)
		created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		mock.ExpectQuery("INSERT INTO push_devices").
			WithArgs(sqlmock.AnyArg(), "user-1", "tok-1", "android", nil, sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow("d-existing", created))

		d := &PushDevice{UserID: "user-1", Token: "tok-1", Platform: PlatformAndroid}
		require.NoError(t, store.UpsertDevice(context.Background(), d))
		assert.Equal(t, "d-existing", d.ID)
		assert.True(t, d.CreatedAt.Equal(created))
		assert.True(t, d.IsActive)
	})

	t.Run("deactivate unknown device", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectExec("UPDATE push_devices SET is_active = false").
			WithArgs("d-9", "user-1").
			WillReturnResult(sqlmock.NewResult(0, 0))

		assert.ErrorIs(t, store.DeactivateDevice(context.Background(), "user-1", "d-9"), ErrNotFound)
	})

	t.Run("deactivate tokens no-op", func(t *testing.T) {
		store, mock := newMockStore(t)
		assert.NoError(t, store.DeactivateTokens(context.Background(), nil))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
