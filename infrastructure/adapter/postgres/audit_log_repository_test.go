package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fixora/condoguard/domain/entity"
)

func TestWhereClause(t *testing.T) {
	start := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	where, args := whereClause(entity.AuditLogFilter{})
	assert.Empty(t, where)
	assert.Empty(t, args)

	where, args = whereClause(entity.AuditLogFilter{
		Type:      entity.AuditTypeSecurityEvent,
		UserID:    "u-1",
		StartDate: &start,
		Limit:     10,
	})
	assert.Equal(t, " WHERE type = $1 AND user_id = $2 AND timestamp >= $3", where)
	assert.Equal(t, []interface{}{"security_event", "u-1", start}, args)
}

func TestJSONBRoundTrip(t *testing.T) {
	raw, err := encodeJSONB(nil)
	require.NoError(t, err)
	assert.Nil(t, raw)

	raw, err = encodeJSONB(map[string]interface{}{"route": "/v1/payments", "count": 3})
	require.NoError(t, err)

	m, err := decodeJSONB([]byte(raw.(string)))
	require.NoError(t, err)
	assert.Equal(t, "/v1/payments", m["route"])
	assert.Equal(t, float64(3), m["count"])

	raw, err = encodeJSONB(map[string]interface{}{"payload": map[string]interface{}{"name": "x\x00--"}})
	require.NoError(t, err)
	assert.NotContains(t, raw.(string), `\u0000`)
}

func TestNullString_DropsNUL(t *testing.T) {
	assert.Equal(t, "curl", nullString("cu\x00rl").String)
	assert.False(t, nullString("\x00").Valid)
	assert.False(t, nullString("").Valid)
}

func newIntegrationRepo(t *testing.T) *AuditLogRepository {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	db, err := Connect(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	repo := NewAuditLogRepository(db)
	require.NoError(t, repo.Migrate(context.Background()))
	_, err = db.Exec(`TRUNCATE audit_logs`)
	require.NoError(t, err)
	return repo
}

func TestAuditLogRepository_Integration(t *testing.T) {
	repo := newIntegrationRepo(t)
	ctx := context.Background()

	first, err := entity.NewAuditLogEntry(entity.AuditLogParams{
		Type:      entity.AuditTypeSecurityEvent,
		Action:    string(entity.ActionSQLInjectionAttempt),
		RiskScore: entity.Score(85),
		IPAddress: "203.0.113.9",
		Details:   map[string]interface{}{"field": "name"},
	})
	require.NoError(t, err)
	second, err := entity.NewAuditLogEntry(entity.AuditLogParams{
		Type:    entity.AuditTypeUserAction,
		Action:  entity.ActionHTTPRequest,
		Outcome: entity.OutcomeSuccess,
		UserID:  "resident-7",
	})
	require.NoError(t, err)

	require.NoError(t, repo.Append(ctx, first))
	require.NoError(t, repo.Append(ctx, second))
	assert.NotEmpty(t, first.ID)
	assert.False(t, first.Timestamp.IsZero())

	all, err := repo.List(ctx, entity.AuditLogFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, second.ID, all[0].ID)
	assert.Equal(t, 85, *all[1].RiskScore)
	assert.Equal(t, "name", all[1].Details["field"])
	assert.Empty(t, all[0].IPAddress)

	filtered, err := repo.List(ctx, entity.AuditLogFilter{Type: entity.AuditTypeSecurityEvent})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, first.ID, filtered[0].ID)

	stats, err := repo.Stats(ctx, entity.AuditLogFilter{})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.ByType["security_event"])
	assert.Equal(t, 1, stats.BySeverity["critical"])

	var walked []string
	require.NoError(t, repo.Walk(ctx, entity.AuditLogFilter{}, func(e *entity.AuditLogEntry) error {
		walked = append(walked, e.ID)
		return nil
	}))
	assert.Equal(t, []string{second.ID, first.ID}, walked)
}
