package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/fixora/condoguard/application/port/outbound"
	"github.com/fixora/condoguard/application/security/sanitizer"
	"github.com/fixora/condoguard/domain/entity"
)

// AuditLogSchema creates the append-only audit table. seq orders entries
// written within the same clock tick.
const AuditLogSchema = `
CREATE TABLE IF NOT EXISTS audit_logs (
	seq             BIGSERIAL PRIMARY KEY,
	id              UUID NOT NULL UNIQUE,
	type            TEXT NOT NULL,
	action          TEXT NOT NULL,
	severity        TEXT NOT NULL,
	outcome         TEXT NOT NULL,
	risk_score      SMALLINT CHECK (risk_score BETWEEN 0 AND 100),
	user_id         TEXT,
	entity_id       TEXT,
	entity_type     TEXT,
	ip_address      TEXT,
	user_agent      TEXT,
	correlation_id  TEXT,
	request_id      TEXT,
	session_id      TEXT,
	details         JSONB,
	previous_values JSONB,
	new_values      JSONB,
	timestamp       TIMESTAMPTZ NOT NULL DEFAULT clock_timestamp()
);
CREATE INDEX IF NOT EXISTS idx_audit_logs_timestamp ON audit_logs (timestamp DESC, seq DESC);
CREATE INDEX IF NOT EXISTS idx_audit_logs_type_action ON audit_logs (type, action);
CREATE INDEX IF NOT EXISTS idx_audit_logs_user_id ON audit_logs (user_id);
`

const auditColumns = `id, type, action, severity, outcome, risk_score, user_id, entity_id, entity_type,
	ip_address, user_agent, correlation_id, request_id, session_id, details, previous_values, new_values, timestamp`

type AuditLogRepository struct {
	db *sqlx.DB
}

var _ outbound.AuditLogRepository = (*AuditLogRepository)(nil)

// Connect opens a pooled connection to PostgreSQL.
func Connect(dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}

func NewAuditLogRepository(db *sqlx.DB) *AuditLogRepository {
	return &AuditLogRepository{db: db}
}

// Migrate creates the audit table and its indexes if they do not exist.
func (r *AuditLogRepository) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, AuditLogSchema); err != nil {
		return fmt.Errorf("migrate audit_logs: %w", err)
	}
	return nil
}

// auditRow is the nullable storage shape of an entry.
type auditRow struct {
	ID             string         `db:"id"`
	Type           string         `db:"type"`
	Action         string         `db:"action"`
	Severity       string         `db:"severity"`
	Outcome        string         `db:"outcome"`
	RiskScore      sql.NullInt64  `db:"risk_score"`
	UserID         sql.NullString `db:"user_id"`
	EntityID       sql.NullString `db:"entity_id"`
	EntityType     sql.NullString `db:"entity_type"`
	IPAddress      sql.NullString `db:"ip_address"`
	UserAgent      sql.NullString `db:"user_agent"`
	CorrelationID  sql.NullString `db:"correlation_id"`
	RequestID      sql.NullString `db:"request_id"`
	SessionID      sql.NullString `db:"session_id"`
	Details        []byte         `db:"details"`
	PreviousValues []byte         `db:"previous_values"`
	NewValues      []byte         `db:"new_values"`
	Timestamp      time.Time      `db:"timestamp"`
}

func (row *auditRow) toEntity() (*entity.AuditLogEntry, error) {
	e := &entity.AuditLogEntry{
		ID:            row.ID,
		Type:          entity.AuditType(row.Type),
		Action:        row.Action,
		Severity:      entity.Severity(row.Severity),
		Outcome:       entity.Outcome(row.Outcome),
		UserID:        row.UserID.String,
		EntityID:      row.EntityID.String,
		EntityType:    row.EntityType.String,
		IPAddress:     row.IPAddress.String,
		UserAgent:     row.UserAgent.String,
		CorrelationID: row.CorrelationID.String,
		RequestID:     row.RequestID.String,
		SessionID:     row.SessionID.String,
		Timestamp:     row.Timestamp.UTC(),
	}
	if row.RiskScore.Valid {
		e.RiskScore = entity.Score(int(row.RiskScore.Int64))
	}

	var err error
	if e.Details, err = decodeJSONB(row.Details); err != nil {
		return nil, fmt.Errorf("entry %s details: %w", row.ID, err)
	}
	if e.PreviousValues, err = decodeJSONB(row.PreviousValues); err != nil {
		return nil, fmt.Errorf("entry %s previous values: %w", row.ID, err)
	}
	if e.NewValues, err = decodeJSONB(row.NewValues); err != nil {
		return nil, fmt.Errorf("entry %s new values: %w", row.ID, err)
	}
	return e, nil
}

func encodeJSONB(m map[string]interface{}) (interface{}, error) {
	if len(m) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(sanitizer.StripNUL(m))
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

func decodeJSONB(raw []byte) (map[string]interface{}, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// nullString maps "" to NULL. NUL characters are dropped; text columns reject them.
func nullString(s string) sql.NullString {
	s = strings.ReplaceAll(s, "\x00", "")
	return sql.NullString{String: s, Valid: s != ""}
}

// Append inserts entry and sets its ID and Timestamp. The timestamp comes
// from the database clock.
func (r *AuditLogRepository) Append(ctx context.Context, entry *entity.AuditLogEntry) error {
	if entry == nil {
		return fmt.Errorf("audit entry cannot be nil")
	}

	details, err := encodeJSONB(entry.Details)
	if err != nil {
		return fmt.Errorf("encode details: %w", err)
	}
	previous, err := encodeJSONB(entry.PreviousValues)
	if err != nil {
		return fmt.Errorf("encode previous values: %w", err)
	}
	next, err := encodeJSONB(entry.NewValues)
	if err != nil {
		return fmt.Errorf("encode new values: %w", err)
	}

	var risk sql.NullInt64
	if entry.RiskScore != nil {
		risk = sql.NullInt64{Int64: int64(*entry.RiskScore), Valid: true}
	}

	id := uuid.New().String()
	query := `
		INSERT INTO audit_logs (id, type, action, severity, outcome, risk_score, user_id, entity_id, entity_type,
			ip_address, user_agent, correlation_id, request_id, session_id, details, previous_values, new_values)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		RETURNING timestamp
	`

	var ts time.Time
	err = r.db.QueryRowxContext(ctx, query,
		id,
		string(entry.Type),
		entry.Action,
		string(entry.Severity),
		string(entry.Outcome),
		risk,
		nullString(entry.UserID),
		nullString(entry.EntityID),
		nullString(entry.EntityType),
		nullString(entry.IPAddress),
		nullString(entry.UserAgent),
		nullString(entry.CorrelationID),
		nullString(entry.RequestID),
		nullString(entry.SessionID),
		details,
		previous,
		next,
	).Scan(&ts)
	if err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}

	entry.ID = id
	entry.Timestamp = ts.UTC()
	return nil
}

// whereClause renders the filter criteria as a WHERE clause with positional
// arguments. Limit and offset are not included.
func whereClause(f entity.AuditLogFilter) (string, []interface{}) {
	var (
		conds []string
		args  []interface{}
	)
	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.Type != "" {
		add("type = $%d", string(f.Type))
	}
	if f.Action != "" {
		add("action = $%d", f.Action)
	}
	if f.UserID != "" {
		add("user_id = $%d", f.UserID)
	}
	if f.EntityType != "" {
		add("entity_type = $%d", f.EntityType)
	}
	if f.Severity != "" {
		add("severity = $%d", string(f.Severity))
	}
	if f.StartDate != nil {
		add("timestamp >= $%d", *f.StartDate)
	}
	if f.EndDate != nil {
		add("timestamp <= $%d", *f.EndDate)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (r *AuditLogRepository) List(ctx context.Context, filter entity.AuditLogFilter) ([]*entity.AuditLogEntry, error) {
	filter = filter.Normalize()
	where, args := whereClause(filter)
	args = append(args, filter.Limit, filter.Offset)

	query := fmt.Sprintf(`SELECT %s FROM audit_logs%s ORDER BY timestamp DESC, seq DESC LIMIT $%d OFFSET $%d`,
		auditColumns, where, len(args)-1, len(args))

	var rows []auditRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}

	entries := make([]*entity.AuditLogEntry, 0, len(rows))
	for i := range rows {
		e, err := rows[i].toEntity()
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (r *AuditLogRepository) Stats(ctx context.Context, filter entity.AuditLogFilter) (*entity.AuditLogStats, error) {
	where, args := whereClause(filter)
	query := fmt.Sprintf(`SELECT type, severity, action, COUNT(*) AS n FROM audit_logs%s GROUP BY type, severity, action`, where)

	var groups []struct {
		Type     string `db:"type"`
		Severity string `db:"severity"`
		Action   string `db:"action"`
		N        int    `db:"n"`
	}
	if err := r.db.SelectContext(ctx, &groups, query, args...); err != nil {
		return nil, fmt.Errorf("failed to aggregate audit entries: %w", err)
	}

	stats := entity.NewAuditLogStats()
	for _, g := range groups {
		stats.Total += g.N
		stats.ByType[g.Type] += g.N
		stats.BySeverity[g.Severity] += g.N
		stats.ByAction[g.Action] += g.N
	}
	return stats, nil
}

// Walk streams matching entries newest first without loading them all.
func (r *AuditLogRepository) Walk(ctx context.Context, filter entity.AuditLogFilter, fn func(*entity.AuditLogEntry) error) error {
	where, args := whereClause(filter)
	query := fmt.Sprintf(`SELECT %s FROM audit_logs%s ORDER BY timestamp DESC, seq DESC`, auditColumns, where)

	rows, err := r.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to walk audit entries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var row auditRow
		if err := rows.StructScan(&row); err != nil {
			return fmt.Errorf("failed to scan audit entry: %w", err)
		}
		e, err := row.toEntity()
		if err != nil {
			return err
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return rows.Err()
}
