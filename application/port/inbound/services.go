package inbound

import (
	"context"

	"github.com/fixora/condoguard/domain/entity"
)

// RequestMeta is the request context copied onto every audit entry.
type RequestMeta struct {
	UserID        string
	IPAddress     string
	UserAgent     string
	CorrelationID string
	RequestID     string
	SessionID     string
}

// Apply copies the non-empty fields of m onto p without overwriting values p already has.
func (m RequestMeta) Apply(p *entity.AuditLogParams) {
	if p.UserID == "" {
		p.UserID = m.UserID
	}
	if p.IPAddress == "" {
		p.IPAddress = m.IPAddress
	}
	if p.UserAgent == "" {
		p.UserAgent = m.UserAgent
	}
	if p.CorrelationID == "" {
		p.CorrelationID = m.CorrelationID
	}
	if p.RequestID == "" {
		p.RequestID = m.RequestID
	}
	if p.SessionID == "" {
		p.SessionID = m.SessionID
	}
}

// AuditLogger is the write side of the audit trail. Every method is
// fire-and-forget: it returns once the entry is queued or dropped and never
// reports storage failures to the caller.
type AuditLogger interface {
	Log(ctx context.Context, params entity.AuditLogParams)
	LogSecurityEvent(ctx context.Context, action entity.SecurityAction, riskScore int, meta RequestMeta, details map[string]interface{})
	LogAuthentication(ctx context.Context, action string, outcome entity.Outcome, meta RequestMeta, details map[string]interface{})
	LogAuthorization(ctx context.Context, action string, outcome entity.Outcome, meta RequestMeta, details map[string]interface{})
	LogPayment(ctx context.Context, action, paymentRef string, outcome entity.Outcome, meta RequestMeta, details map[string]interface{})
	LogAdminAction(ctx context.Context, action, adminID, entityType, entityID string, meta RequestMeta, details map[string]interface{})
	LogDataChange(ctx context.Context, action, entityType, entityID string, previous, next map[string]interface{}, meta RequestMeta)
	LogUserAction(ctx context.Context, action string, outcome entity.Outcome, meta RequestMeta, details map[string]interface{})
	LogSystemEvent(ctx context.Context, action string, outcome entity.Outcome, meta RequestMeta, details map[string]interface{})

	// RecordLoginFailure counts consecutive failures per identifier and raises
	// brute_force_attempt once the threshold is reached. It returns the
	// current streak.
	RecordLoginFailure(ctx context.Context, identifier string, meta RequestMeta) int
	// RecordLoginSuccess clears the failure streak for identifier.
	RecordLoginSuccess(ctx context.Context, identifier string, meta RequestMeta)
	// RecentFailures returns the current failure streak for identifier.
	RecentFailures(identifier string) int
}

// AuditQuery is the read side used by admin tooling.
type AuditQuery interface {
	GetAuditLogs(ctx context.Context, filter entity.AuditLogFilter) ([]*entity.AuditLogEntry, error)
	GetAuditLogStats(ctx context.Context, filter entity.AuditLogFilter) (*entity.AuditLogStats, error)
	GetSecurityInsights(ctx context.Context, timeRange entity.TimeRange) (*entity.SecurityInsights, error)
}

// AuditService combines both sides.
type AuditService interface {
	AuditLogger
	AuditQuery
}
