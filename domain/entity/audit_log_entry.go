package entity

import (
	"errors"
	"fmt"
	"time"
)

// AuditType is the closed set of audit entry categories.
type AuditType string

const (
	AuditTypeUserAction     AuditType = "user_action"
	AuditTypeSystemEvent    AuditType = "system_event"
	AuditTypeSecurityEvent  AuditType = "security_event"
	AuditTypeDataChange     AuditType = "data_change"
	AuditTypeAuthentication AuditType = "authentication"
	AuditTypeAuthorization  AuditType = "authorization"
	AuditTypePayment        AuditType = "payment"
	AuditTypeAdminAction    AuditType = "admin_action"
)

// Valid reports whether t is one of the known audit types.
func (t AuditType) Valid() bool {
	switch t {
	case AuditTypeUserAction, AuditTypeSystemEvent, AuditTypeSecurityEvent, AuditTypeDataChange,
		AuditTypeAuthentication, AuditTypeAuthorization, AuditTypePayment, AuditTypeAdminAction:
		return true
	}
	return false
}

// SecurityAction enumerates the actions allowed on security_event entries.
type SecurityAction string

const (
	ActionRateLimitExceeded   SecurityAction = "rate_limit_exceeded"
	ActionSuspiciousActivity  SecurityAction = "suspicious_activity"
	ActionMaliciousRequest    SecurityAction = "malicious_request"
	ActionBruteForceAttempt   SecurityAction = "brute_force_attempt"
	ActionSQLInjectionAttempt SecurityAction = "sql_injection_attempt"
	ActionXSSAttempt          SecurityAction = "xss_attempt"
	ActionUnauthorizedAccess  SecurityAction = "unauthorized_access"
	ActionDataBreachAttempt   SecurityAction = "data_breach_attempt"
)

// Valid reports whether a is a known security action.
func (a SecurityAction) Valid() bool {
	switch a {
	case ActionRateLimitExceeded, ActionSuspiciousActivity, ActionMaliciousRequest, ActionBruteForceAttempt,
		ActionSQLInjectionAttempt, ActionXSSAttempt, ActionUnauthorizedAccess, ActionDataBreachAttempt:
		return true
	}
	return false
}

// Actions used by the request inspector outside of security events.
const (
	ActionHTTPRequest = "http_request"
	ActionSlowRequest = "slow_request"
)

// Severity of an audit entry.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

func (s Severity) Valid() bool {
	switch s {
	case SeverityInfo, SeverityWarning, SeverityError, SeverityCritical:
		return true
	}
	return false
}

// Outcome of the audited action.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomePartial Outcome = "partial"
)

func (o Outcome) Valid() bool {
	switch o {
	case OutcomeSuccess, OutcomeFailure, OutcomePartial:
		return true
	}
	return false
}

const (
	MinRiskScore = 0
	MaxRiskScore = 100
)

// ErrInvalidAuditEntry is returned when an entry fails construction-time validation.
var ErrInvalidAuditEntry = errors.New("invalid audit entry")

// AuditLogEntry is an immutable audit record. ID and Timestamp are assigned by the
// store at write time.
type AuditLogEntry struct {
	ID             string                 `json:"id" db:"id"`
	Type           AuditType              `json:"type" db:"type"`
	Action         string                 `json:"action" db:"action"`
	Severity       Severity               `json:"severity" db:"severity"`
	Outcome        Outcome                `json:"outcome" db:"outcome"`
	RiskScore      *int                   `json:"riskScore,omitempty" db:"risk_score"`
	UserID         string                 `json:"userId,omitempty" db:"user_id"`
	EntityID       string                 `json:"entityId,omitempty" db:"entity_id"`
	EntityType     string                 `json:"entityType,omitempty" db:"entity_type"`
	IPAddress      string                 `json:"ipAddress,omitempty" db:"ip_address"`
	UserAgent      string                 `json:"userAgent,omitempty" db:"user_agent"`
	CorrelationID  string                 `json:"correlationId,omitempty" db:"correlation_id"`
	RequestID      string                 `json:"requestId,omitempty" db:"request_id"`
	SessionID      string                 `json:"sessionId,omitempty" db:"session_id"`
	Details        map[string]interface{} `json:"details,omitempty" db:"-"`
	PreviousValues map[string]interface{} `json:"previousValues,omitempty" db:"-"`
	NewValues      map[string]interface{} `json:"newValues,omitempty" db:"-"`
	Timestamp      time.Time              `json:"timestamp" db:"timestamp"`
}

// AuditLogParams carries everything a caller may set on a new entry.
type AuditLogParams struct {
	Type             AuditType
	Action           string
	Outcome          Outcome
	SeverityOverride Severity
	RiskScore        *int
	UserID           string
	EntityID         string
	EntityType       string
	IPAddress        string
	UserAgent        string
	CorrelationID    string
	RequestID        string
	SessionID        string
	Details          map[string]interface{}
	PreviousValues   map[string]interface{}
	NewValues        map[string]interface{}
}

// NewAuditLogEntry validates params for the requested variant and builds an entry
// with a derived severity.
func NewAuditLogEntry(p AuditLogParams) (*AuditLogEntry, error) {
	if !p.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidAuditEntry, p.Type)
	}
	if p.Action == "" {
		return nil, fmt.Errorf("%w: action is required", ErrInvalidAuditEntry)
	}
	if p.Outcome == "" {
		p.Outcome = OutcomeSuccess
	}
	if !p.Outcome.Valid() {
		return nil, fmt.Errorf("%w: unknown outcome %q", ErrInvalidAuditEntry, p.Outcome)
	}
	if p.RiskScore != nil && (*p.RiskScore < MinRiskScore || *p.RiskScore > MaxRiskScore) {
		return nil, fmt.Errorf("%w: risk score %d out of range", ErrInvalidAuditEntry, *p.RiskScore)
	}
	if p.SeverityOverride != "" && !p.SeverityOverride.Valid() {
		return nil, fmt.Errorf("%w: unknown severity %q", ErrInvalidAuditEntry, p.SeverityOverride)
	}

	switch p.Type {
	case AuditTypeSecurityEvent:
		if !SecurityAction(p.Action).Valid() {
			return nil, fmt.Errorf("%w: unknown security action %q", ErrInvalidAuditEntry, p.Action)
		}
		if p.RiskScore == nil {
			return nil, fmt.Errorf("%w: security events require a risk score", ErrInvalidAuditEntry)
		}
	case AuditTypeDataChange:
		if p.EntityType == "" || p.EntityID == "" {
			return nil, fmt.Errorf("%w: data changes require entity type and id", ErrInvalidAuditEntry)
		}
	case AuditTypePayment:
		if p.EntityID == "" {
			return nil, fmt.Errorf("%w: payment events require a payment reference", ErrInvalidAuditEntry)
		}
	case AuditTypeAdminAction:
		if p.UserID == "" {
			return nil, fmt.Errorf("%w: admin actions require the acting user", ErrInvalidAuditEntry)
		}
	}

	severity := p.SeverityOverride
	if severity == "" {
		severity = DeriveSeverity(p.Type, p.Action, p.Outcome)
	}

	return &AuditLogEntry{
		Type:           p.Type,
		Action:         p.Action,
		Severity:       severity,
		Outcome:        p.Outcome,
		RiskScore:      p.RiskScore,
		UserID:         p.UserID,
		EntityID:       p.EntityID,
		EntityType:     p.EntityType,
		IPAddress:      p.IPAddress,
		UserAgent:      p.UserAgent,
		CorrelationID:  p.CorrelationID,
		RequestID:      p.RequestID,
		SessionID:      p.SessionID,
		Details:        p.Details,
		PreviousValues: p.PreviousValues,
		NewValues:      p.NewValues,
	}, nil
}

// DeriveSeverity maps a type/action/outcome triple to a severity.
func DeriveSeverity(t AuditType, action string, outcome Outcome) Severity {
	switch t {
	case AuditTypeSecurityEvent:
		switch SecurityAction(action) {
		case ActionSQLInjectionAttempt, ActionDataBreachAttempt:
			return SeverityCritical
		case ActionXSSAttempt, ActionBruteForceAttempt, ActionUnauthorizedAccess:
			return SeverityError
		default:
			return SeverityWarning
		}
	case AuditTypeSystemEvent:
		if action == ActionSlowRequest {
			return SeverityWarning
		}
		if outcome == OutcomeFailure {
			return SeverityError
		}
	case AuditTypePayment:
		switch outcome {
		case OutcomeFailure:
			return SeverityError
		case OutcomePartial:
			return SeverityWarning
		}
	case AuditTypeAuthentication, AuditTypeAuthorization, AuditTypeUserAction, AuditTypeAdminAction:
		if outcome == OutcomeFailure {
			return SeverityWarning
		}
	}
	return SeverityInfo
}

// Clone returns a copy that shares no top-level maps with e.
func (e *AuditLogEntry) Clone() *AuditLogEntry {
	c := *e
	if e.RiskScore != nil {
		score := *e.RiskScore
		c.RiskScore = &score
	}
	c.Details = copyMap(e.Details)
	c.PreviousValues = copyMap(e.PreviousValues)
	c.NewValues = copyMap(e.NewValues)
	return &c
}

func copyMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Score returns a pointer to a clamped risk score.
func Score(v int) *int {
	if v < MinRiskScore {
		v = MinRiskScore
	}
	if v > MaxRiskScore {
		v = MaxRiskScore
	}
	return &v
}
