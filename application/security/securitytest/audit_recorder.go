// Package securitytest provides an in-memory audit logger for tests of the
// security stages and HTTP middleware.
package securitytest

import (
	"context"
	"sync"

	"github.com/fixora/condoguard/application/port/inbound"
	"github.com/fixora/condoguard/domain/entity"
)

// Record is one captured audit call.
type Record struct {
	Type      entity.AuditType
	Action    string
	Outcome   entity.Outcome
	RiskScore *int
	Meta      inbound.RequestMeta
	Details   map[string]interface{}
}

// AuditRecorder implements inbound.AuditLogger and keeps every call in memory.
type AuditRecorder struct {
	mu       sync.Mutex
	records  []Record
	failures map[string]int
}

var _ inbound.AuditLogger = (*AuditRecorder)(nil)

func NewAuditRecorder() *AuditRecorder {
	return &AuditRecorder{failures: map[string]int{}}
}

func (r *AuditRecorder) add(rec Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
}

// Records returns a copy of all captured calls.
func (r *AuditRecorder) Records() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Record(nil), r.records...)
}

// ByAction returns captured calls with the given action.
func (r *AuditRecorder) ByAction(action string) []Record {
	var out []Record
	for _, rec := range r.Records() {
		if rec.Action == action {
			out = append(out, rec)
		}
	}
	return out
}

func (r *AuditRecorder) Log(_ context.Context, p entity.AuditLogParams) {
	r.add(Record{Type: p.Type, Action: p.Action, Outcome: p.Outcome, RiskScore: p.RiskScore, Details: p.Details, Meta: inbound.RequestMeta{
		UserID: p.UserID, IPAddress: p.IPAddress, UserAgent: p.UserAgent,
		CorrelationID: p.CorrelationID, RequestID: p.RequestID, SessionID: p.SessionID,
	}})
}

func (r *AuditRecorder) LogSecurityEvent(_ context.Context, action entity.SecurityAction, riskScore int, meta inbound.RequestMeta, details map[string]interface{}) {
	r.add(Record{Type: entity.AuditTypeSecurityEvent, Action: string(action), Outcome: entity.OutcomeFailure, RiskScore: entity.Score(riskScore), Meta: meta, Details: details})
}

func (r *AuditRecorder) LogAuthentication(_ context.Context, action string, outcome entity.Outcome, meta inbound.RequestMeta, details map[string]interface{}) {
	r.add(Record{Type: entity.AuditTypeAuthentication, Action: action, Outcome: outcome, Meta: meta, Details: details})
}

func (r *AuditRecorder) LogAuthorization(_ context.Context, action string, outcome entity.Outcome, meta inbound.RequestMeta, details map[string]interface{}) {
	r.add(Record{Type: entity.AuditTypeAuthorization, Action: action, Outcome: outcome, Meta: meta, Details: details})
}

func (r *AuditRecorder) LogPayment(_ context.Context, action, _ string, outcome entity.Outcome, meta inbound.RequestMeta, details map[string]interface{}) {
	r.add(Record{Type: entity.AuditTypePayment, Action: action, Outcome: outcome, Meta: meta, Details: details})
}

func (r *AuditRecorder) LogAdminAction(_ context.Context, action, _, _, _ string, meta inbound.RequestMeta, details map[string]interface{}) {
	r.add(Record{Type: entity.AuditTypeAdminAction, Action: action, Outcome: entity.OutcomeSuccess, Meta: meta, Details: details})
}

func (r *AuditRecorder) LogDataChange(_ context.Context, action, _, _ string, _, _ map[string]interface{}, meta inbound.RequestMeta) {
	r.add(Record{Type: entity.AuditTypeDataChange, Action: action, Outcome: entity.OutcomeSuccess, Meta: meta})
}

func (r *AuditRecorder) LogUserAction(_ context.Context, action string, outcome entity.Outcome, meta inbound.RequestMeta, details map[string]interface{}) {
	r.add(Record{Type: entity.AuditTypeUserAction, Action: action, Outcome: outcome, Meta: meta, Details: details})
}

func (r *AuditRecorder) LogSystemEvent(_ context.Context, action string, outcome entity.Outcome, meta inbound.RequestMeta, details map[string]interface{}) {
	r.add(Record{Type: entity.AuditTypeSystemEvent, Action: action, Outcome: outcome, Meta: meta, Details: details})
}

func (r *AuditRecorder) RecordLoginFailure(_ context.Context, identifier string, _ inbound.RequestMeta) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[identifier]++
	return r.failures[identifier]
}

func (r *AuditRecorder) RecordLoginSuccess(_ context.Context, identifier string, _ inbound.RequestMeta) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.failures, identifier)
}

func (r *AuditRecorder) RecentFailures(identifier string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failures[identifier]
}
