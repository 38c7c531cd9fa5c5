package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/fixora/condoguard/application/port/inbound"
	"github.com/fixora/condoguard/application/port/outbound"
	"github.com/fixora/condoguard/application/security/risk"
	"github.com/fixora/condoguard/application/security/sanitizer"
	"github.com/fixora/condoguard/domain/entity"
	domainerror "github.com/fixora/condoguard/domain/error"
)

const (
	BruteForceThreshold = 5
	bruteForceWindow    = 15 * time.Minute
	bruteForceBaseRisk  = 50
	maxTrackedLogins    = 10000

	ActionLoginFailure = "login_failure"
	ActionLoginSuccess = "login_success"
)

// AuditUsecase implements inbound.AuditService on top of an append-only
// repository and an AuditDispatcher.
type AuditUsecase struct {
	repo       outbound.AuditLogRepository
	dispatcher *AuditDispatcher
	fallback   outbound.AuditFallback
	now        func() time.Time

	loginMu       sync.Mutex
	loginFailures map[string]loginStreak
	maxLogins     int
}

type loginStreak struct {
	count int
	last  time.Time
}

var _ inbound.AuditService = (*AuditUsecase)(nil)

func NewAuditUsecase(repo outbound.AuditLogRepository, dispatcher *AuditDispatcher, fallback outbound.AuditFallback) *AuditUsecase {
	return &AuditUsecase{
		repo:          repo,
		dispatcher:    dispatcher,
		fallback:      fallback,
		now:           time.Now,
		loginFailures: make(map[string]loginStreak),
		maxLogins:     maxTrackedLogins,
	}
}

// Log validates, redacts and queues an entry. Failures are routed to the
// fallback sink and never returned.
func (uc *AuditUsecase) Log(ctx context.Context, params entity.AuditLogParams) {
	defer func() {
		if r := recover(); r != nil {
			uc.fallback.Record(ctx, nil, ReasonLoggerRecovery, fmt.Errorf("panic: %v", r))
		}
	}()

	params.Details = redactPayload(params.Details)
	params.PreviousValues = redactPayload(params.PreviousValues)
	params.NewValues = redactPayload(params.NewValues)

	entry, err := entity.NewAuditLogEntry(params)
	if err != nil {
		uc.fallback.Record(ctx, nil, ReasonInvalidEntry, fmt.Errorf("%s/%s: %w", params.Type, params.Action, err))
		return
	}
	uc.dispatcher.Enqueue(ctx, entry)
}

// redactPayload normalizes structs and typed maps to plain JSON values so
// redaction sees every key, then redacts and drops NUL characters.
func redactPayload(m map[string]interface{}) map[string]interface{} {
	if len(m) == 0 {
		return nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return map[string]interface{}{"error": "payload not serializable"}
	}
	var plain map[string]interface{}
	if err := json.Unmarshal(raw, &plain); err != nil {
		return map[string]interface{}{"error": "payload not serializable"}
	}
	clean, _ := sanitizer.StripNUL(sanitizer.RedactMap(plain)).(map[string]interface{})
	return clean
}

func (uc *AuditUsecase) LogSecurityEvent(ctx context.Context, action entity.SecurityAction, riskScore int, meta inbound.RequestMeta, details map[string]interface{}) {
	p := entity.AuditLogParams{
		Type:      entity.AuditTypeSecurityEvent,
		Action:    string(action),
		Outcome:   entity.OutcomeFailure,
		RiskScore: entity.Score(riskScore),
		Details:   details,
	}
	meta.Apply(&p)
	uc.Log(ctx, p)
}

func (uc *AuditUsecase) LogAuthentication(ctx context.Context, action string, outcome entity.Outcome, meta inbound.RequestMeta, details map[string]interface{}) {
	p := entity.AuditLogParams{Type: entity.AuditTypeAuthentication, Action: action, Outcome: outcome, Details: details}
	meta.Apply(&p)
	uc.Log(ctx, p)
}

func (uc *AuditUsecase) LogAuthorization(ctx context.Context, action string, outcome entity.Outcome, meta inbound.RequestMeta, details map[string]interface{}) {
	p := entity.AuditLogParams{Type: entity.AuditTypeAuthorization, Action: action, Outcome: outcome, Details: details}
	meta.Apply(&p)
	uc.Log(ctx, p)
}

func (uc *AuditUsecase) LogPayment(ctx context.Context, action, paymentRef string, outcome entity.Outcome, meta inbound.RequestMeta, details map[string]interface{}) {
	p := entity.AuditLogParams{
		Type:       entity.AuditTypePayment,
		Action:     action,
		Outcome:    outcome,
		EntityType: "payment",
		EntityID:   paymentRef,
		Details:    details,
	}
	meta.Apply(&p)
	uc.Log(ctx, p)
}

func (uc *AuditUsecase) LogAdminAction(ctx context.Context, action, adminID, entityType, entityID string, meta inbound.RequestMeta, details map[string]interface{}) {
	p := entity.AuditLogParams{
		Type:       entity.AuditTypeAdminAction,
		Action:     action,
		UserID:     adminID,
		EntityType: entityType,
		EntityID:   entityID,
		Details:    details,
	}
	meta.Apply(&p)
	uc.Log(ctx, p)
}

func (uc *AuditUsecase) LogDataChange(ctx context.Context, action, entityType, entityID string, previous, next map[string]interface{}, meta inbound.RequestMeta) {
	p := entity.AuditLogParams{
		Type:           entity.AuditTypeDataChange,
		Action:         action,
		EntityType:     entityType,
		EntityID:       entityID,
		PreviousValues: previous,
		NewValues:      next,
	}
	meta.Apply(&p)
	uc.Log(ctx, p)
}

func (uc *AuditUsecase) LogUserAction(ctx context.Context, action string, outcome entity.Outcome, meta inbound.RequestMeta, details map[string]interface{}) {
	p := entity.AuditLogParams{Type: entity.AuditTypeUserAction, Action: action, Outcome: outcome, Details: details}
	meta.Apply(&p)
	uc.Log(ctx, p)
}

func (uc *AuditUsecase) LogSystemEvent(ctx context.Context, action string, outcome entity.Outcome, meta inbound.RequestMeta, details map[string]interface{}) {
	p := entity.AuditLogParams{Type: entity.AuditTypeSystemEvent, Action: action, Outcome: outcome, Details: details}
	meta.Apply(&p)
	uc.Log(ctx, p)
}

// evictLoginStreak makes room for one identifier. Expired streaks go first;
// otherwise the shortest streak is dropped, oldest first, so a flood of
// one-off identifiers cannot push out a streak that is building up.
// Callers hold loginMu.
func (uc *AuditUsecase) evictLoginStreak(now time.Time) {
	for id, s := range uc.loginFailures {
		if now.Sub(s.last) > bruteForceWindow {
			delete(uc.loginFailures, id)
		}
	}
	if len(uc.loginFailures) < uc.maxLogins {
		return
	}

	var (
		victim   string
		shortest loginStreak
		found    bool
	)
	for id, s := range uc.loginFailures {
		if !found || s.count < shortest.count || (s.count == shortest.count && s.last.Before(shortest.last)) {
			victim, shortest, found = id, s, true
		}
	}
	delete(uc.loginFailures, victim)
}

func (uc *AuditUsecase) RecordLoginFailure(ctx context.Context, identifier string, meta inbound.RequestMeta) int {
	now := uc.now()

	uc.loginMu.Lock()
	streak, tracked := uc.loginFailures[identifier]
	if !tracked && len(uc.loginFailures) >= uc.maxLogins {
		uc.evictLoginStreak(now)
	}
	if now.Sub(streak.last) > bruteForceWindow {
		streak.count = 0
	}
	streak.count++
	streak.last = now
	uc.loginFailures[identifier] = streak
	uc.loginMu.Unlock()

	uc.LogAuthentication(ctx, ActionLoginFailure, entity.OutcomeFailure, meta, map[string]interface{}{
		"identifier":          identifier,
		"consecutiveFailures": streak.count,
	})

	if streak.count >= BruteForceThreshold {
		score := bruteForceBaseRisk + risk.Score(risk.Signals{
			RecentFailures: streak.count,
			OffHours:       risk.IsOffHours(now),
		})
		uc.LogSecurityEvent(ctx, entity.ActionBruteForceAttempt, score, meta, map[string]interface{}{
			"identifier":          identifier,
			"consecutiveFailures": streak.count,
			"windowMinutes":       int(bruteForceWindow.Minutes()),
		})
	}
	return streak.count
}

func (uc *AuditUsecase) RecordLoginSuccess(ctx context.Context, identifier string, meta inbound.RequestMeta) {
	uc.loginMu.Lock()
	delete(uc.loginFailures, identifier)
	uc.loginMu.Unlock()

	uc.LogAuthentication(ctx, ActionLoginSuccess, entity.OutcomeSuccess, meta, map[string]interface{}{
		"identifier": identifier,
	})
}

func (uc *AuditUsecase) RecentFailures(identifier string) int {
	uc.loginMu.Lock()
	defer uc.loginMu.Unlock()

	streak, ok := uc.loginFailures[identifier]
	if !ok || uc.now().Sub(streak.last) > bruteForceWindow {
		return 0
	}
	return streak.count
}

func (uc *AuditUsecase) GetAuditLogs(ctx context.Context, filter entity.AuditLogFilter) ([]*entity.AuditLogEntry, error) {
	entries, err := uc.repo.List(ctx, filter.Normalize())
	if err != nil {
		return nil, domainerror.ErrDatabaseError("list audit logs", err)
	}
	return entries, nil
}

func (uc *AuditUsecase) GetAuditLogStats(ctx context.Context, filter entity.AuditLogFilter) (*entity.AuditLogStats, error) {
	stats, err := uc.repo.Stats(ctx, filter)
	if err != nil {
		return nil, domainerror.ErrDatabaseError("audit log stats", err)
	}
	return stats, nil
}

func (uc *AuditUsecase) GetSecurityInsights(ctx context.Context, timeRange entity.TimeRange) (*entity.SecurityInsights, error) {
	if timeRange == "" {
		timeRange = entity.TimeRangeDay
	}
	start := uc.now().Add(-timeRange.Duration())

	agg := newInsightsAggregator()
	err := uc.repo.Walk(ctx, entity.AuditLogFilter{StartDate: &start}, func(e *entity.AuditLogEntry) error {
		agg.add(e)
		return nil
	})
	if err != nil {
		return nil, domainerror.ErrDatabaseError("security insights", err)
	}
	return agg.result(timeRange), nil
}
