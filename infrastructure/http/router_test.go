package http

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fixora/condoguard/application/port/outbound"
	"github.com/fixora/condoguard/application/security/gate"
	"github.com/fixora/condoguard/application/security/ratelimit"
	"github.com/fixora/condoguard/application/security/threat"
	"github.com/fixora/condoguard/application/usecase"
	"github.com/fixora/condoguard/domain/entity"
	"github.com/fixora/condoguard/infrastructure/adapter/memory"
	"github.com/fixora/condoguard/infrastructure/config"
	"github.com/fixora/condoguard/infrastructure/http/middleware"
	jwtservice "github.com/fixora/condoguard/infrastructure/service/jwt"
	"github.com/fixora/condoguard/infrastructure/service/logger"
)

type stack struct {
	handler http.Handler
	repo    *memory.AuditLogRepository
	disp    *usecase.AuditDispatcher
	tokens  *jwtservice.JWTService
}

func newStack(t *testing.T, generalLimit int64) *stack {
	t.Helper()
	cfg := &config.Config{
		JWTSecret:      "router-test-secret-0123456789",
		JWTAlgorithm:   "HS256",
		AccessTokenTTL: time.Hour,
		MetricsPath:    "/metrics",
		MaxBodyBytes:   1 << 20,
	}
	log := logger.NewStructuredLogger(logger.LoggerConfig{Level: "error", Format: "json", ServiceName: "test", Output: io.Discard})
	fallback := logger.NewFallbackLog(log, 16)

	repo := memory.NewAuditLogRepository()
	disp := usecase.NewAuditDispatcher(repo, nil, fallback, nil, usecase.DispatcherConfig{Workers: 1})
	audit := usecase.NewAuditUsecase(repo, disp, fallback)

	tokens, err := jwtservice.NewJWTService(cfg)
	require.NoError(t, err)

	classes := ratelimit.DefaultClasses()
	classes[ratelimit.ClassGeneral] = ratelimit.RouteClass{Name: ratelimit.ClassGeneral, Limit: generalLimit, Window: time.Minute}
	limiter, err := ratelimit.NewLimiter(memory.NewCounterStore(), audit, classes, ratelimit.DefaultRules())
	require.NoError(t, err)

	detector := threat.NewDetector()
	h := NewRouter(cfg, Dependencies{
		Audit:     audit,
		Auth:      middleware.NewAuthMiddleware(tokens, audit, false),
		Security:  middleware.NewSecurityMiddleware(log, nil, cfg.MaxBodyBytes, false),
		Inspector: middleware.NewInspector(detector, audit, fallback, time.Minute, false),
		Gate:      gate.New(detector, audit, nil),
		Limiter:   limiter,
	})
	return &stack{handler: h, repo: repo, disp: disp, tokens: tokens}
}

func (s *stack) do(t *testing.T, method, target, role, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rdr)
	req.Header.Set("User-Agent", "Mozilla/5.0")
	req.Header.Set("Accept", "application/json")
	if role != "" {
		token, err := s.tokens.GenerateAccessToken(outbound.TokenClaims{UserID: role + "-1", Role: role})
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

// entries drains the dispatcher and returns everything written.
func (s *stack) entries(t *testing.T) []*entity.AuditLogEntry {
	t.Helper()
	require.NoError(t, s.disp.Close(context.Background()))
	all, err := s.repo.List(context.Background(), entity.AuditLogFilter{Limit: entity.MaxAuditQueryLimit})
	require.NoError(t, err)
	return all
}

func actions(entries []*entity.AuditLogEntry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Action)
	}
	return out
}

func TestRouter_AdminAPI(t *testing.T) {
	s := newStack(t, 100)

	rec := s.do(t, http.MethodGet, "/v1/admin/audit-logs?limit=5", outbound.RoleAdmin, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(middleware.CorrelationIDHeader))

	rec = s.do(t, http.MethodGet, "/v1/admin/security/insights?range=1h", outbound.RoleAdmin, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/v1/admin/audit-logs", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodGet, "/v1/admin/audit-logs/stats", "resident", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	got := actions(s.entries(t))
	assert.Contains(t, got, string(entity.ActionUnauthorizedAccess))
	assert.Contains(t, got, middleware.ActionRoleCheck)
	assert.NotContains(t, got, string(entity.ActionDataBreachAttempt))
}

func TestRouter_LoginEventsGate(t *testing.T) {
	s := newStack(t, 100)

	rec := s.do(t, http.MethodPost, "/v1/auth/login-events", outbound.RoleService, `{"identifier": "budi@example.com", "outcome": "failure"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), `"failureStreak":1`)

	rec = s.do(t, http.MethodPost, "/v1/auth/login-events", outbound.RoleService, `{"identifier": "x'; DROP TABLE users; --", "outcome": "failure"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"message": "Request rejected", "errors": ["request contains disallowed content"]}`, rec.Body.String())

	got := actions(s.entries(t))
	assert.Contains(t, got, string(entity.ActionSQLInjectionAttempt))
	assert.Contains(t, got, "login_failure")
}

func TestRouter_UnknownPathIsInspected(t *testing.T) {
	s := newStack(t, 100)

	rec := s.do(t, http.MethodGet, "/v1/files/../../etc/passwd", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var suspicious *entity.AuditLogEntry
	for _, e := range s.entries(t) {
		if e.Action == string(entity.ActionSuspiciousActivity) {
			suspicious = e
		}
	}
	require.NotNil(t, suspicious)
	assert.Equal(t, entity.SeverityWarning, suspicious.Severity)
}

func TestRouter_RateLimited(t *testing.T) {
	s := newStack(t, 2)

	for i := 0; i < 2; i++ {
		require.NotEqual(t, http.StatusTooManyRequests, s.do(t, http.MethodGet, "/v1/units", "", "").Code)
	}
	rec := s.do(t, http.MethodGet, "/v1/units", "", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	assert.Contains(t, actions(s.entries(t)), string(entity.ActionRateLimitExceeded))
}

func TestRouter_UnknownPathsShareBucket(t *testing.T) {
	s := newStack(t, 3)

	for i := 0; i < 3; i++ {
		rec := s.do(t, http.MethodGet, fmt.Sprintf("/wp-admin/scan%d.php", i), "", "")
		require.Equal(t, http.StatusNotFound, rec.Code, "request %d", i+1)
	}
	rec := s.do(t, http.MethodGet, "/wp-admin/scan99.php", "", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	var limited *entity.AuditLogEntry
	for _, e := range s.entries(t) {
		if e.Action == string(entity.ActionRateLimitExceeded) {
			limited = e
		}
	}
	require.NotNil(t, limited)
	assert.Equal(t, ratelimit.UnmatchedRoute, limited.Details["route"])
}

func TestRouter_Health(t *testing.T) {
	s := newStack(t, 100)
	rec := s.do(t, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}
