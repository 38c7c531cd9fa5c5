package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fixora/condoguard/application/port/outbound"
	"github.com/fixora/condoguard/application/security/securitytest"
	"github.com/fixora/condoguard/domain/entity"
	domainerror "github.com/fixora/condoguard/domain/error"
	"github.com/fixora/condoguard/infrastructure/config"
	jwtservice "github.com/fixora/condoguard/infrastructure/service/jwt"
)

func newTokenService(t *testing.T) *jwtservice.JWTService {
	t.Helper()
	svc, err := jwtservice.NewJWTService(&config.Config{
		JWTSecret:      "test-secret-with-enough-length-123",
		JWTAlgorithm:   "HS256",
		AccessTokenTTL: time.Hour,
	})
	require.NoError(t, err)
	return svc
}

func runAppHandler(h AppHandler, r *http.Request) (*httptest.ResponseRecorder, error) {
	rec := httptest.NewRecorder()
	return rec, h(rec, r)
}

func TestAuthMiddleware_Identify(t *testing.T) {
	tokens := newTokenService(t)
	audit := securitytest.NewAuditRecorder()
	m := NewAuthMiddleware(tokens, audit, false)

	token, err := tokens.GenerateAccessToken(outbound.TokenClaims{UserID: "resident-7", Role: "resident", SessionID: "s-1"})
	require.NoError(t, err)

	var claims *outbound.TokenClaims
	h := m.Identify(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims = GetUserClaims(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/units", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	h.ServeHTTP(httptest.NewRecorder(), req)

	require.NotNil(t, claims)
	assert.Equal(t, "resident-7", claims.UserID)
	assert.Equal(t, "s-1", claims.SessionID)
	assert.Empty(t, audit.Records())

	claims = nil
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/units", nil))
	assert.Nil(t, claims)
	assert.Empty(t, audit.Records())
}

func TestAuthMiddleware_BadTokenContinuesAnonymously(t *testing.T) {
	audit := securitytest.NewAuditRecorder()
	m := NewAuthMiddleware(newTokenService(t), audit, false)

	var reqErr error
	h := m.Identify(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, reqErr = runAppHandler(m.RequireAuth(func(w http.ResponseWriter, r *http.Request) error { return nil }), r)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/units", nil)
	req.Header.Set("Authorization", "Bearer not.a.token")
	h.ServeHTTP(httptest.NewRecorder(), req)

	var appErr *domainerror.AppError
	require.ErrorAs(t, reqErr, &appErr)
	assert.Equal(t, domainerror.ErrCodeInvalidToken, appErr.Code)

	events := audit.ByAction(ActionTokenValidation)
	require.Len(t, events, 1)
	assert.Equal(t, entity.OutcomeFailure, events[0].Outcome)
	assert.Equal(t, "invalid_token", events[0].Details["reason"])

	req = httptest.NewRequest(http.MethodGet, "/v1/units", nil)
	req.Header.Set("Authorization", "Basic abc")
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "malformed_header", audit.ByAction(ActionTokenValidation)[1].Details["reason"])
}

func TestAuthMiddleware_RequireAuthWithoutToken(t *testing.T) {
	m := NewAuthMiddleware(newTokenService(t), securitytest.NewAuditRecorder(), false)
	_, err := runAppHandler(m.RequireAuth(func(w http.ResponseWriter, r *http.Request) error { return nil }),
		httptest.NewRequest(http.MethodGet, "/v1/units", nil))

	var appErr *domainerror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, domainerror.ErrCodeMissingToken, appErr.Code)
}

func TestAuthMiddleware_RequireAdmin(t *testing.T) {
	audit := securitytest.NewAuditRecorder()
	m := NewAuthMiddleware(newTokenService(t), audit, false)
	called := false
	h := m.RequireAdmin(func(w http.ResponseWriter, r *http.Request) error {
		called = true
		return nil
	})

	req := httptest.NewRequest(http.MethodGet, "/v1/admin/audit-logs", nil)
	req = req.WithContext(WithUserClaims(req.Context(), &outbound.TokenClaims{UserID: "r-1", Role: "resident"}))
	_, err := runAppHandler(h, req)

	assert.False(t, called)
	assert.Equal(t, http.StatusForbidden, domainerror.GetHTTPStatusCode(err))
	events := audit.ByAction(ActionRoleCheck)
	require.Len(t, events, 1)
	assert.Equal(t, entity.AuditTypeAuthorization, events[0].Type)

	req = req.WithContext(WithUserClaims(req.Context(), &outbound.TokenClaims{UserID: "a-1", Role: outbound.RoleAdmin}))
	_, err = runAppHandler(h, req)
	require.NoError(t, err)
	assert.True(t, called)
}
