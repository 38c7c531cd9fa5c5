package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/fixora/condoguard/application/port/inbound"
	"github.com/fixora/condoguard/application/port/outbound"
	"github.com/fixora/condoguard/domain/entity"
	domainerror "github.com/fixora/condoguard/domain/error"
	jwtservice "github.com/fixora/condoguard/infrastructure/service/jwt"
)

const (
	ActionTokenValidation = "token_validation"
	ActionRoleCheck       = "role_check"
)

type (
	claimsKey    struct{}
	authErrorKey struct{}
)

type AuthMiddleware struct {
	tokenService outbound.TokenService
	audit        inbound.AuditLogger
	trustProxy   bool
}

func NewAuthMiddleware(tokenService outbound.TokenService, audit inbound.AuditLogger, trustProxy bool) *AuthMiddleware {
	return &AuthMiddleware{
		tokenService: tokenService,
		audit:        audit,
		trustProxy:   trustProxy,
	}
}

// Identify resolves an optional bearer token into claims. Requests without a
// token, or with a bad one, continue anonymously; RequireAuth decides later.
func (m *AuthMiddleware) Identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			next.ServeHTTP(w, r)
			return
		}

		ctx := r.Context()
		token, ok := bearerToken(authHeader)
		if !ok {
			m.reject(w, r, domainerror.ErrInvalidToken("invalid authorization header format"), "malformed_header", next)
			return
		}

		claims, err := m.tokenService.ValidateAccessToken(token)
		if err != nil {
			if errors.Is(err, jwtservice.ErrTokenExpired) {
				m.reject(w, r, domainerror.ErrTokenExpired(""), "token_expired", next)
			} else {
				m.reject(w, r, domainerror.ErrInvalidToken(""), "invalid_token", next)
			}
			return
		}

		next.ServeHTTP(w, r.WithContext(WithUserClaims(ctx, claims)))
	})
}

// reject records the token failure and continues anonymously.
func (m *AuthMiddleware) reject(w http.ResponseWriter, r *http.Request, appErr *domainerror.AppError, reason string, next http.Handler) {
	m.audit.LogAuthentication(r.Context(), ActionTokenValidation, entity.OutcomeFailure, RequestMeta(r, m.trustProxy), map[string]interface{}{
		"reason":   reason,
		"endpoint": r.URL.Path,
	})
	next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), authErrorKey{}, appErr)))
}

func bearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

// RequireAuth fails with the token error recorded by Identify, or
// ErrMissingToken when no token was sent.
func (m *AuthMiddleware) RequireAuth(next AppHandler) AppHandler {
	return func(w http.ResponseWriter, r *http.Request) error {
		if GetUserClaims(r.Context()) != nil {
			return next(w, r)
		}
		if appErr, ok := r.Context().Value(authErrorKey{}).(*domainerror.AppError); ok {
			return appErr
		}
		return domainerror.ErrMissingToken()
	}
}

// RequireAdmin ensures that the user has admin role
func (m *AuthMiddleware) RequireAdmin(next AppHandler) AppHandler {
	return m.RequireRole(next, outbound.RoleAdmin)
}

// RequireRole lets the request through when the caller holds one of roles.
func (m *AuthMiddleware) RequireRole(next AppHandler, roles ...string) AppHandler {
	return m.RequireAuth(func(w http.ResponseWriter, r *http.Request) error {
		claims := GetUserClaims(r.Context())
		for _, role := range roles {
			if claims.Role == role {
				return next(w, r)
			}
		}
		m.audit.LogAuthorization(r.Context(), ActionRoleCheck, entity.OutcomeFailure, RequestMeta(r, m.trustProxy), map[string]interface{}{
			"endpoint": r.URL.Path,
			"role":     claims.Role,
			"required": roles,
		})
		return domainerror.ErrForbidden(strings.Join(roles, " or ") + " role required")
	})
}

// GetUserClaims retrieves user claims from context
func GetUserClaims(ctx context.Context) *outbound.TokenClaims {
	if claims, ok := ctx.Value(claimsKey{}).(*outbound.TokenClaims); ok {
		return claims
	}
	return nil
}

// WithUserClaims stores claims in ctx.
func WithUserClaims(ctx context.Context, claims *outbound.TokenClaims) context.Context {
	return context.WithValue(ctx, claimsKey{}, claims)
}
