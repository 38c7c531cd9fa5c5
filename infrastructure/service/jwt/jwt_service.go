package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/fixora/condoguard/application/port/outbound"
	"github.com/fixora/condoguard/infrastructure/config"
)

const accessTokenType = "access"

type JWTService struct {
	ttl        time.Duration
	hmacSecret []byte
	now        func() time.Time
}

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

var _ outbound.TokenService = (*JWTService)(nil)

type accessClaims struct {
	Role      string `json:"role"`
	SessionID string `json:"sid,omitempty"`
	Type      string `json:"type"`
	jwt.RegisteredClaims
}

func NewJWTService(cfg *config.Config) (*JWTService, error) {
	if cfg.JWTAlgorithm != "HS256" {
		return nil, fmt.Errorf("unsupported JWT algorithm: %s", cfg.JWTAlgorithm)
	}
	if cfg.JWTSecret == "" {
		return nil, config.ErrMissingJWTSecret
	}
	return &JWTService{
		ttl:        cfg.AccessTokenTTL,
		hmacSecret: []byte(cfg.JWTSecret),
		now:        time.Now,
	}, nil
}

func (s *JWTService) GenerateAccessToken(claims outbound.TokenClaims) (string, error) {
	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, accessClaims{
		Role:      claims.Role,
		SessionID: claims.SessionID,
		Type:      accessTokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   claims.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	})

	tokenString, err := token.SignedString(s.hmacSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}
	return tokenString, nil
}

func (s *JWTService) ValidateAccessToken(tokenString string) (*outbound.TokenClaims, error) {
	var claims accessClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		return s.hmacSecret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, s.handleValidationError(err)
	}
	if !token.Valid || claims.Type != accessTokenType || claims.Subject == "" {
		return nil, ErrInvalidToken
	}

	return &outbound.TokenClaims{
		UserID:    claims.Subject,
		Role:      claims.Role,
		SessionID: claims.SessionID,
	}, nil
}

func (s *JWTService) handleValidationError(err error) error {
	if errors.Is(err, jwt.ErrTokenExpired) {
		return ErrTokenExpired
	}
	return ErrInvalidToken
}
