package outbound

// TokenClaims is the identity carried by a verified access token.
type TokenClaims struct {
	UserID    string `json:"user_id"`
	Role      string `json:"role"`
	SessionID string `json:"session_id,omitempty"`
}

const (
	RoleAdmin   = "admin"
	RoleService = "service"
)

// TokenService verifies bearer tokens. Issuing tokens belongs to the
// authentication service; GenerateAccessToken exists for tooling and tests.
type TokenService interface {
	GenerateAccessToken(claims TokenClaims) (string, error)
	ValidateAccessToken(token string) (*TokenClaims, error)
}
