package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken    = errors.New("invalid token")
	ErrUnauthenticated = errors.New("authentication required")
)

// Token types carried in the "type" claim.
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// AuthContext is the authenticated principal for one request. It is built
// from a verified credential and never persisted server-side.
type AuthContext struct {
	UserID      string    `json:"user_id"`
	TenantID    string    `json:"tenant_id"`
	Roles       []string  `json:"roles"`
	Permissions []string  `json:"permissions"`
	TokenType   string    `json:"token_type"`
	IssuedAt    time.Time `json:"issued_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// HasRole reports whether the principal carries the given role.
func (a *AuthContext) HasRole(role string) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// HasPermission reports whether the principal carries the given permission.
func (a *AuthContext) HasPermission(permission string) bool {
	for _, p := range a.Permissions {
		if p == permission {
			return true
		}
	}
	return false
}

// Claims represents credential claims with tenant context
type Claims struct {
	TenantID    string   `json:"tenantId"`
	Roles       []string `json:"roles,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
	TokenType   string   `json:"type,omitempty"`
	jwt.RegisteredClaims
}

// BrokerClaims are embedded in broker connection tokens. They are signed
// with the broker secret, never the credential secret.
type BrokerClaims struct {
	User     string   `json:"user"`
	TenantID string   `json:"tenant_id"`
	Roles    []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// Config configures the token service.
type Config struct {
	CredentialSecret string
	BrokerSecret     string
	CredentialExpiry time.Duration
}

const defaultCredentialExpiry = 3600 * time.Second

// Service verifies and issues credentials. Time comparisons use the
// injected clock so issuance and verification never skew apart in tests.
type Service struct {
	credentialSecret []byte
	brokerSecret     []byte
	expiry           time.Duration
	now              func() time.Time
}

// Option configures optional Service behaviour.
type Option func(*Service)

// WithClock overrides the service clock.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates a token service from config.
func NewService(cfg Config, opts ...Option) *Service {
	expiry := cfg.CredentialExpiry
	if expiry <= 0 {
		expiry = defaultCredentialExpiry
	}
	s := &Service{
		credentialSecret: []byte(cfg.CredentialSecret),
		brokerSecret:     []byte(cfg.BrokerSecret),
		expiry:           expiry,
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Authenticate verifies a bearer credential and builds the principal.
// Bad signature, missing sub/tenantId claims, and expiry all surface as
// ErrInvalidToken.
func (s *Service) Authenticate(tokenString string) (*AuthContext, error) {
	claims, err := s.parse(tokenString, s.credentialSecret)
	if err != nil {
		return nil, err
	}
	return s.buildContext(claims)
}

// Refresh exchanges a refresh credential for a new access credential and
// the principal it carries. Credentials whose declared type is not
// "refresh" are rejected.
func (s *Service) Refresh(refreshToken string) (string, *AuthContext, error) {
	claims, err := s.parse(refreshToken, s.credentialSecret)
	if err != nil {
		return "", nil, err
	}
	if claims.TokenType != TokenTypeRefresh {
		return "", nil, fmt.Errorf("%w: not a refresh token", ErrInvalidToken)
	}

	authCtx, err := s.buildContext(claims)
	if err != nil {
		return "", nil, err
	}
	authCtx.TokenType = TokenTypeAccess
	authCtx.IssuedAt = s.now()
	authCtx.ExpiresAt = authCtx.IssuedAt.Add(s.expiry)

	accessToken, err := s.issue(authCtx.UserID, authCtx.TenantID, authCtx.Roles, authCtx.Permissions, TokenTypeAccess, s.expiry)
	if err != nil {
		return "", nil, err
	}
	return accessToken, authCtx, nil
}

// IssueAccessToken mints an access credential with the configured expiry.
func (s *Service) IssueAccessToken(userID, tenantID string, roles, permissions []string) (string, error) {
	return s.issue(userID, tenantID, roles, permissions, TokenTypeAccess, s.expiry)
}

// IssueRefreshToken mints a refresh credential. Refresh credentials live
// longer than access credentials.
func (s *Service) IssueRefreshToken(userID, tenantID string, roles, permissions []string) (string, error) {
	return s.issue(userID, tenantID, roles, permissions, TokenTypeRefresh, 24*s.expiry)
}

// ConnectionToken derives a broker connection token from the principal,
// signed with the broker secret.
func (s *Service) ConnectionToken(authCtx *AuthContext) (string, error) {
	now := s.now()
	claims := &BrokerClaims{
		User:     authCtx.UserID,
		TenantID: authCtx.TenantID,
		Roles:    authCtx.Roles,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.brokerSecret)
	if err != nil {
		return "", fmt.Errorf("sign broker token: %w", err)
	}
	return signed, nil
}

// ParseConnectionToken verifies a broker connection token. Used by tests
// and by callers that proxy broker auth.
func (s *Service) ParseConnectionToken(tokenString string) (*BrokerClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &BrokerClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.brokerSecret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(*BrokerClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (s *Service) issue(userID, tenantID string, roles, permissions []string, tokenType string, ttl time.Duration) (string, error) {
	now := s.now()
	claims := &Claims{
		TenantID:    tenantID,
		Roles:       roles,
		Permissions: permissions,
		TokenType:   tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.credentialSecret)
	if err != nil {
		return "", fmt.Errorf("sign credential: %w", err)
	}
	return signed, nil
}

func (s *Service) parse(tokenString string, secret []byte) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		// Verify the signing method to prevent algorithm confusion attacks
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	}, jwt.WithTimeFunc(s.now))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: token expired", ErrInvalidToken)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (s *Service) buildContext(claims *Claims) (*AuthContext, error) {
	if claims.Subject == "" || claims.TenantID == "" {
		return nil, fmt.Errorf("%w: missing required claims (sub or tenantId)", ErrInvalidToken)
	}

	roles := claims.Roles
	if roles == nil {
		roles = []string{}
	}
	permissions := claims.Permissions
	if permissions == nil {
		permissions = []string{}
	}
	tokenType := claims.TokenType
	if tokenType == "" {
		tokenType = TokenTypeAccess
	}

	authCtx := &AuthContext{
		UserID:      claims.Subject,
		TenantID:    claims.TenantID,
		Roles:       roles,
		Permissions: permissions,
		TokenType:   tokenType,
	}
	if claims.IssuedAt != nil {
		authCtx.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		authCtx.ExpiresAt = claims.ExpiresAt.Time
	}
	return authCtx, nil
}
