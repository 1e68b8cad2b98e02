package auth

import (
	"errors"
	"fmt"
	"time"

	"lead-response/internal/config"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// clockSkew is tolerated on exp, nbf and iat.
const clockSkew = 30 * time.Second

// Manager signs and verifies the HS256 tokens issued by the dashboard for this API.
type Manager struct {
	secret   []byte
	issuer   string
	audience jwt.ClaimStrings
	ttl      map[TokenType]time.Duration

	// Clock drives token verification in RequireAccessToken. Nil means time.Now.
	Clock func() time.Time
}

func NewManager(cfg config.AuthConfig) (*Manager, error) {
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	m := &Manager{
		secret: []byte(cfg.JWTSecret),
		issuer: cfg.JWTIssuer,
		ttl: map[TokenType]time.Duration{
			TokenTypeAccess:  cfg.AccessTokenTTL,
			TokenTypeRefresh: cfg.RefreshTokenTTL,
		},
	}
	if cfg.JWTAudience != "" {
		m.audience = jwt.ClaimStrings{cfg.JWTAudience}
	}
	return m, nil
}

type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// IssuePair mints an access/refresh pair for a member of organizationID.
// Refresh tokens carry no role; the role is re-read when they are exchanged.
func (m *Manager) IssuePair(now time.Time, userID, organizationID, role string) (TokenPair, error) {
	access, err := m.sign(now, Claims{UserID: userID, OrganizationID: organizationID, Role: role, TokenType: TokenTypeAccess})
	if err != nil {
		return TokenPair{}, fmt.Errorf("sign access token: %w", err)
	}
	refresh, err := m.sign(now, Claims{UserID: userID, OrganizationID: organizationID, TokenType: TokenTypeRefresh})
	if err != nil {
		return TokenPair{}, fmt.Errorf("sign refresh token: %w", err)
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// Verify parses tokenString at instant now and checks it is a complete token of the expected type.
func (m *Manager) Verify(tokenString string, expected TokenType, now time.Time) (Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithLeeway(clockSkew),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
	}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}
	if len(m.audience) > 0 {
		opts = append(opts, jwt.WithAudience(m.audience[0]))
	}

	var claims Claims
	if _, err := jwt.NewParser(opts...).ParseWithClaims(tokenString, &claims, func(*jwt.Token) (any, error) {
		return m.secret, nil
	}); err != nil {
		return Claims{}, err
	}
	if err := claims.check(expected); err != nil {
		return Claims{}, err
	}
	return claims, nil
}

func (m *Manager) sign(now time.Time, c Claims) (string, error) {
	c.RegisteredClaims = jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Issuer:    m.issuer,
		Audience:  m.audience,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl[c.TokenType])),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(m.secret)
}
