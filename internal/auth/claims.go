package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

var (
	ErrWrongTokenType = errors.New("token_type mismatch")
	ErrMissingClaim   = errors.New("required claim missing")
)

// Claims is the token payload. Every /v1 query is scoped by OrganizationID.
type Claims struct {
	jwt.RegisteredClaims

	UserID         string    `json:"user_id"`
	OrganizationID string    `json:"organization_id"`
	Role           string    `json:"role"`
	TokenType      TokenType `json:"token_type"`
}

func (c Claims) check(expected TokenType) error {
	if c.TokenType != expected {
		return fmt.Errorf("%w: want %s, got %q", ErrWrongTokenType, expected, c.TokenType)
	}
	required := []struct{ name, value string }{
		{"user_id", c.UserID},
		{"organization_id", c.OrganizationID},
	}
	if expected == TokenTypeAccess {
		required = append(required, struct{ name, value string }{"role", c.Role})
	}
	for _, r := range required {
		if r.value == "" {
			return fmt.Errorf("%w: %s", ErrMissingClaim, r.name)
		}
	}
	return nil
}
