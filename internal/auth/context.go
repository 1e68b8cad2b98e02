package auth

import (
	"context"
	"errors"
)

// Identity is the authenticated caller of a /v1 request.
type Identity struct {
	UserID         string
	OrganizationID string
	Role           string
}

type identityKey struct{}

var ErrNoIdentity = errors.New("no identity in context")

func WithIdentity(ctx context.Context, userID, organizationID, role string) context.Context {
	return context.WithValue(ctx, identityKey{}, Identity{UserID: userID, OrganizationID: organizationID, Role: role})
}

// IdentityFrom returns the caller stored by RequireAccessToken.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

func field(ctx context.Context, name string, pick func(Identity) string) (string, error) {
	id, ok := IdentityFrom(ctx)
	if !ok {
		return "", ErrNoIdentity
	}
	if v := pick(id); v != "" {
		return v, nil
	}
	return "", errors.New(name + " not in context")
}

func UserID(ctx context.Context) (string, error) {
	return field(ctx, "user_id", func(id Identity) string { return id.UserID })
}

func OrganizationID(ctx context.Context) (string, error) {
	return field(ctx, "organization_id", func(id Identity) string { return id.OrganizationID })
}

func Role(ctx context.Context) (string, error) {
	return field(ctx, "role", func(id Identity) string { return id.Role })
}
