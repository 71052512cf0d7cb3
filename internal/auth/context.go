package auth

import (
	"context"
	"errors"
)

type userContextKey struct{}

var (
	// ErrNoUserInContext is returned when no user is found in context
	ErrNoUserInContext = errors.New("no authenticated user in context")
)

// NewContext returns a copy of ctx carrying the authenticated user's claims
func NewContext(ctx context.Context, user *UserInfo) context.Context {
	return context.WithValue(ctx, userContextKey{}, user)
}

// GetUserFromContext extracts authenticated user from request context
func GetUserFromContext(ctx context.Context) (*UserInfo, error) {
	user, ok := ctx.Value(userContextKey{}).(*UserInfo)
	if !ok || user == nil {
		return nil, ErrNoUserInContext
	}
	return user, nil
}
