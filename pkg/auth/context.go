package auth

import (
	"context"
)

type (
	userIDKey struct{}
	emailKey  struct{}
)

// WithUserID returns a copy of ctx carrying the authenticated user's id.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey{}, userID)
}

// UserIDFromContext reports the authenticated user's id, if any.
func UserIDFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(userIDKey{}).(string)
	if !ok || userID == "" {
		return "", false
	}
	return userID, true
}

// WithEmail returns a copy of ctx carrying the sign-in email from the
// caller's token.
func WithEmail(ctx context.Context, email string) context.Context {
	return context.WithValue(ctx, emailKey{}, email)
}

func EmailFromContext(ctx context.Context) (string, bool) {
	email, ok := ctx.Value(emailKey{}).(string)
	if !ok || email == "" {
		return "", false
	}
	return email, true
}

// ContextAuthenticator resolves the current user from the request context,
// where the auth middleware put it after verifying the bearer token.
type ContextAuthenticator struct{}

func (ContextAuthenticator) CurrentUserID(ctx context.Context) (string, bool) {
	return UserIDFromContext(ctx)
}

func (ContextAuthenticator) CurrentEmail(ctx context.Context) (string, bool) {
	return EmailFromContext(ctx)
}
