package common

import "context"

type ctxKey string

const (
	userIDKey      ctxKey = "auth/user-id"
	accessTokenKey ctxKey = "auth/access-token"
	sessionIDKey   ctxKey = "session/id"
)

// WithUserID stores the authenticated user identifier on the provided context.
func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, userIDKey, id)
}

// UserID extracts the authenticated user identifier from the context if present.
func UserID(ctx context.Context) (string, bool) {
	return stringValue(ctx, userIDKey)
}

// WithAccessToken stores the caller's bearer token so it can be forwarded to the store API.
func WithAccessToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, accessTokenKey, token)
}

// AccessToken returns the bearer token attached to the request, if any.
func AccessToken(ctx context.Context) (string, bool) {
	return stringValue(ctx, accessTokenKey)
}

// WithSessionID stores the storefront session identifier.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionIDKey, id)
}

// SessionID returns the storefront session identifier, if resolved.
func SessionID(ctx context.Context) (string, bool) {
	return stringValue(ctx, sessionIDKey)
}

func stringValue(ctx context.Context, key ctxKey) (string, bool) {
	v := ctx.Value(key)
	if v == nil {
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}
