// Package contextkeys provides centralized context key definitions
//
// All context keys used across the application are defined here.
//
// USAGE PATTERN:
//
//	ctx = contextkeys.WithRequestID(ctx, id)
//	id := contextkeys.GetRequestID(ctx)
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// RequestIDKey contains request ID string (UUID)
	// Set by: httputil.RequestIDMiddleware
	// Used by: request logging, error responses
	// Type: string
	RequestIDKey Key = "request_id"

	// UserLoginKey contains the login of the signed-in user
	// Set by: the host session middleware (cmd/keycloak-auth)
	// Used by: pages that greet or authorize the user
	// Type: string
	UserLoginKey Key = "user_login"
)

// WithRequestID adds request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithUserLogin adds the signed-in user's login to the context
func WithUserLogin(ctx context.Context, login string) context.Context {
	return context.WithValue(ctx, UserLoginKey, login)
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// GetUserLogin retrieves the signed-in user's login from context
func GetUserLogin(ctx context.Context) string {
	if login, ok := ctx.Value(UserLoginKey).(string); ok {
		return login
	}
	return ""
}
