// Package appcontext provides utility functions for working with context in the application.

package appcontext

import "context"

type contextKey string

// String returns the string representation of the context key.
func (c contextKey) String() string {
	return string(c)
}

// Context keys used across the client.
var (
	ContextActionName = contextKey("actionName")
)

// WithActionName tags the context with the semantic write being performed.
// ActionNameEditor in the backend package sends it as a request header.
func WithActionName(ctx context.Context, action string) context.Context {
	return context.WithValue(ctx, ContextActionName, action)
}

// GetActionName retrieves the action name from the context.
func GetActionName(ctx context.Context) string {
	action, _ := ctx.Value(ContextActionName).(string)
	return action
}
