// Package runid gives every invocation an identifier that ties its log
// lines, spans and pushed metrics together.
package runid

import (
	"context"

	"github.com/google/uuid"
)

// runIDKey is the context key for storing the run ID
type runIDKey struct{}

// New returns a fresh run ID
func New() string {
	return uuid.New().String()
}

// WithRunID returns a copy of ctx carrying id. An empty id is replaced by a
// freshly generated one.
func WithRunID(ctx context.Context, id string) context.Context {
	if id == "" {
		id = New()
	}
	return context.WithValue(ctx, runIDKey{}, id)
}

// FromContext retrieves the run ID from the context
func FromContext(ctx context.Context) string {
	if id, ok := ctx.Value(runIDKey{}).(string); ok {
		return id
	}
	return ""
}
