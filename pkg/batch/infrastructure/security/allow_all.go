// Package security provides the default SecurityService.
package security

import (
	"context"

	"github.com/tigerroll/stepcore/pkg/batch/core/application/port"
	"github.com/tigerroll/stepcore/pkg/batch/core/config"
)

// AnonymousUser is reported when no user is carried by the context.
const AnonymousUser = "anonymous"

type userKey struct{}

// WithUser returns a child of ctx identifying user as the caller.
func WithUser(ctx context.Context, user string) context.Context {
	return context.WithValue(ctx, userKey{}, user)
}

// AllowAll authorizes every job operation.
type AllowAll struct{}

// NewAllowAll creates an AllowAll service.
func NewAllowAll() *AllowAll {
	return &AllowAll{}
}

// Init implements port.BatchService.
func (AllowAll) Init(config.Properties) error { return nil }

// IsAuthorized always returns true.
func (AllowAll) IsAuthorized(context.Context, string) bool { return true }

// CurrentUser returns the user set with WithUser, or AnonymousUser.
func (AllowAll) CurrentUser(ctx context.Context) string {
	if u, ok := ctx.Value(userKey{}).(string); ok && u != "" {
		return u
	}
	return AnonymousUser
}

var _ port.SecurityService = AllowAll{}
