// Package security decides whether the current user may read, deploy or
// delete repository paths.
package security

import (
	"context"

	"github.com/marmos91/dittorepo/pkg/storage"
)

// Anonymous is the user name assumed when the context carries none.
const Anonymous = "anonymous"

// Action is a permission that can be granted on a path.
type Action string

const (
	ActionRead     Action = "read"
	ActionDeploy   Action = "deploy"
	ActionDelete   Action = "delete"
	ActionAnnotate Action = "annotate"
)

// Authorizer answers permission questions for the user carried in ctx.
type Authorizer interface {
	CanRead(ctx context.Context, p storage.RepoPath) bool
	CanDeploy(ctx context.Context, p storage.RepoPath) bool
	CanDelete(ctx context.Context, p storage.RepoPath) bool
	CanAnnotate(ctx context.Context, p storage.RepoPath) bool
}

type userKey struct{}

// WithUser returns a context carrying user.
func WithUser(ctx context.Context, user string) context.Context {
	return context.WithValue(ctx, userKey{}, user)
}

// UserFrom returns the user carried by ctx, or Anonymous.
func UserFrom(ctx context.Context) string {
	if user, ok := ctx.Value(userKey{}).(string); ok && user != "" {
		return user
	}
	return Anonymous
}

// AllowAll grants every action to everyone. Used by single-user CLI runs
// and tests.
type AllowAll struct{}

func (AllowAll) CanRead(context.Context, storage.RepoPath) bool     { return true }
func (AllowAll) CanDeploy(context.Context, storage.RepoPath) bool   { return true }
func (AllowAll) CanDelete(context.Context, storage.RepoPath) bool   { return true }
func (AllowAll) CanAnnotate(context.Context, storage.RepoPath) bool { return true }
