package security

import (
	"context"
	"fmt"
	"slices"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/marmos91/dittorepo/internal/logger"
	"github.com/marmos91/dittorepo/pkg/storage"
)

// AnyRepository in PermissionTarget.Repositories matches every repository.
const AnyRepository = "ANY"

// PermissionTarget grants actions to principals over a set of paths.
type PermissionTarget struct {
	Name string

	// Repositories lists the repository keys covered, or AnyRepository
	Repositories []string

	// Includes and Excludes are doublestar patterns; empty Includes covers all paths
	Includes []string
	Excludes []string

	// Principals maps a user name to the actions granted to it
	Principals map[string][]Action
}

func (t *PermissionTarget) covers(p storage.RepoPath) bool {
	if !slices.Contains(t.Repositories, AnyRepository) && !slices.Contains(t.Repositories, p.RepoKey) {
		return false
	}
	for _, pattern := range t.Excludes {
		if ok, _ := doublestar.Match(pattern, p.Path); ok {
			return false
		}
	}
	if len(t.Includes) == 0 {
		return true
	}
	for _, pattern := range t.Includes {
		if ok, _ := doublestar.Match(pattern, p.Path); ok {
			return true
		}
	}
	return false
}

// ACL is an Authorizer backed by permission targets.
//
// Admins are granted everything. The anonymous user is denied everything
// unless AnonymousAccess is enabled, in which case it is evaluated against
// the targets like any other principal.
type ACL struct {
	Admins          []string
	AnonymousAccess bool
	Targets         []PermissionTarget
}

// NewACL validates the targets' patterns and returns the ACL.
func NewACL(admins []string, anonymousAccess bool, targets []PermissionTarget) (*ACL, error) {
	for _, target := range targets {
		for _, pattern := range append(append([]string{}, target.Includes...), target.Excludes...) {
			if !doublestar.ValidatePattern(pattern) {
				return nil, fmt.Errorf("permission target %s: invalid pattern %q", target.Name, pattern)
			}
		}
	}
	return &ACL{Admins: admins, AnonymousAccess: anonymousAccess, Targets: targets}, nil
}

func (a *ACL) allowed(ctx context.Context, p storage.RepoPath, action Action) bool {
	user := UserFrom(ctx)
	if slices.Contains(a.Admins, user) {
		return true
	}
	if user == Anonymous && !a.AnonymousAccess {
		return false
	}

	for i := range a.Targets {
		target := &a.Targets[i]
		if !target.covers(p) {
			continue
		}
		if slices.Contains(target.Principals[user], action) {
			return true
		}
	}

	logger.Debug("Denied %s on %s to %s", action, p, user)
	return false
}

func (a *ACL) CanRead(ctx context.Context, p storage.RepoPath) bool {
	return a.allowed(ctx, p, ActionRead)
}

func (a *ACL) CanDeploy(ctx context.Context, p storage.RepoPath) bool {
	return a.allowed(ctx, p, ActionDeploy)
}

func (a *ACL) CanDelete(ctx context.Context, p storage.RepoPath) bool {
	return a.allowed(ctx, p, ActionDelete)
}

func (a *ACL) CanAnnotate(ctx context.Context, p storage.RepoPath) bool {
	return a.allowed(ctx, p, ActionAnnotate)
}
