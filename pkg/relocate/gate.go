package relocate

import (
	"context"
	"fmt"

	"github.com/marmos91/dittorepo/pkg/layout"
	"github.com/marmos91/dittorepo/pkg/repository"
	"github.com/marmos91/dittorepo/pkg/security"
	"github.com/marmos91/dittorepo/pkg/storage"
)

// verdict is the gate's answer for one item.
type verdict struct {
	admitted bool

	// existing is the item occupying the target before the relocation, if any
	existing *storage.Item
}

// Gate decides whether a single item may be relocated to its target.
//
// Rejections are recorded on the status, never returned: the walk goes on
// with the next item unless fail-fast is set. Only storage failures are
// returned as errors.
type Gate struct {
	auth security.Authorizer
}

// NewGate creates a gate consulting auth for permissions.
func NewGate(auth security.Authorizer) *Gate {
	return &Gate{auth: auth}
}

// CanRelocate runs the admission checks in order and stops at the first
// failure:
//  1. release/snapshot policy of the target repository (files only)
//  2. include/exclude patterns of the target repository
//  3. delete permission on the source for moves; delete permission on an
//     existing target, deploy permission otherwise
//  4. type clash with an existing target, or a file in the way of the
//     target's parents
//  5. descriptor coordinates against the target path, when the target
//     repository enforces descriptor consistency
func (g *Gate) CanRelocate(ctx context.Context, tx storage.Tx, src *storage.Item, srcRepo *repository.Repo,
	target Target, cfg MoveConfig, status *Status) (bool, error) {
	v, err := g.check(ctx, tx, src, srcRepo, target, cfg, status)
	return v.admitted, err
}

func (g *Gate) check(ctx context.Context, tx storage.Tx, src *storage.Item, srcRepo *repository.Repo,
	target Target, cfg MoveConfig, status *Status) (verdict, error) {
	repo := target.Repo
	targetPath := target.Path.Path

	if !src.IsFolder() && !repo.ReleaseSnapshotPolicyAllows(targetPath) {
		status.errorf(CodePolicyRejection, src.Path, nil,
			"repository '%s' rejected '%s': release/snapshot handling policy", repo.Key(), target.Path)
		return verdict{}, nil
	}

	if !repo.Accepts(targetPath, src.IsFolder()) {
		status.warnf(CodeForbidden, src.Path, nil,
			"repository '%s' rejected '%s': include/exclude patterns", repo.Key(), target.Path)
		return verdict{}, nil
	}

	if !cfg.copy && !g.auth.CanDelete(ctx, src.Path) {
		status.errorf(CodePermissionDenied, src.Path, nil,
			"user '%s' may not delete '%s'", security.UserFrom(ctx), src.Path)
		return verdict{}, nil
	}

	existing, err := tx.Resolve(target.Path)
	switch {
	case storage.IsNotFound(err):
		existing = nil
	case err != nil:
		return verdict{}, err
	}

	if existing != nil {
		if !g.auth.CanDelete(ctx, target.Path) {
			status.errorf(CodePermissionDenied, src.Path, nil,
				"user '%s' may not overwrite '%s'", security.UserFrom(ctx), target.Path)
			return verdict{}, nil
		}
	} else if !g.auth.CanDeploy(ctx, target.Path) {
		status.errorf(CodePermissionDenied, src.Path, nil,
			"user '%s' may not deploy to '%s'", security.UserFrom(ctx), target.Path)
		return verdict{}, nil
	}

	if existing != nil && existing.IsFolder() != src.IsFolder() {
		status.errorf(CodeConflict, src.Path, nil,
			"cannot replace %s '%s' with %s '%s'", existing.Type, target.Path, src.Type, src.Path)
		return verdict{}, nil
	}
	if existing == nil {
		blocker, err := fileAncestor(tx, target.Path)
		if err != nil {
			return verdict{}, err
		}
		if blocker != nil {
			status.errorf(CodeConflict, src.Path, nil,
				"cannot create '%s' below file '%s'", target.Path, blocker.Path)
			return verdict{}, nil
		}
	}

	if !src.IsFolder() && layout.IsDescriptor(targetPath) && repo.DescriptorConsistencyRequired() {
		if err := g.checkDescriptor(ctx, src, srcRepo, targetPath); err != nil {
			status.errorf(CodeValidationFailure, src.Path, err,
				"descriptor '%s' is inconsistent with target '%s'", src.Path, target.Path)
			return verdict{}, nil
		}
	}

	return verdict{admitted: true, existing: existing}, nil
}

func (g *Gate) checkDescriptor(ctx context.Context, src *storage.Item, srcRepo *repository.Repo, targetPath string) error {
	rc, err := srcRepo.Binaries().Read(ctx, src.Checksums.SHA1)
	if err != nil {
		return fmt.Errorf("failed to read descriptor: %w", err)
	}
	defer func() { _ = rc.Close() }()

	coords, err := layout.ParseDescriptor(rc)
	if err != nil {
		return err
	}
	return coords.MatchesPath(targetPath)
}

// fileAncestor returns the nearest existing ancestor of p if it is a file.
func fileAncestor(tx storage.Tx, p storage.RepoPath) (*storage.Item, error) {
	for current, ok := p.Parent(); ok && !current.IsRoot(); current, ok = current.Parent() {
		item, err := tx.Resolve(current)
		if storage.IsNotFound(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if item.IsFolder() {
			return nil, nil
		}
		return item, nil
	}
	return nil, nil
}
