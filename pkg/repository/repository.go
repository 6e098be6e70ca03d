package repository

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/marmos91/dittorepo/pkg/content"
	"github.com/marmos91/dittorepo/pkg/layout"
	"github.com/marmos91/dittorepo/pkg/storage"
)

// Repo is a repository: its descriptor plus the stores it is backed by.
//
// Repo forwards item access to the shared item store, scoped to its own key,
// and binary access to the content store named by its descriptor.
type Repo struct {
	desc     Descriptor
	items    storage.Store
	binaries content.Store
}

// New composes a repository. The descriptor is validated.
func New(desc Descriptor, items storage.Store, binaries content.Store) (*Repo, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	if items == nil || binaries == nil {
		return nil, fmt.Errorf("repository %s: item store and binary store are required", desc.Key)
	}
	return &Repo{desc: desc, items: items, binaries: binaries}, nil
}

// Key returns the repository key.
func (r *Repo) Key() string {
	return r.desc.Key
}

// Descriptor returns the repository configuration.
func (r *Repo) Descriptor() Descriptor {
	return r.desc
}

// Items returns the item store holding the repository tree.
func (r *Repo) Items() storage.Store {
	return r.items
}

// Binaries returns the binary store file items point into.
func (r *Repo) Binaries() content.Store {
	return r.binaries
}

// Root returns the repository's root folder path.
func (r *Repo) Root() storage.RepoPath {
	return storage.Root(r.desc.Key)
}

// Path builds a normalized path inside this repository.
func (r *Repo) Path(path string) (storage.RepoPath, error) {
	return storage.NewRepoPath(r.desc.Key, path)
}

// IsCache reports whether the repository holds derived (cached) content.
func (r *Repo) IsCache() bool {
	return r.desc.Type == TypeRemote
}

// Accepts applies the include/exclude patterns to path.
//
// Folders are accepted when an include pattern could match something below
// them, and rejected only when an exclude pattern matches the folder itself.
func (r *Repo) Accepts(path string, folder bool) bool {
	if path == "" {
		return true
	}

	for _, pattern := range r.desc.Excludes {
		if match(pattern, path) || (folder && match(pattern, path+"/")) {
			return false
		}
	}

	if len(r.desc.Includes) == 0 {
		return true
	}
	for _, pattern := range r.desc.Includes {
		if match(pattern, path) {
			return true
		}
		if folder && folderMayMatch(pattern, path) {
			return true
		}
	}
	return false
}

func match(pattern, path string) bool {
	ok, err := doublestar.Match(pattern, path)
	return err == nil && ok
}

// folderMayMatch reports whether files below folder could match pattern.
// Files are still checked one by one, so over-accepting a folder is harmless.
func folderMayMatch(pattern, folder string) bool {
	base, _ := doublestar.SplitPattern(pattern)
	if base == "." {
		return true
	}
	return base == folder || strings.HasPrefix(base, folder+"/") || strings.HasPrefix(folder, base+"/")
}

// ReleaseSnapshotPolicyAllows applies the release/snapshot handling flags to a file path.
func (r *Repo) ReleaseSnapshotPolicyAllows(path string) bool {
	if layout.IsMetadata(path) {
		return true
	}
	if layout.IsSnapshotPath(path) {
		return r.desc.HandleSnapshots
	}
	return r.desc.HandleReleases
}

// DescriptorConsistencyRequired reports whether POM coordinates must match their path.
func (r *Repo) DescriptorConsistencyRequired() bool {
	return r.desc.Type == TypeLocal && !r.desc.SuppressDescriptorConsistency
}

// Resolve reads the item at path in a read-only transaction.
func (r *Repo) Resolve(ctx context.Context, path string) (*storage.Item, error) {
	p, err := r.Path(path)
	if err != nil {
		return nil, err
	}

	var item *storage.Item
	err = r.items.View(ctx, func(tx storage.Tx) error {
		var err error
		item, err = tx.Resolve(p)
		return err
	})
	return item, err
}

// Exists reports whether an item is stored at path.
func (r *Repo) Exists(ctx context.Context, path string) (bool, error) {
	p, err := r.Path(path)
	if err != nil {
		return false, err
	}

	var exists bool
	err = r.items.View(ctx, func(tx storage.Tx) error {
		var err error
		exists, err = tx.Exists(p)
		return err
	})
	return exists, err
}

// Deploy stores body as the file at path, overwriting any existing file.
// The binary is written before the item so a committed item never refers
// to a missing binary.
func (r *Repo) Deploy(ctx context.Context, path string, body io.Reader, props storage.Properties, user string) (*storage.Item, error) {
	p, err := r.Path(path)
	if err != nil {
		return nil, err
	}
	if p.IsRoot() {
		return nil, &storage.StoreError{Code: storage.ErrInvalidArgument, Message: "cannot deploy to repository root", Path: p.String()}
	}

	info, err := r.binaries.Write(ctx, body)
	if err != nil {
		return nil, fmt.Errorf("failed to store binary for %s: %w", p, err)
	}

	item := &storage.Item{
		Path:       p,
		Type:       storage.ItemFile,
		Size:       info.Size,
		Checksums:  info.Checksums,
		ModifiedBy: user,
		Properties: props.Clone(),
	}
	if err := r.items.Update(ctx, func(tx storage.Tx) error {
		return tx.PutFile(item)
	}); err != nil {
		return nil, err
	}
	return item, nil
}

// Open returns the file item at path and a reader over its binary.
func (r *Repo) Open(ctx context.Context, path string) (*storage.Item, io.ReadCloser, error) {
	item, err := r.Resolve(ctx, path)
	if err != nil {
		return nil, nil, err
	}
	if item.IsFolder() {
		return nil, nil, &storage.StoreError{Code: storage.ErrIsFolder, Message: "cannot open a folder", Path: item.Path.String()}
	}
	rc, err := r.binaries.Read(ctx, item.Checksums.SHA1)
	if err != nil {
		return nil, nil, err
	}
	return item, rc, nil
}
