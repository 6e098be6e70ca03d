package storage

import (
	"fmt"
	"strings"
)

// RepoPath identifies a file or folder inside a repository.
//
// RepoPath is an immutable value: every method returns a new RepoPath and two
// paths are equal when both fields are equal, so RepoPath can be used as a map
// key. An empty Path denotes the repository root folder.
type RepoPath struct {
	RepoKey string
	Path    string
}

// NewRepoPath builds a normalized RepoPath.
//
// Leading and trailing slashes are trimmed, repeated slashes collapse and "."
// segments are dropped. A ".." segment is rejected because a repository path
// can never escape its repository.
func NewRepoPath(repoKey, path string) (RepoPath, error) {
	if repoKey == "" {
		return RepoPath{}, &StoreError{Code: ErrInvalidArgument, Message: "empty repository key"}
	}
	if strings.ContainsAny(repoKey, ":/") {
		return RepoPath{}, &StoreError{Code: ErrInvalidArgument, Message: "invalid repository key", Path: repoKey}
	}

	segments := make([]string, 0, strings.Count(path, "/")+1)
	for _, segment := range strings.Split(path, "/") {
		switch segment {
		case "", ".":
			continue
		case "..":
			return RepoPath{}, &StoreError{Code: ErrInvalidArgument, Message: "path escapes repository", Path: path}
		}
		segments = append(segments, segment)
	}

	return RepoPath{RepoKey: repoKey, Path: strings.Join(segments, "/")}, nil
}

// MustRepoPath is NewRepoPath for literals known to be valid. It panics on error.
func MustRepoPath(repoKey, path string) RepoPath {
	p, err := NewRepoPath(repoKey, path)
	if err != nil {
		panic(err)
	}
	return p
}

// ParseRepoPath parses the "repo:path" form produced by String.
func ParseRepoPath(s string) (RepoPath, error) {
	repoKey, path, ok := strings.Cut(s, ":")
	if !ok {
		return RepoPath{}, &StoreError{Code: ErrInvalidArgument, Message: "expected <repo>:<path>", Path: s}
	}
	return NewRepoPath(repoKey, path)
}

// Root returns the root folder of repoKey.
func Root(repoKey string) RepoPath {
	return RepoPath{RepoKey: repoKey}
}

// IsRoot reports whether p is a repository root. Roots are never deleted or pruned.
func (p RepoPath) IsRoot() bool {
	return p.Path == ""
}

// Name returns the last path segment, or "" for the root.
func (p RepoPath) Name() string {
	if i := strings.LastIndexByte(p.Path, '/'); i >= 0 {
		return p.Path[i+1:]
	}
	return p.Path
}

// Parent returns the enclosing folder. The root has no parent and returns
// itself with ok=false.
func (p RepoPath) Parent() (RepoPath, bool) {
	if p.IsRoot() {
		return p, false
	}
	if i := strings.LastIndexByte(p.Path, '/'); i >= 0 {
		return RepoPath{RepoKey: p.RepoKey, Path: p.Path[:i]}, true
	}
	return RepoPath{RepoKey: p.RepoKey}, true
}

// Child appends name as a new last segment.
func (p RepoPath) Child(name string) RepoPath {
	if p.IsRoot() {
		return RepoPath{RepoKey: p.RepoKey, Path: name}
	}
	return RepoPath{RepoKey: p.RepoKey, Path: p.Path + "/" + name}
}

// Depth returns the number of segments; the root has depth 0.
func (p RepoPath) Depth() int {
	if p.IsRoot() {
		return 0
	}
	return strings.Count(p.Path, "/") + 1
}

// HasPrefix reports whether p equals other or lies inside the subtree rooted at other.
func (p RepoPath) HasPrefix(other RepoPath) bool {
	if p.RepoKey != other.RepoKey {
		return false
	}
	if other.IsRoot() || p.Path == other.Path {
		return true
	}
	return strings.HasPrefix(p.Path, other.Path+"/")
}

// String renders the path as "repo:path".
func (p RepoPath) String() string {
	return fmt.Sprintf("%s:%s", p.RepoKey, p.Path)
}
