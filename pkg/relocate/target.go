package relocate

import (
	"github.com/marmos91/dittorepo/pkg/repository"
	"github.com/marmos91/dittorepo/pkg/storage"
)

// Target binds a destination path to the repository that owns it.
//
// A child target is built with Child for every recursion step; targets are
// values and are never modified in place.
type Target struct {
	Repo *repository.Repo
	Path storage.RepoPath
}

// Child returns the target for the child called name.
func (t Target) Child(name string) Target {
	return Target{Repo: t.Repo, Path: t.Path.Child(name)}
}

func (t Target) String() string {
	return t.Path.String()
}
