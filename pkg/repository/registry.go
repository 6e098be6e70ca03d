package repository

import (
	"errors"
	"fmt"
	"slices"
	"sync"
)

// ErrUnknownRepository is returned when a repository key is not registered.
var ErrUnknownRepository = errors.New("unknown repository")

// Registry holds the configured repositories by key.
//
// Thread Safety:
// Safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	repos map[string]*Repo
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{repos: make(map[string]*Repo)}
}

// Register adds repo. Keys must be unique.
func (r *Registry) Register(repo *Repo) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.repos[repo.Key()]; exists {
		return fmt.Errorf("repository %q already registered", repo.Key())
	}
	r.repos[repo.Key()] = repo
	return nil
}

// Get returns the repository registered under key.
func (r *Registry) Get(key string) (*Repo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	repo, ok := r.repos[key]
	if !ok {
		return nil, fmt.Errorf("repository %q: %w", key, ErrUnknownRepository)
	}
	return repo, nil
}

// MustGet is Get for keys known to be registered. It panics otherwise.
func (r *Registry) MustGet(key string) *Repo {
	repo, err := r.Get(key)
	if err != nil {
		panic(err)
	}
	return repo
}

// Keys returns all registered keys in sorted order.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.repos))
	for k := range r.repos {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Count returns the number of registered repositories.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.repos)
}
