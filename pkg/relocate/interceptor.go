package relocate

import (
	"context"
	"errors"

	"github.com/marmos91/dittorepo/pkg/storage"
)

// ErrCancelSubtree may be returned by a Before hook to skip the item and,
// for folders, its whole subtree. Any other error has the same effect and is
// recorded as the cause.
var ErrCancelSubtree = errors.New("subtree cancelled by interceptor")

// Event describes the item an interceptor is called for.
type Event struct {
	// Source is the item being relocated
	Source *storage.Item

	// Target is where the item is (or would be) placed
	Target storage.RepoPath

	// Copy is true for copies, false for moves
	Copy bool

	// DryRun is true when no storage mutation takes place
	DryRun bool
}

// Interceptor hooks into the relocation walk.
//
// Hooks are invoked once per visited item that passed the admission checks.
// Before hooks run before the item is placed; After hooks run once the item
// (and, for folders, every child) was handled. Hooks run in registration
// order; the first Before hook that fails stops the chain.
type Interceptor interface {
	BeforeFolder(ctx context.Context, ev Event) error
	AfterFolder(ctx context.Context, ev Event)
	BeforeFile(ctx context.Context, ev Event) error
	AfterFile(ctx context.Context, ev Event)
}

// BaseInterceptor implements every hook as a no-op. Embed it to override
// only the hooks you need.
type BaseInterceptor struct{}

func (BaseInterceptor) BeforeFolder(context.Context, Event) error { return nil }
func (BaseInterceptor) AfterFolder(context.Context, Event)        {}
func (BaseInterceptor) BeforeFile(context.Context, Event) error   { return nil }
func (BaseInterceptor) AfterFile(context.Context, Event)          {}

type interceptors []Interceptor

func (is interceptors) before(ctx context.Context, ev Event) error {
	for _, i := range is {
		var err error
		if ev.Source.IsFolder() {
			err = i.BeforeFolder(ctx, ev)
		} else {
			err = i.BeforeFile(ctx, ev)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (is interceptors) after(ctx context.Context, ev Event) {
	for _, i := range is {
		if ev.Source.IsFolder() {
			i.AfterFolder(ctx, ev)
		} else {
			i.AfterFile(ctx, ev)
		}
	}
}
