// Package workqueue runs deduplicated background work keyed by repository path.
//
// Adding a path that is already queued merges the two requests instead of
// queueing the path twice, so a burst of relocations touching the same
// ancestor produces a single unit of work.
package workqueue

import (
	"context"
	"sync"
	"time"

	"github.com/marmos91/dittorepo/internal/logger"
	"github.com/marmos91/dittorepo/internal/ratelimiter"
	"github.com/marmos91/dittorepo/pkg/storage"
)

// ProcessFunc handles one queued path.
type ProcessFunc[V any] func(ctx context.Context, p storage.RepoPath, v V) error

// MergeFunc combines a queued value with a newly added one.
type MergeFunc[V any] func(queued, added V) V

// Config configures a Worker.
type Config struct {
	// Name identifies the worker in logs
	Name string

	// OpsPerSecond throttles processing (0 = unlimited)
	OpsPerSecond uint

	// ItemTimeout bounds the processing of a single path (default: 1m)
	ItemTimeout time.Duration
}

// Worker owns a queue and the goroutine draining it.
//
// Thread Safety:
// Add, Len and Flush are safe for concurrent use. Start and Stop must be
// called once each, from the owner.
type Worker[V any] struct {
	config  Config
	process ProcessFunc[V]
	merge   MergeFunc[V]
	limiter *ratelimiter.RateLimiter

	mu     sync.Mutex
	order  []storage.RepoPath
	values map[storage.RepoPath]V

	// drainMu serializes draining between the worker goroutine and Flush.
	drainMu sync.Mutex

	wakeCh   chan struct{}
	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
	started  bool
}

// New creates a stopped worker.
func New[V any](config Config, process ProcessFunc[V], merge MergeFunc[V]) *Worker[V] {
	if config.ItemTimeout == 0 {
		config.ItemTimeout = time.Minute
	}
	if merge == nil {
		merge = func(_, added V) V { return added }
	}
	return &Worker[V]{
		config:  config,
		process: process,
		merge:   merge,
		limiter: ratelimiter.New(config.OpsPerSecond, 0),
		values:  make(map[storage.RepoPath]V),
		wakeCh:  make(chan struct{}, 1),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Add queues p, merging with an already queued request for the same path.
func (w *Worker[V]) Add(p storage.RepoPath, v V) {
	w.mu.Lock()
	if queued, ok := w.values[p]; ok {
		w.values[p] = w.merge(queued, v)
	} else {
		w.values[p] = v
		w.order = append(w.order, p)
	}
	w.mu.Unlock()

	select {
	case w.wakeCh <- struct{}{}:
	default:
	}
}

// Len returns the number of queued paths.
func (w *Worker[V]) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.order)
}

func (w *Worker[V]) pop() (storage.RepoPath, V, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	var zero V
	if len(w.order) == 0 {
		return storage.RepoPath{}, zero, false
	}
	p := w.order[0]
	w.order = w.order[1:]
	v := w.values[p]
	delete(w.values, p)
	return p, v, true
}

// Start launches the background goroutine. Paths added before Start are
// picked up immediately.
func (w *Worker[V]) Start() {
	w.started = true
	go w.run()
}

// Stop signals the goroutine and waits for the current item to finish.
// Queued paths that were not processed stay queued.
func (w *Worker[V]) Stop(ctx context.Context) error {
	if !w.started {
		return nil
	}
	w.stopOnce.Do(func() { close(w.stopCh) })

	select {
	case <-w.doneCh:
		return nil
	case <-ctx.Done():
		logger.Warn("%s worker shutdown timeout", w.config.Name)
		return ctx.Err()
	}
}

// Flush processes every queued path synchronously. Errors are logged, not
// returned, matching what the background goroutine does; only a cancelled
// ctx stops the flush early.
func (w *Worker[V]) Flush(ctx context.Context) error {
	return w.drain(ctx)
}

func (w *Worker[V]) run() {
	defer close(w.doneCh)

	for {
		select {
		case <-w.wakeCh:
			ctx, cancel := context.WithCancel(context.Background())
			go func() {
				select {
				case <-w.stopCh:
					cancel()
				case <-ctx.Done():
				}
			}()
			_ = w.drain(ctx)
			cancel()
		case <-w.stopCh:
			return
		}
	}
}

func (w *Worker[V]) drain(ctx context.Context) error {
	w.drainMu.Lock()
	defer w.drainMu.Unlock()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := w.limiter.Wait(ctx); err != nil {
			return err
		}

		p, v, ok := w.pop()
		if !ok {
			return nil
		}

		itemCtx, cancel := context.WithTimeout(ctx, w.config.ItemTimeout)
		err := w.process(itemCtx, p, v)
		cancel()
		if err != nil {
			logger.Warn("%s: failed to process %s: %v", w.config.Name, p, err)
		}
	}
}
