package async

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/platinummonkey/usher/pkg/observability"
)

// SafeGo executes a function in a goroutine with:
// - Context cancellation support
// - Panic recovery
// - Timeout enforcement
// - Error logging
//
// Use this instead of bare `go func()` to prevent goroutine leaks and crashes.
// The logger (and request/tenant IDs) travel in from the parent context, so
// background failures still correlate with the request that spawned them.
//
// Example:
//
//	SafeGo(r.Context(), 30*time.Second, "idp organization teardown", func(ctx context.Context) error {
//	    return idpClient.DeleteOrganization(ctx, orgID)
//	})
func SafeGo(parentCtx context.Context, timeout time.Duration, taskName string, fn func(context.Context) error) {
	logger := observability.FromContext(parentCtx).WithField("task", taskName)

	go func() {
		// Create context with timeout
		ctx, cancel := context.WithTimeout(parentCtx, timeout)
		defer cancel()

		// Recover from panics
		defer func() {
			if r := recover(); r != nil {
				logger.WithFields(map[string]interface{}{
					"panic": fmt.Sprintf("%v", r),
					"stack": string(debug.Stack()),
				}).Error("Async task panicked")
			}
		}()

		// Execute function
		if err := fn(ctx); err != nil {
			// Log error but don't crash
			// Caller can decide if this is critical or not
			logger.WithError(err).Error("Async task failed")
		}
	}()
}

// SafeGoNoError is like SafeGo but for functions that don't return errors.
// Still provides panic recovery and context support.
//
// Example:
//
//	SafeGoNoError(r.Context(), 5*time.Second, "directory cache warm", func(ctx context.Context) {
//	    cache.SetAdminOrganization(ctx, email, orgID)
//	})
func SafeGoNoError(parentCtx context.Context, timeout time.Duration, taskName string, fn func(context.Context)) {
	SafeGo(parentCtx, timeout, taskName, func(ctx context.Context) error {
		fn(ctx)
		return nil
	})
}

// WorkerPool manages a pool of workers that process tasks from a channel.
// Provides graceful shutdown and error collection.
type WorkerPool struct {
	workers      int
	taskName     string
	timeout      time.Duration
	workCh       chan func(context.Context) error
	doneCh       chan struct{}
	errCh        chan error
	ctx          context.Context
	cancel       context.CancelFunc
	logger       *observability.Logger
	shutdownOnce sync.Once
}

// NewWorkerPool creates a new worker pool.
//
// Example:
//
//	pool := NewWorkerPool(ctx, 10, "webhook delivery", 30*time.Second)
//	defer pool.Shutdown(5 * time.Second)
//
//	pool.Submit(func(ctx context.Context) error {
//	    return dispatcher.Deliver(ctx, subscription, event)
//	})
func NewWorkerPool(ctx context.Context, workers int, taskName string, timeout time.Duration) *WorkerPool {
	logger := observability.FromContext(ctx).WithField("pool", taskName)
	ctx, cancel := context.WithCancel(ctx)

	pool := &WorkerPool{
		workers:  workers,
		taskName: taskName,
		timeout:  timeout,
		workCh:   make(chan func(context.Context) error, workers*2),
		doneCh:   make(chan struct{}),
		errCh:    make(chan error, workers*10), // Larger buffer to avoid drops
		ctx:      ctx,
		cancel:   cancel,
		logger:   logger,
	}

	// Start workers and wait for them to finish in background
	go func() {
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(id int) {
				defer wg.Done()
				pool.worker(id)
			}(i)
		}
		wg.Wait()
		close(pool.doneCh)
	}()

	return pool
}

// Submit adds a task to the worker pool.
// Returns error if pool is shut down.
func (p *WorkerPool) Submit(fn func(context.Context) error) error {
	// Check if already shut down
	select {
	case <-p.doneCh:
		return fmt.Errorf("worker pool shut down")
	default:
	}

	// Try to submit work
	defer func() {
		if r := recover(); r != nil {
			// Recovered from panic (likely closed channel)
			// This happens if shutdown was called between the check above and the send below
		}
	}()

	select {
	case p.workCh <- fn:
		return nil
	case <-p.doneCh:
		return fmt.Errorf("worker pool shut down")
	}
}

// Shutdown gracefully shuts down the worker pool.
// Waits up to timeout for workers to finish current tasks.
func (p *WorkerPool) Shutdown(timeout time.Duration) error {
	var shutdownErr error

	// Ensure shutdown only happens once
	p.shutdownOnce.Do(func() {
		// Close work channel so workers can drain remaining tasks
		// Recover from panic if channel already closed (e.g., by Batch)
		func() {
			defer func() {
				if r := recover(); r != nil {
					// Channel already closed, continue with shutdown
				}
			}()
			close(p.workCh)
		}()

		// Wait for workers to finish with timeout
		select {
		case <-p.doneCh:
			p.cancel() // Cancel context after workers are done
		case <-time.After(timeout):
			p.cancel() // Force cancel on timeout
			shutdownErr = fmt.Errorf("worker pool shutdown timed out after %v", timeout)
		}
	})

	return shutdownErr
}

// Errors returns a channel that receives worker errors.
// Non-blocking, use select to check for errors.
func (p *WorkerPool) Errors() <-chan error {
	return p.errCh
}

func (p *WorkerPool) worker(id int) {
	defer func() {
		// Recover from panics first
		if r := recover(); r != nil {
			p.logger.WithFields(map[string]interface{}{
				"worker": id,
				"panic":  fmt.Sprintf("%v", r),
				"stack":  string(debug.Stack()),
			}).Error("Worker panicked")
		}
	}()

	for {
		select {
		case <-p.ctx.Done():
			return

		case fn, ok := <-p.workCh:
			if !ok {
				return
			}

			// Create context with timeout for this task
			ctx, cancel := context.WithTimeout(p.ctx, p.timeout)

			// Execute task with panic recovery
			func() {
				defer cancel()
				defer func() {
					if r := recover(); r != nil {
						err := fmt.Errorf("panic: %v", r)
						select {
						case p.errCh <- err:
						default:
							p.logger.WithError(err).Warn("Error channel full, dropping error")
						}
					}
				}()

				if err := fn(ctx); err != nil {
					select {
					case p.errCh <- err:
					default:
						p.logger.WithError(err).Warn("Error channel full, dropping error")
					}
				}
			}()
		}
	}
}

// Batch processes a slice of items concurrently using a worker pool.
// Returns all errors encountered.
//
// Example:
//
//	subs := store.MatchingSubscriptions(event.Type)
//	errs := Batch(ctx, subs, 5, "webhook fan-out", 10*time.Second, func(ctx context.Context, sub Subscription) error {
//	    return dispatcher.Deliver(ctx, sub, event)
//	})
//	if len(errs) > 0 {
//	    logger.Warnf("Failed to deliver %d webhooks", len(errs))
//	}
func Batch[T any](ctx context.Context, items []T, workers int, taskName string, timeout time.Duration,
	fn func(context.Context, T) error) []error {

	pool := NewWorkerPool(ctx, workers, taskName, timeout)
	defer pool.Shutdown(5 * time.Second)

	// Submit all tasks
	for _, item := range items {
		item := item // Capture loop variable
		if err := pool.Submit(func(ctx context.Context) error {
			return fn(ctx, item)
		}); err != nil {
			return []error{err}
		}
	}

	// Wait for completion by closing work channel first
	// This allows workers to drain all remaining tasks
	close(pool.workCh)
	<-pool.doneCh

	// Cancel context after all work is done
	pool.cancel()

	// Collect errors
	var errs []error
	for {
		select {
		case err := <-pool.errCh:
			errs = append(errs, err)
		default:
			return errs
		}
	}
}
