// Package async provides safe concurrent execution primitives for background tasks.
//
// # Overview
//
// This package handles goroutine lifecycle management with panic recovery, timeout
// enforcement, context cancellation, and error collection. Loggers travel in via
// context, so background failures keep their request and tenant correlation.
//
// # Key Functions
//
// SafeGo: Execute function in goroutine with safety features
//
//	async.SafeGo(ctx, 30*time.Second, "idp organization teardown", func(ctx context.Context) error {
//		// Task code with automatic panic recovery and timeout
//		return idpClient.DeleteOrganization(ctx, orgID)
//	})
//
// WorkerPool: Managed pool of concurrent workers
//
//	pool := async.NewWorkerPool(ctx, 10, "webhook delivery", 30*time.Second)
//	defer pool.Shutdown(5 * time.Second)
//
//	pool.Submit(func(ctx context.Context) error {
//		return dispatcher.Deliver(ctx, subscription, event)
//	})
//
// Batch: Concurrent batch processing
//
//	errs := async.Batch(ctx, subscriptions, 5, "webhook fan-out", 10*time.Second,
//		func(ctx context.Context, sub webhooks.Subscription) error {
//			return dispatcher.Deliver(ctx, sub, event)
//		})
//
// # Features
//
// Panic Recovery: Captures panics with stack traces
// Timeout Enforcement: Per-task timeouts
// Context Cancellation: Respects context cancellation
// Error Collection: Non-blocking error channels
// Graceful Shutdown: Worker draining
//
// # Use Cases
//
// Identity provider teardown after enterprise deletion, webhook fan-out,
// directory cache warming, audit writes that must not block responses
//
// # Related Packages
//
//   - pkg/onboarding: Uses SafeGo for post-deletion IdP teardown
//   - pkg/webhooks: Uses Batch for delivery fan-out
package async
