package webhooks

import (
	"context"
	"errors"
	"math"
	"runtime/debug"
	"time"

	"github.com/sirupsen/logrus"
)

// RetryConfig configures retry behavior
type RetryConfig struct {
	MaxAttempts       int           `json:"max_attempts"`
	InitialDelay      time.Duration `json:"initial_delay"`
	MaxDelay          time.Duration `json:"max_delay"`
	BackoffMultiplier float64       `json:"backoff_multiplier"`
}

// DefaultRetryConfig returns the default retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       5,
		InitialDelay:      1 * time.Second,
		MaxDelay:          5 * time.Minute,
		BackoffMultiplier: 2.0,
	}
}

// RetryPolicy implements exponential backoff retry logic
type RetryPolicy struct {
	config RetryConfig
}

// NewRetryPolicy creates a new retry policy
func NewRetryPolicy(config RetryConfig) *RetryPolicy {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 5
	}
	if config.InitialDelay <= 0 {
		config.InitialDelay = 1 * time.Second
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = 5 * time.Minute
	}
	if config.BackoffMultiplier <= 1.0 {
		config.BackoffMultiplier = 2.0
	}

	return &RetryPolicy{
		config: config,
	}
}

// ShouldRetry determines if a delivery should be retried
func (p *RetryPolicy) ShouldRetry(attempts int, err error) bool {
	if err == nil {
		return false
	}

	if attempts >= p.config.MaxAttempts {
		return false
	}

	return true
}

// NextRetryDelay calculates the delay before the next retry
func (p *RetryPolicy) NextRetryDelay(attempts int) time.Duration {
	if attempts <= 0 {
		return p.config.InitialDelay
	}

	// Exponential backoff: delay = initialDelay * (multiplier ^ (attempts - 1))
	delay := float64(p.config.InitialDelay) * math.Pow(p.config.BackoffMultiplier, float64(attempts-1))

	// Cap at max delay
	if delay > float64(p.config.MaxDelay) {
		return p.config.MaxDelay
	}

	return time.Duration(delay)
}

// NextRetryTime calculates when the next retry should occur
func (p *RetryPolicy) NextRetryTime(attempts int) time.Time {
	delay := p.NextRetryDelay(attempts)
	return time.Now().Add(delay)
}

// retryBatchSize bounds how many due deliveries one sweep picks up.
const retryBatchSize = 100

// RetryWorker replays failed deliveries whose backoff has elapsed. Retry
// state lives in the delivery log, so a restarted process resumes where the
// previous one stopped.
type RetryWorker struct {
	dispatcher *Dispatcher
	store      Store
	logger     *logrus.Logger
	stopCh     chan struct{}
	ticker     *time.Ticker
}

// NewRetryWorker creates a new retry worker
func NewRetryWorker(dispatcher *Dispatcher, store Store, logger *logrus.Logger) *RetryWorker {
	if logger == nil {
		logger = logrus.New()
	}
	return &RetryWorker{
		dispatcher: dispatcher,
		store:      store,
		logger:     logger,
		stopCh:     make(chan struct{}),
	}
}

// Start starts the retry worker
func (w *RetryWorker) Start(ctx context.Context, checkInterval time.Duration) {
	w.ticker = time.NewTicker(checkInterval)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				w.logger.WithFields(logrus.Fields{
					"panic": r,
					"stack": string(debug.Stack()),
				}).Error("Webhook retry worker panicked")
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case <-w.stopCh:
				return
			case <-w.ticker.C:
				w.processRetries(ctx)
			}
		}
	}()
}

// Stop stops the retry worker
func (w *RetryWorker) Stop() {
	if w.ticker != nil {
		w.ticker.Stop()
	}
	close(w.stopCh)
}

// processRetries replays one batch of due deliveries.
func (w *RetryWorker) processRetries(ctx context.Context) {
	due, err := w.store.DueRetries(ctx, retryBatchSize)
	if err != nil {
		w.logger.WithError(err).Warn("Failed to load due webhook retries")
		return
	}

	for _, delivery := range due {
		sub, err := w.store.Get(ctx, delivery.SubscriptionID)
		if errors.Is(err, ErrNotFound) {
			w.markFailed(ctx, delivery, "subscription removed")
			continue
		}
		if err != nil {
			w.logger.WithError(err).WithField("delivery_id", delivery.ID).
				Warn("Failed to load subscription for retry")
			continue
		}

		if !sub.Active {
			w.markFailed(ctx, delivery, "subscription inactive")
			continue
		}

		w.dispatcher.attempt(ctx, sub, delivery)
	}
}

// markFailed closes out a delivery that can no longer be retried.
func (w *RetryWorker) markFailed(ctx context.Context, delivery *Delivery, reason string) {
	now := time.Now()
	delivery.Status = DeliveryStatusFailed
	delivery.ErrorMessage = reason
	delivery.NextRetryAt = nil
	delivery.CompletedAt = &now
	if err := w.store.UpdateDelivery(ctx, delivery); err != nil {
		w.logger.WithError(err).WithField("delivery_id", delivery.ID).
			Warn("Failed to record webhook delivery state")
	}
}
