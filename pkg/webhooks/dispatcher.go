package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/usher/pkg/async"
	"github.com/platinummonkey/usher/pkg/observability"
)

// DispatcherConfig tunes delivery behavior. Zero values fall back to the
// defaults below.
type DispatcherConfig struct {
	// RequestTimeout bounds one HTTP delivery attempt.
	RequestTimeout time.Duration
	// FanOutWorkers is the number of concurrent deliveries per event.
	FanOutWorkers int
	// DeliveryBurst and DeliveryRefill shape the per-subscription limiter.
	DeliveryBurst  int
	DeliveryRefill time.Duration
	// Retry configures the backoff schedule shared with the retry worker.
	Retry RetryConfig
}

const (
	defaultRequestTimeout = 10 * time.Second
	defaultFanOutWorkers  = 5

	// deliveryTimeout bounds one fan-out task; dispatchTimeout bounds a
	// whole event's fan-out including queueing behind the worker pool.
	deliveryTimeout = 15 * time.Second
	dispatchTimeout = 2 * time.Minute
)

// Dispatcher fans lifecycle events out to matching subscriptions. It
// satisfies the onboarding service's notifier hook, so saga operations stay
// decoupled from delivery mechanics.
type Dispatcher struct {
	store   Store
	client  *http.Client
	policy  *RetryPolicy
	limiter *DeliveryLimiter
	logger  *logrus.Logger
	metrics *observability.Metrics
	workers int
}

// NewDispatcher creates a dispatcher over the subscription store. logger and
// metrics may be nil.
func NewDispatcher(store Store, config DispatcherConfig, logger *logrus.Logger, metrics *observability.Metrics) *Dispatcher {
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = defaultRequestTimeout
	}
	if config.FanOutWorkers <= 0 {
		config.FanOutWorkers = defaultFanOutWorkers
	}
	if logger == nil {
		logger = logrus.New()
	}

	return &Dispatcher{
		store:   store,
		client:  &http.Client{Timeout: config.RequestTimeout},
		policy:  NewRetryPolicy(config.Retry),
		limiter: NewDeliveryLimiter(config.DeliveryBurst, config.DeliveryRefill),
		logger:  logger,
		metrics: metrics,
		workers: config.FanOutWorkers,
	}
}

// Notify dispatches an event to every matching subscription. It never blocks
// the calling operation: the fan-out runs on a detached context so client
// disconnects cannot strand half-delivered events, and every failure is
// logged and absorbed here.
func (d *Dispatcher) Notify(ctx context.Context, event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		d.logger.WithError(err).WithField("event", event).
			Warn("Failed to serialize webhook payload, skipping dispatch")
		return
	}

	evt := &Event{
		ID:        uuid.NewString(),
		Type:      event,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
	body, err := json.Marshal(evt)
	if err != nil {
		d.logger.WithError(err).WithField("event", event).
			Warn("Failed to serialize webhook event, skipping dispatch")
		return
	}

	detached := context.WithoutCancel(ctx)
	async.SafeGoNoError(detached, dispatchTimeout, "webhook dispatch", func(ctx context.Context) {
		d.dispatch(ctx, evt, body)
	})
}

// dispatch matches subscriptions and fans the event out through a bounded
// worker pool.
func (d *Dispatcher) dispatch(ctx context.Context, evt *Event, body []byte) {
	subs, err := d.store.Matching(ctx, evt.Type)
	if err != nil {
		d.logger.WithError(err).WithField("event", evt.Type).
			Warn("Failed to match webhook subscriptions")
		return
	}
	if len(subs) == 0 {
		return
	}

	errs := async.Batch(ctx, subs, d.workers, "webhook fan-out", deliveryTimeout,
		func(ctx context.Context, sub *Subscription) error {
			return d.deliver(ctx, sub, evt, body)
		})
	if len(errs) > 0 {
		d.logger.WithField("event", evt.Type).
			Warnf("Failed to deliver %d of %d webhooks", len(errs), len(subs))
	}
}

// deliver opens the delivery record and runs the first attempt. Without a
// record the retry worker has nothing to pick up, so a failed insert skips
// the endpoint for this event.
func (d *Dispatcher) deliver(ctx context.Context, sub *Subscription, evt *Event, body []byte) error {
	delivery := &Delivery{
		ID:             uuid.NewString(),
		SubscriptionID: sub.ID,
		EventID:        evt.ID,
		EventType:      evt.Type,
		URL:            sub.URL,
		Status:         DeliveryStatusPending,
		Payload:        body,
	}
	if err := d.store.CreateDelivery(ctx, delivery); err != nil {
		d.logger.WithError(err).WithFields(logrus.Fields{
			"subscription_id": sub.ID,
			"event":           evt.Type,
		}).Warn("Failed to open webhook delivery record")
		return err
	}

	return d.attempt(ctx, sub, delivery)
}

// attempt runs one delivery attempt and records the outcome. Shared by the
// first delivery and the retry worker so both follow the same backoff.
func (d *Dispatcher) attempt(ctx context.Context, sub *Subscription, delivery *Delivery) error {
	delivery.Attempts++
	start := time.Now()
	err := d.send(ctx, sub, delivery)
	delivery.DurationMs = time.Since(start).Milliseconds()

	now := time.Now()
	if err != nil {
		delivery.ErrorMessage = err.Error()
		if d.policy.ShouldRetry(delivery.Attempts, err) {
			delivery.Status = DeliveryStatusRetrying
			next := d.policy.NextRetryTime(delivery.Attempts)
			delivery.NextRetryAt = &next
		} else {
			delivery.Status = DeliveryStatusFailed
			delivery.NextRetryAt = nil
			delivery.CompletedAt = &now
		}
	} else {
		delivery.Status = DeliveryStatusSuccess
		delivery.ErrorMessage = ""
		delivery.NextRetryAt = nil
		delivery.CompletedAt = &now
	}

	if d.metrics != nil {
		d.metrics.WebhookDeliveries.WithLabelValues(delivery.EventType, string(delivery.Status)).Inc()
	}
	if uerr := d.store.UpdateDelivery(ctx, delivery); uerr != nil {
		d.logger.WithError(uerr).WithField("delivery_id", delivery.ID).
			Warn("Failed to record webhook delivery state")
	}

	return err
}

// send performs the HTTP POST for one attempt.
func (d *Dispatcher) send(ctx context.Context, sub *Subscription, delivery *Delivery) error {
	if !d.limiter.Allow(sub.ID) {
		return fmt.Errorf("delivery rate limit exceeded for subscription %s", sub.ID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.URL, bytes.NewReader(delivery.Payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Usher-Event", delivery.EventType)
	req.Header.Set("X-Usher-Event-ID", delivery.EventID)
	req.Header.Set("X-Usher-Delivery", delivery.ID)
	if sub.Secret != "" {
		req.Header.Set("X-Usher-Signature", Sign(delivery.Payload, sub.Secret))
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()

	delivery.StatusCode = resp.StatusCode

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned non-2xx status: %d", resp.StatusCode)
	}

	return nil
}
