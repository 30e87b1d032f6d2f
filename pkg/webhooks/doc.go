// Package webhooks delivers enterprise lifecycle events to operator-registered
// HTTP endpoints.
//
// # Overview
//
// Operators register subscriptions naming a URL, the lifecycle events it wants,
// and an optional signing secret. The dispatcher fans events out to matching
// subscriptions, records every attempt in a persistent delivery log, and a
// retry worker replays failed deliveries with exponential backoff.
//
// # Webhook Events
//
// enterprise.invited, enterprise.onboarded, enterprise.activated,
// enterprise.suspended, enterprise.deleted
//
// # Usage Example
//
// Register a subscription:
//
//	sub := &webhooks.Subscription{
//		URL:    "https://api.example.com/hooks/usher",
//		Events: []string{webhooks.EventEnterpriseActivated},
//		Secret: "webhook-secret",
//	}
//	store.Create(ctx, sub)
//
// Dispatch (the onboarding saga does this through its notifier hook):
//
//	dispatcher.Notify(ctx, webhooks.EventEnterpriseActivated, enterprise)
//
// Verify signature (receiver side):
//
//	sig := r.Header.Get("X-Usher-Signature")
//	if !webhooks.VerifySignature(body, sig, secret) {
//		return errors.New("invalid signature")
//	}
//
// # Retry Policy
//
// Exponential backoff: 1s, 2s, 4s, 8s, 16s
// Max attempts: 5
// Timeout per attempt: 10s
//
// Retry state lives in the delivery log, so pending retries survive process
// restarts.
//
// # Related Packages
//
//   - pkg/async: fan-out worker pool
//   - pkg/onboarding: emits the lifecycle events
package webhooks
