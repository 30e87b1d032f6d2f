package webhooks

import (
	"sync"
	"time"
)

// DeliveryLimiter throttles outbound deliveries per subscription so one
// chatty event source cannot hammer a subscriber endpoint. Buckets hold a
// burst and refill one token per refill period.
type DeliveryLimiter struct {
	buckets map[string]*deliveryBucket
	mu      sync.RWMutex
	burst   int
	refill  time.Duration
}

type deliveryBucket struct {
	tokens     int
	lastRefill time.Time
	mu         sync.Mutex
}

// NewDeliveryLimiter creates a per-subscription delivery limiter.
func NewDeliveryLimiter(burst int, refill time.Duration) *DeliveryLimiter {
	if burst <= 0 {
		burst = 100
	}
	if refill <= 0 {
		refill = time.Second
	}
	return &DeliveryLimiter{
		buckets: make(map[string]*deliveryBucket),
		burst:   burst,
		refill:  refill,
	}
}

// Allow reports whether a delivery to the subscription may proceed now.
func (l *DeliveryLimiter) Allow(subscriptionID string) bool {
	l.mu.Lock()
	bucket, exists := l.buckets[subscriptionID]
	if !exists {
		bucket = &deliveryBucket{
			tokens:     l.burst,
			lastRefill: time.Now(),
		}
		l.buckets[subscriptionID] = bucket
	}
	l.mu.Unlock()

	bucket.mu.Lock()
	defer bucket.mu.Unlock()

	l.refillLocked(bucket)

	if bucket.tokens > 0 {
		bucket.tokens--
		return true
	}
	return false
}

// Remaining returns the tokens left for a subscription.
func (l *DeliveryLimiter) Remaining(subscriptionID string) int {
	l.mu.RLock()
	bucket, exists := l.buckets[subscriptionID]
	l.mu.RUnlock()

	if !exists {
		return l.burst
	}

	bucket.mu.Lock()
	defer bucket.mu.Unlock()

	l.refillLocked(bucket)
	return bucket.tokens
}

// Reset clears the bucket for a subscription.
func (l *DeliveryLimiter) Reset(subscriptionID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, subscriptionID)
}

func (l *DeliveryLimiter) refillLocked(bucket *deliveryBucket) {
	now := time.Now()
	elapsed := now.Sub(bucket.lastRefill)
	if elapsed < l.refill {
		return
	}
	periods := int(elapsed / l.refill)
	bucket.tokens = min(bucket.tokens+periods, l.burst)
	bucket.lastRefill = bucket.lastRefill.Add(time.Duration(periods) * l.refill)
}
