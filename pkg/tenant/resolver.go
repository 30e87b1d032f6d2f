package tenant

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/platinummonkey/usher/pkg/enterprise"
	"github.com/platinummonkey/usher/pkg/observability"
)

// ErrUnknownTenant marks tenant ids that do not map to a live enterprise.
// Deleted enterprises are indistinguishable from ones that never existed.
var ErrUnknownTenant = errors.New("unknown tenant")

// EnterpriseGetter is the slice of the enterprise store the resolver needs.
type EnterpriseGetter interface {
	Get(ctx context.Context, id string) (*enterprise.Enterprise, error)
}

// ResolverConfig tunes the resolver cache. Zero values fall back to the
// defaults below.
type ResolverConfig struct {
	// SchemaPrefix prefixes resolved schema names.
	SchemaPrefix string
	// CacheSize bounds the number of memoized tenants.
	CacheSize int
	// CacheTTL expires memoized entries; zero keeps them until evicted.
	CacheTTL time.Duration
}

// DefaultResolverCacheSize bounds the resolver cache when no size is
// configured.
const DefaultResolverCacheSize = 1024

// Resolver maps tenant ids to contexts, checking each id against the
// enterprise registry so requests for deleted or unknown tenants fail
// before they touch tenant storage.
//
// Successful resolutions are memoized in an expiring LRU. Failures are
// not: a tenant that onboards moments after a bad request should resolve
// on the next try, and the registry lookup is cheap enough to repeat.
// Concurrent misses for the same id collapse into one registry read.
type Resolver struct {
	store        EnterpriseGetter
	cache        *expirable.LRU[string, *Context]
	group        singleflight.Group
	schemaPrefix string
	metrics      *observability.Metrics
}

// NewResolver builds a resolver over the enterprise registry. metrics may
// be nil, for callers that do not report any.
func NewResolver(store EnterpriseGetter, config ResolverConfig, metrics *observability.Metrics) *Resolver {
	size := config.CacheSize
	if size <= 0 {
		size = DefaultResolverCacheSize
	}
	prefix := config.SchemaPrefix
	if prefix == "" {
		prefix = DefaultSchemaPrefix
	}
	return &Resolver{
		store:        store,
		cache:        expirable.NewLRU[string, *Context](size, nil, config.CacheTTL),
		schemaPrefix: prefix,
		metrics:      metrics,
	}
}

// Resolve returns the tenant context for an id. An empty id resolves to
// the shared default. Ids that are malformed, unknown, or belong to a
// deleted enterprise return ErrUnknownTenant.
func (r *Resolver) Resolve(ctx context.Context, tenantID string) (*Context, error) {
	if tenantID == "" {
		return Default(), nil
	}

	start := time.Now()
	defer func() {
		if r.metrics != nil {
			r.metrics.TenantResolveDuration.Observe(time.Since(start).Seconds())
		}
	}()

	if tc, ok := r.cache.Get(tenantID); ok {
		if r.metrics != nil {
			r.metrics.TenantCacheHitsTotal.Inc()
		}
		return tc, nil
	}
	if r.metrics != nil {
		r.metrics.TenantCacheMissesTotal.Inc()
	}

	v, err, _ := r.group.Do(tenantID, func() (interface{}, error) {
		return r.lookup(ctx, tenantID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Context), nil
}

func (r *Resolver) lookup(ctx context.Context, tenantID string) (*Context, error) {
	tc, err := New(tenantID, r.schemaPrefix)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnknownTenant, err)
	}

	if _, err := r.store.Get(ctx, tenantID); err != nil {
		if errors.Is(err, enterprise.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownTenant, tenantID)
		}
		return nil, fmt.Errorf("failed to resolve tenant %s: %w", tenantID, err)
	}

	r.cache.Add(tenantID, tc)
	return tc, nil
}

// Invalidate drops a memoized tenant. Callers that delete an enterprise
// use this so the id stops resolving immediately instead of after the
// cache TTL.
func (r *Resolver) Invalidate(tenantID string) {
	r.cache.Remove(tenantID)
}
