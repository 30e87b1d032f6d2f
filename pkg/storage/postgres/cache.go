package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// DirectoryCache maps admin email addresses to identity provider organization
// IDs in Redis. Login flows in other services use the mapping to route an
// admin straight to their organization before any database lookup.
//
// Writes happen during onboarding and are best-effort there; the mapping can
// always be rebuilt from the admins table.
type DirectoryCache struct {
	redis *RedisClient
	ttl   time.Duration
}

// NewDirectoryCache creates a directory cache. A zero ttl means entries never
// expire.
func NewDirectoryCache(redis *RedisClient, ttl time.Duration) *DirectoryCache {
	return &DirectoryCache{
		redis: redis,
		ttl:   ttl,
	}
}

// directoryKey normalizes the email so lookups are case-insensitive
func directoryKey(email string) string {
	return fmt.Sprintf("directory:admin:%s", strings.ToLower(strings.TrimSpace(email)))
}

// SetAdminOrganization stores the email → organization mapping
func (c *DirectoryCache) SetAdminOrganization(ctx context.Context, email, organizationID string) error {
	if email == "" || organizationID == "" {
		return fmt.Errorf("email and organization ID are required")
	}

	if err := c.redis.Set(ctx, directoryKey(email), organizationID, c.ttl); err != nil {
		return fmt.Errorf("failed to set directory entry: %w", err)
	}
	return nil
}

// GetAdminOrganization looks up the organization for an admin email. A miss
// returns ("", false, nil).
func (c *DirectoryCache) GetAdminOrganization(ctx context.Context, email string) (string, bool, error) {
	organizationID, found, err := c.redis.Get(ctx, directoryKey(email))
	if err != nil {
		return "", false, fmt.Errorf("failed to get directory entry: %w", err)
	}
	return organizationID, found, nil
}

// InvalidateAdminOrganization removes the mapping, for example when an
// enterprise is deleted
func (c *DirectoryCache) InvalidateAdminOrganization(ctx context.Context, email string) error {
	if err := c.redis.Del(ctx, directoryKey(email)); err != nil {
		return fmt.Errorf("failed to delete directory entry: %w", err)
	}
	return nil
}

// TTL returns the configured entry TTL (zero means no expiry)
func (c *DirectoryCache) TTL() time.Duration {
	return c.ttl
}
