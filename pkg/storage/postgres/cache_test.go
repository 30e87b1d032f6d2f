package postgres

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/platinummonkey/usher/pkg/storage"
)

// setupDirectoryCacheTest creates a miniredis-backed directory cache
func setupDirectoryCacheTest(t *testing.T, ttl time.Duration) (*DirectoryCache, *miniredis.Miniredis, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}

	client, err := NewRedisClient(storage.Config{
		RedisURL: "redis://" + mr.Addr(),
	})
	if err != nil {
		mr.Close()
		t.Fatalf("Failed to create Redis client: %v", err)
	}

	cache := NewDirectoryCache(client, ttl)

	cleanup := func() {
		client.Close()
		mr.Close()
	}

	return cache, mr, cleanup
}

func TestNewDirectoryCache(t *testing.T) {
	cache, _, cleanup := setupDirectoryCacheTest(t, 5*time.Minute)
	defer cleanup()

	if cache == nil {
		t.Fatal("Expected cache to be non-nil")
	}
	if cache.TTL() != 5*time.Minute {
		t.Errorf("Expected TTL 5m, got %v", cache.TTL())
	}
}

func TestDirectoryKey(t *testing.T) {
	tests := []struct {
		email    string
		expected string
	}{
		{"admin@acme.test", "directory:admin:admin@acme.test"},
		{"Admin@Acme.Test", "directory:admin:admin@acme.test"},
		{"  admin@acme.test  ", "directory:admin:admin@acme.test"},
		{"ADMIN@ACME.TEST", "directory:admin:admin@acme.test"},
	}

	for _, tt := range tests {
		if got := directoryKey(tt.email); got != tt.expected {
			t.Errorf("directoryKey(%q) = %q, want %q", tt.email, got, tt.expected)
		}
	}
}

func TestDirectoryCache_SetAndGet(t *testing.T) {
	cache, _, cleanup := setupDirectoryCacheTest(t, 0)
	defer cleanup()

	ctx := context.Background()

	err := cache.SetAdminOrganization(ctx, "admin@acme.test", "org_2N9qX4vT")
	if err != nil {
		t.Fatalf("SetAdminOrganization failed: %v", err)
	}

	orgID, found, err := cache.GetAdminOrganization(ctx, "admin@acme.test")
	if err != nil {
		t.Fatalf("GetAdminOrganization failed: %v", err)
	}
	if !found {
		t.Fatal("Expected mapping to be found")
	}
	if orgID != "org_2N9qX4vT" {
		t.Errorf("Expected organization org_2N9qX4vT, got %s", orgID)
	}
}

func TestDirectoryCache_Get_Miss(t *testing.T) {
	cache, _, cleanup := setupDirectoryCacheTest(t, 0)
	defer cleanup()

	ctx := context.Background()

	orgID, found, err := cache.GetAdminOrganization(ctx, "unknown@acme.test")
	if err != nil {
		t.Fatalf("Expected miss to not be an error, got: %v", err)
	}
	if found {
		t.Fatal("Expected mapping to not be found")
	}
	if orgID != "" {
		t.Errorf("Expected empty organization on miss, got %s", orgID)
	}
}

func TestDirectoryCache_CaseInsensitiveLookup(t *testing.T) {
	cache, _, cleanup := setupDirectoryCacheTest(t, 0)
	defer cleanup()

	ctx := context.Background()

	if err := cache.SetAdminOrganization(ctx, "Admin@Acme.Test", "org_2N9qX4vT"); err != nil {
		t.Fatalf("SetAdminOrganization failed: %v", err)
	}

	// Lookup with different casing and surrounding whitespace
	for _, email := range []string{"admin@acme.test", "ADMIN@ACME.TEST", "  admin@acme.test "} {
		orgID, found, err := cache.GetAdminOrganization(ctx, email)
		if err != nil {
			t.Fatalf("GetAdminOrganization(%q) failed: %v", email, err)
		}
		if !found {
			t.Fatalf("Expected mapping to be found for %q", email)
		}
		if orgID != "org_2N9qX4vT" {
			t.Errorf("Expected org_2N9qX4vT for %q, got %s", email, orgID)
		}
	}
}

func TestDirectoryCache_Set_RequiresEmailAndOrganization(t *testing.T) {
	cache, _, cleanup := setupDirectoryCacheTest(t, 0)
	defer cleanup()

	ctx := context.Background()

	if err := cache.SetAdminOrganization(ctx, "", "org_2N9qX4vT"); err == nil {
		t.Error("Expected error for empty email")
	}

	if err := cache.SetAdminOrganization(ctx, "admin@acme.test", ""); err == nil {
		t.Error("Expected error for empty organization ID")
	}
}

func TestDirectoryCache_Overwrite(t *testing.T) {
	cache, _, cleanup := setupDirectoryCacheTest(t, 0)
	defer cleanup()

	ctx := context.Background()

	if err := cache.SetAdminOrganization(ctx, "admin@acme.test", "org_old"); err != nil {
		t.Fatalf("SetAdminOrganization failed: %v", err)
	}
	if err := cache.SetAdminOrganization(ctx, "admin@acme.test", "org_new"); err != nil {
		t.Fatalf("SetAdminOrganization failed: %v", err)
	}

	orgID, found, err := cache.GetAdminOrganization(ctx, "admin@acme.test")
	if err != nil {
		t.Fatalf("GetAdminOrganization failed: %v", err)
	}
	if !found {
		t.Fatal("Expected mapping to be found")
	}
	if orgID != "org_new" {
		t.Errorf("Expected overwritten organization org_new, got %s", orgID)
	}
}

func TestDirectoryCache_EntriesExpire(t *testing.T) {
	cache, mr, cleanup := setupDirectoryCacheTest(t, 10*time.Minute)
	defer cleanup()

	ctx := context.Background()

	if err := cache.SetAdminOrganization(ctx, "admin@acme.test", "org_2N9qX4vT"); err != nil {
		t.Fatalf("SetAdminOrganization failed: %v", err)
	}

	_, found, err := cache.GetAdminOrganization(ctx, "admin@acme.test")
	if err != nil {
		t.Fatalf("GetAdminOrganization failed: %v", err)
	}
	if !found {
		t.Fatal("Expected mapping to be present before expiry")
	}

	mr.FastForward(11 * time.Minute)

	_, found, err = cache.GetAdminOrganization(ctx, "admin@acme.test")
	if err != nil {
		t.Fatalf("GetAdminOrganization after expiry failed: %v", err)
	}
	if found {
		t.Fatal("Expected mapping to be expired")
	}
}

func TestDirectoryCache_ZeroTTLNeverExpires(t *testing.T) {
	cache, mr, cleanup := setupDirectoryCacheTest(t, 0)
	defer cleanup()

	ctx := context.Background()

	if err := cache.SetAdminOrganization(ctx, "admin@acme.test", "org_2N9qX4vT"); err != nil {
		t.Fatalf("SetAdminOrganization failed: %v", err)
	}

	mr.FastForward(30 * 24 * time.Hour)

	_, found, err := cache.GetAdminOrganization(ctx, "admin@acme.test")
	if err != nil {
		t.Fatalf("GetAdminOrganization failed: %v", err)
	}
	if !found {
		t.Fatal("Expected mapping without TTL to survive")
	}
}

func TestDirectoryCache_Invalidate(t *testing.T) {
	cache, _, cleanup := setupDirectoryCacheTest(t, 0)
	defer cleanup()

	ctx := context.Background()

	if err := cache.SetAdminOrganization(ctx, "admin@acme.test", "org_2N9qX4vT"); err != nil {
		t.Fatalf("SetAdminOrganization failed: %v", err)
	}

	if err := cache.InvalidateAdminOrganization(ctx, "Admin@Acme.Test"); err != nil {
		t.Fatalf("InvalidateAdminOrganization failed: %v", err)
	}

	_, found, err := cache.GetAdminOrganization(ctx, "admin@acme.test")
	if err != nil {
		t.Fatalf("GetAdminOrganization failed: %v", err)
	}
	if found {
		t.Fatal("Expected mapping to be removed")
	}
}

func TestDirectoryCache_Invalidate_AbsentEntry(t *testing.T) {
	cache, _, cleanup := setupDirectoryCacheTest(t, 0)
	defer cleanup()

	ctx := context.Background()

	// Invalidating a mapping that was never written is not an error
	if err := cache.InvalidateAdminOrganization(ctx, "never-onboarded@acme.test"); err != nil {
		t.Fatalf("Expected invalidating absent entry to succeed, got: %v", err)
	}
}

func TestDirectoryCache_RedisUnavailable(t *testing.T) {
	cache, mr, cleanup := setupDirectoryCacheTest(t, 0)
	defer cleanup()

	ctx := context.Background()

	if err := cache.SetAdminOrganization(ctx, "admin@acme.test", "org_2N9qX4vT"); err != nil {
		t.Fatalf("SetAdminOrganization failed: %v", err)
	}

	mr.Close()

	if err := cache.SetAdminOrganization(ctx, "other@acme.test", "org_other"); err == nil {
		t.Error("Expected set to fail with redis down")
	}

	if _, _, err := cache.GetAdminOrganization(ctx, "admin@acme.test"); err == nil {
		t.Error("Expected get to fail with redis down")
	}
}

func TestDirectoryCache_ConcurrentAccess(t *testing.T) {
	cache, _, cleanup := setupDirectoryCacheTest(t, 0)
	defer cleanup()

	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			email := fmt.Sprintf("admin%d@acme.test", n)
			orgID := fmt.Sprintf("org_%d", n)

			if err := cache.SetAdminOrganization(ctx, email, orgID); err != nil {
				t.Errorf("SetAdminOrganization failed: %v", err)
				return
			}

			got, found, err := cache.GetAdminOrganization(ctx, email)
			if err != nil {
				t.Errorf("GetAdminOrganization failed: %v", err)
				return
			}
			if !found {
				t.Errorf("Expected mapping for %s", email)
				return
			}
			if got != orgID {
				t.Errorf("Expected %s, got %s", orgID, got)
			}
		}(i)
	}
	wg.Wait()
}
