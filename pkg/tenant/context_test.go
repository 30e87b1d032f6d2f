package tenant

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testTenantID  = "3f2c1e9a-8b4d-4f6e-9a2b-1c7d5e3f8a90"
	testNamespace = "3f2c1e9a8b4d4f6e9a2b1c7d5e3f8a90"
)

func TestNew(t *testing.T) {
	t.Run("derives namespaces from the tenant id", func(t *testing.T) {
		tc, err := New(testTenantID, "")
		require.NoError(t, err)

		assert.Equal(t, testTenantID, tc.TenantID)
		assert.Equal(t, testNamespace, tc.NamespaceID)
		assert.Equal(t, "tenant_"+testNamespace, tc.Schema)
		assert.Equal(t, testNamespace+"_db", tc.DatabaseName)
		assert.False(t, tc.IsDefault())
	})

	t.Run("normalizes uppercase ids to the same namespace", func(t *testing.T) {
		tc, err := New(strings.ToUpper(testTenantID), "")
		require.NoError(t, err)

		assert.Equal(t, testNamespace, tc.NamespaceID)
		assert.Equal(t, "tenant_"+testNamespace, tc.Schema)
	})

	t.Run("honors a custom schema prefix", func(t *testing.T) {
		tc, err := New(testTenantID, "ws_")
		require.NoError(t, err)

		assert.Equal(t, "ws_"+testNamespace, tc.Schema)
		assert.Equal(t, testNamespace+"_db", tc.DatabaseName)
	})

	t.Run("rejects ids that are not UUIDs", func(t *testing.T) {
		tc, err := New("acme.test", "")
		require.Error(t, err)
		assert.Nil(t, tc)
		assert.Contains(t, err.Error(), "invalid tenant id")
	})
}

func TestNamespaceFor(t *testing.T) {
	tests := []struct {
		name     string
		tenantID string
		want     string
		wantErr  bool
	}{
		{name: "canonical uuid", tenantID: testTenantID, want: testNamespace},
		{name: "uppercase uuid", tenantID: strings.ToUpper(testTenantID), want: testNamespace},
		{name: "empty", tenantID: "", wantErr: true},
		{name: "not a uuid", tenantID: "enterprise-42", wantErr: true},
		{name: "truncated uuid", tenantID: testTenantID[:20], wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NamespaceFor(tt.tenantID)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Len(t, got, 32)
		})
	}
}

func TestDefault(t *testing.T) {
	tc := Default()

	assert.True(t, tc.IsDefault())
	assert.Equal(t, DefaultSchema, tc.Schema)
	assert.Empty(t, tc.TenantID)
	assert.Empty(t, tc.DatabaseName)
}

func TestIsDefault(t *testing.T) {
	var nilCtx *Context
	assert.True(t, nilCtx.IsDefault())

	tc, err := New(testTenantID, "")
	require.NoError(t, err)
	assert.False(t, tc.IsDefault())
}

func TestFromContext(t *testing.T) {
	t.Run("falls back to the shared default", func(t *testing.T) {
		tc := FromContext(context.Background())

		require.NotNil(t, tc)
		assert.Equal(t, DefaultSchema, tc.Schema)
	})

	t.Run("round-trips through WithContext", func(t *testing.T) {
		want, err := New(testTenantID, "")
		require.NoError(t, err)

		ctx := WithContext(context.Background(), want)
		assert.Same(t, want, FromContext(ctx))
	})

	t.Run("treats a stored nil as absent", func(t *testing.T) {
		ctx := WithContext(context.Background(), nil)

		tc := FromContext(ctx)
		require.NotNil(t, tc)
		assert.Equal(t, DefaultSchema, tc.Schema)
	})
}
