package rbac

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linkdeck/linkdeck/pkg/auth"
	"github.com/linkdeck/linkdeck/pkg/orgs"
)

func TestResolveSystemRolesWithoutStorage(t *testing.T) {
	roles := &fakeRoles{}
	resolver := NewResolver(NewMemoryRoleCache(16, 0), roles, nil)

	for i := 0; i < 3; i++ {
		set, ok := resolver.Resolve(context.Background(), "acme", auth.RoleAdmin)
		require.True(t, ok)
		assert.True(t, set.Has(PermOrgDelete))

		set, ok = resolver.Resolve(context.Background(), "acme", auth.RoleUser)
		require.True(t, ok)
		assert.True(t, set.Has(PermCardsWrite))
		assert.False(t, set.Has(PermOrgDelete))
	}

	assert.Equal(t, 0, roles.calls, "system roles must resolve with no I/O")
}

func TestResolveCustomRoleCachedWithinTTL(t *testing.T) {
	roles := &fakeRoles{roles: map[string]*orgs.CustomRole{
		"acme/editor": {OrgID: "acme", RoleID: "editor", Permissions: []string{"cards.read"}},
	}}
	resolver := NewResolver(NewMemoryRoleCache(16, time.Minute), roles, nil)

	for i := 0; i < 5; i++ {
		set, ok := resolver.Resolve(context.Background(), "acme", "editor")
		require.True(t, ok)
		assert.True(t, set.Has(PermCardsRead))
	}

	assert.Equal(t, 1, roles.calls, "repeat resolves within the TTL must hit the cache")
}

func TestResolveReloadsAfterExpiry(t *testing.T) {
	roles := &fakeRoles{roles: map[string]*orgs.CustomRole{
		"acme/editor": {OrgID: "acme", RoleID: "editor", Permissions: []string{"cards.read"}},
	}}
	resolver := NewResolver(NewMemoryRoleCache(16, 20*time.Millisecond), roles, nil)

	_, ok := resolver.Resolve(context.Background(), "acme", "editor")
	require.True(t, ok)
	time.Sleep(60 * time.Millisecond)
	_, ok = resolver.Resolve(context.Background(), "acme", "editor")
	require.True(t, ok)

	assert.Equal(t, 2, roles.calls, "expired entry must trigger a fresh storage read")
}

func TestResolveNotFoundNeverCached(t *testing.T) {
	roles := &fakeRoles{}
	resolver := NewResolver(NewMemoryRoleCache(16, time.Minute), roles, nil)

	_, ok := resolver.Resolve(context.Background(), "acme", "ghost")
	assert.False(t, ok)
	_, ok = resolver.Resolve(context.Background(), "acme", "ghost")
	assert.False(t, ok)

	// Both lookups must reach storage: a created role becomes visible
	// immediately, not after a negative-cache TTL.
	assert.Equal(t, 2, roles.calls)
}

func TestResolveStorageErrorResolvesNotFound(t *testing.T) {
	roles := &fakeRoles{err: errors.New("connection refused")}
	resolver := NewResolver(NewMemoryRoleCache(16, time.Minute), roles, nil)

	set, ok := resolver.Resolve(context.Background(), "acme", "editor")
	assert.False(t, ok)
	assert.Nil(t, set)
}

func TestResolveRolesAreOrgScoped(t *testing.T) {
	roles := &fakeRoles{roles: map[string]*orgs.CustomRole{
		"acme/editor":  {OrgID: "acme", RoleID: "editor", Permissions: []string{"cards.read"}},
		"other/editor": {OrgID: "other", RoleID: "editor", Permissions: []string{"tags.write"}},
	}}
	resolver := NewResolver(NewMemoryRoleCache(16, time.Minute), roles, nil)

	set, ok := resolver.Resolve(context.Background(), "acme", "editor")
	require.True(t, ok)
	assert.True(t, set.Has(PermCardsRead))
	assert.False(t, set.Has(PermTagsWrite))

	set, ok = resolver.Resolve(context.Background(), "other", "editor")
	require.True(t, ok)
	assert.True(t, set.Has(PermTagsWrite))
	assert.False(t, set.Has(PermCardsRead))
}
