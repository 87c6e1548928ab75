package rbac

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/linkdeck/linkdeck/pkg/auth"
	"github.com/linkdeck/linkdeck/pkg/orgs"
)

// RoleSource reads persisted custom role definitions.
type RoleSource interface {
	GetCustomRole(ctx context.Context, orgID, roleID string) (*orgs.CustomRole, error)
}

// Resolver maps a role id within an organization to its permission set.
// System roles resolve from fixed sets with no I/O; custom roles go through
// the injected TTL cache and fall back to role storage on a miss.
type Resolver struct {
	cache RoleCache
	roles RoleSource
	group singleflight.Group
	log   *logrus.Logger
}

// NewResolver creates a role resolver
func NewResolver(cache RoleCache, roles RoleSource, log *logrus.Logger) *Resolver {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Resolver{
		cache: cache,
		roles: roles,
		log:   log,
	}
}

// Resolve returns the permission set for the role, or ok=false when the
// role does not exist. Not-found results are never cached; storage errors
// resolve as not-found so the caller fails closed.
func (r *Resolver) Resolve(ctx context.Context, orgID string, roleID auth.Role) (Set, bool) {
	if set, ok := SystemRoleSet(roleID); ok {
		return set, true
	}

	if set, ok := r.cache.Get(ctx, orgID, string(roleID)); ok {
		return set, true
	}

	// Collapse concurrent misses for the same role into one storage read
	key := cacheKey(orgID, string(roleID))
	v, err, _ := r.group.Do(key, func() (interface{}, error) {
		role, err := r.roles.GetCustomRole(ctx, orgID, string(roleID))
		if err != nil {
			return nil, err
		}
		set := NewSetFromStrings(role.Permissions)
		r.cache.Set(ctx, orgID, string(roleID), set)
		return set, nil
	})
	if err != nil {
		if !errors.Is(err, orgs.ErrRoleNotFound) {
			r.log.WithError(err).WithFields(logrus.Fields{
				"org":  truncate(orgID),
				"role": truncate(string(roleID)),
			}).Warn("role storage read failed, resolving as not-found")
		}
		return nil, false
	}

	return v.(Set), true
}

func truncate(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
