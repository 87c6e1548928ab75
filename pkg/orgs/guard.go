package orgs

import (
	"context"
	"sync"

	"github.com/linkdeck/linkdeck/pkg/auth"
)

// Guard enforces the last-admin invariant: no demotion or removal may leave
// an organization with zero admins. Mutations that could violate the
// invariant are serialized per organization so two concurrent demotions
// cannot both pass the admin count check.
type Guard struct {
	svc Service

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewGuard creates a guard over the given membership service
func NewGuard(svc Service) *Guard {
	return &Guard{
		svc:   svc,
		locks: make(map[string]*sync.Mutex),
	}
}

// orgLock returns the mutex serializing guarded mutations for one org
func (g *Guard) orgLock(orgID string) *sync.Mutex {
	g.mu.Lock()
	defer g.mu.Unlock()
	lock, ok := g.locks[orgID]
	if !ok {
		lock = &sync.Mutex{}
		g.locks[orgID] = lock
	}
	return lock
}

// WouldOrphanOrg reports whether removing or demoting the given member
// would leave the organization without an admin. It is a no-op for
// non-admin members.
func (g *Guard) WouldOrphanOrg(ctx context.Context, orgID, userID string, currentRole auth.Role) (bool, error) {
	if currentRole != auth.RoleAdmin {
		return false, nil
	}

	count, err := g.svc.CountAdmins(ctx, orgID)
	if err != nil {
		return false, err
	}
	return count <= 1, nil
}

// UpdateMemberRole changes a member's role, rejecting with ErrLastAdmin when
// the change would demote the organization's sole remaining admin.
func (g *Guard) UpdateMemberRole(ctx context.Context, orgID, userID string, newRole auth.Role) error {
	lock := g.orgLock(orgID)
	lock.Lock()
	defer lock.Unlock()

	member, err := g.svc.GetMember(ctx, orgID, userID)
	if err != nil {
		return err
	}

	// Only admin -> non-admin transitions can violate the invariant
	if member.Role == auth.RoleAdmin && newRole != auth.RoleAdmin {
		orphaned, err := g.WouldOrphanOrg(ctx, orgID, userID, member.Role)
		if err != nil {
			return err
		}
		if orphaned {
			return ErrLastAdmin
		}
	}

	return g.svc.UpdateMemberRole(ctx, orgID, userID, newRole)
}

// RemoveMember removes a member, rejecting with ErrLastAdmin when the
// removal would orphan the organization.
func (g *Guard) RemoveMember(ctx context.Context, orgID, userID string) error {
	lock := g.orgLock(orgID)
	lock.Lock()
	defer lock.Unlock()

	member, err := g.svc.GetMember(ctx, orgID, userID)
	if err != nil {
		return err
	}

	orphaned, err := g.WouldOrphanOrg(ctx, orgID, userID, member.Role)
	if err != nil {
		return err
	}
	if orphaned {
		return ErrLastAdmin
	}

	return g.svc.RemoveMember(ctx, orgID, userID)
}
