// Package rbac answers "may user U perform permission P in organization O".
// System roles carry fixed permission sets; custom roles are persisted per
// organization and served through a TTL cache.
package rbac

import "github.com/linkdeck/linkdeck/pkg/auth"

// Permission is a dotted resource.action permission string
type Permission string

const (
	PermCardsRead     Permission = "cards.read"
	PermCardsWrite    Permission = "cards.write"
	PermCardsReorder  Permission = "cards.reorder"
	PermCardsDelete   Permission = "cards.delete"
	PermTagsRead      Permission = "tags.read"
	PermTagsWrite     Permission = "tags.write"
	PermMembersRead   Permission = "members.read"
	PermMembersWrite  Permission = "members.write"
	PermRolesRead     Permission = "roles.read"
	PermRolesWrite    Permission = "roles.write"
	PermOrgRead       Permission = "org.read"
	PermOrgWrite      Permission = "org.write"
	PermOrgDelete     Permission = "org.delete"
	PermAnalyticsRead Permission = "analytics.read"
)

// Set is a permission set
type Set map[Permission]bool

// Has reports whether the set contains the permission
func (s Set) Has(p Permission) bool {
	return s[p]
}

// NewSet builds a set from permissions
func NewSet(perms ...Permission) Set {
	s := make(Set, len(perms))
	for _, p := range perms {
		s[p] = true
	}
	return s
}

// NewSetFromStrings builds a set from raw permission strings
func NewSetFromStrings(perms []string) Set {
	s := make(Set, len(perms))
	for _, p := range perms {
		s[Permission(p)] = true
	}
	return s
}

// Strings returns the set's permissions as raw strings
func (s Set) Strings() []string {
	out := make([]string, 0, len(s))
	for p := range s {
		out = append(out, string(p))
	}
	return out
}

// systemRoleSets are the fixed, code-defined permission sets
var systemRoleSets = map[auth.Role]Set{
	auth.RoleAdmin: NewSet(
		PermCardsRead, PermCardsWrite, PermCardsReorder, PermCardsDelete,
		PermTagsRead, PermTagsWrite,
		PermMembersRead, PermMembersWrite,
		PermRolesRead, PermRolesWrite,
		PermOrgRead, PermOrgWrite, PermOrgDelete,
		PermAnalyticsRead,
	),
	auth.RoleUser: NewSet(
		PermCardsRead, PermCardsWrite, PermCardsReorder,
		PermTagsRead,
		PermOrgRead,
		PermAnalyticsRead,
	),
}

// SystemRoleSet returns the fixed set for a system role
func SystemRoleSet(role auth.Role) (Set, bool) {
	set, ok := systemRoleSets[role]
	return set, ok
}
