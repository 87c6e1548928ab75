// Package orgs manages organizations, memberships, and organization-defined
// custom roles, including the invariant that no organization may be left
// without an admin.
package orgs

import (
	"errors"
	"time"

	"github.com/linkdeck/linkdeck/pkg/auth"
)

// Organization represents a tenant
type Organization struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Member represents an organization membership. One row per (org, user).
type Member struct {
	OrgID     string    `json:"organization_id"`
	UserID    string    `json:"user_id"`
	Role      auth.Role `json:"role"`
	AddedBy   string    `json:"added_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CustomRole is an organization-defined role with a persisted permission set
type CustomRole struct {
	OrgID       string    `json:"organization_id"`
	RoleID      string    `json:"role_id"`
	Name        string    `json:"name"`
	Permissions []string  `json:"permissions"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Typed errors for the storage layer
var (
	ErrOrgNotFound     = errors.New("organization not found")
	ErrMemberNotFound  = errors.New("member not found")
	ErrDuplicateMember = errors.New("member already exists")
	ErrRoleNotFound    = errors.New("role not found")
	ErrLastAdmin       = errors.New("organization must retain at least one admin")
)

// AddMemberRequest is the payload for adding a member
type AddMemberRequest struct {
	UserID string    `json:"user_id"`
	Role   auth.Role `json:"role"`
}

// UpdateMemberRequest is the payload for changing a member's role
type UpdateMemberRequest struct {
	Role auth.Role `json:"role"`
}
