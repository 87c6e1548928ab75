package auth

import "time"

// Role represents organization-level roles. The two system roles are fixed;
// any other value refers to an organization-defined custom role id.
type Role string

const (
	RoleAdmin Role = "admin" // Full access to organization
	RoleUser  Role = "user"  // Standard member access
)

// IsSystem reports whether the role is one of the built-in system roles.
func (r Role) IsSystem() bool {
	return r == RoleAdmin || r == RoleUser
}

// User is the local mirror of an identity-provider-verified account.
type User struct {
	ID           string     `json:"id"` // external identity id
	Email        string     `json:"email"`
	Name         string     `json:"name,omitempty"`
	ProviderRole string     `json:"provider_role,omitempty"`
	IsSuperAdmin bool       `json:"is_super_admin"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
}

// IsAdmin reports whether the identity provider marked the account as an
// administrator. Derived from the role claim, never stored separately.
func (u *User) IsAdmin() bool {
	return u.ProviderRole == "admin"
}

// Claims is the verified identity returned by a session strategy.
type Claims struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

// Result is the outcome of session validation.
type Result struct {
	Valid bool  `json:"valid"`
	User  *User `json:"user,omitempty"`
}
