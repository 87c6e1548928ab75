package orgs

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/linkdeck/linkdeck/pkg/auth"
)

// Service defines organization and membership storage operations
type Service interface {
	// Organizations
	GetOrganization(ctx context.Context, id string) (*Organization, error)
	GetOrganizationBySlug(ctx context.Context, slug string) (*Organization, error)
	CreateOrganization(ctx context.Context, org *Organization, creatorID string) error

	// Members
	ListMembers(ctx context.Context, orgID string) ([]*Member, error)
	GetMember(ctx context.Context, orgID, userID string) (*Member, error)
	AddMember(ctx context.Context, orgID, userID string, role auth.Role, addedBy string) error
	UpdateMemberRole(ctx context.Context, orgID, userID string, role auth.Role) error
	RemoveMember(ctx context.Context, orgID, userID string) error
	CountAdmins(ctx context.Context, orgID string) (int, error)

	// Custom roles
	GetCustomRole(ctx context.Context, orgID, roleID string) (*CustomRole, error)
	ListCustomRoles(ctx context.Context, orgID string) ([]*CustomRole, error)
	PutCustomRole(ctx context.Context, role *CustomRole) error
}

// PostgresService implements Service using PostgreSQL
type PostgresService struct {
	db *sql.DB
}

// NewPostgresService creates a new PostgresService
func NewPostgresService(db *sql.DB) *PostgresService {
	return &PostgresService{db: db}
}

// GetOrganization retrieves an organization by ID
func (s *PostgresService) GetOrganization(ctx context.Context, id string) (*Organization, error) {
	return s.getOrg(ctx, `SELECT id, name, slug, is_active, created_at, updated_at FROM organizations WHERE id = $1`, id)
}

// GetOrganizationBySlug retrieves an organization by slug
func (s *PostgresService) GetOrganizationBySlug(ctx context.Context, slug string) (*Organization, error) {
	return s.getOrg(ctx, `SELECT id, name, slug, is_active, created_at, updated_at FROM organizations WHERE slug = $1`, slug)
}

func (s *PostgresService) getOrg(ctx context.Context, query, arg string) (*Organization, error) {
	org := &Organization{}
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&org.ID, &org.Name, &org.Slug, &org.IsActive, &org.CreatedAt, &org.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrOrgNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}
	return org, nil
}

// CreateOrganization creates an organization and makes the creator its admin
// in a single transaction.
func (s *PostgresService) CreateOrganization(ctx context.Context, org *Organization, creatorID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO organizations (id, name, slug, is_active)
		VALUES ($1, $2, $3, TRUE)
		RETURNING created_at, updated_at
	`
	if err := tx.QueryRowContext(ctx, query, org.ID, org.Name, org.Slug).
		Scan(&org.CreatedAt, &org.UpdatedAt); err != nil {
		return fmt.Errorf("failed to create organization: %w", err)
	}
	org.IsActive = true

	memberQuery := `
		INSERT INTO organization_members (organization_id, user_id, role, added_by)
		VALUES ($1, $2, $3, $2)
	`
	if _, err := tx.ExecContext(ctx, memberQuery, org.ID, creatorID, auth.RoleAdmin); err != nil {
		return fmt.Errorf("failed to add creator as admin: %w", err)
	}

	return tx.Commit()
}

// ListMembers retrieves all members of an organization
func (s *PostgresService) ListMembers(ctx context.Context, orgID string) ([]*Member, error) {
	query := `
		SELECT organization_id, user_id, role, COALESCE(added_by, ''), created_at, updated_at
		FROM organization_members
		WHERE organization_id = $1
		ORDER BY created_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	var members []*Member
	for rows.Next() {
		member := &Member{}
		if err := rows.Scan(
			&member.OrgID, &member.UserID, &member.Role, &member.AddedBy,
			&member.CreatedAt, &member.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, member)
	}

	return members, rows.Err()
}

// GetMember retrieves a specific membership row
func (s *PostgresService) GetMember(ctx context.Context, orgID, userID string) (*Member, error) {
	query := `
		SELECT organization_id, user_id, role, COALESCE(added_by, ''), created_at, updated_at
		FROM organization_members
		WHERE organization_id = $1 AND user_id = $2
	`
	member := &Member{}
	err := s.db.QueryRowContext(ctx, query, orgID, userID).Scan(
		&member.OrgID, &member.UserID, &member.Role, &member.AddedBy,
		&member.CreatedAt, &member.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrMemberNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get member: %w", err)
	}
	return member, nil
}

// AddMember adds a user to an organization
func (s *PostgresService) AddMember(ctx context.Context, orgID, userID string, role auth.Role, addedBy string) error {
	query := `
		INSERT INTO organization_members (organization_id, user_id, role, added_by)
		VALUES ($1, $2, $3, $4)
	`
	_, err := s.db.ExecContext(ctx, query, orgID, userID, role, nullable(addedBy))
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return ErrDuplicateMember
		}
		return fmt.Errorf("failed to add member: %w", err)
	}
	return nil
}

// UpdateMemberRole updates a member's role
func (s *PostgresService) UpdateMemberRole(ctx context.Context, orgID, userID string, role auth.Role) error {
	query := `
		UPDATE organization_members SET role = $1, updated_at = NOW()
		WHERE organization_id = $2 AND user_id = $3
	`
	result, err := s.db.ExecContext(ctx, query, role, orgID, userID)
	if err != nil {
		return fmt.Errorf("failed to update member role: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrMemberNotFound
	}
	return nil
}

// RemoveMember removes a user from an organization
func (s *PostgresService) RemoveMember(ctx context.Context, orgID, userID string) error {
	query := `DELETE FROM organization_members WHERE organization_id = $1 AND user_id = $2`
	result, err := s.db.ExecContext(ctx, query, orgID, userID)
	if err != nil {
		return fmt.Errorf("failed to remove member: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrMemberNotFound
	}
	return nil
}

// CountAdmins counts current admin memberships in the organization
func (s *PostgresService) CountAdmins(ctx context.Context, orgID string) (int, error) {
	query := `SELECT COUNT(*) FROM organization_members WHERE organization_id = $1 AND role = $2`
	var count int
	if err := s.db.QueryRowContext(ctx, query, orgID, auth.RoleAdmin).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count admins: %w", err)
	}
	return count, nil
}

// GetCustomRole retrieves an organization-defined role
func (s *PostgresService) GetCustomRole(ctx context.Context, orgID, roleID string) (*CustomRole, error) {
	query := `
		SELECT organization_id, role_id, name, permissions, created_at, updated_at
		FROM custom_roles
		WHERE organization_id = $1 AND role_id = $2
	`
	role := &CustomRole{}
	err := s.db.QueryRowContext(ctx, query, orgID, roleID).Scan(
		&role.OrgID, &role.RoleID, &role.Name, pq.Array(&role.Permissions),
		&role.CreatedAt, &role.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrRoleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get custom role: %w", err)
	}
	return role, nil
}

// ListCustomRoles lists an organization's custom roles
func (s *PostgresService) ListCustomRoles(ctx context.Context, orgID string) ([]*CustomRole, error) {
	query := `
		SELECT organization_id, role_id, name, permissions, created_at, updated_at
		FROM custom_roles
		WHERE organization_id = $1
		ORDER BY role_id ASC
	`
	rows, err := s.db.QueryContext(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list custom roles: %w", err)
	}
	defer rows.Close()

	var roles []*CustomRole
	for rows.Next() {
		role := &CustomRole{}
		if err := rows.Scan(
			&role.OrgID, &role.RoleID, &role.Name, pq.Array(&role.Permissions),
			&role.CreatedAt, &role.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan custom role: %w", err)
		}
		roles = append(roles, role)
	}

	return roles, rows.Err()
}

// PutCustomRole creates or replaces a custom role definition
func (s *PostgresService) PutCustomRole(ctx context.Context, role *CustomRole) error {
	query := `
		INSERT INTO custom_roles (organization_id, role_id, name, permissions)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (organization_id, role_id) DO UPDATE
		SET name = EXCLUDED.name, permissions = EXCLUDED.permissions, updated_at = NOW()
		RETURNING created_at, updated_at
	`
	err := s.db.QueryRowContext(ctx, query,
		role.OrgID, role.RoleID, role.Name, pq.Array(role.Permissions),
	).Scan(&role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to put custom role: %w", err)
	}
	return nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
