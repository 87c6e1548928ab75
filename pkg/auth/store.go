package auth

import (
	"context"
	"database/sql"
	"fmt"
)

// UserStore persists the local mirror of identity-provider-verified users.
type UserStore interface {
	// Upsert creates the user on first sight and refreshes profile and login
	// fields on every subsequent call. External id and created_at are set
	// only on insert.
	Upsert(ctx context.Context, claims *Claims) (*User, error)

	// Get retrieves a user by external identity id.
	Get(ctx context.Context, id string) (*User, error)
}

// PostgresUserStore implements UserStore using PostgreSQL
type PostgresUserStore struct {
	db *sql.DB
}

// NewPostgresUserStore creates a new PostgresUserStore
func NewPostgresUserStore(db *sql.DB) *PostgresUserStore {
	return &PostgresUserStore{db: db}
}

// Upsert creates or refreshes the local user row
func (s *PostgresUserStore) Upsert(ctx context.Context, claims *Claims) (*User, error) {
	query := `
		INSERT INTO users (id, email, name, provider_role, is_super_admin, created_at, updated_at, last_login_at)
		VALUES ($1, $2, $3, $4, FALSE, NOW(), NOW(), NOW())
		ON CONFLICT (id) DO UPDATE
		SET email = EXCLUDED.email,
		    name = EXCLUDED.name,
		    provider_role = EXCLUDED.provider_role,
		    updated_at = NOW(),
		    last_login_at = NOW()
		RETURNING id, email, name, provider_role, is_super_admin, created_at, updated_at, last_login_at
	`
	user := &User{}
	var lastLogin sql.NullTime
	err := s.db.QueryRowContext(ctx, query, claims.ID, claims.Email, claims.Name, claims.Role).Scan(
		&user.ID, &user.Email, &user.Name, &user.ProviderRole, &user.IsSuperAdmin,
		&user.CreatedAt, &user.UpdatedAt, &lastLogin,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert user: %w", err)
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		user.LastLoginAt = &t
	}
	return user, nil
}

// Get retrieves a user by external identity id
func (s *PostgresUserStore) Get(ctx context.Context, id string) (*User, error) {
	query := `
		SELECT id, email, name, provider_role, is_super_admin, created_at, updated_at, last_login_at
		FROM users
		WHERE id = $1
	`
	user := &User{}
	var lastLogin sql.NullTime
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&user.ID, &user.Email, &user.Name, &user.ProviderRole, &user.IsSuperAdmin,
		&user.CreatedAt, &user.UpdatedAt, &lastLogin,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		user.LastLoginAt = &t
	}
	return user, nil
}
