// Package contextkeys provides centralized context key definitions
//
// IMPORTANT: All context keys used across the application must be defined here.
// This prevents typos, documents dependencies, and makes key usage discoverable.
//
// USAGE PATTERN:
//   import "github.com/linkdeck/linkdeck/pkg/contextkeys"
//   ctx = context.WithValue(ctx, contextkeys.UserKey, user)
//   user := ctx.Value(contextkeys.UserKey).(*auth.User)
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// UserKey contains *auth.User
	// Set by: middleware.RequireSession (pkg/middleware/session.go)
	// Required by: All protected endpoints, permission middleware
	// Type: *auth.User
	UserKey Key = "auth_user"

	// OrgKey contains *orgs.Organization
	// Set by: middleware.RequirePermission (pkg/middleware/permission.go)
	// Required by: Org-scoped handlers
	// Type: *orgs.Organization
	OrgKey Key = "organization"

	// MemberRoleKey contains the caller's resolved role within the org
	// Set by: middleware.RequirePermission after a successful check
	// Type: auth.Role
	MemberRoleKey Key = "member_role"

	// MemoKey contains *rbac.Memo, the per-request membership memo
	// Set by: middleware.RequireSession
	// Used by: rbac.Engine to avoid repeat membership reads in one request
	// Type: *rbac.Memo
	MemoKey Key = "permission_memo"

	// RequestIDKey contains request ID string (UUID)
	// Set by: httputil.RequestIDMiddleware
	// Used by: Logger, audit trail
	// Type: string
	RequestIDKey Key = "request_id"

	// LoggerKey contains the request-scoped *logrus.Entry
	// Set by: logging middleware
	// Type: *logrus.Entry
	LoggerKey Key = "logger"
)

// WithUser adds the authenticated user to the context
func WithUser(ctx context.Context, user interface{}) context.Context {
	return context.WithValue(ctx, UserKey, user)
}

// WithOrg adds the organization to the context
func WithOrg(ctx context.Context, org interface{}) context.Context {
	return context.WithValue(ctx, OrgKey, org)
}

// WithMemberRole adds the caller's resolved role to the context
func WithMemberRole(ctx context.Context, role interface{}) context.Context {
	return context.WithValue(ctx, MemberRoleKey, role)
}

// WithMemo adds the per-request permission memo to the context
func WithMemo(ctx context.Context, memo interface{}) context.Context {
	return context.WithValue(ctx, MemoKey, memo)
}

// WithRequestID adds request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}
