package middleware

import (
	"net/http"

	"github.com/linkdeck/linkdeck/pkg/audit"
	"github.com/linkdeck/linkdeck/pkg/auth"
	"github.com/linkdeck/linkdeck/pkg/contextkeys"
	"github.com/linkdeck/linkdeck/pkg/httputil"
	"github.com/linkdeck/linkdeck/pkg/orgs"
	"github.com/linkdeck/linkdeck/pkg/rbac"
)

// AuditSink receives fire-and-forget audit events.
type AuditSink interface {
	Submit(event *audit.Event)
}

// OrgIDHeader carries the organization context. It takes precedence over
// the org query parameter.
const OrgIDHeader = "X-Org-ID"

// OrgQueryParam is the fallback organization identifier.
const OrgQueryParam = "org"

// RequirePermission resolves the organization context and gates the wrapped
// handler on the permission engine's decision. Denials are recorded on the
// audit trail when a sink is provided. Must run after RequireSession.
func RequirePermission(engine *rbac.Engine, svc orgs.Service, sink AuditSink, permission rbac.Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := GetUser(r)
			if user == nil {
				httputil.WriteUnauthorized(w, "valid session required")
				return
			}

			orgRef := r.Header.Get(OrgIDHeader)
			if orgRef == "" {
				orgRef = r.URL.Query().Get(OrgQueryParam)
			}
			if orgRef == "" {
				httputil.WriteBadRequest(w, httputil.CodeOrgContextMissing, "organization context required")
				return
			}

			org, err := svc.GetOrganization(r.Context(), orgRef)
			if err != nil || org == nil || !org.IsActive {
				httputil.WriteBadRequest(w, httputil.CodeOrgContextMissing, "organization context required")
				return
			}

			if !engine.HasPermission(r.Context(), user, org.ID, permission) {
				if sink != nil {
					sink.Submit(&audit.Event{
						Type:      audit.EventTypeAccessDenied,
						Status:    audit.StatusDenied,
						UserID:    user.ID,
						Email:     user.Email,
						OrgID:     org.ID,
						IPAddress: httputil.GetClientIP(r),
						UserAgent: r.UserAgent(),
						RequestID: contextkeys.GetRequestID(r.Context()),
						Method:    r.Method,
						Path:      r.URL.Path,
						Metadata:  map[string]interface{}{"permission": string(permission)},
					})
				}
				httputil.WriteForbidden(w, httputil.CodePermissionDenied, "insufficient permissions")
				return
			}

			ctx := contextkeys.WithOrg(r.Context(), org)
			ctx = contextkeys.WithMemberRole(ctx, callerRole(r, user, org.ID))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// callerRole reads the caller's role out of the memo populated by the
// permission check. Super-admins may not be members at all; they surface
// as admin to the wrapped handler.
func callerRole(r *http.Request, user *auth.User, orgID string) auth.Role {
	if memo := rbac.MemoFromContext(r.Context()); memo != nil {
		if role, ok := memo.Get(user.ID, orgID); ok {
			return role
		}
	}
	if user.IsSuperAdmin {
		return auth.RoleAdmin
	}
	return ""
}

// GetOrg extracts the organization from the request context
func GetOrg(r *http.Request) *orgs.Organization {
	org, ok := r.Context().Value(contextkeys.OrgKey).(*orgs.Organization)
	if !ok {
		return nil
	}
	return org
}

// GetMemberRole extracts the caller's resolved role from the request context
func GetMemberRole(r *http.Request) auth.Role {
	role, ok := r.Context().Value(contextkeys.MemberRoleKey).(auth.Role)
	if !ok {
		return ""
	}
	return role
}
