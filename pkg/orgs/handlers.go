package orgs

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/linkdeck/linkdeck/pkg/audit"
	"github.com/linkdeck/linkdeck/pkg/auth"
	"github.com/linkdeck/linkdeck/pkg/contextkeys"
	"github.com/linkdeck/linkdeck/pkg/httputil"
)

// AuditSink receives fire-and-forget audit events.
type AuditSink interface {
	Submit(event *audit.Event)
}

// Handlers exposes member management over HTTP. All routes are expected to
// be wrapped by the session and permission middleware.
type Handlers struct {
	svc   Service
	guard *Guard
	sink  AuditSink
	log   *logrus.Logger
}

// NewHandlers creates member management handlers
func NewHandlers(svc Service, guard *Guard, sink AuditSink, log *logrus.Logger) *Handlers {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Handlers{svc: svc, guard: guard, sink: sink, log: log}
}

// RegisterRoutes mounts member routes on the router
func (h *Handlers) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/orgs/{org_id}/members", h.ListMembers).Methods(http.MethodGet)
	r.HandleFunc("/orgs/{org_id}/members", h.AddMember).Methods(http.MethodPost)
	r.HandleFunc("/orgs/{org_id}/members/{user_id}", h.UpdateMemberRole).Methods(http.MethodPut)
	r.HandleFunc("/orgs/{org_id}/members/{user_id}", h.RemoveMember).Methods(http.MethodDelete)
}

// ListMembers returns all members of the organization
func (h *Handlers) ListMembers(w http.ResponseWriter, r *http.Request) {
	orgID := mux.Vars(r)["org_id"]

	members, err := h.svc.ListMembers(r.Context(), orgID)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteSuccess(w, members)
}

// AddMember adds a user to the organization
func (h *Handlers) AddMember(w http.ResponseWriter, r *http.Request) {
	orgID := mux.Vars(r)["org_id"]

	var req AddMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequest(w, httputil.CodeBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" {
		httputil.WriteBadRequest(w, httputil.CodeBadRequest, "user_id is required")
		return
	}
	if !h.validRole(r, orgID, req.Role) {
		httputil.WriteBadRequest(w, httputil.CodeInvalidRole, "unknown role: "+string(req.Role))
		return
	}

	addedBy := ""
	if actor, ok := r.Context().Value(contextkeys.UserKey).(*auth.User); ok {
		addedBy = actor.ID
	}

	if err := h.svc.AddMember(r.Context(), orgID, req.UserID, req.Role, addedBy); err != nil {
		if errors.Is(err, ErrDuplicateMember) {
			httputil.WriteConflict(w, httputil.CodeDuplicateMember, "user is already a member")
			return
		}
		httputil.WriteInternalError(w, err)
		return
	}

	h.audit(r, audit.EventTypeMemberAdd, orgID, req.UserID, string(req.Role))
	httputil.WriteCreated(w, &Member{OrgID: orgID, UserID: req.UserID, Role: req.Role, AddedBy: addedBy})
}

// UpdateMemberRole changes a member's role, subject to last-admin protection
func (h *Handlers) UpdateMemberRole(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	orgID, userID := vars["org_id"], vars["user_id"]

	var req UpdateMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequest(w, httputil.CodeBadRequest, "invalid request body")
		return
	}
	if !h.validRole(r, orgID, req.Role) {
		httputil.WriteBadRequest(w, httputil.CodeInvalidRole, "unknown role: "+string(req.Role))
		return
	}

	if err := h.guard.UpdateMemberRole(r.Context(), orgID, userID, req.Role); err != nil {
		h.writeGuardError(w, err)
		return
	}

	h.audit(r, audit.EventTypeMemberRoleChange, orgID, userID, string(req.Role))
	httputil.WriteSuccess(w, map[string]string{"organization_id": orgID, "user_id": userID, "role": string(req.Role)})
}

// RemoveMember removes a member, subject to last-admin protection
func (h *Handlers) RemoveMember(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	orgID, userID := vars["org_id"], vars["user_id"]

	if err := h.guard.RemoveMember(r.Context(), orgID, userID); err != nil {
		h.writeGuardError(w, err)
		return
	}

	h.audit(r, audit.EventTypeMemberRemove, orgID, userID, "")
	httputil.WriteNoContent(w)
}

func (h *Handlers) writeGuardError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrLastAdmin):
		httputil.WriteConflict(w, httputil.CodeLastAdminProtection, "organization must retain at least one admin")
	case errors.Is(err, ErrMemberNotFound):
		httputil.WriteNotFound(w, httputil.CodeMemberNotFound, "member not found")
	default:
		httputil.WriteInternalError(w, err)
	}
}

// validRole accepts system roles and existing custom roles of the org
func (h *Handlers) validRole(r *http.Request, orgID string, role auth.Role) bool {
	if role == "" {
		return false
	}
	if role.IsSystem() {
		return true
	}
	_, err := h.svc.GetCustomRole(r.Context(), orgID, string(role))
	return err == nil
}

func (h *Handlers) audit(r *http.Request, eventType audit.EventType, orgID, subjectID, role string) {
	if h.sink == nil {
		return
	}

	event := &audit.Event{
		Type:      eventType,
		Status:    audit.StatusSuccess,
		OrgID:     orgID,
		IPAddress: httputil.GetClientIP(r),
		UserAgent: r.UserAgent(),
		RequestID: contextkeys.GetRequestID(r.Context()),
		Method:    r.Method,
		Path:      r.URL.Path,
		Metadata:  map[string]interface{}{"subject_user_id": subjectID},
	}
	if actor, ok := r.Context().Value(contextkeys.UserKey).(*auth.User); ok {
		event.UserID = actor.ID
		event.Email = actor.Email
	}
	if role != "" {
		event.Metadata["role"] = role
	}

	h.sink.Submit(event)
}
