// Package audit records authentication and authorization outcomes as an
// append-only trail. Writes are dispatched off the request path and can
// never change an authorization decision.
package audit

import (
	"encoding/json"
	"time"
)

// EventType represents the category of audit event
type EventType string

const (
	EventTypeSessionValidate  EventType = "auth.session_validate"
	EventTypeSessionInvalid   EventType = "auth.session_invalid"
	EventTypeSessionError     EventType = "auth.session_error"
	EventTypeAccessDenied     EventType = "authz.access_denied"
	EventTypeMemberAdd        EventType = "admin.member_add"
	EventTypeMemberRoleChange EventType = "admin.member_role_change"
	EventTypeMemberRemove     EventType = "admin.member_remove"
)

// EventStatus represents the outcome of an event
type EventStatus string

const (
	StatusSuccess EventStatus = "success"
	StatusInvalid EventStatus = "invalid"
	StatusError   EventStatus = "error"
	StatusDenied  EventStatus = "denied"
)

// Event represents a single audit log entry
type Event struct {
	ID        int64       `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	Type      EventType   `json:"event_type"`
	Status    EventStatus `json:"status"`

	// Actor information
	UserID string `json:"user_id,omitempty"`
	Email  string `json:"email,omitempty"`
	OrgID  string `json:"organization_id,omitempty"`

	// Request context
	IPAddress string `json:"ip_address,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	Method    string `json:"method,omitempty"`
	Path      string `json:"path,omitempty"`

	Message  string                 `json:"message,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// ToJSON converts the audit event to JSON
func (e *Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}
