package auth

import (
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/linkdeck/linkdeck/pkg/audit"
	"github.com/linkdeck/linkdeck/pkg/contextkeys"
	"github.com/linkdeck/linkdeck/pkg/httputil"
)

// AuditSink receives fire-and-forget audit events.
type AuditSink interface {
	Submit(event *audit.Event)
}

// Validator confirms a caller's identity against the configured session
// strategy and mirrors verified users locally.
type Validator struct {
	strategy SessionStrategy
	users    UserStore
	sink     AuditSink
	log      *logrus.Logger
}

// NewValidator creates a session validator
func NewValidator(strategy SessionStrategy, users UserStore, sink AuditSink, log *logrus.Logger) *Validator {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Validator{
		strategy: strategy,
		users:    users,
		sink:     sink,
		log:      log,
	}
}

// Validate authenticates the request. The remote verdict is authoritative:
// any upstream failure yields an invalid session. A failed local mirror
// write does NOT invalidate a remotely verified session; the user object is
// synthesized from the verified claims instead.
func (v *Validator) Validate(r *http.Request) Result {
	ctx := r.Context()

	claims, err := v.strategy.Authenticate(ctx, r)
	if err != nil {
		status := audit.StatusInvalid
		eventType := audit.EventTypeSessionInvalid
		if err != ErrInvalidSession {
			status = audit.StatusError
			eventType = audit.EventTypeSessionError
			v.log.WithError(err).Warn("session validation error")
		}
		v.submit(r, eventType, status, "", "", err)
		return Result{Valid: false}
	}

	user, err := v.users.Upsert(ctx, claims)
	if err != nil {
		// Local cache failure only; the identity is already verified.
		v.log.WithError(err).WithField("user", truncateID(claims.ID)).
			Warn("user mirror upsert failed, using synthesized identity")
		user = synthesizeUser(claims)
	}

	v.submit(r, audit.EventTypeSessionValidate, audit.StatusSuccess, user.ID, user.Email, nil)
	return Result{Valid: true, User: user}
}

// synthesizeUser builds a usable user object from verified claims when the
// local store is unavailable.
func synthesizeUser(claims *Claims) *User {
	now := time.Now().UTC()
	return &User{
		ID:           claims.ID,
		Email:        claims.Email,
		Name:         claims.Name,
		ProviderRole: claims.Role,
		CreatedAt:    now,
		UpdatedAt:    now,
		LastLoginAt:  &now,
	}
}

func (v *Validator) submit(r *http.Request, eventType audit.EventType, status audit.EventStatus, userID, email string, cause error) {
	if v.sink == nil {
		return
	}

	event := &audit.Event{
		Type:      eventType,
		Status:    status,
		UserID:    userID,
		Email:     email,
		IPAddress: httputil.GetClientIP(r),
		UserAgent: r.UserAgent(),
		RequestID: contextkeys.GetRequestID(r.Context()),
		Method:    r.Method,
		Path:      r.URL.Path,
	}
	if cause != nil {
		event.Message = cause.Error()
	}

	v.sink.Submit(event)
}

// truncateID shortens identifiers for log lines so full identity values
// never land in plain logs.
func truncateID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
