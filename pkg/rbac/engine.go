package rbac

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/linkdeck/linkdeck/pkg/auth"
	"github.com/linkdeck/linkdeck/pkg/orgs"
)

// SlowCheckThreshold flags checks that took suspiciously long.
const SlowCheckThreshold = 100 * time.Millisecond

// MembershipSource reads membership rows.
type MembershipSource interface {
	GetMember(ctx context.Context, orgID, userID string) (*orgs.Member, error)
}

// Engine composes the super-admin bypass, the per-request membership memo,
// and the role resolver into a single permission decision.
type Engine struct {
	members  MembershipSource
	resolver *Resolver
	metrics  *Metrics
	log      *logrus.Logger
}

// NewEngine creates a permission engine
func NewEngine(members MembershipSource, resolver *Resolver, metrics *Metrics, log *logrus.Logger) *Engine {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Engine{
		members:  members,
		resolver: resolver,
		metrics:  metrics,
		log:      log,
	}
}

// HasPermission reports whether the user may perform the permission within
// the organization. Storage failures and unresolvable roles deny access;
// nothing here returns an error to the caller.
func (e *Engine) HasPermission(ctx context.Context, user *auth.User, orgID string, permission Permission) bool {
	start := time.Now()
	allowed := e.evaluate(ctx, user, orgID, permission)
	e.observe(allowed, time.Since(start))
	return allowed
}

func (e *Engine) evaluate(ctx context.Context, user *auth.User, orgID string, permission Permission) bool {
	if user != nil && user.IsSuperAdmin {
		return true
	}
	if user == nil || orgID == "" || permission == "" {
		return false
	}

	role, ok := e.memberRole(ctx, user.ID, orgID)
	if !ok {
		return false
	}

	set, ok := e.resolver.Resolve(ctx, orgID, role)
	if !ok {
		// The membership references a role that no longer resolves;
		// deny and flag the inconsistency for investigation.
		e.log.WithFields(logrus.Fields{
			"user": truncate(user.ID),
			"org":  truncate(orgID),
			"role": truncate(string(role)),
		}).Warn("membership references unresolvable role, denying")
		return false
	}

	if !set.Has(permission) {
		e.log.WithFields(logrus.Fields{
			"user":       truncate(user.ID),
			"org":        truncate(orgID),
			"permission": string(permission),
		}).Debug("permission denied")
		return false
	}

	return true
}

// memberRole resolves the user's role in the org, consulting the
// per-request memo when one is attached to the context.
func (e *Engine) memberRole(ctx context.Context, userID, orgID string) (auth.Role, bool) {
	memo := MemoFromContext(ctx)
	if memo != nil {
		if role, ok := memo.Get(userID, orgID); ok {
			e.memoLookup("hit")
			return role, true
		}
		e.memoLookup("miss")
	}

	member, err := e.members.GetMember(ctx, orgID, userID)
	if err != nil {
		if !errors.Is(err, orgs.ErrMemberNotFound) {
			e.log.WithError(err).WithFields(logrus.Fields{
				"user": truncate(userID),
				"org":  truncate(orgID),
			}).Warn("membership read failed, denying")
		}
		return "", false
	}

	if memo != nil {
		memo.Put(userID, orgID, member.Role)
	}
	return member.Role, true
}

func (e *Engine) memoLookup(result string) {
	if e.metrics != nil {
		e.metrics.MemoLookups.WithLabelValues(result).Inc()
	}
}

func (e *Engine) observe(allowed bool, elapsed time.Duration) {
	if e.metrics == nil {
		return
	}
	outcome := "denied"
	if allowed {
		outcome = "allowed"
	}
	e.metrics.ChecksTotal.WithLabelValues(outcome).Inc()
	e.metrics.CheckDuration.Observe(elapsed.Seconds())
	if elapsed > SlowCheckThreshold {
		e.metrics.SlowChecks.Inc()
	}
}
