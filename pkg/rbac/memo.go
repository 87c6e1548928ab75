package rbac

import (
	"context"

	"github.com/linkdeck/linkdeck/pkg/auth"
	"github.com/linkdeck/linkdeck/pkg/contextkeys"
)

// Memo caches membership roles for the lifetime of one inbound request so a
// handler checking several permissions reads membership storage once. It is
// never shared across requests and needs no synchronization.
type Memo struct {
	roles map[string]auth.Role
}

// NewMemo creates an empty per-request memo
func NewMemo() *Memo {
	return &Memo{roles: make(map[string]auth.Role)}
}

func memoKey(userID, orgID string) string {
	return userID + "/" + orgID
}

// Get returns the memoized role for (user, org)
func (m *Memo) Get(userID, orgID string) (auth.Role, bool) {
	role, ok := m.roles[memoKey(userID, orgID)]
	return role, ok
}

// Put memoizes the role for (user, org)
func (m *Memo) Put(userID, orgID string, role auth.Role) {
	m.roles[memoKey(userID, orgID)] = role
}

// MemoFromContext returns the request's memo, or nil when none was attached
func MemoFromContext(ctx context.Context) *Memo {
	if memo, ok := ctx.Value(contextkeys.MemoKey).(*Memo); ok {
		return memo
	}
	return nil
}
