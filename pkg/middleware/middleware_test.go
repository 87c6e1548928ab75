package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linkdeck/linkdeck/pkg/audit"
	"github.com/linkdeck/linkdeck/pkg/auth"
	"github.com/linkdeck/linkdeck/pkg/httputil"
	"github.com/linkdeck/linkdeck/pkg/orgs"
	"github.com/linkdeck/linkdeck/pkg/rbac"
)

type stubStrategy struct {
	claims *auth.Claims
}

func (s *stubStrategy) Authenticate(ctx context.Context, r *http.Request) (*auth.Claims, error) {
	if s.claims == nil {
		return nil, auth.ErrInvalidSession
	}
	return s.claims, nil
}

type stubUserStore struct {
	user *auth.User
}

func (s *stubUserStore) Upsert(ctx context.Context, claims *auth.Claims) (*auth.User, error) {
	if s.user != nil {
		return s.user, nil
	}
	return &auth.User{ID: claims.ID, Email: claims.Email, ProviderRole: claims.Role}, nil
}

func (s *stubUserStore) Get(ctx context.Context, id string) (*auth.User, error) {
	return s.user, nil
}

// stubOrgService serves organization lookups and memberships for middleware
// tests; everything else is unused here.
type stubOrgService struct {
	orgs      map[string]*orgs.Organization
	members   map[string]auth.Role // "org/user" -> role
	lookupIDs []string
}

func (s *stubOrgService) GetOrganization(ctx context.Context, id string) (*orgs.Organization, error) {
	s.lookupIDs = append(s.lookupIDs, id)
	org, ok := s.orgs[id]
	if !ok {
		return nil, orgs.ErrOrgNotFound
	}
	return org, nil
}

func (s *stubOrgService) GetOrganizationBySlug(ctx context.Context, slug string) (*orgs.Organization, error) {
	return nil, orgs.ErrOrgNotFound
}

func (s *stubOrgService) CreateOrganization(ctx context.Context, org *orgs.Organization, creatorID string) error {
	return nil
}

func (s *stubOrgService) ListMembers(ctx context.Context, orgID string) ([]*orgs.Member, error) {
	return nil, nil
}

func (s *stubOrgService) GetMember(ctx context.Context, orgID, userID string) (*orgs.Member, error) {
	role, ok := s.members[orgID+"/"+userID]
	if !ok {
		return nil, orgs.ErrMemberNotFound
	}
	return &orgs.Member{OrgID: orgID, UserID: userID, Role: role}, nil
}

func (s *stubOrgService) AddMember(ctx context.Context, orgID, userID string, role auth.Role, addedBy string) error {
	return nil
}

func (s *stubOrgService) UpdateMemberRole(ctx context.Context, orgID, userID string, role auth.Role) error {
	return nil
}

func (s *stubOrgService) RemoveMember(ctx context.Context, orgID, userID string) error {
	return nil
}

func (s *stubOrgService) CountAdmins(ctx context.Context, orgID string) (int, error) {
	return 1, nil
}

func (s *stubOrgService) GetCustomRole(ctx context.Context, orgID, roleID string) (*orgs.CustomRole, error) {
	return nil, orgs.ErrRoleNotFound
}

func (s *stubOrgService) ListCustomRoles(ctx context.Context, orgID string) ([]*orgs.CustomRole, error) {
	return nil, nil
}

func (s *stubOrgService) PutCustomRole(ctx context.Context, role *orgs.CustomRole) error {
	return nil
}

func newStubService() *stubOrgService {
	return &stubOrgService{
		orgs: map[string]*orgs.Organization{
			"acme": {ID: "acme", Name: "Acme", Slug: "acme", IsActive: true},
		},
		members: map[string]auth.Role{},
	}
}

func newStubEngine(svc *stubOrgService) *rbac.Engine {
	resolver := rbac.NewResolver(rbac.NewMemoryRoleCache(16, 0), svc, nil)
	return rbac.NewEngine(svc, resolver, nil, nil)
}

func sessionValidator(claims *auth.Claims) *auth.Validator {
	return auth.NewValidator(&stubStrategy{claims: claims}, &stubUserStore{}, nil, nil)
}

func decodeErrorCode(t *testing.T, rec *httptest.ResponseRecorder) httputil.ErrorCode {
	t.Helper()
	var resp httputil.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Code
}

func okHandler(called *bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*called = true
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequireSessionRejectsInvalidSession(t *testing.T) {
	called := false
	handler := RequireSession(sessionValidator(nil))(okHandler(&called))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/cards", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, httputil.CodeUnauthorized, decodeErrorCode(t, rec))
	assert.False(t, called)
}

func TestRequireSessionAttachesUser(t *testing.T) {
	var got *auth.User
	handler := RequireSession(sessionValidator(&auth.Claims{ID: "u1", Email: "u1@example.com"}))(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got = GetUser(r)
			w.WriteHeader(http.StatusOK)
		}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/cards", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, got)
	assert.Equal(t, "u1", got.ID)
}

func protectedChain(svc *stubOrgService, claims *auth.Claims, permission rbac.Permission, next http.Handler) http.Handler {
	engine := newStubEngine(svc)
	return RequireSession(sessionValidator(claims))(
		RequirePermission(engine, svc, nil, permission)(next))
}

func TestRequirePermissionMissingOrgContext(t *testing.T) {
	svc := newStubService()
	called := false
	handler := protectedChain(svc, &auth.Claims{ID: "u1"}, rbac.PermCardsRead, okHandler(&called))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/cards", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, httputil.CodeOrgContextMissing, decodeErrorCode(t, rec))
	assert.False(t, called)
}

func TestRequirePermissionHeaderTakesPrecedenceOverQuery(t *testing.T) {
	svc := newStubService()
	svc.members["acme/u1"] = auth.RoleUser
	called := false
	handler := protectedChain(svc, &auth.Claims{ID: "u1"}, rbac.PermCardsRead, okHandler(&called))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cards?org=other", nil)
	req.Header.Set(OrgIDHeader, "acme")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, svc.lookupIDs)
	assert.Equal(t, "acme", svc.lookupIDs[0])
	assert.True(t, called)
}

func TestRequirePermissionQueryParamFallback(t *testing.T) {
	svc := newStubService()
	svc.members["acme/u1"] = auth.RoleUser
	called := false
	handler := protectedChain(svc, &auth.Claims{ID: "u1"}, rbac.PermCardsRead, okHandler(&called))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/cards?org=acme", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, called)
}

func TestRequirePermissionUnknownOrg(t *testing.T) {
	svc := newStubService()
	called := false
	handler := protectedChain(svc, &auth.Claims{ID: "u1"}, rbac.PermCardsRead, okHandler(&called))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cards", nil)
	req.Header.Set(OrgIDHeader, "nope")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, httputil.CodeOrgContextMissing, decodeErrorCode(t, rec))
	assert.False(t, called)
}

func TestRequirePermissionInactiveOrg(t *testing.T) {
	svc := newStubService()
	svc.orgs["dead"] = &orgs.Organization{ID: "dead", IsActive: false}
	svc.members["dead/u1"] = auth.RoleAdmin
	called := false
	handler := protectedChain(svc, &auth.Claims{ID: "u1"}, rbac.PermCardsRead, okHandler(&called))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cards", nil)
	req.Header.Set(OrgIDHeader, "dead")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, called)
}

func TestRequirePermissionDenied(t *testing.T) {
	svc := newStubService()
	svc.members["acme/u1"] = auth.RoleUser
	called := false
	handler := protectedChain(svc, &auth.Claims{ID: "u1"}, rbac.PermOrgDelete, okHandler(&called))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/org", nil)
	req.Header.Set(OrgIDHeader, "acme")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, httputil.CodePermissionDenied, decodeErrorCode(t, rec))
	assert.False(t, called)
}

type sinkRecorder struct {
	events []*audit.Event
}

func (s *sinkRecorder) Submit(event *audit.Event) {
	s.events = append(s.events, event)
}

func TestRequirePermissionDenialIsAudited(t *testing.T) {
	svc := newStubService()
	svc.members["acme/u1"] = auth.RoleUser
	sink := &sinkRecorder{}
	engine := newStubEngine(svc)

	handler := RequireSession(sessionValidator(&auth.Claims{ID: "u1", Email: "u1@example.com"}))(
		RequirePermission(engine, svc, sink, rbac.PermOrgDelete)(okHandler(new(bool))))

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/org", nil)
	req.Header.Set(OrgIDHeader, "acme")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Len(t, sink.events, 1)
	assert.Equal(t, audit.EventTypeAccessDenied, sink.events[0].Type)
	assert.Equal(t, audit.StatusDenied, sink.events[0].Status)
	assert.Equal(t, "acme", sink.events[0].OrgID)
	assert.Equal(t, "org.delete", sink.events[0].Metadata["permission"])
}

func TestRequirePermissionAttachesOrgAndRole(t *testing.T) {
	svc := newStubService()
	svc.members["acme/u1"] = auth.RoleAdmin

	var gotOrg *orgs.Organization
	var gotRole auth.Role
	handler := protectedChain(svc, &auth.Claims{ID: "u1"}, rbac.PermMembersWrite,
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotOrg = GetOrg(r)
			gotRole = GetMemberRole(r)
			w.WriteHeader(http.StatusOK)
		}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orgs/acme/members", nil)
	req.Header.Set(OrgIDHeader, "acme")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, gotOrg)
	assert.Equal(t, "acme", gotOrg.ID)
	assert.Equal(t, auth.RoleAdmin, gotRole)
}

func TestRequirePermissionSuperAdminWithoutMembership(t *testing.T) {
	svc := newStubService()
	validator := auth.NewValidator(
		&stubStrategy{claims: &auth.Claims{ID: "root"}},
		&stubUserStore{user: &auth.User{ID: "root", IsSuperAdmin: true}},
		nil, nil)
	engine := newStubEngine(svc)

	var gotRole auth.Role
	handler := RequireSession(validator)(
		RequirePermission(engine, svc, nil, rbac.PermOrgDelete)(
			http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotRole = GetMemberRole(r)
				w.WriteHeader(http.StatusOK)
			})))

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/org", nil)
	req.Header.Set(OrgIDHeader, "acme")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, auth.RoleAdmin, gotRole, "super-admins surface as admin to handlers")
}
