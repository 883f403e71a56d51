package products_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracechain/tracechain/internal/audit"
	"github.com/tracechain/tracechain/internal/auth"
	"github.com/tracechain/tracechain/internal/guard"
	"github.com/tracechain/tracechain/internal/platform/httpx"
	"github.com/tracechain/tracechain/internal/products"
	"github.com/tracechain/tracechain/internal/rbac"
	"github.com/tracechain/tracechain/internal/security"
	_ "github.com/tracechain/tracechain/testing"
)

type stubRepo struct {
	mu       sync.Mutex
	items    map[string]products.Product
	ownerErr error
}

func newStubRepo() *stubRepo {
	return &stubRepo{items: map[string]products.Product{
		"p-1": {ID: "p-1", SKU: "SKU-1", Name: "Coffee", Status: "registered", OwnerID: "maker-1"},
		"p-2": {ID: "p-2", SKU: "SKU-2", Name: "Tea", Status: "registered", OwnerID: "maker-2"},
	}}
}

func (s *stubRepo) Get(_ context.Context, id string) (products.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.items[id]
	if !ok {
		return products.Product{}, products.ErrNotFound
	}
	return p, nil
}

func (s *stubRepo) OwnerOf(ctx context.Context, id string) (string, error) {
	if s.ownerErr != nil {
		return "", s.ownerErr
	}
	p, err := s.Get(ctx, id)
	return p.OwnerID, err
}

func (s *stubRepo) Update(_ context.Context, id string, patch products.Patch) (products.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.items[id]
	if !ok {
		return products.Product{}, products.ErrNotFound
	}
	if patch.Name != nil {
		p.Name = *patch.Name
	}
	if patch.Status != nil {
		p.Status = *patch.Status
	}
	s.items[id] = p
	return p, nil
}

func (s *stubRepo) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		return products.ErrNotFound
	}
	delete(s.items, id)
	return nil
}

type memoryAuditSink struct {
	mu      sync.Mutex
	records []audit.Record
}

func (m *memoryAuditSink) Write(_ context.Context, r audit.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, r)
	return nil
}

type fixture struct {
	router   http.Handler
	repo     *stubRepo
	recorder *security.Recorder
	auditor  *guard.Auditor
	sink     *memoryAuditSink
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := newStubRepo()
	rec := security.NewRecorder()
	sink := &memoryAuditSink{}
	auditor := guard.NewAuditor(nil, sink)
	r := chi.NewRouter()
	products.NewHandler(nil, repo, false).MountRoutes(r, guard.New(nil, guard.WithRecorder(rec)), auditor)
	return &fixture{router: r, repo: repo, recorder: rec, auditor: auditor, sink: sink}
}

func (f *fixture) do(method, path, body string, p *auth.Principal) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if p != nil {
		req = req.WithContext(auth.ContextWithPrincipal(req.Context(), *p))
	}
	res := httptest.NewRecorder()
	f.router.ServeHTTP(res, req)
	f.auditor.Wait()
	return res
}

func TestGetProduct(t *testing.T) {
	f := newFixture(t)

	res := f.do(http.MethodGet, "/products/p-1", "", &auth.Principal{ID: "c-1", Role: rbac.RoleConsumer})
	require.Equal(t, http.StatusOK, res.Code)
	var p products.Product
	require.NoError(t, json.NewDecoder(res.Body).Decode(&p))
	assert.Equal(t, "Coffee", p.Name)
	assert.Equal(t, "100", res.Header().Get("X-RateLimit-Limit"))

	res = f.do(http.MethodGet, "/products/p-1", "", nil)
	assert.Equal(t, http.StatusUnauthorized, res.Code)

	res = f.do(http.MethodGet, "/products/missing", "", &auth.Principal{ID: "c-1", Role: rbac.RoleConsumer})
	assert.Equal(t, http.StatusNotFound, res.Code)
}

func TestUpdateRequiresOwnership(t *testing.T) {
	f := newFixture(t)
	maker := &auth.Principal{ID: "maker-1", Role: rbac.RoleManufacturer}

	res := f.do(http.MethodPatch, "/products/p-1", `{"name":"Arabica"}`, maker)
	require.Equal(t, http.StatusOK, res.Code)
	require.Len(t, f.sink.records, 1)
	assert.Equal(t, "update", f.sink.records[0].Operation)
	assert.Equal(t, http.StatusOK, f.sink.records[0].Status)

	res = f.do(http.MethodPatch, "/products/p-2", `{"name":"Stolen"}`, maker)
	assert.Equal(t, http.StatusForbidden, res.Code)
	assert.Len(t, f.sink.records, 1, "denied requests are not audited")

	res = f.do(http.MethodPatch, "/products/p-1", `{"name":"Nope"}`, &auth.Principal{ID: "c-1", Role: rbac.RoleConsumer})
	assert.Equal(t, http.StatusForbidden, res.Code)

	res = f.do(http.MethodPatch, "/products/p-2", `{"status":"recalled"}`, &auth.Principal{ID: "root", Role: rbac.RoleAdmin})
	assert.Equal(t, http.StatusOK, res.Code)

	assert.Len(t, f.recorder.Events(security.EventQuery{Type: security.EventUnauthorizedAccess}), 2)
}

func TestUpdateValidation(t *testing.T) {
	f := newFixture(t)
	maker := &auth.Principal{ID: "maker-1", Role: rbac.RoleManufacturer}

	for _, body := range []string{`{}`, `{"status":"lost"}`, `{"unknown":1}`, `not-json`} {
		res := f.do(http.MethodPatch, "/products/p-1", body, maker)
		assert.Equal(t, http.StatusBadRequest, res.Code, body)
	}
}

func TestUpdateOwnerLookupFailure(t *testing.T) {
	f := newFixture(t)
	f.repo.ownerErr = errors.New("connection reset")

	res := f.do(http.MethodPatch, "/products/p-1", `{"name":"x"}`, &auth.Principal{ID: "maker-1", Role: rbac.RoleManufacturer})
	require.Equal(t, http.StatusInternalServerError, res.Code)
	var env httpx.ErrorEnvelope
	require.NoError(t, json.NewDecoder(res.Body).Decode(&env))
	assert.Equal(t, "Ownership verification failed", env.Error.Message)
}

func TestDeleteRequiresMFA(t *testing.T) {
	f := newFixture(t)
	admin := &auth.Principal{ID: "root", Role: rbac.RoleAdmin, MFAEnabled: true}

	res := f.do(http.MethodDelete, "/products/p-1", "", admin)
	require.Equal(t, http.StatusForbidden, res.Code)
	assert.Contains(t, res.Body.String(), "Multi-factor authentication required")

	admin.MFAVerified = true
	res = f.do(http.MethodDelete, "/products/p-1", "", admin)
	require.Equal(t, http.StatusNoContent, res.Code)
	require.Len(t, f.sink.records, 1)
	assert.Equal(t, "delete", f.sink.records[0].Operation)
	assert.Equal(t, http.StatusNoContent, f.sink.records[0].Status)

	res = f.do(http.MethodDelete, "/products/p-1", "", admin)
	assert.Equal(t, http.StatusNotFound, res.Code)

	maker := &auth.Principal{ID: "maker-2", Role: rbac.RoleManufacturer}
	res = f.do(http.MethodDelete, "/products/p-2", "", maker)
	assert.Equal(t, http.StatusForbidden, res.Code, "manufacturers lack delete")
}

func TestOwnerResolverHidesMissingProducts(t *testing.T) {
	f := newFixture(t)
	res := f.do(http.MethodPatch, "/products/ghost", `{"name":"x"}`, &auth.Principal{ID: "maker-1", Role: rbac.RoleManufacturer})
	assert.Equal(t, http.StatusForbidden, res.Code)
}
