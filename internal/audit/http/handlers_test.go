package audithttp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tracechain/tracechain/internal/audit"
	"github.com/tracechain/tracechain/internal/platform/httpx"
)

type stubTimelineService struct {
	result      audit.Result
	exportRows  []audit.Record
	lastFilters audit.TimelineFilters
}

func (s *stubTimelineService) Timeline(ctx context.Context, filters audit.TimelineFilters) (audit.Result, error) {
	s.lastFilters = filters
	return s.result, nil
}

func (s *stubTimelineService) Export(ctx context.Context, filters audit.TimelineFilters) ([]audit.Record, error) {
	s.lastFilters = filters
	return s.exportRows, nil
}

func newAuditRouter(t *testing.T, service *stubTimelineService, protect func(http.Handler) http.Handler) http.Handler {
	t.Helper()
	handler := NewHandler(nil, service)
	handler.now = func() time.Time { return time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC) }
	r := chi.NewRouter()
	handler.MountRoutes(r, protect)
	return r
}

func TestTimelineDefaults(t *testing.T) {
	service := &stubTimelineService{result: audit.Result{Rows: []audit.Record{{UserID: "u-1", Operation: "update", Resource: "product"}}, Paging: audit.PagingInfo{Page: 1, PageSize: 20}}}
	router := newAuditRouter(t, service, nil)

	res := httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/audit/records?actor=u-1", nil))

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	var body audit.Result
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Rows) != 1 || body.Rows[0].UserID != "u-1" {
		t.Fatalf("unexpected body %+v", body)
	}
	if service.lastFilters.Actor != "u-1" || service.lastFilters.PageSize != defaultPageSize {
		t.Fatalf("unexpected filters %+v", service.lastFilters)
	}
	wantFrom := time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC)
	if !service.lastFilters.From.Equal(wantFrom) {
		t.Fatalf("expected from %v, got %v", wantFrom, service.lastFilters.From)
	}
}

func TestTimelineInvalidRange(t *testing.T) {
	router := newAuditRouter(t, &stubTimelineService{}, nil)

	res := httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/audit/records?from=2024-03-10&to=2024-03-01", nil))

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
	var env httpx.ErrorEnvelope
	if err := json.NewDecoder(res.Body).Decode(&env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Error.Path != "/audit/records" || env.Error.StatusCode != http.StatusBadRequest {
		t.Fatalf("unexpected envelope %+v", env)
	}
}

func TestExportCSV(t *testing.T) {
	service := &stubTimelineService{exportRows: []audit.Record{{UserID: "u-2", Operation: "delete", Resource: "product", Status: 204}}}
	router := newAuditRouter(t, service, nil)

	res := httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/audit/records.csv", nil))

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if ct := res.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Fatalf("unexpected content type %q", ct)
	}
	if !strings.Contains(res.Body.String(), "u-2") {
		t.Fatalf("expected row in csv body")
	}
}

func TestRoutesAreProtected(t *testing.T) {
	deny := func(http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			httpx.Error(w, r, http.StatusForbidden, "Insufficient permissions")
		})
	}
	router := newAuditRouter(t, &stubTimelineService{}, deny)

	for _, path := range []string{"/audit/records", "/audit/records.csv"} {
		res := httptest.NewRecorder()
		router.ServeHTTP(res, httptest.NewRequest(http.MethodGet, path, nil))
		if res.Code != http.StatusForbidden {
			t.Fatalf("%s: expected 403, got %d", path, res.Code)
		}
	}
}
