package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/libraryaddict/KolFaxBot/internal/cache"
)

func TestReportCache_ServesSecondRequestFromCache(t *testing.T) {
	calls := 0

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(`{"success":true}`))
	})

	rc := NewReportCache(cache.NewMemoryCache(), time.Minute)
	wrapped := rc.Middleware(handler)

	first := httptest.NewRecorder()
	wrapped.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	second := httptest.NewRecorder()
	wrapped.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	if calls != 1 {
		t.Fatalf("expected one handler call, got %d", calls)
	}

	if second.Header().Get("X-Cache") != "HIT" {
		t.Fatalf("second response should come from the cache")
	}

	if second.Body.String() != `{"success":true}` {
		t.Fatalf("unexpected cached body %q", second.Body.String())
	}
}

func TestReportCache_DistinctPathsCachedSeparately(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(r.URL.Path))
	})

	rc := NewReportCache(cache.NewMemoryCache(), time.Minute)
	wrapped := rc.Middleware(handler)

	for _, path := range []string{"/api/status", "/api/clans"} {
		rec := httptest.NewRecorder()
		wrapped.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}

	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/clans", nil))

	if rec.Body.String() != "/api/clans" {
		t.Fatalf("wrong body served for /api/clans: %q", rec.Body.String())
	}
}

func TestReportCache_InvalidateForcesRefresh(t *testing.T) {
	calls := 0

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte("fresh"))
	})

	rc := NewReportCache(cache.NewMemoryCache(), time.Minute)
	wrapped := rc.Middleware(handler)

	wrapped.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/status", nil))

	rc.Invalidate()

	wrapped.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/status", nil))

	if calls != 2 {
		t.Fatalf("expected the cache bypassed after invalidation, got %d calls", calls)
	}
}

func TestReportCache_ErrorsAreNotCached(t *testing.T) {
	calls := 0

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	})

	rc := NewReportCache(cache.NewMemoryCache(), time.Minute)
	wrapped := rc.Middleware(handler)

	wrapped.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/status", nil))
	wrapped.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/status", nil))

	if calls != 2 {
		t.Fatalf("error responses must not be cached, got %d calls", calls)
	}
}
