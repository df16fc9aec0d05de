package middleware

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/libraryaddict/KolFaxBot/internal/cache"
)

// ReportCache caches rendered report bodies. Invalidation bumps a generation
// counter instead of deleting keys, so it works the same over the memory and
// redis backends; stale generations simply age out through the TTL.
type ReportCache struct {
	cache cache.Cache
	ttl   time.Duration
	gen   atomic.Uint64
}

func NewReportCache(c cache.Cache, ttl time.Duration) *ReportCache {
	return &ReportCache{cache: c, ttl: ttl}
}

// Invalidate discards every cached report.
func (rc *ReportCache) Invalidate() {
	rc.gen.Add(1)
}

func (rc *ReportCache) key(path string) string {
	return fmt.Sprintf("%d:%s", rc.gen.Load(), path)
}

// Middleware serves GET responses from the cache and stores fresh ones.
func (rc *ReportCache) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			next.ServeHTTP(w, r)

			return
		}

		key := rc.key(r.URL.Path)

		if body, err := rc.cache.Get(r.Context(), key); err == nil {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("X-Cache", "HIT")
			_, _ = w.Write(body)

			return
		}

		recorder := &bodyRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(recorder, r)

		if recorder.status != http.StatusOK {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		if err := rc.cache.Set(ctx, key, recorder.body.Bytes(), rc.ttl); err != nil {
			log.Printf("[ReportCache] Failed to store %s: %v", key, err)
		}
	})
}

// bodyRecorder tees the response body so it can be cached.
type bodyRecorder struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (br *bodyRecorder) WriteHeader(code int) {
	br.status = code
	br.ResponseWriter.WriteHeader(code)
}

func (br *bodyRecorder) Write(p []byte) (int, error) {
	br.body.Write(p)

	return br.ResponseWriter.Write(p)
}
