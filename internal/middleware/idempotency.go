// Package middleware provides shared HTTP middleware utilities.
package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"onboard/pkg/logger"
)

// IdempotencyMiddleware replays the stored response of a request that carries
// an Idempotency-Key already seen for the same path. It guards submit against
// double clicks and client retries after a dropped response.
type IdempotencyMiddleware struct {
	cache  *redis.Client
	ttl    time.Duration
	wait   time.Duration
	logger logger.Logger
}

func NewIdempotencyMiddleware(cache *redis.Client, ttl time.Duration, log logger.Logger) *IdempotencyMiddleware {
	return &IdempotencyMiddleware{
		cache:  cache,
		ttl:    ttl,
		wait:   5 * time.Second,
		logger: log,
	}
}

// Replay is a no-op for requests without an Idempotency-Key header.
func (m *IdempotencyMiddleware) Replay(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("Idempotency-Key")
		if key == "" || r.Method == http.MethodGet {
			next.ServeHTTP(w, r)
			return
		}

		dataKey := fmt.Sprintf("idempotency:data:%s:%s", r.URL.Path, key)
		lockKey := fmt.Sprintf("idempotency:lock:%s:%s", r.URL.Path, key)

		if m.replayCached(w, r, dataKey) {
			return
		}

		ok, err := m.cache.SetNX(r.Context(), lockKey, RequestIDFromContext(r.Context()), m.ttl).Result()
		if err != nil {
			m.logger.Warn("Idempotency store unavailable", map[string]interface{}{"error": err.Error()})
			next.ServeHTTP(w, r)
			return
		}

		if !ok {
			// Another request with this key is in flight; wait for its response.
			deadline := time.Now().Add(m.wait)
			for time.Now().Before(deadline) {
				select {
				case <-r.Context().Done():
					return
				case <-time.After(100 * time.Millisecond):
				}
				if m.replayCached(w, r, dataKey) {
					return
				}
			}
			jsonError(w, http.StatusConflict, "Duplicate request in progress")
			return
		}
		defer m.cache.Del(r.Context(), lockKey)

		cw := newCaptureWriter(w, 1<<20)
		next.ServeHTTP(cw, r)

		// Only successes are stored. A rejected submit (validation, conflict,
		// upstream failure) can be retried with the same key once fixed.
		if cw.status >= http.StatusOK && cw.status < http.StatusMultipleChoices {
			if err := m.cacheResponse(r, dataKey, cw); err != nil {
				m.logger.Warn("Failed to store idempotent response", map[string]interface{}{"error": err.Error()})
			}
		}
	})
}

type capturedResponse struct {
	Status  int               `json:"status"`
	Body    []byte            `json:"body"`
	Headers map[string]string `json:"headers"`
}

func (m *IdempotencyMiddleware) replayCached(w http.ResponseWriter, r *http.Request, dataKey string) bool {
	payload, err := m.cache.Get(r.Context(), dataKey).Bytes()
	if err != nil {
		return false
	}

	var cr capturedResponse
	if err := json.Unmarshal(payload, &cr); err != nil {
		return false
	}

	for k, v := range cr.Headers {
		w.Header().Set(k, v)
	}
	w.Header().Set("Idempotent-Replayed", "true")
	w.WriteHeader(cr.Status)
	_, _ = w.Write(cr.Body)
	return true
}

func (m *IdempotencyMiddleware) cacheResponse(r *http.Request, dataKey string, cw *captureWriter) error {
	if cw.status == 0 || len(cw.buf) == 0 || cw.truncated {
		return nil
	}

	payload, err := json.Marshal(capturedResponse{
		Status:  cw.status,
		Body:    cw.buf,
		Headers: cw.headers,
	})
	if err != nil {
		return err
	}
	return m.cache.Set(r.Context(), dataKey, payload, m.ttl).Err()
}

type captureWriter struct {
	http.ResponseWriter
	buf       []byte
	limit     int
	truncated bool
	status    int
	headers   map[string]string
}

func newCaptureWriter(w http.ResponseWriter, limit int) *captureWriter {
	return &captureWriter{
		ResponseWriter: w,
		buf:            make([]byte, 0, 1024),
		limit:          limit,
		headers:        make(map[string]string),
	}
}

func (w *captureWriter) WriteHeader(statusCode int) {
	w.status = statusCode
	for k, v := range w.ResponseWriter.Header() {
		if len(v) > 0 {
			w.headers[k] = v[0]
		}
	}
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *captureWriter) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.WriteHeader(http.StatusOK)
	}
	if space := w.limit - len(w.buf); space >= len(p) {
		w.buf = append(w.buf, p...)
	} else {
		w.truncated = true
	}
	return w.ResponseWriter.Write(p)
}
