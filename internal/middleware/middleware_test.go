package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"onboard/internal/identity"
	"onboard/pkg/errors"
	"onboard/pkg/logger"
)

type stubVerifier struct {
	token string
	user  uuid.UUID
}

func (s stubVerifier) VerifyToken(_ context.Context, token string) (*identity.Claims, error) {
	if token != s.token {
		return nil, errors.ErrInvalidToken
	}
	return &identity.Claims{UserID: s.user, Email: "ravi@example.com"}, nil
}

func echoUser() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id, ok := UserIDFromContext(r.Context()); ok {
			_, _ = w.Write([]byte(id.String()))
			return
		}
		_, _ = w.Write([]byte("anonymous"))
	})
}

func TestAuthMiddleware(t *testing.T) {
	user := uuid.New()
	mw := NewAuthMiddleware(stubVerifier{token: "good", user: user})

	cases := []struct {
		name     string
		header   string
		required int
		optional string
	}{
		{"no header", "", http.StatusUnauthorized, "anonymous"},
		{"bad scheme", "Basic good", http.StatusUnauthorized, "anonymous"},
		{"bad token", "Bearer nope", http.StatusUnauthorized, "anonymous"},
		{"valid", "Bearer good", http.StatusOK, user.String()},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}

			w := httptest.NewRecorder()
			mw.Authenticate(echoUser()).ServeHTTP(w, req)
			assert.Equal(t, tc.required, w.Code)

			w = httptest.NewRecorder()
			mw.Optional(echoUser()).ServeHTTP(w, req)
			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, tc.optional, w.Body.String())
		})
	}
}

func TestRateLimiter(t *testing.T) {
	rdb, mr := newRedis(t)
	rl := NewRateLimiter(rdb, 2, time.Minute, logger.NewNop())
	h := rl.Limit(echoUser())

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:5555"
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusOK, send().Code)
	second := send()
	assert.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "0", second.Header().Get("X-RateLimit-Remaining"))
	third := send()
	assert.Equal(t, http.StatusTooManyRequests, third.Code)
	assert.Equal(t, "60", third.Header().Get("Retry-After"))

	mr.FastForward(time.Minute + time.Second)
	assert.Equal(t, http.StatusOK, send().Code)
}

func TestRateLimiter_FailsOpen(t *testing.T) {
	rdb, mr := newRedis(t)
	rl := NewRateLimiter(rdb, 1, time.Minute, logger.NewNop())
	mr.Close()

	w := httptest.NewRecorder()
	rl.Limit(echoUser()).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRedisTokenBlacklist(t *testing.T) {
	rdb, mr := newRedis(t)
	bl := NewRedisTokenBlacklist(rdb)
	ctx := context.Background()

	revoked, err := bl.IsBlacklisted(ctx, "tok")
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, bl.Blacklist(ctx, "tok", time.Minute))
	revoked, err = bl.IsBlacklisted(ctx, "tok")
	require.NoError(t, err)
	assert.True(t, revoked)
	for _, k := range mr.Keys() {
		assert.NotContains(t, k, "tok")
	}

	mr.FastForward(2 * time.Minute)
	revoked, err = bl.IsBlacklisted(ctx, "tok")
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestRecoveryAndCorrelation(t *testing.T) {
	h := CorrelationID(Recovery(logger.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"Internal server error"}`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestCORS(t *testing.T) {
	h := CORS([]string{"https://forms.example.com"})(echoUser())

	req := httptest.NewRequest(http.MethodOptions, "/", nil)
	req.Header.Set("Origin", "https://forms.example.com")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://forms.example.com", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
