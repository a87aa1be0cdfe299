package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"zoomgo/internal/utils"
	"zoomgo/pkg/auth"
	"zoomgo/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "middleware-test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

func protectedRouter() *gin.Engine {
	router := gin.New()
	router.Use(AuthRequired(auth.NewJWTVerifier(testSecret), logger.Discard()))
	router.GET("/whoami", func(c *gin.Context) {
		fromRequest, _ := auth.UserIDFromContext(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{"gin": c.GetString(utils.ContextUserID), "request": fromRequest})
	})
	return router
}

func issue(t *testing.T, userID string, ttl time.Duration) string {
	t.Helper()
	token, err := auth.IssueToken(userID, "", testSecret, "zoomgo-test", ttl)
	require.NoError(t, err)
	return token
}

func TestAuthRequired_BearerHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+issue(t, "rider-1", time.Hour))
	w := httptest.NewRecorder()

	protectedRouter().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"gin":"rider-1","request":"rider-1"}`, w.Body.String())
}

func TestAuthRequired_CarriesTokenEmail(t *testing.T) {
	router := gin.New()
	router.Use(AuthRequired(auth.NewJWTVerifier(testSecret), logger.Discard()))
	router.GET("/email", func(c *gin.Context) {
		email, ok := auth.ContextAuthenticator{}.CurrentEmail(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{"email": email, "known": ok})
	})

	token, err := auth.IssueToken("rider-1", "rider@example.com", testSecret, "zoomgo-test", time.Hour)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/email", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.JSONEq(t, `{"email":"rider@example.com","known":true}`, w.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/email", nil)
	req.Header.Set("Authorization", "Bearer "+issue(t, "rider-2", time.Hour))
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.JSONEq(t, `{"email":"","known":false}`, w.Body.String())
}

func TestAuthRequired_QueryToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/whoami?access_token="+issue(t, "rider-2", time.Hour), nil)
	w := httptest.NewRecorder()

	protectedRouter().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "rider-2")
}

func TestAuthRequired_Rejects(t *testing.T) {
	testCases := []struct {
		name   string
		header string
		body   string
	}{
		{name: "missing", header: "", body: "Bearer token required"},
		{name: "not bearer", header: "Basic abc", body: "Bearer token required"},
		{name: "garbage", header: "Bearer not-a-token", body: "Invalid token"},
		{name: "expired", header: "Bearer " + issue(t, "rider-1", -time.Minute), body: "Token expired"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()

			protectedRouter().ServeHTTP(w, req)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Contains(t, w.Body.String(), "UNAUTHENTICATED")
			assert.Contains(t, w.Body.String(), tc.body)
		})
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	router := gin.New()
	router.Use(RequestIDMiddleware())
	router.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, logger.RequestIDFromContext(c.Request.Context()))
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "req-42")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, "req-42", w.Body.String())
	assert.Equal(t, "req-42", w.Header().Get("X-Request-ID"))

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	assert.Equal(t, w.Header().Get("X-Request-ID"), w.Body.String())
}

func TestCORSMiddleware(t *testing.T) {
	router := gin.New()
	router.Use(CORSMiddleware([]string{"https://app.zoomgo.test"}))
	router.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/", nil)
	req.Header.Set("Origin", "https://app.zoomgo.test")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://app.zoomgo.test", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://elsewhere.test")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

type fakeCounter struct {
	mu     sync.Mutex
	counts map[string]int64
	err    error
}

func (f *fakeCounter) IncrementWindow(_ context.Context, key string, _ time.Duration) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	if f.counts == nil {
		f.counts = map[string]int64{}
	}
	f.counts[key]++
	return f.counts[key], nil
}

func TestRateLimitMiddleware(t *testing.T) {
	counter := &fakeCounter{}
	router := gin.New()
	router.Use(RateLimitMiddleware(counter, 2, logger.Discard()))
	router.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		codes = append(codes, w.Code)
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestRateLimitMiddleware_CounterFailureAllows(t *testing.T) {
	router := gin.New()
	router.Use(RateLimitMiddleware(&fakeCounter{err: errors.New("redis down")}, 1, logger.Discard()))
	router.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	}
}
