package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
)

func rateLimitedRouter(limiter gin.HandlerFunc) *gin.Engine {
	router := gin.New()
	router.Use(ErrorHandler(), limiter)
	router.GET("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "success"})
	})
	return router
}

func doGet(router *gin.Engine, remoteAddr string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/test", nil)
	req.RemoteAddr = remoteAddr
	router.ServeHTTP(w, req)
	return w
}

func TestRateLimiter_AllowsUnderLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	client, mock := redismock.NewClientMock()
	window := time.Minute
	key := "ratelimit:public:192.168.1.1"

	mock.ExpectTxPipeline()
	mock.ExpectIncr(key).SetVal(2)
	mock.ExpectExpireNX(key, window).SetVal(false)
	mock.ExpectTxPipelineExec()

	router := rateLimitedRouter(RateLimiter(client, "public", 5, window, ByClientIP))
	w := doGet(router, "192.168.1.1:1234")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "5", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "3", w.Header().Get("X-RateLimit-Remaining"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRateLimiter_BlocksOverLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	client, mock := redismock.NewClientMock()
	window := time.Minute
	key := "ratelimit:public:192.168.1.1"

	mock.ExpectTxPipeline()
	mock.ExpectIncr(key).SetVal(4)
	mock.ExpectExpireNX(key, window).SetVal(false)
	mock.ExpectTxPipelineExec()
	mock.ExpectTTL(key).SetVal(42 * time.Second)

	router := rateLimitedRouter(RateLimiter(client, "public", 3, window, ByClientIP))
	w := doGet(router, "192.168.1.1:1234")

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "42", w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), "RATE_LIMIT_EXCEEDED")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRateLimiter_FailsOpenWhenRedisDown(t *testing.T) {
	gin.SetMode(gin.TestMode)
	client, mock := redismock.NewClientMock()
	key := "ratelimit:public:10.0.0.1"

	mock.ExpectTxPipeline()
	mock.ExpectIncr(key).SetErr(errors.New("connection refused"))

	router := rateLimitedRouter(RateLimiter(client, "public", 1, time.Minute, ByClientIP))
	w := doGet(router, "10.0.0.1:5555")

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimiter_DisabledWithoutClientOrLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := rateLimitedRouter(RateLimiter(nil, "public", 1, time.Minute, ByClientIP))
	assert.Equal(t, http.StatusOK, doGet(router, "10.0.0.1:5555").Code)

	client, mock := redismock.NewClientMock()
	router = rateLimitedRouter(RateLimiter(client, "public", 0, time.Minute, ByClientIP))
	assert.Equal(t, http.StatusOK, doGet(router, "10.0.0.1:5555").Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestByStaff(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request, _ = http.NewRequest(http.MethodGet, "/", nil)
	c.Request.RemoteAddr = "10.1.1.1:80"

	assert.Equal(t, "10.1.1.1", ByStaff(c))
	c.Set(StaffIDKey, "staff-7")
	assert.Equal(t, "staff:staff-7", ByStaff(c))
}
