package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func limiterRouter(limiter gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/submit", limiter, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	return router
}

func hit(router *gin.Engine) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/submit", nil)
	req.RemoteAddr = "10.1.2.3:40000"
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRateLimitAllowsWithinWindow(t *testing.T) {
	client, mock := redismock.NewClientMock()
	router := limiterRouter(RateLimit(client, 5, time.Minute))

	key := "ratelimit:/submit:10.1.2.3"
	mock.ExpectIncr(key).SetVal(1)
	mock.ExpectExpire(key, time.Minute).SetVal(true)

	w := hit(router)
	assert.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRateLimitBlocksOverLimit(t *testing.T) {
	client, mock := redismock.NewClientMock()
	router := limiterRouter(RateLimit(client, 5, time.Minute))

	key := "ratelimit:/submit:10.1.2.3"
	mock.ExpectIncr(key).SetVal(6)

	w := hit(router)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRateLimitFailsOpenOnRedisError(t *testing.T) {
	client, mock := redismock.NewClientMock()
	router := limiterRouter(RateLimit(client, 5, time.Minute))

	key := "ratelimit:/submit:10.1.2.3"
	mock.ExpectIncr(key).SetErr(assert.AnError)

	w := hit(router)
	assert.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRateLimitSetsWindowOnlyOnFirstHit(t *testing.T) {
	client, mock := redismock.NewClientMock()
	router := limiterRouter(RateLimit(client, 5, time.Minute))

	key := "ratelimit:/submit:10.1.2.3"
	mock.ExpectIncr(key).SetVal(1)
	mock.ExpectExpire(key, time.Minute).SetVal(true)
	mock.ExpectIncr(key).SetVal(2)

	assert.Equal(t, http.StatusOK, hit(router).Code)
	assert.Equal(t, http.StatusOK, hit(router).Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRateLimitDisabled(t *testing.T) {
	router := limiterRouter(RateLimit(nil, 5, time.Minute))
	assert.Equal(t, http.StatusOK, hit(router).Code)
}
