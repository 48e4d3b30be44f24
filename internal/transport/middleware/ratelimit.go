package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// RateLimit is a fixed-window per-IP limiter backed by Redis. The counter
// key gets its TTL on the first hit of each window. Redis being down
// fails open: registrations must keep working through a cache outage.
func RateLimit(client *redis.Client, limit int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if client == nil || limit <= 0 {
			c.Next()
			return
		}

		key := fmt.Sprintf("ratelimit:%s:%s", c.FullPath(), c.ClientIP())
		ctx := c.Request.Context()

		count, err := client.Incr(ctx, key).Result()
		if err != nil {
			logrus.WithError(err).Warn("rate limiter unavailable, allowing request")
			c.Next()
			return
		}

		if count == 1 {
			if err := client.Expire(ctx, key, window).Err(); err != nil {
				logrus.WithError(err).Warn("failed to set rate limit window")
			}
		}

		if count > int64(limit) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "too many requests, slow down",
			})
			return
		}

		c.Next()
	}
}
