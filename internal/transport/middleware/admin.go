package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const adminTokenHeader = "X-Admin-Token"

// AdminAuth gates the organizer endpoints behind a shared token, taken
// from the X-Admin-Token header or a Bearer Authorization header. An
// empty configured token disables the admin surface entirely.
func AdminAuth(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "admin access is not configured",
			})
			return
		}

		presented := c.GetHeader(adminTokenHeader)
		if presented == "" {
			auth := c.GetHeader("Authorization")
			presented = strings.TrimPrefix(auth, "Bearer ")
		}

		if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid admin token",
			})
			return
		}

		c.Next()
	}
}
