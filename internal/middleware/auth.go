package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Authentication lives outside this service; the trusted edge forwards the
// acting user in this header.
const userHeader = "X-User-ID"

const userKey = "converse.userID"

// RequireUser rejects requests that carry no acting user.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader(userHeader)
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing " + userHeader + " header"})
			return
		}
		c.Set(userKey, userID)
		c.Next()
	}
}

// UserID returns the acting user set by RequireUser.
func UserID(c *gin.Context) string {
	return c.GetString(userKey)
}
