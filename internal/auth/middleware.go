package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Gin context keys set by the middleware.
const (
	ContextBusinessID = "businessID"
	ContextUserID     = "userID"
	ContextRole       = "role"
)

// Middleware validates the Bearer token and scopes the request to the
// token's business. When auth is disabled (development), the tenant comes
// from the X-Business-ID header instead.
func Middleware(manager *JWTManager, enabled bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !enabled {
			businessID := c.GetHeader("X-Business-ID")
			if businessID == "" {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"error":   "unauthorized",
					"message": "X-Business-ID header required when auth is disabled",
				})
				return
			}
			c.Set(ContextBusinessID, businessID)
			c.Next()
			return
		}

		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "missing bearer token",
			})
			return
		}

		claims, err := manager.Validate(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "invalid or expired token",
			})
			return
		}

		c.Set(ContextBusinessID, claims.BusinessID)
		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextRole, claims.Role)
		c.Next()
	}
}

// BusinessID returns the authenticated tenant for the request.
func BusinessID(c *gin.Context) string {
	return c.GetString(ContextBusinessID)
}

// UserID returns the authenticated user, empty in development mode.
func UserID(c *gin.Context) string {
	return c.GetString(ContextUserID)
}
