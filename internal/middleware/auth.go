package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/epeers/marketsync/internal/models"
	"github.com/gin-gonic/gin"
)

// APIKeyHeader carries the admin key
const APIKeyHeader = "X-API-Key"

// RequireAPIKey rejects requests whose X-API-Key header does not match key.
// An empty key disables the check.
func RequireAPIKey(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if key == "" {
			c.Next()
			return
		}

		got := c.GetHeader(APIKeyHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
			c.JSON(http.StatusUnauthorized, models.ErrorResponse{
				Error:   "unauthorized",
				Message: "valid " + APIKeyHeader + " header required",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}
