package middleware

import (
	"crypto/subtle"
	"net/http"

	"property-chatbot-api/utils"

	"github.com/gin-gonic/gin"
)

const APIKeyHeader = "X-API-Key"

// APIKeyAuth rejects requests whose X-API-Key does not match key. An empty
// key disables the check.
func APIKeyAuth(key string) gin.HandlerFunc {
	expected := []byte(key)
	return func(c *gin.Context) {
		if len(expected) == 0 {
			c.Next()
			return
		}

		provided := []byte(c.GetHeader(APIKeyHeader))
		if subtle.ConstantTimeCompare(provided, expected) != 1 {
			utils.AbortWithError(c, http.StatusForbidden, "invalid_api_key", "Invalid or missing API key")
			return
		}
		c.Next()
	}
}
