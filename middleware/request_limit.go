package middleware

import (
	"fmt"
	"net/http"

	"property-chatbot-api/utils"

	"github.com/gin-gonic/gin"
)

// RequestSizeLimit rejects bodies that declare more than maxSize bytes and
// caps the reader for bodies that don't declare a length.
func RequestSizeLimit(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxSize {
			utils.RespondWithError(c, http.StatusRequestEntityTooLarge,
				"payload_too_large",
				fmt.Sprintf("Request body exceeds maximum size of %dMB", maxSize/(1024*1024)),
				gin.H{
					"max_size": maxSize,
					"received": c.Request.ContentLength,
				})
			c.Abort()
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}
