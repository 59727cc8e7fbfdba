package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// BodySizeLimit caps the request body at maxBytes. Compose definitions are
// the largest payload we accept; everything else is small JSON.
func BodySizeLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			c.Next()
			return
		}

		if c.Request.ContentLength > maxBytes {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "request body too large"})
			c.Abort()
			return
		}

		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// DefaultBodyLimit allows 1MB, enough for any compose definition.
func DefaultBodyLimit() gin.HandlerFunc {
	return BodySizeLimit(1 << 20)
}

// SmallBodyLimit allows 64KB, for credential endpoints.
func SmallBodyLimit() gin.HandlerFunc {
	return BodySizeLimit(64 << 10)
}
