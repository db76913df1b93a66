package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/vinetrail/vinetrail-backend/config"
)

// SecurityHeadersMiddleware adds security-related HTTP headers to all responses.
// This is a JSON API, so nothing it serves should be framed or sniffed.
func SecurityHeadersMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Header("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")

		// HSTS only in production to avoid issues during local development
		if cfg.IsProduction() {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
