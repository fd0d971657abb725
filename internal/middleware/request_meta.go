package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/fieldservice-api/internal/service"
)

// RequestMeta puts the client address and user agent on the request context so
// activity entries written further down can carry them.
func RequestMeta() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := service.WithRequestMeta(c.Request.Context(), service.RequestMeta{
			IP:        c.ClientIP(),
			UserAgent: c.GetHeader("User-Agent"),
		})
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
