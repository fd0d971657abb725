package requestid

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestMiddlewarePropagatesID(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name    string
		inbound string
		keep    bool
	}{
		{name: "client id kept", inbound: "mobile-7f3a.retry_2", keep: true},
		{name: "missing id", inbound: ""},
		{name: "header injection", inbound: "abc\r\nX-Admin: 1"},
		{name: "spaces", inbound: "job card 42"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var fromCtx, fromGin string
			r := gin.New()
			r.Use(Middleware())
			r.GET("/job-cards", func(c *gin.Context) {
				fromGin = Value(c)
				fromCtx = FromContext(c.Request.Context())
				c.Status(http.StatusNoContent)
			})

			req := httptest.NewRequest(http.MethodGet, "/job-cards", nil)
			if tc.inbound != "" {
				req.Header.Set(Header, tc.inbound)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			got := w.Header().Get(Header)
			assert.NotEmpty(t, got)
			assert.Equal(t, got, fromGin)
			assert.Equal(t, got, fromCtx)
			if tc.keep {
				assert.Equal(t, tc.inbound, got)
			} else {
				assert.NotEqual(t, tc.inbound, got)
			}
		})
	}
}
