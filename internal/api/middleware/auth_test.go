package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/flemlink/internal/config"
)

func TestAPIKeyAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)

	newRouter := func(cfg cfgpkg.AuthConfig) *gin.Engine {
		r := gin.New()
		r.Use(APIKeyAuth(cfg, zap.NewNop()))
		r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })
		return r
	}
	enabled := cfgpkg.AuthConfig{Enabled: true, APIKeys: []string{"sk_test_12345678"}}

	tests := []struct {
		name   string
		cfg    cfgpkg.AuthConfig
		header map[string]string
		want   int
	}{
		{"未启用认证", cfgpkg.AuthConfig{}, nil, http.StatusOK},
		{"缺少Key", enabled, nil, http.StatusUnauthorized},
		{"无效Key", enabled, map[string]string{"X-API-Key": "wrong"}, http.StatusForbidden},
		{"X-API-Key", enabled, map[string]string{"X-API-Key": "sk_test_12345678"}, http.StatusOK},
		{"Bearer", enabled, map[string]string{"Authorization": "Bearer sk_test_12345678"}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/x", nil)
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			rr := httptest.NewRecorder()
			newRouter(tt.cfg).ServeHTTP(rr, req)
			assert.Equal(t, tt.want, rr.Code)
		})
	}
}

func TestMaskAPIKey(t *testing.T) {
	assert.Equal(t, "****", maskAPIKey("short"))
	assert.Equal(t, "sk_t****5678", maskAPIKey("sk_test_12345678"))
}
