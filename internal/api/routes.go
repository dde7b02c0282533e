package api

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taoyao-code/flemlink/internal/api/middleware"
	cfgpkg "github.com/taoyao-code/flemlink/internal/config"
)

// RegisterCommandRoutes 注册命令下发与链路查询路由
func RegisterCommandRoutes(r *gin.Engine, link Commander, authCfg cfgpkg.AuthConfig, logger *zap.Logger) {
	if r == nil || link == nil {
		return
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	handler := NewCommandHandler(link, logger)

	v1 := r.Group("/api/v1")
	if authCfg.Enabled {
		v1.Use(middleware.APIKeyAuth(authCfg, logger))
		logger.Info("api authentication enabled", zap.Int("api_keys_count", len(authCfg.APIKeys)))
	} else {
		logger.Warn("api authentication disabled - only for development!")
	}

	v1.POST("/commands", handler.Submit)
	v1.GET("/commands/:id", handler.GetResult)
	v1.GET("/link", handler.LinkStatus)
}
