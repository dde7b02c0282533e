package app

import (
	"github.com/gin-gonic/gin"

	"github.com/taoyao-code/flemlink/internal/health"
	redisstorage "github.com/taoyao-code/flemlink/internal/storage/redis"
)

// NewHealthAggregator 创建健康检查聚合器：链路必选，Redis 启用时加入
func NewHealthAggregator(link health.LinkStatusProvider, redisClient *redisstorage.Client) *health.Aggregator {
	agg := health.NewAggregator(health.NewLinkChecker(link))
	if redisClient != nil {
		agg.AddChecker(health.NewRedisChecker(redisClient))
	}
	return agg
}

// RegisterHealthRoutes 注册健康检查HTTP路由
func RegisterHealthRoutes(aggregator *health.Aggregator) func(r *gin.Engine) {
	return func(r *gin.Engine) { health.RegisterHTTPRoutes(r, aggregator) }
}
