package app

import (
	"github.com/gin-gonic/gin"

	"github.com/taoyao-code/crsfctl/internal/channel"
	"github.com/taoyao-code/crsfctl/internal/health"
)

// NewHealthAggregator 创建健康检查聚合器，初始只包含通道检查
func NewHealthAggregator(ch channel.Channel, link health.LinkProbe) *health.Aggregator {
	return health.NewAggregator(health.NewChannelChecker(ch, link))
}

// RegisterHealthRoutes 注册健康检查HTTP路由
func RegisterHealthRoutes(r *gin.Engine, aggregator *health.Aggregator) {
	health.RegisterHTTPRoutes(r, aggregator)
}

// AddRedisChecker 添加Redis检查器到聚合器
func AddRedisChecker(aggregator *health.Aggregator, client health.RedisPinger) {
	if client != nil {
		aggregator.AddChecker(health.NewRedisChecker(client))
	}
}
