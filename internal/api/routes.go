package api

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taoyao-code/crsfctl/internal/api/middleware"
	"github.com/taoyao-code/crsfctl/internal/events"
)

// RegisterParamRoutes 注册参数协议 API
func RegisterParamRoutes(
	r *gin.Engine,
	ctl Controller,
	ring *events.Ring,
	authCfg middleware.AuthConfig,
	limiter *middleware.RateLimiter,
	logger *zap.Logger,
) {
	if r == nil || ctl == nil {
		return
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	handler := NewParamHandler(ctl, ring, logger)

	api := r.Group("/api")
	api.Use(middleware.CORS())
	if authCfg.Enabled {
		api.Use(middleware.APIKeyAuth(authCfg, logger))
		logger.Info("api authentication enabled", zap.Int("api_keys_count", len(authCfg.APIKeys)))
	} else {
		logger.Warn("api authentication disabled")
	}

	// 查询
	api.GET("/devices", handler.ListDevices)
	api.GET("/device", handler.Selected)
	api.GET("/params", handler.ListParams)
	api.GET("/params/:num", handler.GetParam)
	api.GET("/command", handler.CommandState)
	api.GET("/link", handler.Link)
	api.GET("/notice", handler.GetNotice)
	api.GET("/events", handler.Events)

	// 导航只改变本地视图，不限流
	api.POST("/folders/back", handler.LeaveFolder)
	api.POST("/folders/:num", handler.EnterFolder)

	// 会产生总线流量的操作
	writes := api.Group("")
	writes.Use(middleware.RateLimit(limiter, logger))
	writes.POST("/scan", handler.Scan)
	writes.POST("/devices/:addr/select", handler.SelectDevice)
	writes.POST("/params/reload", handler.Reload)
	writes.PUT("/params/:num", handler.UpdateParam)
	writes.POST("/params/:num/exec", handler.Execute)
	writes.POST("/command/confirm", handler.Confirm)
	writes.POST("/command/cancel", handler.Cancel)
	writes.POST("/notice/ack", handler.AckNotice)

	logger.Info("param routes registered", zap.Int("endpoints", 18))
}
