package app

import (
	"net/http"

	cfgpkg "github.com/taoyao-code/crsfctl/internal/config"
	"github.com/taoyao-code/crsfctl/internal/httpserver"
)

// NewHTTPServer 根据配置创建 HTTP 服务器；指标关闭时不挂载 metrics 路由
func NewHTTPServer(cfg *cfgpkg.Config, metricsHandler http.Handler) *httpserver.Server {
	if !cfg.Metrics.Enable {
		metricsHandler = nil
	}
	return httpserver.New(cfg.HTTP, cfg.Metrics.Path, metricsHandler)
}
