package app

import (
	"go.uber.org/zap"

	"github.com/taoyao-code/crsfctl/internal/channel"
	cfgpkg "github.com/taoyao-code/crsfctl/internal/config"
	"github.com/taoyao-code/crsfctl/internal/events"
	"github.com/taoyao-code/crsfctl/internal/metrics"
	"github.com/taoyao-code/crsfctl/internal/params"
)

// SessionConfig 将协议配置映射为会话时序，未填写的项由会话取默认值
func SessionConfig(cfg cfgpkg.ProtocolConfig) params.Config {
	return params.Config{
		ScanWindow:       cfg.ScanWindow,
		ParamTimeout:     cfg.ParamTimeout,
		MaxAttempts:      cfg.MaxAttempts,
		SettleDelay:      cfg.SettleDelay,
		LinkPollInterval: cfg.LinkPollInterval,
		EnforceCRC:       cfg.EnforceCRC,
	}
}

// NewSession 创建参数会话
func NewSession(cfg *cfgpkg.Config, ch channel.Channel, appm *metrics.AppMetrics, sink events.Sink, logger *zap.Logger) *params.Session {
	opts := []params.Option{
		params.WithConfig(SessionConfig(cfg.Protocol)),
		params.WithLogger(logger),
	}
	if appm != nil {
		opts = append(opts, params.WithMetrics(appm))
	}
	if sink != nil {
		opts = append(opts, params.WithSink(sink))
	}
	return params.NewSession(ch, opts...)
}
