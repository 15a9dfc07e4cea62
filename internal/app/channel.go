package app

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/taoyao-code/crsfctl/internal/channel"
	cfgpkg "github.com/taoyao-code/crsfctl/internal/config"
)

// NewChannel 按 channel.kind 创建总线通道（尚未打开）
func NewChannel(cfg cfgpkg.ChannelConfig, logger *zap.Logger) (channel.Channel, error) {
	opts := []channel.Option{channel.WithLogger(logger)}
	if cfg.WriteTimeout > 0 {
		opts = append(opts, channel.WithWriteTimeout(cfg.WriteTimeout))
	}

	switch cfg.Kind {
	case cfgpkg.ChannelWebSocket:
		if cfg.URL == "" {
			return nil, fmt.Errorf("websocket channel: url is required")
		}
		return channel.NewWebSocket(cfg.URL, cfg.DialTimeout, opts...), nil
	case cfgpkg.ChannelSerial:
		if cfg.Port == "" {
			return nil, fmt.Errorf("serial channel: port is required")
		}
		return channel.NewSerial(cfg.Port, cfg.Baud, opts...), nil
	case cfgpkg.ChannelTCP:
		if cfg.Addr == "" {
			return nil, fmt.Errorf("tcp channel: addr is required")
		}
		return channel.NewTCP(cfg.Addr, cfg.DialTimeout, opts...), nil
	}
	return nil, fmt.Errorf("unknown channel kind %q", cfg.Kind)
}
