package health

import (
	"context"
	"time"

	"github.com/taoyao-code/crsfctl/internal/channel"
	"github.com/taoyao-code/crsfctl/internal/params"
)

// LinkProbe 提供链路状态的会话
type LinkProbe interface {
	LinkStatus() params.LinkView
}

// ChannelChecker 总线通道与链路检查
type ChannelChecker struct {
	ch   channel.Channel
	link LinkProbe
}

// NewChannelChecker 创建通道检查器；link 可为 nil
func NewChannelChecker(ch channel.Channel, link LinkProbe) *ChannelChecker {
	return &ChannelChecker{ch: ch, link: link}
}

func (c *ChannelChecker) Name() string { return "channel" }

// Check 通道关闭为不健康；正在轮询但接收端未连接为降级
func (c *ChannelChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	details := map[string]any{"channel": c.ch.Name()}

	if !c.ch.IsOpen() {
		return CheckResult{
			Status:  StatusUnhealthy,
			Message: "channel closed",
			Details: details,
			Latency: time.Since(start),
		}
	}

	status, message := StatusHealthy, "ok"
	if c.link != nil {
		lv := c.link.LinkStatus()
		details["polling"] = lv.Polling
		if lv.Status != nil {
			details["good"] = lv.Status.Good
			details["bad"] = lv.Status.Bad
			details["flags"] = lv.Status.Flags
		}
		if lv.Polling && lv.Status != nil && !lv.Connected {
			status, message = StatusDegraded, "receiver not connected"
		}
	}
	return CheckResult{Status: status, Message: message, Details: details, Latency: time.Since(start)}
}
