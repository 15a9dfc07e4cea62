package params

import (
	"time"

	"go.uber.org/zap"

	"github.com/taoyao-code/crsfctl/internal/clock"
	"github.com/taoyao-code/crsfctl/internal/events"
	"github.com/taoyao-code/crsfctl/internal/protocol/crsf"
)

// linkState 链路统计轮询
type linkState struct {
	polling bool
	timer   clock.Timer
	stamp   stamp
	status  *crsf.LinkStatus
	at      time.Time
	flags   uint8 // 上一次观察到的标志，用于判断变化
}

// Notice 设备通过状态帧上报的阻塞提示
type Notice struct {
	Message string    `json:"message"`
	Flags   uint8     `json:"flags"`
	At      time.Time `json:"at"`
}

// startLinkLocked 立即轮询一次，此后按间隔持续轮询；已在轮询时不重复启动
func (s *Session) startLinkLocked() {
	if s.link.polling || s.selected == nil {
		return
	}
	s.link.polling = true
	s.pollLinkLocked()
}

func (s *Session) pollLinkLocked() {
	s.queueLocked(crsf.LinkStatPollFrame(s.selected.Address, s.origin))
	st := s.nextStamp()
	s.link.stamp = st
	s.link.timer = s.clk.AfterFunc(s.cfg.LinkPollInterval, func() { s.onLinkTick(st) })
}

func (s *Session) onLinkTick(st stamp) {
	s.do(func() {
		if !s.link.polling || st != s.link.stamp {
			return
		}
		if s.selected == nil || !s.ch.IsOpen() {
			s.stopLinkLocked()
			return
		}
		s.pollLinkLocked()
	})
}

// stopLinkLocked 停止轮询并清除显示的链路状态
func (s *Session) stopLinkLocked() {
	stopTimer(s.link.timer)
	s.link.timer = nil
	s.link.polling = false
	s.link.status = nil
}

func (s *Session) onStatusLocked(f *crsf.Frame) {
	if !s.fromSelectedLocked(f) {
		return
	}
	st, err := crsf.DecodeLinkStatus(f.Payload)
	if err != nil {
		s.metrics.FrameError("decode")
		s.log.Debug("status frame rejected", zap.Error(err))
		return
	}
	s.link.status = &st
	s.link.at = s.clk.Now()
	s.metrics.SetLink(int(st.Good), int(st.Bad))

	changed := st.Flags != s.link.flags
	s.link.flags = st.Flags
	if changed && st.Warning() && st.Message != "" {
		s.notice = &Notice{Message: st.Message, Flags: st.Flags, At: s.link.at}
		s.log.Warn("device notice", zap.String("message", st.Message), zap.Uint8("flags", st.Flags))
		s.emitLocked(s.event(events.KindNotice).With("message", st.Message).With("flags", st.Flags))
	}
	s.emitLocked(s.event(events.KindLinkStatus).
		With("bad", st.Bad).
		With("good", st.Good).
		With("connected", st.Connected()))
}

// AcknowledgeNotice 确认设备提示并发送清错命令
func (s *Session) AcknowledgeNotice() error {
	var err error
	s.do(func() {
		if s.notice == nil {
			err = ErrNoNotice
			return
		}
		s.notice = nil
		if s.selected != nil {
			s.queueLocked(crsf.ClearErrorFrame(s.selected.Address, s.origin))
		}
	})
	return err
}
