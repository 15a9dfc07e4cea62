package params

import (
	"time"

	"go.uber.org/zap"

	"github.com/taoyao-code/crsfctl/internal/clock"
	"github.com/taoyao-code/crsfctl/internal/events"
	"github.com/taoyao-code/crsfctl/internal/protocol/crsf"
)

const defaultConfirmMessage = "Press OK to confirm"

// commandExec 正在执行的命令
type commandExec struct {
	number  uint8
	name    string
	timeout uint8 // 10ms 单位
	timer   clock.Timer
	stamp   stamp
	status  crsf.CommandStatus
	info    string
	confirm *Confirmation
}

func (c *commandExec) interval() time.Duration {
	return time.Duration(c.timeout) * 10 * time.Millisecond
}

// Confirmation 等待用户确认的命令
type Confirmation struct {
	Number  uint8  `json:"number"`
	Name    string `json:"name"`
	Message string `json:"message"`
}

// oobBuffer 命令轮询应答的分片缓冲，与加载状态机的缓冲相互独立
type oobBuffer struct {
	active bool
	number uint8
	chunks [][]byte
	timer  clock.Timer
	stamp  stamp
}

func (b *oobBuffer) reset() {
	stopTimer(b.timer)
	*b = oobBuffer{}
}

// ExecuteCommand 发送启动命令（状态 1），按参数自身的 timeout 间隔轮询状态；首次轮询在一个间隔之后
func (s *Session) ExecuteCommand(number uint8) error {
	var err error
	s.do(func() {
		p, e := s.paramLocked(number)
		if e != nil {
			err = e
			return
		}
		if p.Type != crsf.ParamCommand || p.Command == nil {
			err = ErrNotCommand
			return
		}
		if !s.ch.IsOpen() {
			err = ErrChannelUnavailable
			return
		}
		s.stopCommandLocked()
		timeout := p.Command.Timeout
		if timeout == 0 {
			timeout = s.cfg.DefaultCommandTimeout
		}
		s.cmd = &commandExec{number: number, name: p.Name, timeout: timeout, status: crsf.CommandStart}
		s.queueLocked(s.commandFrameLocked(crsf.CommandStart))
		s.armCommandPollLocked()
		s.log.Info("command started", zap.Uint8("param", number), zap.String("name", p.Name), zap.Duration("interval", s.cmd.interval()))
	})
	return err
}

func (s *Session) commandFrameLocked(st crsf.CommandStatus) []byte {
	b, _ := crsf.ParamWriteFrame(s.selected.Address, s.origin, s.cmd.number, byte(st))
	return b
}

func (s *Session) armCommandPollLocked() {
	stopTimer(s.cmd.timer)
	st := s.nextStamp()
	s.cmd.stamp = st
	s.cmd.timer = s.clk.AfterFunc(s.cmd.interval(), func() { s.onCommandTick(st) })
}

func (s *Session) onCommandTick(st stamp) {
	s.do(func() {
		if s.cmd == nil || st != s.cmd.stamp || s.cmd.confirm != nil {
			return
		}
		if s.selected == nil || !s.ch.IsOpen() {
			s.stopCommandLocked()
			return
		}
		s.queueLocked(s.commandFrameLocked(crsf.CommandQuery))
		s.metrics.CommandPolled()
		s.armCommandPollLocked()
	})
}

func (s *Session) stopCommandLocked() {
	if s.cmd != nil {
		stopTimer(s.cmd.timer)
	}
	s.cmd = nil
	s.oob.reset()
}

// commandUpdateLocked 根据轮询到的命令状态推进执行流程
func (s *Session) commandUpdateLocked(p *crsf.Parameter) {
	c := s.cmd
	c.status = p.Command.Status
	c.info = p.Command.Info
	s.emitLocked(s.event(events.KindCommandStatus).
		WithParam(p.Number).
		With("status", c.status.String()).
		With("info", c.info))

	switch c.status {
	case crsf.CommandReady:
		s.log.Info("command finished", zap.Uint8("param", p.Number), zap.String("info", c.info))
		s.stopCommandLocked()
	case crsf.CommandConfirmation:
		stopTimer(c.timer)
		c.timer = nil
		msg := c.info
		if msg == "" {
			msg = defaultConfirmMessage
		}
		c.confirm = &Confirmation{Number: p.Number, Name: p.Name, Message: msg}
		s.emitLocked(s.event(events.KindConfirmationRequired).WithParam(p.Number).With("message", msg))
	}
}

// ConfirmCommand 确认（状态 4）并以相同间隔恢复轮询
func (s *Session) ConfirmCommand() error {
	var err error
	s.do(func() {
		if s.cmd == nil || s.cmd.confirm == nil {
			err = ErrNoConfirmation
			return
		}
		s.cmd.confirm = nil
		s.queueLocked(s.commandFrameLocked(crsf.CommandConfirm))
		s.armCommandPollLocked()
	})
	return err
}

// CancelCommand 放弃当前命令，不向设备发送任何帧
func (s *Session) CancelCommand() error {
	var err error
	s.do(func() {
		if s.cmd == nil {
			err = ErrNoCommand
			return
		}
		s.log.Info("command cancelled", zap.Uint8("param", s.cmd.number))
		s.stopCommandLocked()
		s.resumeSettleLocked()
	})
	return err
}

// onCommandChunkLocked 命令轮询的带外应答
func (s *Session) onCommandChunkLocked(n, remaining uint8, data []byte) {
	defer s.resumeSettleLocked()
	if !s.oob.active || s.oob.number != n {
		s.oob.reset()
		s.oob = oobBuffer{active: true, number: n}
	}
	stopTimer(s.oob.timer)
	s.oob.chunks = append(s.oob.chunks, append([]byte(nil), data...))
	if remaining > 0 {
		// 加载进行中时不插入额外请求
		if s.ld.busy() {
			s.oob.reset()
			return
		}
		s.queueLocked(crsf.ParamReadFrame(s.selected.Address, s.origin, n, uint8(len(s.oob.chunks))))
		st := s.nextStamp()
		s.oob.stamp = st
		s.oob.timer = s.clk.AfterFunc(s.cfg.ParamTimeout, func() { s.onCommandChunkTimeout(st) })
		return
	}
	var full []byte
	for _, c := range s.oob.chunks {
		full = append(full, c...)
	}
	s.oob.reset()
	p, err := crsf.DecodeParameter(n, full)
	if err != nil {
		s.log.Warn("command status decode failed", zap.Uint8("param", n), zap.Error(err))
		return
	}
	s.table[n] = p
	s.emitLocked(s.event(events.KindParamUpdated).WithParam(n).With("name", p.Name).With("value", p.DisplayValue()))
	if p.Command != nil {
		s.commandUpdateLocked(p)
	}
}

// onCommandChunkTimeout 后续分片未到，放弃本次带外读取
func (s *Session) onCommandChunkTimeout(st stamp) {
	s.do(func() {
		if !s.oob.active || st != s.oob.stamp {
			return
		}
		s.log.Debug("command chunk timed out",
			zap.Uint8("param", s.oob.number),
			zap.Int("chunks", len(s.oob.chunks)))
		s.oob.reset()
		s.resumeSettleLocked()
	})
}
