package params

import (
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/taoyao-code/crsfctl/internal/protocol/crsf"
)

func (s *Session) paramLocked(number uint8) (*crsf.Parameter, error) {
	if s.selected == nil {
		return nil, ErrNoDevice
	}
	p, ok := s.table[number]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownParameter, number)
	}
	return p, nil
}

// UpdateParameter 写数值类参数（整型、FLOAT 原始定点值、选择项索引、命令状态码）
func (s *Session) UpdateParameter(number uint8, value int64) error {
	var err error
	s.do(func() {
		p, e := s.paramLocked(number)
		if e != nil {
			err = e
			return
		}
		if err = checkValue(p, value); err != nil {
			return
		}
		raw, e := crsf.EncodeValue(p.Type, value)
		if e != nil {
			err = fmt.Errorf("%w: %w", ErrNotWritable, e)
			return
		}
		err = s.writeLocked(p, raw)
		if err != nil {
			return
		}
		setValue(p, value)
	})
	return err
}

// UpdateFloat 以浮点值写 FLOAT 参数，按精度换算为定点值
func (s *Session) UpdateFloat(number uint8, v float64) error {
	s.mu.Lock()
	p, err := s.paramLocked(number)
	var raw int64
	if err == nil {
		if p.Float == nil {
			err = fmt.Errorf("%w: %s is not float", ErrNotWritable, p.Type)
		} else {
			r, ok := p.Float.Raw(v)
			if !ok {
				err = fmt.Errorf("%w: %g not in [%g, %g]", ErrValueOutOfRange, v,
					p.Float.Scale(p.Float.Min), p.Float.Scale(p.Float.Max))
			}
			raw = int64(r)
		}
	}
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.UpdateParameter(number, raw)
}

// UpdateText 写 STRING 参数
func (s *Session) UpdateText(number uint8, text string) error {
	var err error
	s.do(func() {
		p, e := s.paramLocked(number)
		if e != nil {
			err = e
			return
		}
		if p.Type != crsf.ParamString || p.Text == nil {
			err = fmt.Errorf("%w: %s is not a string", ErrNotWritable, p.Type)
			return
		}
		if p.Text.MaxLength > 0 && len(text) > int(p.Text.MaxLength) {
			err = fmt.Errorf("%w: %d bytes exceeds %d", ErrValueOutOfRange, len(text), p.Text.MaxLength)
			return
		}
		if err = s.writeLocked(p, crsf.EncodeText(text)); err != nil {
			return
		}
		p.Text.Value = text
	})
	return err
}

// writeLocked 发送 PARAM_WRITE 并安排延迟刷新
func (s *Session) writeLocked(p *crsf.Parameter, raw []byte) error {
	if !s.ch.IsOpen() {
		return ErrChannelUnavailable
	}
	frame, err := crsf.ParamWriteFrame(s.selected.Address, s.origin, p.Number, raw...)
	if err != nil {
		return err
	}
	s.queueLocked(frame)
	s.log.Info("param write", zap.Uint8("param", p.Number), zap.String("name", p.Name), zap.Binary("value", raw))
	s.scheduleSettleLocked(p.Number)
	return nil
}

func checkValue(p *crsf.Parameter, v int64) error {
	outOfRange := func(min, max int64) error {
		if v < min || v > max {
			return fmt.Errorf("%w: %d not in [%d, %d]", ErrValueOutOfRange, v, min, max)
		}
		return nil
	}
	switch {
	case p.Numeric != nil:
		return outOfRange(p.Numeric.Min, p.Numeric.Max)
	case p.Float != nil:
		return outOfRange(int64(p.Float.Min), int64(p.Float.Max))
	case p.Selection != nil:
		return outOfRange(int64(p.Selection.Min), int64(p.Selection.Max))
	case p.Command != nil:
		return outOfRange(0, 0xFF)
	}
	return fmt.Errorf("%w: %s", ErrNotWritable, p.Type)
}

// setValue 本地乐观更新
func setValue(p *crsf.Parameter, v int64) {
	switch {
	case p.Numeric != nil:
		p.Numeric.Value = v
	case p.Float != nil:
		p.Float.Value = int32(v)
	case p.Selection != nil:
		p.Selection.Value = uint8(v)
	case p.Command != nil:
		p.Command.Status = crsf.CommandStatus(v)
	}
}

// scheduleSettleLocked 写入后等待设备提交，再刷新相关参数；窗口内的多次写入合并为一次刷新
func (s *Session) scheduleSettleLocked(number uint8) {
	if !slices.Contains(s.settleQueue, number) {
		s.settleQueue = append(s.settleQueue, number)
	}
	stopTimer(s.settleTimer)
	st := s.nextStamp()
	s.settleStamp = st
	s.settleTimer = s.clk.AfterFunc(s.cfg.SettleDelay, func() { s.onSettle(st) })
}

func (s *Session) onSettle(st stamp) {
	s.do(func() {
		if st != s.settleStamp {
			return
		}
		written := s.settleQueue
		s.settleQueue = nil
		s.settleTimer = nil
		s.reloadRelatedLocked(written)
	})
}

// deferSettleLocked 加载器忙或命令分片读取未完成时保留待刷新的参数
func (s *Session) deferSettleLocked(written []uint8) {
	for _, n := range written {
		if !slices.Contains(s.settleQueue, n) {
			s.settleQueue = append(s.settleQueue, n)
		}
	}
	s.log.Debug("reload deferred",
		zap.String("phase", s.ld.phase.String()),
		zap.Bool("command_fetch", s.oob.active),
		zap.Uint8s("params", s.settleQueue))
}

// resumeSettleLocked 空闲后执行被推迟的刷新
func (s *Session) resumeSettleLocked() {
	if len(s.settleQueue) == 0 || s.settleTimer != nil || s.ld.busy() || s.oob.active {
		return
	}
	written := s.settleQueue
	s.settleQueue = nil
	s.reloadRelatedLocked(written)
}

// reloadRelatedLocked 依次刷新：父文件夹、同级可编辑参数与文件夹、被写参数本身
func (s *Session) reloadRelatedLocked(written []uint8) {
	if s.selected == nil {
		return
	}
	if s.ld.busy() || s.oob.active {
		s.deferSettleLocked(written)
		return
	}
	var queue []uint8
	add := func(n uint8) {
		if !slices.Contains(queue, n) {
			queue = append(queue, n)
		}
	}
	numbers := s.sortedNumbersLocked()
	for _, w := range written {
		p, ok := s.table[w]
		if !ok {
			continue
		}
		if p.Parent > 0 {
			if _, ok := s.table[p.Parent]; ok {
				add(p.Parent)
			}
		}
		for _, n := range numbers {
			q := s.table[n]
			if n == w || q.Parent != p.Parent {
				continue
			}
			if q.Type.Editable() || q.Type == crsf.ParamFolder {
				add(n)
			}
		}
		add(w)
	}
	if out, ok := s.ld.startReload(queue); ok {
		s.applyLocked(out)
	}
}

func (s *Session) sortedNumbersLocked() []uint8 {
	out := make([]uint8, 0, len(s.table))
	for n := range s.table {
		out = append(out, n)
	}
	slices.Sort(out)
	return out
}
