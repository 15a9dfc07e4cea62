package params

import (
	"time"

	"github.com/taoyao-code/crsfctl/internal/protocol/crsf"
)

// LinkView 链路状态投影
type LinkView struct {
	Polling   bool             `json:"polling"`
	Connected bool             `json:"connected"`
	Status    *crsf.LinkStatus `json:"status,omitempty"`
	UpdatedAt time.Time        `json:"updatedAt,omitzero"`
}

// Progress 加载进度投影
type Progress struct {
	Loading bool    `json:"loading"`
	Phase   string  `json:"phase"`
	Loaded  int     `json:"loaded"`
	Total   int     `json:"total"`
	Pending uint8   `json:"pending,omitempty"`
	Chunk   uint8   `json:"chunk,omitempty"`
	Missing []uint8 `json:"missing,omitempty"`
}

// CommandView 正在执行的命令
type CommandView struct {
	Number          uint8  `json:"number"`
	Name            string `json:"name"`
	Status          string `json:"status"`
	Info            string `json:"info,omitempty"`
	IntervalMs      int64  `json:"intervalMs"`
	AwaitingConfirm bool   `json:"awaitingConfirm"`
}

// Devices 当前设备列表
func (s *Session) Devices() []Device {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registry.List()
}

// SelectedDevice 已选设备
func (s *Session) SelectedDevice() (Device, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selected == nil {
		return Device{}, false
	}
	return *s.selected, true
}

// Origin 当前使用的源地址
func (s *Session) Origin() byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.origin
}

// Parameters 全部已加载参数（按编号排序）
func (s *Session) Parameters() []crsf.Parameter {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.collectLocked(func(*crsf.Parameter) bool { return true })
}

// VisibleParameters 当前文件夹下未隐藏的参数
func (s *Session) VisibleParameters() []crsf.Parameter {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.folders.current
	return s.collectLocked(func(p *crsf.Parameter) bool { return p.Parent == cur && !p.Hidden })
}

// Parameter 按编号取参数副本
func (s *Session) Parameter(number uint8) (crsf.Parameter, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.table[number]
	if !ok {
		return crsf.Parameter{}, false
	}
	return cloneParam(p), true
}

func (s *Session) collectLocked(keep func(*crsf.Parameter) bool) []crsf.Parameter {
	out := make([]crsf.Parameter, 0, len(s.table))
	for _, n := range s.sortedNumbersLocked() {
		if p := s.table[n]; keep(p) {
			out = append(out, cloneParam(p))
		}
	}
	return out
}

// LinkStatus 链路状态
func (s *Session) LinkStatus() LinkView {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := LinkView{Polling: s.link.polling}
	if s.link.status != nil {
		st := *s.link.status
		v.Status = &st
		v.Connected = st.Connected()
		v.UpdatedAt = s.link.at
	}
	return v
}

// Confirmation 等待确认的命令（无则 nil）
func (s *Session) Confirmation() *Confirmation {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd == nil || s.cmd.confirm == nil {
		return nil
	}
	c := *s.cmd.confirm
	return &c
}

// Notice 未确认的设备提示（无则 nil）
func (s *Session) Notice() *Notice {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.notice == nil {
		return nil
	}
	n := *s.notice
	return &n
}

// Command 正在执行的命令（无则 nil）
func (s *Session) Command() *CommandView {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd == nil {
		return nil
	}
	return &CommandView{
		Number:          s.cmd.number,
		Name:            s.cmd.name,
		Status:          s.cmd.status.String(),
		Info:            s.cmd.info,
		IntervalMs:      s.cmd.interval().Milliseconds(),
		AwaitingConfirm: s.cmd.confirm != nil,
	}
}

// LoadProgress 加载进度
func (s *Session) LoadProgress() Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := Progress{
		Loading: s.ld.busy(),
		Phase:   s.ld.phase.String(),
		Loaded:  s.ld.loaded,
		Total:   int(s.ld.total),
		Missing: s.ld.missingNow(),
	}
	if p.Loading {
		p.Pending = s.ld.pending.Number
		p.Chunk = s.ld.pending.Chunk
	}
	return p
}

// Missing 加载结束后仍缺失的参数号
func (s *Session) Missing() []uint8 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ld.missingNow()
}

func cloneParam(p *crsf.Parameter) crsf.Parameter {
	c := *p
	if p.Numeric != nil {
		v := *p.Numeric
		c.Numeric = &v
	}
	if p.Float != nil {
		v := *p.Float
		c.Float = &v
	}
	if p.Selection != nil {
		v := *p.Selection
		v.Options = append([]string(nil), p.Selection.Options...)
		c.Selection = &v
	}
	if p.Text != nil {
		v := *p.Text
		c.Text = &v
	}
	if p.Command != nil {
		v := *p.Command
		c.Command = &v
	}
	return c
}
