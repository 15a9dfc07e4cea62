package crsf

import "sync"

// Handler 帧处理函数
type Handler func(*Frame) error

// Table 按帧类型分发
type Table struct {
	mu sync.RWMutex
	m  map[FrameType]Handler
}

func NewTable() *Table { return &Table{m: make(map[FrameType]Handler)} }

func (t *Table) Register(ft FrameType, h Handler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.m[ft] = h
}

// Route 分发帧；未注册的类型返回 false
func (t *Table) Route(f *Frame) (bool, error) {
	t.mu.RLock()
	h := t.m[f.Type]
	t.mu.RUnlock()
	if h == nil {
		return false, nil
	}
	return true, h(f)
}
