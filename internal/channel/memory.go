package channel

import (
	"context"
	"sync"
)

// Memory 进程内通道，发送的帧交给 Responder，Inject 模拟设备上行。用于测试与离线演示。
type Memory struct {
	mu        sync.Mutex
	open      bool
	openErr   error
	sent      [][]byte
	onMessage func([]byte)
	onClose   func(error)
	// Responder 在 Send 返回前同步调用，可通过 Inject 回送应答
	Responder func(frame []byte)
}

// NewMemory 创建内存通道
func NewMemory() *Memory { return &Memory{} }

func (m *Memory) Name() string { return "memory" }

// FailOpen 使后续 Open 返回 err
func (m *Memory) FailOpen(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.openErr = err
}

func (m *Memory) Open(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.openErr != nil {
		return m.openErr
	}
	m.open = true
	return nil
}

func (m *Memory) IsOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.open
}

func (m *Memory) SetHandlers(onMessage func([]byte), onClose func(error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onMessage = onMessage
	m.onClose = onClose
}

func (m *Memory) Send(frame []byte) error {
	m.mu.Lock()
	if !m.open {
		m.mu.Unlock()
		return ErrClosed
	}
	dup := append([]byte(nil), frame...)
	m.sent = append(m.sent, dup)
	r := m.Responder
	m.mu.Unlock()
	if r != nil {
		r(dup)
	}
	return nil
}

// Inject 模拟收到一帧
func (m *Memory) Inject(frame []byte) {
	m.mu.Lock()
	h := m.onMessage
	open := m.open
	m.mu.Unlock()
	if open && h != nil {
		h(frame)
	}
}

// Drop 模拟对端断开
func (m *Memory) Drop(cause error) {
	m.mu.Lock()
	if !m.open {
		m.mu.Unlock()
		return
	}
	m.open = false
	h := m.onClose
	m.mu.Unlock()
	if h != nil {
		h(cause)
	}
}

func (m *Memory) Close() error {
	m.Drop(nil)
	return nil
}

// Sent 返回已发送帧的副本
func (m *Memory) Sent() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.sent))
	copy(out, m.sent)
	return out
}

// Reset 清空发送记录
func (m *Memory) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = nil
}
