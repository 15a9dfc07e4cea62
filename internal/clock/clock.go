// Package clock 提供可替换的时钟，协议状态机的所有定时都经由它调度。
package clock

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Timer 单次定时器
type Timer interface {
	// Stop 取消定时器；已触发或已取消返回 false
	Stop() bool
}

// Clock 时间源与单次定时调度
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Real 系统时钟
type Real struct {
	c clockwork.Clock
}

// NewReal 创建系统时钟
func NewReal() Real {
	return Real{c: clockwork.NewRealClock()}
}

func (r Real) Now() time.Time { return r.c.Now() }

func (r Real) AfterFunc(d time.Duration, f func()) Timer { return r.c.AfterFunc(d, f) }

// Manual 手动推进的时钟，用于确定性测试。
// 底层是 clockwork 的假时钟，Advance 逐个到期时刻推进并等待回调返回。
type Manual struct {
	fake  fakeClock
	mu    sync.Mutex
	armed map[*manualTimer]struct{}
}

type fakeClock interface {
	clockwork.Clock
	Advance(d time.Duration)
}

type manualTimer struct {
	m    *Manual
	t    clockwork.Timer
	due  time.Time
	done chan struct{}
}

// NewManual 以给定时间创建手动时钟
func NewManual(start time.Time) *Manual {
	return &Manual{
		fake:  clockwork.NewFakeClockAt(start),
		armed: make(map[*manualTimer]struct{}),
	}
}

func (m *Manual) Now() time.Time { return m.fake.Now() }

func (m *Manual) AfterFunc(d time.Duration, f func()) Timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	mt := &manualTimer{m: m, due: m.fake.Now().Add(d), done: make(chan struct{})}
	m.armed[mt] = struct{}{}
	mt.t = m.fake.AfterFunc(d, func() {
		defer close(mt.done)
		m.disarm(mt)
		f()
	})
	return mt
}

func (m *Manual) disarm(t *manualTimer) {
	m.mu.Lock()
	delete(m.armed, t)
	m.mu.Unlock()
}

func (t *manualTimer) Stop() bool {
	if !t.t.Stop() {
		return false
	}
	t.m.disarm(t)
	return true
}

// Advance 推进时间；回调中新建且在窗口内到期的定时器同样触发
func (m *Manual) Advance(d time.Duration) {
	target := m.fake.Now().Add(d)
	for {
		due := m.earliest(target)
		if len(due) == 0 {
			break
		}
		m.fake.Advance(max(due[0].due.Sub(m.fake.Now()), 0))
		for _, t := range due {
			<-t.done
		}
	}
	if rest := target.Sub(m.fake.Now()); rest > 0 {
		m.fake.Advance(rest)
	}
}

// earliest 不晚于 target 的最早到期时刻上的全部定时器
func (m *Manual) earliest(target time.Time) []*manualTimer {
	m.mu.Lock()
	defer m.mu.Unlock()
	var due []*manualTimer
	for t := range m.armed {
		switch {
		case t.due.After(target):
		case len(due) == 0 || t.due.Before(due[0].due):
			due = []*manualTimer{t}
		case t.due.Equal(due[0].due):
			due = append(due, t)
		}
	}
	return due
}

// Pending 尚未触发的定时器数量
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.armed)
}
