package events

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// DefaultQueueSize 异步投递队列默认容量
const DefaultQueueSize = 1024

// ErrSinkClosed 已关闭的 Sink 不再接收事件
var ErrSinkClosed = errors.New("event sink closed")

// Async 带缓冲队列的异步投递，由单个 worker 按序交给下游 Sink。
// 队列满时丢弃新事件并计数，Publish 从不阻塞调用方。
type Async struct {
	inner   Sink
	queue   chan Event
	done    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
	dropped atomic.Uint64
	logger  *zap.Logger
}

// NewAsync 创建并启动异步投递
func NewAsync(inner Sink, size int, logger *zap.Logger) *Async {
	if size <= 0 {
		size = DefaultQueueSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &Async{
		inner:  inner,
		queue:  make(chan Event, size),
		done:   make(chan struct{}),
		logger: logger,
	}
	a.wg.Add(1)
	go a.run()
	return a
}

func (a *Async) Publish(_ context.Context, ev Event) error {
	select {
	case <-a.done:
		return ErrSinkClosed
	default:
	}
	select {
	case a.queue <- ev:
		return nil
	default:
		n := a.dropped.Add(1)
		a.logger.Warn("event queue full, dropping event",
			zap.String("kind", string(ev.Kind)),
			zap.Uint64("dropped_total", n))
		return nil
	}
}

func (a *Async) run() {
	defer a.wg.Done()
	for {
		select {
		case <-a.done:
			return
		case ev := <-a.queue:
			if err := a.inner.Publish(context.Background(), ev); err != nil {
				a.logger.Warn("publish event failed", zap.String("kind", string(ev.Kind)), zap.Error(err))
			}
		}
	}
}

// Dropped 因队列满或关闭而丢弃的事件数
func (a *Async) Dropped() uint64 { return a.dropped.Load() }

// Len 队列中待投递的事件数
func (a *Async) Len() int { return len(a.queue) }

// Close 停止 worker，未投递的事件计入丢弃
func (a *Async) Close() {
	a.once.Do(func() {
		close(a.done)
		a.wg.Wait()
		a.dropped.Add(uint64(len(a.queue)))
	})
}
