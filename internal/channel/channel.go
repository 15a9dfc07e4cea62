// Package channel 实现与设备总线之间的双工帧通道（WebSocket / 串口 / TCP）。
package channel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/taoyao-code/crsfctl/internal/protocol/crsf"
)

var (
	// ErrClosed 通道未打开或已关闭
	ErrClosed = errors.New("channel: closed")
	// ErrWriteTimeout 写队列满且超时
	ErrWriteTimeout = errors.New("channel: write queue timeout")
)

// Channel 双工帧通道。onMessage 每次收到一个完整帧（含 sync 与 crc）。
type Channel interface {
	// Open 打开通道；已打开时直接返回
	Open(ctx context.Context) error
	Send(frame []byte) error
	SetHandlers(onMessage func([]byte), onClose func(error))
	Close() error
	IsOpen() bool
	Name() string
}

// DialFunc 建立底层字节流
type DialFunc func(ctx context.Context) (io.ReadWriteCloser, error)

// Option 通道选项
type Option func(*Stream)

// WithLogger 设置日志
func WithLogger(l *zap.Logger) Option {
	return func(s *Stream) {
		if l != nil {
			s.log = l
		}
	}
}

// WithWriteTimeout 设置写队列超时
func WithWriteTimeout(d time.Duration) Option {
	return func(s *Stream) {
		if d > 0 {
			s.writeTimeout = d
		}
	}
}

// WithQueueSize 设置写队列长度
func WithQueueSize(n int) Option {
	return func(s *Stream) {
		if n > 0 {
			s.queueSize = n
		}
	}
}

// Stream 基于字节流的通道：读循环切帧，写循环串行发送
type Stream struct {
	name         string
	dial         DialFunc
	log          *zap.Logger
	writeTimeout time.Duration
	queueSize    int

	mu        sync.Mutex
	conn      io.ReadWriteCloser
	writeC    chan []byte
	doneC     chan struct{}
	open      atomic.Bool
	onMessage func([]byte)
	onClose   func(error)
}

// NewStream 以 dial 创建通道
func NewStream(name string, dial DialFunc, opts ...Option) *Stream {
	s := &Stream{
		name:         name,
		dial:         dial,
		log:          zap.NewNop(),
		writeTimeout: 2 * time.Second,
		queueSize:    64,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Stream) Name() string { return s.name }

func (s *Stream) IsOpen() bool { return s.open.Load() }

func (s *Stream) SetHandlers(onMessage func([]byte), onClose func(error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onMessage = onMessage
	s.onClose = onClose
}

func (s *Stream) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.open.Load() {
		return nil
	}
	conn, err := s.dial(ctx)
	if err != nil {
		return fmt.Errorf("open %s: %w", s.name, err)
	}
	s.conn = conn
	s.writeC = make(chan []byte, s.queueSize)
	s.doneC = make(chan struct{})
	s.open.Store(true)
	go s.writeLoop(conn, s.writeC, s.doneC)
	go s.readLoop(conn, s.doneC)
	s.log.Info("channel opened", zap.String("channel", s.name))
	return nil
}

// Send 异步写入一帧；通道未打开时返回 ErrClosed
func (s *Stream) Send(frame []byte) error {
	s.mu.Lock()
	writeC, doneC := s.writeC, s.doneC
	open := s.open.Load()
	s.mu.Unlock()
	if !open {
		return ErrClosed
	}
	dup := make([]byte, len(frame))
	copy(dup, frame)
	select {
	case writeC <- dup:
		return nil
	case <-doneC:
		return ErrClosed
	case <-time.After(s.writeTimeout):
		return ErrWriteTimeout
	}
}

// Close 关闭通道，触发 onClose(nil)
func (s *Stream) Close() error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	return s.shutdown(conn, nil)
}

// shutdown 只关闭仍为当前连接的 conn，旧连接的读写循环不会影响重新打开后的通道
func (s *Stream) shutdown(conn io.ReadWriteCloser, cause error) error {
	s.mu.Lock()
	if conn == nil || s.conn != conn || !s.open.CompareAndSwap(true, false) {
		s.mu.Unlock()
		return nil
	}
	close(s.doneC)
	onClose := s.onClose
	s.mu.Unlock()

	err := conn.Close()
	if cause != nil {
		s.log.Warn("channel closed", zap.String("channel", s.name), zap.Error(cause))
	} else {
		s.log.Info("channel closed", zap.String("channel", s.name))
	}
	if onClose != nil {
		onClose(cause)
	}
	return err
}

func (s *Stream) writeLoop(conn io.ReadWriteCloser, writeC <-chan []byte, doneC <-chan struct{}) {
	for {
		select {
		case msg := <-writeC:
			if _, err := conn.Write(msg); err != nil {
				_ = s.shutdown(conn, fmt.Errorf("write: %w", err))
				return
			}
		case <-doneC:
			return
		}
	}
}

func (s *Stream) readLoop(conn io.ReadWriteCloser, doneC <-chan struct{}) {
	// 帧 CRC 由会话层按配置校验
	dec := crsf.NewStreamDecoder(false)
	buf := make([]byte, 512)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			frames := dec.Feed(buf[:n])
			s.mu.Lock()
			h := s.onMessage
			s.mu.Unlock()
			for _, f := range frames {
				if h != nil {
					h(f)
				}
			}
		}
		if err != nil {
			select {
			case <-doneC:
			default:
				if errors.Is(err, io.EOF) {
					err = io.ErrUnexpectedEOF
				}
				_ = s.shutdown(conn, fmt.Errorf("read: %w", err))
			}
			return
		}
	}
}
