package channel

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"
)

// NewTCP 通过 TCP 串口服务器（ser2net 一类）访问总线
func NewTCP(addr string, dialTimeout time.Duration, opts ...Option) *Stream {
	dial := func(ctx context.Context) (io.ReadWriteCloser, error) {
		d := net.Dialer{Timeout: dialTimeout, KeepAlive: 30 * time.Second}
		c, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", addr, err)
		}
		if tc, ok := c.(*net.TCPConn); ok {
			_ = tc.SetNoDelay(true)
		}
		return c, nil
	}
	return NewStream("tcp:"+addr, dial, opts...)
}
