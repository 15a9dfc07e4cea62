package channel

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// NewWebSocket 通过 WebSocket 透传（如 ws://10.0.0.1/crsf）访问总线，每条二进制消息承载一个或多个帧
func NewWebSocket(url string, dialTimeout time.Duration, opts ...Option) *Stream {
	dial := func(ctx context.Context) (io.ReadWriteCloser, error) {
		d := websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: dialTimeout,
		}
		c, _, err := d.DialContext(ctx, url, nil)
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", url, err)
		}
		return &wsStream{c: c}, nil
	}
	return NewStream("websocket:"+url, dial, opts...)
}

// wsStream 将消息式连接适配为字节流
type wsStream struct {
	c    *websocket.Conn
	r    io.Reader
	once sync.Once
}

func (w *wsStream) Read(p []byte) (int, error) {
	for {
		if w.r == nil {
			mt, r, err := w.c.NextReader()
			if err != nil {
				return 0, err
			}
			if mt != websocket.BinaryMessage {
				continue
			}
			w.r = r
		}
		n, err := w.r.Read(p)
		if err == io.EOF {
			w.r = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (w *wsStream) Write(p []byte) (int, error) {
	if err := w.c.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *wsStream) Close() error {
	var err error
	w.once.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = w.c.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		err = w.c.Close()
	})
	return err
}
