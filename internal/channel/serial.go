package channel

import (
	"context"
	"fmt"
	"io"

	"go.bug.st/serial"
)

// 常用 CRSF 串口波特率
const (
	DefaultBaudRate = 420000
)

// NewSerial 通过 UART 直连总线（8N1）
func NewSerial(port string, baud int, opts ...Option) *Stream {
	if baud <= 0 {
		baud = DefaultBaudRate
	}
	dial := func(ctx context.Context) (io.ReadWriteCloser, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		mode := &serial.Mode{
			BaudRate: baud,
			DataBits: 8,
			Parity:   serial.NoParity,
			StopBits: serial.OneStopBit,
		}
		p, err := serial.Open(port, mode)
		if err != nil {
			return nil, fmt.Errorf("open serial %s: %w", port, err)
		}
		return p, nil
	}
	return NewStream("serial:"+port, dial, opts...)
}

// SerialPorts 列出本机可用串口
func SerialPorts() ([]string, error) {
	return serial.GetPortsList()
}
