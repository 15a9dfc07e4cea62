package crsf

import (
	"errors"
	"fmt"
)

// 帧同步字节与尺寸上限
const (
	SyncByte     byte = 0xC8
	MaxFrameSize      = 64               // 含 sync 与 length
	MaxLength         = MaxFrameSize - 2 // length 字段允许的最大值
)

// FrameType 帧类型
type FrameType byte

// 设备/参数扩展帧（>= 0x28 携带目的/源地址）
const (
	TypeGPS            FrameType = 0x02
	TypeBattery        FrameType = 0x08
	TypeLinkStatistics FrameType = 0x14
	TypeDevicePing     FrameType = 0x28
	TypeDeviceInfo     FrameType = 0x29
	TypeParamEntry     FrameType = 0x2B
	TypeParamRead      FrameType = 0x2C
	TypeParamWrite     FrameType = 0x2D
	TypeElrsStatus     FrameType = 0x2E
)

// 总线地址
const (
	AddrBroadcast        byte = 0x00
	AddrUSB              byte = 0x10
	AddrRadioTransmitter byte = 0xEA
	AddrReceiver         byte = 0xEC
	AddrTransmitter      byte = 0xEE
	AddrElrsLua          byte = 0xEF
)

// Addressed 判断帧类型是否使用扩展寻址（dest/origin）
func (t FrameType) Addressed() bool { return t >= 0x28 }

func (t FrameType) String() string {
	switch t {
	case TypeGPS:
		return "gps"
	case TypeBattery:
		return "battery"
	case TypeLinkStatistics:
		return "link_statistics"
	case TypeDevicePing:
		return "device_ping"
	case TypeDeviceInfo:
		return "device_info"
	case TypeParamEntry:
		return "param_entry"
	case TypeParamRead:
		return "param_read"
	case TypeParamWrite:
		return "param_write"
	case TypeElrsStatus:
		return "elrs_status"
	}
	return fmt.Sprintf("0x%02X", byte(t))
}

var (
	ErrMalformedFrame  = errors.New("crsf: malformed frame")
	ErrCRCMismatch     = errors.New("crsf: crc mismatch")
	ErrPayloadTooLarge = errors.New("crsf: payload too large")
)

// Frame CRSF 协议帧
// 格式：sync(1) + len(1) + type(1) + [dest(1) + origin(1)] + payload(var) + crc(1)
type Frame struct {
	Type        FrameType
	Destination byte // 仅扩展帧有效
	Origin      byte // 仅扩展帧有效
	Payload     []byte
	CRC         byte // 收到的 CRC 字节（Decode 时填充）
}

// headerLen 返回 length 字段之后、payload 之前的字节数
func headerLen(t FrameType) int {
	if t.Addressed() {
		return 3
	}
	return 1
}

// Encode 构建完整的 CRSF 帧
func Encode(t FrameType, dest, origin byte, payload []byte) ([]byte, error) {
	hl := headerLen(t)
	length := len(payload) + hl + 1
	if length > MaxLength {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(payload))
	}
	buf := make([]byte, 0, length+2)
	buf = append(buf, SyncByte, byte(length), byte(t))
	if t.Addressed() {
		buf = append(buf, dest, origin)
	}
	buf = append(buf, payload...)
	// CRC 覆盖 type 到 payload 末尾（不含 sync/len/crc 自身）
	buf = append(buf, CRC8(buf[2:]))
	return buf, nil
}

// Bytes 将帧重新编码为线格式
func (f *Frame) Bytes() ([]byte, error) {
	return Encode(f.Type, f.Destination, f.Origin, f.Payload)
}

// ExpectedCRC 根据帧内容重新计算 CRC
func (f *Frame) ExpectedCRC() byte {
	body := make([]byte, 0, len(f.Payload)+3)
	body = append(body, byte(f.Type))
	if f.Type.Addressed() {
		body = append(body, f.Destination, f.Origin)
	}
	body = append(body, f.Payload...)
	return CRC8(body)
}

// CRCValid 校验收到的 CRC 字节
func (f *Frame) CRCValid() bool { return f.ExpectedCRC() == f.CRC }

// Decode 解析一帧。只校验结构，不校验 CRC（由调用方决定是否强制）。
func Decode(b []byte) (*Frame, error) {
	if len(b) < 4 {
		return nil, fmt.Errorf("%w: short buffer (%d bytes)", ErrMalformedFrame, len(b))
	}
	if b[0] != SyncByte {
		return nil, fmt.Errorf("%w: bad sync 0x%02X", ErrMalformedFrame, b[0])
	}
	length := int(b[1])
	if length+2 > len(b) {
		return nil, fmt.Errorf("%w: declared length %d exceeds buffer", ErrMalformedFrame, length)
	}
	t := FrameType(b[2])
	hl := headerLen(t)
	if length < hl+1 {
		return nil, fmt.Errorf("%w: length %d too small for type %s", ErrMalformedFrame, length, t)
	}
	f := &Frame{Type: t, CRC: b[length+1]}
	if t.Addressed() {
		f.Destination = b[3]
		f.Origin = b[4]
	}
	payload := b[2+hl : length+1]
	f.Payload = make([]byte, len(payload))
	copy(f.Payload, payload)
	return f, nil
}

// DecodeStrict 解析并强制校验 CRC
func DecodeStrict(b []byte) (*Frame, error) {
	f, err := Decode(b)
	if err != nil {
		return nil, err
	}
	if !f.CRCValid() {
		return nil, fmt.Errorf("%w: got 0x%02X want 0x%02X", ErrCRCMismatch, f.CRC, f.ExpectedCRC())
	}
	return f, nil
}
