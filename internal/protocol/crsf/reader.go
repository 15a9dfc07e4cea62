package crsf

import (
	"errors"
	"fmt"
)

// ErrShortBuffer 读取越过缓冲区末尾
var ErrShortBuffer = errors.New("crsf: short buffer")

// ReadCString 从 offset 读取以 0 结尾的字符串。
// 返回值 next 指向终止符之后；若未找到终止符，返回剩余部分且 next = len(buf)+1。
func ReadCString(buf []byte, offset int) (string, int) {
	if offset >= len(buf) {
		return "", offset + 1
	}
	i := offset
	for i < len(buf) && buf[i] != 0 {
		i++
	}
	return string(buf[offset:i]), i + 1
}

func need(buf []byte, offset, n int) error {
	if offset < 0 || offset+n > len(buf) {
		return fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrShortBuffer, n, offset, len(buf))
	}
	return nil
}

// ReadU8 读取单字节
func ReadU8(buf []byte, offset int) (uint8, int, error) {
	if err := need(buf, offset, 1); err != nil {
		return 0, offset, err
	}
	return buf[offset], offset + 1, nil
}

// ReadI8 读取单字节并按有符号解释
func ReadI8(buf []byte, offset int) (int8, int, error) {
	v, next, err := ReadU8(buf, offset)
	return int8(v), next, err
}

// ReadU16BE 读取大端 uint16
func ReadU16BE(buf []byte, offset int) (uint16, int, error) {
	if err := need(buf, offset, 2); err != nil {
		return 0, offset, err
	}
	return uint16(buf[offset])<<8 | uint16(buf[offset+1]), offset + 2, nil
}

// ReadI16BE 读取大端 int16
func ReadI16BE(buf []byte, offset int) (int16, int, error) {
	v, next, err := ReadU16BE(buf, offset)
	return int16(v), next, err
}

// ReadU32BE 读取大端 uint32
func ReadU32BE(buf []byte, offset int) (uint32, int, error) {
	if err := need(buf, offset, 4); err != nil {
		return 0, offset, err
	}
	v := uint32(buf[offset])<<24 | uint32(buf[offset+1])<<16 | uint32(buf[offset+2])<<8 | uint32(buf[offset+3])
	return v, offset + 4, nil
}

// ReadI32BE 读取大端 int32
func ReadI32BE(buf []byte, offset int) (int32, int, error) {
	v, next, err := ReadU32BE(buf, offset)
	return int32(v), next, err
}

// Reader 顺序读取游标，首个错误之后的读取全部返回零值
type Reader struct {
	buf []byte
	off int
	err error
}

// NewReader 创建读取游标
func NewReader(buf []byte) *Reader { return &Reader{buf: buf} }

// Err 返回首个读取错误
func (r *Reader) Err() error { return r.err }

// Offset 当前偏移
func (r *Reader) Offset() int { return r.off }

// Remaining 剩余未读字节数
func (r *Reader) Remaining() int {
	if r.off >= len(r.buf) {
		return 0
	}
	return len(r.buf) - r.off
}

func (r *Reader) CString() string {
	if r.err != nil {
		return ""
	}
	s, next := ReadCString(r.buf, r.off)
	r.off = next
	return s
}

func (r *Reader) U8() uint8 {
	if r.err != nil {
		return 0
	}
	v, next, err := ReadU8(r.buf, r.off)
	r.off, r.err = next, err
	return v
}

func (r *Reader) I8() int8 { return int8(r.U8()) }

func (r *Reader) U16() uint16 {
	if r.err != nil {
		return 0
	}
	v, next, err := ReadU16BE(r.buf, r.off)
	r.off, r.err = next, err
	return v
}

func (r *Reader) I16() int16 { return int16(r.U16()) }

func (r *Reader) U32() uint32 {
	if r.err != nil {
		return 0
	}
	v, next, err := ReadU32BE(r.buf, r.off)
	r.off, r.err = next, err
	return v
}

func (r *Reader) I32() int32 { return int32(r.U32()) }
