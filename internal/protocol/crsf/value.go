package crsf

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotEncodable 该类型不能按数值写入
var ErrNotEncodable = errors.New("crsf: type not encodable as number")

// EncodeValue 按参数类型序列化 PARAM_WRITE 的数值部分（大端）
func EncodeValue(t ParamType, v int64) ([]byte, error) {
	switch t {
	case ParamUint8, ParamInt8, ParamTextSelection, ParamCommand:
		return []byte{byte(v)}, nil
	case ParamUint16, ParamInt16:
		return appendU16(nil, uint16(v)), nil
	case ParamUint32, ParamInt32, ParamFloat:
		return appendU32(nil, uint32(v)), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNotEncodable, t)
}

// EncodeText STRING 写入：字节 + 结束符
func EncodeText(s string) []byte {
	b := make([]byte, 0, len(s)+1)
	b = append(b, s...)
	return append(b, 0)
}

// EncodeParameter 将参数序列化为 PARAM_ENTRY 的完整载荷（分片前）
func EncodeParameter(p *Parameter) []byte {
	tb := byte(p.Type) & paramTypeMask
	if p.Hidden {
		tb |= paramHiddenBit
	}
	b := []byte{p.Parent, tb}
	b = append(b, EncodeText(p.Name)...)
	switch {
	case p.Numeric != nil:
		n := p.Numeric
		for _, v := range []int64{n.Value, n.Min, n.Max, n.Default} {
			raw, _ := EncodeValue(p.Type, v)
			b = append(b, raw...)
		}
		b = append(b, EncodeText(n.Unit)...)
	case p.Float != nil:
		f := p.Float
		for _, v := range []int32{f.Value, f.Min, f.Max, f.Default} {
			b = appendU32(b, uint32(v))
		}
		b = append(b, f.Precision)
		b = appendU32(b, uint32(f.Step))
		b = append(b, EncodeText(f.Unit)...)
	case p.Selection != nil:
		s := p.Selection
		b = append(b, EncodeText(strings.Join(s.Options, ";"))...)
		b = append(b, s.Value, s.Min, s.Max, s.Default)
		b = append(b, EncodeText(s.Unit)...)
	case p.Text != nil:
		b = append(b, EncodeText(p.Text.Value)...)
		if p.Type == ParamString && p.Text.MaxLength > 0 {
			b = append(b, p.Text.MaxLength)
		}
	case p.Command != nil:
		b = append(b, byte(p.Command.Status), p.Command.Timeout)
		b = append(b, EncodeText(p.Command.Info)...)
	}
	return b
}

// MaxChunkSize PARAM_ENTRY 单帧可携带的最大数据（除去 num 与 chunksRemaining）
const MaxChunkSize = MaxLength - 3 - 1 - 2

// SplitEntry 将参数载荷切分为若干 PARAM_ENTRY 载荷：[num, chunksRemaining, data...]
func SplitEntry(number uint8, data []byte, chunkSize int) [][]byte {
	if chunkSize <= 0 || chunkSize > MaxChunkSize {
		chunkSize = MaxChunkSize
	}
	n := (len(data) + chunkSize - 1) / chunkSize
	if n == 0 {
		n = 1
	}
	out := make([][]byte, 0, n)
	for i := 0; i < n; i++ {
		start := i * chunkSize
		end := min(start+chunkSize, len(data))
		chunk := make([]byte, 0, end-start+2)
		chunk = append(chunk, number, byte(n-1-i))
		chunk = append(chunk, data[start:end]...)
		out = append(out, chunk)
	}
	return out
}
