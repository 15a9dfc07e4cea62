package crsf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadCString(t *testing.T) {
	tests := []struct {
		name   string
		buf    []byte
		offset int
		want   string
		next   int
	}{
		{"正常结尾", []byte{'a', 'b', 0, 'c'}, 0, "ab", 3},
		{"空字符串", []byte{0, 'x'}, 0, "", 1},
		{"偏移读取", []byte{'a', 0, 'b', 'c', 0}, 2, "bc", 5},
		{"未结束", []byte{'a', 'b', 'c'}, 1, "bc", 4},
		{"偏移越界", []byte{'a'}, 1, "", 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, next := ReadCString(tt.buf, tt.offset)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.next, next)
		})
	}
}

func TestReadScalars(t *testing.T) {
	buf := []byte{0xFF, 0x12, 0x34, 0xDE, 0xAD, 0xBE, 0xEF}

	u8, next, err := ReadU8(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, uint8(0xFF), u8)
	assert.Equal(t, 1, next)

	i8, _, err := ReadI8(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, int8(-1), i8)

	u16, next, err := ReadU16BE(buf, 1)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x1234), u16)
	assert.Equal(t, 3, next)

	i16, _, err := ReadI16BE([]byte{0xFF, 0xFE}, 0)
	require.NoError(t, err)
	assert.Equal(t, int16(-2), i16)

	u32, next, err := ReadU32BE(buf, 3)
	require.NoError(t, err)
	assert.Equal(t, uint32(0xDEADBEEF), u32)
	assert.Equal(t, 7, next)

	i32, _, err := ReadI32BE([]byte{0xFF, 0xFF, 0xFF, 0x9C}, 0)
	require.NoError(t, err)
	assert.Equal(t, int32(-100), i32)

	_, _, err = ReadU32BE(buf, 4)
	assert.ErrorIs(t, err, ErrShortBuffer)
	_, _, err = ReadU8(buf, 7)
	assert.ErrorIs(t, err, ErrShortBuffer)
}

func TestReader_StickyError(t *testing.T) {
	r := NewReader([]byte{'h', 'i', 0, 0x01, 0x02})
	assert.Equal(t, "hi", r.CString())
	assert.Equal(t, uint16(0x0102), r.U16())
	assert.NoError(t, r.Err())
	assert.Equal(t, 0, r.Remaining())

	assert.Equal(t, uint8(0), r.U8())
	assert.ErrorIs(t, r.Err(), ErrShortBuffer)
	// 出错后保持首个错误，读取返回零值
	assert.Equal(t, uint32(0), r.U32())
	assert.Equal(t, "", r.CString())
	assert.ErrorIs(t, r.Err(), ErrShortBuffer)
}
