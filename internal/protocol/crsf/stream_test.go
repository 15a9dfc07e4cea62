package crsf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamDecoder_Feed(t *testing.T) {
	ping := PingFrame(AddrRadioTransmitter)
	read := ParamReadFrame(0xEE, 0xEA, 3, 1)

	t.Run("粘包", func(t *testing.T) {
		d := NewStreamDecoder(true)
		in := append(append([]byte{}, ping...), read...)
		frames := d.Feed(in)
		require.Len(t, frames, 2)
		assert.Equal(t, ping, frames[0])
		assert.Equal(t, read, frames[1])
		assert.Equal(t, 0, d.Buffered())
	})

	t.Run("半包", func(t *testing.T) {
		d := NewStreamDecoder(true)
		assert.Empty(t, d.Feed(read[:1]))
		assert.Empty(t, d.Feed(read[1:5]))
		frames := d.Feed(read[5:])
		require.Len(t, frames, 1)
		assert.Equal(t, read, frames[0])
	})

	t.Run("前导垃圾重同步", func(t *testing.T) {
		d := NewStreamDecoder(true)
		in := append([]byte{0x00, 0x11, 0xC8, 0x00, 0x22}, ping...)
		frames := d.Feed(in)
		require.Len(t, frames, 1)
		assert.Equal(t, ping, frames[0])
		assert.Equal(t, 5, d.Resyncs())
	})

	t.Run("长度越界", func(t *testing.T) {
		d := NewStreamDecoder(true)
		frames := d.Feed(append([]byte{0xC8, 0x40}, ping...))
		require.Len(t, frames, 1)
		assert.Equal(t, ping, frames[0])
	})

	t.Run("CRC 错误丢弃", func(t *testing.T) {
		d := NewStreamDecoder(true)
		bad := append([]byte{}, ping...)
		bad[len(bad)-1] ^= 0xFF
		frames := d.Feed(append(bad, read...))
		require.Len(t, frames, 1)
		assert.Equal(t, read, frames[0])
		assert.Equal(t, 1, d.CRCErrors())
	})

	t.Run("宽松模式保留 CRC 错误帧", func(t *testing.T) {
		d := NewStreamDecoder(false)
		bad := append([]byte{}, ping...)
		bad[len(bad)-1] ^= 0xFF
		frames := d.Feed(bad)
		require.Len(t, frames, 1)
		assert.Equal(t, bad, frames[0])
	})

	t.Run("Reset", func(t *testing.T) {
		d := NewStreamDecoder(true)
		d.Feed(read[:4])
		assert.Equal(t, 4, d.Buffered())
		d.Reset()
		assert.Equal(t, 0, d.Buffered())
	})
}
