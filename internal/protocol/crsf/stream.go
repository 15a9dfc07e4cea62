package crsf

// StreamDecoder 字节流切帧：按 sync + length 切分，处理半包/粘包
type StreamDecoder struct {
	buf []byte
	// 为 true 时丢弃 CRC 错误的帧
	verifyCRC bool
	// 统计
	crcErrors int
	resyncs   int
}

// NewStreamDecoder 创建流式解码器；verifyCRC 控制是否丢弃 CRC 错误帧
func NewStreamDecoder(verifyCRC bool) *StreamDecoder {
	return &StreamDecoder{verifyCRC: verifyCRC}
}

// Feed 追加原始字节并返回所有完整帧的原始字节（含 sync 与 crc）
func (d *StreamDecoder) Feed(p []byte) [][]byte {
	d.buf = append(d.buf, p...)
	var out [][]byte
	for {
		if len(d.buf) < 2 {
			return out
		}
		if d.buf[0] != SyncByte {
			d.buf = d.buf[1:]
			d.resyncs++
			continue
		}
		length := int(d.buf[1])
		if length < 2 || length > MaxLength {
			d.buf = d.buf[1:]
			d.resyncs++
			continue
		}
		total := length + 2
		if len(d.buf) < total {
			return out
		}
		raw := d.buf[:total]
		if d.verifyCRC && CRC8(raw[2:total-1]) != raw[total-1] {
			d.crcErrors++
			d.buf = d.buf[1:]
			continue
		}
		fr := make([]byte, total)
		copy(fr, raw)
		out = append(out, fr)
		d.buf = d.buf[total:]
	}
}

// Reset 丢弃缓冲中的残留字节
func (d *StreamDecoder) Reset() { d.buf = d.buf[:0] }

// Buffered 当前缓冲的字节数
func (d *StreamDecoder) Buffered() int { return len(d.buf) }

// CRCErrors 累计丢弃的 CRC 错误帧数
func (d *StreamDecoder) CRCErrors() int { return d.crcErrors }

// Resyncs 累计因失步丢弃的字节数
func (d *StreamDecoder) Resyncs() int { return d.resyncs }
