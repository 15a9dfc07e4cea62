package crsf

import (
	"testing"
)

// crc8Bitwise 逐位计算，用于校验查表实现
func crc8Bitwise(data []byte) byte {
	var crc byte
	for _, b := range data {
		crc ^= b
		for i := 0; i < 8; i++ {
			if crc&0x80 != 0 {
				crc = crc<<1 ^ CRCPoly
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

func TestCRC8(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected byte
	}{
		{name: "空数据", data: nil, expected: 0x00},
		{name: "标准校验串", data: []byte("123456789"), expected: 0xBC},
		{name: "ping 帧体", data: []byte{0x28, 0x00, 0xEA}, expected: 0x54},
		{name: "param_read 帧体", data: []byte{0x2C, 0xEE, 0xEA, 0x01, 0x00}, expected: 0x86},
		{name: "链路轮询帧体", data: []byte{0x2D, 0xEE, 0xEA, 0x00, 0x00}, expected: 0x3B},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CRC8(tt.data); got != tt.expected {
				t.Errorf("CRC8() = 0x%02X, expected 0x%02X", got, tt.expected)
			}
		})
	}
}

func TestCRC8MatchesBitwise(t *testing.T) {
	data := make([]byte, 0, 256)
	for i := 0; i < 256; i++ {
		data = append(data, byte(i))
		if got, want := CRC8(data), crc8Bitwise(data); got != want {
			t.Fatalf("len=%d: table=0x%02X bitwise=0x%02X", len(data), got, want)
		}
	}
}
