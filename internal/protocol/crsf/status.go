package crsf

import "fmt"

// 状态标志
const (
	StatusFlagConnected byte = 0x01
	// 大于该值的标志表示设备侧告警/错误
	StatusFlagWarningThreshold byte = 0x1F
)

// LinkStatus ELRS_STATUS 帧内容
type LinkStatus struct {
	Bad     uint8  `json:"bad"`
	Good    uint16 `json:"good"`
	Flags   uint8  `json:"flags"`
	Message string `json:"message,omitempty"`
}

// Connected 接收端是否已连接
func (s LinkStatus) Connected() bool { return s.Flags&StatusFlagConnected != 0 }

// Warning 标志是否处于告警区间
func (s LinkStatus) Warning() bool { return s.Flags > StatusFlagWarningThreshold }

// DecodeLinkStatus 解析 ELRS_STATUS 载荷：bad(1) good(2 BE) flags(1) [msg\0]
func DecodeLinkStatus(payload []byte) (LinkStatus, error) {
	if len(payload) < 4 {
		return LinkStatus{}, fmt.Errorf("%w: elrs_status has %d bytes", ErrShortPayload, len(payload))
	}
	r := NewReader(payload)
	s := LinkStatus{}
	s.Bad = r.U8()
	s.Good = r.U16()
	s.Flags = r.U8()
	if r.Remaining() > 0 {
		s.Message = r.CString()
	}
	return s, nil
}

// EncodeLinkStatus 构造 ELRS_STATUS 载荷
func EncodeLinkStatus(s LinkStatus) []byte {
	b := []byte{s.Bad}
	b = appendU16(b, s.Good)
	b = append(b, s.Flags)
	if s.Message != "" {
		b = append(b, s.Message...)
		b = append(b, 0)
	}
	return b
}
