package crsf

// 参数写入的特殊值
const (
	LinkStatParam  uint8 = 0    // 写 0 号参数触发设备回送 ELRS_STATUS
	ClearErrorCode byte  = 0x2E // 与 0x00 组成清错命令
)

// PingFrame 广播 DEVICE_PING
func PingFrame(origin byte) []byte {
	b, _ := Encode(TypeDevicePing, AddrBroadcast, origin, nil)
	return b
}

// ParamReadFrame 请求某参数的某个分片
func ParamReadFrame(dest, origin, number, chunk byte) []byte {
	b, _ := Encode(TypeParamRead, dest, origin, []byte{number, chunk})
	return b
}

// ParamWriteFrame 写参数：payload = [number, value...]
func ParamWriteFrame(dest, origin, number byte, value ...byte) ([]byte, error) {
	payload := make([]byte, 0, len(value)+1)
	payload = append(payload, number)
	payload = append(payload, value...)
	return Encode(TypeParamWrite, dest, origin, payload)
}

// LinkStatPollFrame 链路统计轮询（写 0 号参数值 0）
func LinkStatPollFrame(dest, origin byte) []byte {
	b, _ := ParamWriteFrame(dest, origin, LinkStatParam, 0)
	return b
}

// ClearErrorFrame 设备错误提示被确认后发送的清除命令
func ClearErrorFrame(dest, origin byte) []byte {
	b, _ := ParamWriteFrame(dest, origin, ClearErrorCode, 0x00)
	return b
}
