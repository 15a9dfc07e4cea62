package crsf

import "fmt"

// ElrsSerial 已知厂商序列号（ASCII "ELRS"）
const ElrsSerial uint32 = 0x454C5253

// DeviceInfo DEVICE_INFO 应答
type DeviceInfo struct {
	Name             string `json:"name" yaml:"name"`
	Address          uint8  `json:"address" yaml:"address"`
	SerialNumber     uint32 `json:"serialNumber" yaml:"serialNumber"`
	HardwareID       uint32 `json:"hardwareId" yaml:"hardwareId"`
	FirmwareID       uint32 `json:"firmwareId" yaml:"firmwareId"`
	ParametersTotal  uint8  `json:"parametersTotal" yaml:"parametersTotal"`
	ParameterVersion uint8  `json:"parameterVersion" yaml:"parameterVersion"`
}

// IsKnownVendor 序列号为 ELRS 的设备
func (d DeviceInfo) IsKnownVendor() bool { return d.SerialNumber == ElrsSerial }

// FirmwareVersion 固件号的 major.minor.patch 形式
func (d DeviceInfo) FirmwareVersion() string {
	return fmt.Sprintf("%d.%d.%d", byte(d.FirmwareID>>16), byte(d.FirmwareID>>8), byte(d.FirmwareID))
}

// DecodeDeviceInfo 解析 DEVICE_INFO 帧；设备地址取自帧的 origin
func DecodeDeviceInfo(f *Frame) (DeviceInfo, error) {
	if f.Type != TypeDeviceInfo {
		return DeviceInfo{}, fmt.Errorf("%w: not a device_info frame (%s)", ErrMalformedFrame, f.Type)
	}
	r := NewReader(f.Payload)
	d := DeviceInfo{Address: f.Origin}
	d.Name = r.CString()
	d.SerialNumber = r.U32()
	d.HardwareID = r.U32()
	d.FirmwareID = r.U32()
	d.ParametersTotal = r.U8()
	d.ParameterVersion = r.U8()
	if err := r.Err(); err != nil {
		return DeviceInfo{}, fmt.Errorf("%w: device_info from 0x%02X: %v", ErrShortPayload, f.Origin, err)
	}
	return d, nil
}

// EncodeDeviceInfo 构造 DEVICE_INFO 载荷（用于模拟设备与测试）
func EncodeDeviceInfo(d DeviceInfo) []byte {
	b := make([]byte, 0, len(d.Name)+15)
	b = append(b, d.Name...)
	b = append(b, 0)
	b = appendU32(b, d.SerialNumber)
	b = appendU32(b, d.HardwareID)
	b = appendU32(b, d.FirmwareID)
	return append(b, d.ParametersTotal, d.ParameterVersion)
}

func appendU32(b []byte, v uint32) []byte {
	return append(b, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

func appendU16(b []byte, v uint16) []byte {
	return append(b, byte(v>>8), byte(v))
}
