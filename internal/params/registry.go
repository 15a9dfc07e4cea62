package params

import (
	"time"

	"github.com/taoyao-code/crsfctl/internal/protocol/crsf"
)

// Device 注册表中的设备
type Device struct {
	crsf.DeviceInfo
	KnownVendor bool      `json:"knownVendor" yaml:"knownVendor"`
	LastSeen    time.Time `json:"lastSeen" yaml:"lastSeen"`
}

// Registry 按地址索引的设备表，保持首次出现顺序；后到的应答整体覆盖。由 Session 持锁访问。
type Registry struct {
	order []uint8
	byKey map[uint8]Device
}

// NewRegistry 创建空注册表
func NewRegistry() *Registry {
	return &Registry{byKey: make(map[uint8]Device)}
}

// Upsert 写入设备，返回是否为新地址
func (r *Registry) Upsert(info crsf.DeviceInfo, at time.Time) (Device, bool) {
	d := Device{DeviceInfo: info, KnownVendor: info.IsKnownVendor(), LastSeen: at}
	_, exists := r.byKey[info.Address]
	if !exists {
		r.order = append(r.order, info.Address)
	}
	r.byKey[info.Address] = d
	return d, !exists
}

func (r *Registry) Get(addr uint8) (Device, bool) {
	d, ok := r.byKey[addr]
	return d, ok
}

func (r *Registry) Len() int { return len(r.order) }

// List 按发现顺序返回
func (r *Registry) List() []Device {
	out := make([]Device, 0, len(r.order))
	for _, a := range r.order {
		out = append(out, r.byKey[a])
	}
	return out
}

func (r *Registry) Clear() {
	r.order = r.order[:0]
	clear(r.byKey)
}

// originFor 选择与设备通信时使用的源地址
func originFor(d Device) byte {
	if d.KnownVendor && d.Address == crsf.AddrTransmitter {
		return crsf.AddrElrsLua
	}
	return crsf.AddrRadioTransmitter
}
