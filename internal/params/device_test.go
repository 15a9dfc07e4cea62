package params

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/taoyao-code/crsfctl/internal/channel"
	"github.com/taoyao-code/crsfctl/internal/protocol/crsf"
)

// fakeDevice 挂在 Memory 通道上的模拟设备，同步应答 PING/READ/WRITE
type fakeDevice struct {
	mu        sync.Mutex
	mem       *channel.Memory
	info      crsf.DeviceInfo
	params    map[uint8]*crsf.Parameter
	raw       map[uint8][]byte // 覆盖编码结果，用于构造损坏载荷
	chunkSize int

	drop      func(n, chunk uint8) bool
	onCommand func(n uint8, code crsf.CommandStatus) (crsf.CommandStatus, string, bool)
	onWrite   func(d *fakeDevice, n uint8, value []byte)
	status    *crsf.LinkStatus // 对链路轮询的应答

	reads  []readRequest
	writes [][]byte
}

func newFakeDevice(t *testing.T, params ...*crsf.Parameter) *fakeDevice {
	t.Helper()
	d := &fakeDevice{
		mem: channel.NewMemory(),
		info: crsf.DeviceInfo{
			Name:            "ELRS TX",
			Address:         crsf.AddrTransmitter,
			SerialNumber:    crsf.ElrsSerial,
			FirmwareID:      0x00030401,
			ParametersTotal: uint8(len(params)),
		},
		params: make(map[uint8]*crsf.Parameter),
		raw:    make(map[uint8][]byte),
	}
	for _, p := range params {
		d.params[p.Number] = p
	}
	d.mem.Responder = d.respond
	return d
}

func (d *fakeDevice) respond(raw []byte) {
	f, err := crsf.Decode(raw)
	if err != nil {
		return
	}
	switch f.Type {
	case crsf.TypeDevicePing:
		d.mu.Lock()
		info := d.info
		d.mu.Unlock()
		d.inject(crsf.TypeDeviceInfo, f.Origin, crsf.EncodeDeviceInfo(info))
	case crsf.TypeParamRead:
		n, chunk := f.Payload[0], f.Payload[1]
		d.mu.Lock()
		d.reads = append(d.reads, readRequest{Number: n, Chunk: chunk})
		dropped := d.drop != nil && d.drop(n, chunk)
		payload, ok := d.encodeLocked(n)
		d.mu.Unlock()
		if dropped || !ok {
			return
		}
		chunks := crsf.SplitEntry(n, payload, d.chunkSize)
		if int(chunk) < len(chunks) {
			d.inject(crsf.TypeParamEntry, f.Origin, chunks[chunk])
		}
	case crsf.TypeParamWrite:
		d.onParamWrite(f)
	}
}

func (d *fakeDevice) encodeLocked(n uint8) ([]byte, bool) {
	if b, ok := d.raw[n]; ok {
		return b, true
	}
	p, ok := d.params[n]
	if !ok {
		return nil, false
	}
	return crsf.EncodeParameter(p), true
}

func (d *fakeDevice) onParamWrite(f *crsf.Frame) {
	n, value := f.Payload[0], f.Payload[1:]
	d.mu.Lock()
	d.writes = append(d.writes, append([]byte(nil), f.Payload...))
	p := d.params[n]
	status := d.status
	onCommand, onWrite := d.onCommand, d.onWrite
	d.mu.Unlock()

	if n == crsf.LinkStatParam {
		if status != nil {
			d.inject(crsf.TypeElrsStatus, f.Origin, crsf.EncodeLinkStatus(*status))
		}
		return
	}
	if p == nil {
		return
	}
	switch {
	case p.Command != nil && len(value) == 1:
		if onCommand == nil {
			return
		}
		next, info, ok := onCommand(n, crsf.CommandStatus(value[0]))
		if !ok {
			return
		}
		d.mu.Lock()
		p.Command.Status = next
		p.Command.Info = info
		payload := crsf.EncodeParameter(p)
		d.mu.Unlock()
		// 只推送首分片，其余由 PARAM_READ 拉取
		d.inject(crsf.TypeParamEntry, f.Origin, crsf.SplitEntry(n, payload, d.chunkSize)[0])
	case p.Numeric != nil && len(value) == 1:
		d.mu.Lock()
		p.Numeric.Value = int64(value[0])
		d.mu.Unlock()
	case p.Selection != nil && len(value) == 1:
		d.mu.Lock()
		p.Selection.Value = value[0]
		d.mu.Unlock()
	}
	if onWrite != nil {
		onWrite(d, n, value)
	}
}

func (d *fakeDevice) inject(t crsf.FrameType, dest byte, payload []byte) {
	d.mu.Lock()
	origin := d.info.Address
	d.mu.Unlock()
	raw, err := crsf.Encode(t, dest, origin, payload)
	if err != nil {
		panic(err)
	}
	d.mem.Inject(raw)
}

// readsOf 设备收到的某参数的 PARAM_READ 次数（仅首分片）
func (d *fakeDevice) readsOf(n uint8) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	c := 0
	for _, r := range d.reads {
		if r.Number == n && r.Chunk == 0 {
			c++
		}
	}
	return c
}

func (d *fakeDevice) readOrder() []uint8 {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []uint8
	for _, r := range d.reads {
		if r.Chunk == 0 {
			out = append(out, r.Number)
		}
	}
	return out
}

// writesFor 指定参数收到的 PARAM_WRITE 载荷
func (d *fakeDevice) writesFor(n uint8) [][]byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out [][]byte
	for _, w := range d.writes {
		if w[0] == n {
			out = append(out, w)
		}
	}
	return out
}

func (d *fakeDevice) clearLog() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reads = nil
	d.writes = nil
}

func (d *fakeDevice) setName(n uint8, name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.params[n].Name = name
}

func requireFrames(t *testing.T, mem *channel.Memory, ft crsf.FrameType) []*crsf.Frame {
	t.Helper()
	var out []*crsf.Frame
	for _, raw := range mem.Sent() {
		f, err := crsf.DecodeStrict(raw)
		require.NoError(t, err)
		if f.Type == ft {
			out = append(out, f)
		}
	}
	return out
}
