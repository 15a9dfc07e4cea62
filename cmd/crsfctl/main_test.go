package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/taoyao-code/crsfctl/internal/channel"
	cfgpkg "github.com/taoyao-code/crsfctl/internal/config"
	"github.com/taoyao-code/crsfctl/internal/events"
	"github.com/taoyao-code/crsfctl/internal/protocol/crsf"
	redisstorage "github.com/taoyao-code/crsfctl/internal/storage/redis"
)

const testConfig = `
channel:
  kind: tcp
  addr: 127.0.0.1:1
  dialTimeout: 100ms
protocol:
  scanWindow: 30ms
  paramTimeout: 100ms
  settleDelay: 20ms
  linkPollInterval: 1h
logging:
  level: error
`

// bus 挂在 Memory 通道上的模拟发射机
type bus struct {
	mem    *channel.Memory
	mu     sync.Mutex
	params map[uint8]*crsf.Parameter
}

func newBus() *bus {
	b := &bus{
		mem: channel.NewMemory(),
		params: map[uint8]*crsf.Parameter{
			1: {Number: 1, Type: crsf.ParamTextSelection, Name: "Packet Rate", Selection: &crsf.Selection{Options: []string{"50Hz", "150Hz", "500Hz"}, Max: 2}},
			2: {Number: 2, Type: crsf.ParamUint8, Name: "Power", Numeric: &crsf.Numeric{Value: 1, Max: 5, Unit: "mW"}},
			3: {Number: 3, Type: crsf.ParamCommand, Name: "Bind", Command: &crsf.Command{Timeout: 10}},
		},
	}
	b.mem.Responder = b.respond
	return b
}

func (b *bus) inject(t crsf.FrameType, dest byte, payload []byte) {
	raw, err := crsf.Encode(t, dest, crsf.AddrTransmitter, payload)
	if err != nil {
		panic(err)
	}
	b.mem.Inject(raw)
}

func (b *bus) respond(raw []byte) {
	f, err := crsf.Decode(raw)
	if err != nil {
		return
	}
	switch f.Type {
	case crsf.TypeDevicePing:
		b.inject(crsf.TypeDeviceInfo, f.Origin, crsf.EncodeDeviceInfo(crsf.DeviceInfo{
			Name:            "ELRS TX",
			Address:         crsf.AddrTransmitter,
			SerialNumber:    crsf.ElrsSerial,
			FirmwareID:      0x00030401,
			ParametersTotal: uint8(len(b.params)),
		}))
	case crsf.TypeParamRead:
		b.mu.Lock()
		p, ok := b.params[f.Payload[0]]
		var payload []byte
		if ok {
			payload = crsf.EncodeParameter(p)
		}
		b.mu.Unlock()
		if ok {
			chunks := crsf.SplitEntry(p.Number, payload, 0)
			if int(f.Payload[1]) < len(chunks) {
				b.inject(crsf.TypeParamEntry, f.Origin, chunks[f.Payload[1]])
			}
		}
	case crsf.TypeParamWrite:
		n, value := f.Payload[0], f.Payload[1:]
		b.mu.Lock()
		p := b.params[n]
		if p == nil || len(value) != 1 {
			b.mu.Unlock()
			return
		}
		switch {
		case p.Command != nil:
			if crsf.CommandStatus(value[0]) == crsf.CommandStart {
				p.Command.Status, p.Command.Info = crsf.CommandConfirmation, "Enter bind?"
			} else {
				p.Command.Status, p.Command.Info = crsf.CommandReady, ""
			}
			payload := crsf.EncodeParameter(p)
			b.mu.Unlock()
			b.inject(crsf.TypeParamEntry, f.Origin, crsf.SplitEntry(n, payload, 0)[0])
			return
		case p.Numeric != nil:
			p.Numeric.Value = int64(value[0])
		case p.Selection != nil:
			p.Selection.Value = value[0]
		}
		b.mu.Unlock()
	}
}

// setup 写入测试配置并把通道替换为模拟总线
func setup(t *testing.T) (*bus, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "crsfctl.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testConfig), 0o600))

	b := newBus()
	orig := openChannel
	openChannel = func(cfgpkg.ChannelConfig, *zap.Logger) (channel.Channel, error) { return b.mem, nil }
	t.Cleanup(func() { openChannel = orig })
	return b, path
}

func TestRun_Usage(t *testing.T) {
	var out bytes.Buffer
	err := run(nil, &out)
	assert.True(t, errors.Is(err, flag.ErrHelp))
	assert.Contains(t, out.String(), "usage: crsfctl")

	out.Reset()
	err = run([]string{"flash"}, &out)
	assert.ErrorContains(t, err, `unknown command "flash"`)
}

func TestScan(t *testing.T) {
	_, path := setup(t)
	var out bytes.Buffer
	require.NoError(t, run([]string{"scan", "-config", path}, &out))
	assert.Contains(t, out.String(), "0xEE")
	assert.Contains(t, out.String(), "ELRS TX")
	assert.Contains(t, out.String(), "3.4.1")
}

func TestDump(t *testing.T) {
	_, path := setup(t)

	t.Run("json", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, run([]string{"dump", "-config", path, "-addr", "0xEE", "-format", "json"}, &out))
		var doc struct {
			Device struct {
				Name    string `json:"name"`
				Address string `json:"address"`
			} `json:"device"`
			Params []struct {
				Number  uint8  `json:"number"`
				Name    string `json:"name"`
				Display string `json:"display"`
			} `json:"params"`
		}
		require.NoError(t, json.Unmarshal(out.Bytes(), &doc))
		assert.Equal(t, "0xEE", doc.Device.Address)
		require.Len(t, doc.Params, 3)
		assert.Equal(t, "Packet Rate", doc.Params[0].Name)
		assert.Equal(t, "50Hz", doc.Params[0].Display)
		assert.Equal(t, "1mW", doc.Params[1].Display)
	})

	t.Run("yaml", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, run([]string{"dump", "-config", path, "-addr", "238"}, &out))
		var doc map[string]any
		require.NoError(t, yaml.Unmarshal(out.Bytes(), &doc))
		params, ok := doc["params"].([]any)
		require.True(t, ok)
		assert.Len(t, params, 3)
		first := params[0].(map[string]any)
		assert.Equal(t, "Packet Rate", first["name"])
	})

	t.Run("未知格式", func(t *testing.T) {
		err := run([]string{"dump", "-config", path, "-format", "xml"}, &bytes.Buffer{})
		assert.ErrorContains(t, err, "unknown format")
	})

	t.Run("地址非法", func(t *testing.T) {
		err := run([]string{"dump", "-config", path, "-addr", "0x1FF"}, &bytes.Buffer{})
		assert.ErrorContains(t, err, "invalid address")
	})
}

func TestSet(t *testing.T) {
	b, path := setup(t)

	t.Run("整型", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, run([]string{"set", "-config", path, "-param", "2", "-value", "3"}, &out))
		assert.Equal(t, "2 Power = 3mW\n", out.String())
	})

	t.Run("按选项名", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, run([]string{"set", "-config", path, "-param", "1", "-value", "500hz"}, &out))
		assert.Equal(t, "1 Packet Rate = 500Hz\n", out.String())
		b.mu.Lock()
		assert.Equal(t, uint8(2), b.params[1].Selection.Value)
		b.mu.Unlock()
	})

	t.Run("越界", func(t *testing.T) {
		err := run([]string{"set", "-config", path, "-param", "2", "-value", "9"}, &bytes.Buffer{})
		assert.ErrorContains(t, err, "out of range")
	})

	t.Run("未知参数", func(t *testing.T) {
		err := run([]string{"set", "-config", path, "-param", "9", "-value", "1"}, &bytes.Buffer{})
		assert.ErrorContains(t, err, "unknown parameter")
	})

	t.Run("缺少参数号", func(t *testing.T) {
		err := run([]string{"set", "-config", path, "-value", "1"}, &bytes.Buffer{})
		assert.ErrorContains(t, err, "-param")
	})
}

func TestExec(t *testing.T) {
	_, path := setup(t)

	t.Run("需要确认", func(t *testing.T) {
		var out bytes.Buffer
		err := run([]string{"exec", "-config", path, "-param", "3"}, &out)
		assert.ErrorContains(t, err, "rerun with -yes")
		assert.Contains(t, out.String(), "Bind: Enter bind?")
	})

	t.Run("自动确认", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, run([]string{"exec", "-config", path, "-param", "3", "-yes"}, &out))
		assert.Contains(t, out.String(), "done")
	})

	t.Run("非命令参数", func(t *testing.T) {
		err := run([]string{"exec", "-config", path, "-param", "2"}, &bytes.Buffer{})
		assert.ErrorContains(t, err, "not a command")
	})
}

func TestPorts(t *testing.T) {
	orig := serialPorts
	t.Cleanup(func() { serialPorts = orig })

	serialPorts = func() ([]string, error) { return []string{"/dev/ttyUSB0", "/dev/ttyACM0"}, nil }
	var out bytes.Buffer
	require.NoError(t, run([]string{"ports"}, &out))
	assert.Equal(t, "/dev/ttyUSB0\n/dev/ttyACM0\n", out.String())

	serialPorts = func() ([]string, error) { return nil, nil }
	out.Reset()
	require.NoError(t, run([]string{"ports"}, &out))
	assert.Equal(t, "no serial ports found\n", out.String())
}

func TestServe(t *testing.T) {
	_, path := setup(t)
	orig := serve
	t.Cleanup(func() { serve = orig })

	var got *cfgpkg.Config
	serve = func(cfg *cfgpkg.Config, _ *zap.Logger) error {
		got = cfg
		return nil
	}
	require.NoError(t, run([]string{"serve", "-config", path}, &bytes.Buffer{}))
	require.NotNil(t, got)
	assert.Equal(t, cfgpkg.ChannelTCP, got.Channel.Kind)
	assert.Equal(t, "127.0.0.1:1", got.Channel.Addr)
}

func TestWatch(t *testing.T) {
	_, path := setup(t)

	t.Run("未启用 Redis", func(t *testing.T) {
		err := run([]string{"watch", "-config", path}, &bytes.Buffer{})
		assert.ErrorIs(t, err, redisstorage.ErrDisabled)
	})

	redisPath := filepath.Join(t.TempDir(), "redis.yaml")
	require.NoError(t, os.WriteFile(redisPath, []byte(testConfig+`
redis:
  enabled: true
  addr: 127.0.0.1:1
  channel: crsf:test
`), 0o600))

	origRedis, origSub := newRedis, subscribe
	t.Cleanup(func() { newRedis, subscribe = origRedis, origSub })
	newRedis = func(context.Context, cfgpkg.RedisConfig, *zap.Logger) (*redisstorage.Client, error) {
		return &redisstorage.Client{Client: redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})}, nil
	}
	var gotChannel string
	subscribe = func(ctx context.Context, _ redis.UniversalClient, channel string, fn func(events.Event)) error {
		gotChannel = channel
		at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		for _, k := range []events.Kind{events.KindLinkStatus, events.KindParamUpdated, events.KindLinkStatus, events.KindLoadComplete} {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fn(events.New(k, crsf.AddrTransmitter, at))
		}
		<-ctx.Done()
		return ctx.Err()
	}

	t.Run("按数量退出", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, run([]string{"watch", "-config", redisPath, "-n", "2"}, &out))
		assert.Equal(t, "crsf:test", gotChannel)
		lines := strings.Split(strings.TrimSpace(out.String()), "\n")
		require.Len(t, lines, 2)
		var ev events.Event
		require.NoError(t, json.Unmarshal([]byte(lines[1]), &ev))
		assert.Equal(t, events.KindParamUpdated, ev.Kind)
		assert.Equal(t, crsf.AddrTransmitter, ev.Device)
	})

	t.Run("按类型过滤", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, run([]string{"watch", "-config", redisPath, "-kind", "link_status", "-n", "2"}, &out))
		lines := strings.Split(strings.TrimSpace(out.String()), "\n")
		require.Len(t, lines, 2)
		for _, l := range lines {
			assert.Contains(t, l, `"kind":"link_status"`)
		}
	})
}
