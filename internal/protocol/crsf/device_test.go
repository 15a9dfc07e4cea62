package crsf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeDeviceInfo(t *testing.T) {
	info := DeviceInfo{
		Name:             "ELRS TX",
		Address:          AddrTransmitter,
		SerialNumber:     ElrsSerial,
		HardwareID:       0x00000001,
		FirmwareID:       0x00030401,
		ParametersTotal:  24,
		ParameterVersion: 1,
	}
	raw, err := Encode(TypeDeviceInfo, AddrRadioTransmitter, AddrTransmitter, EncodeDeviceInfo(info))
	require.NoError(t, err)
	f, err := DecodeStrict(raw)
	require.NoError(t, err)

	got, err := DecodeDeviceInfo(f)
	require.NoError(t, err)
	assert.Equal(t, info, got)
	assert.True(t, got.IsKnownVendor())
	assert.Equal(t, "3.4.1", got.FirmwareVersion())
}

func TestDecodeDeviceInfo_Errors(t *testing.T) {
	_, err := DecodeDeviceInfo(&Frame{Type: TypeParamEntry})
	assert.ErrorIs(t, err, ErrMalformedFrame)

	_, err = DecodeDeviceInfo(&Frame{Type: TypeDeviceInfo, Origin: 0xEC, Payload: []byte{'R', 'X', 0, 1, 2}})
	assert.ErrorIs(t, err, ErrShortPayload)
}

func TestDecodeLinkStatus(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
		want    LinkStatus
	}{
		{"无消息", []byte{3, 0x01, 0x02, 0x01}, LinkStatus{Bad: 3, Good: 0x0102, Flags: 1}},
		{"带消息", []byte{0, 0x00, 0x0A, 0x24, 'b', 'a', 'd', 0}, LinkStatus{Good: 10, Flags: 0x24, Message: "bad"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeLinkStatus(tt.payload)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.payload, EncodeLinkStatus(got))
		})
	}

	s, _ := DecodeLinkStatus([]byte{0, 0, 0, 0x21})
	assert.True(t, s.Connected())
	assert.True(t, s.Warning())

	_, err := DecodeLinkStatus([]byte{0, 0, 0})
	assert.ErrorIs(t, err, ErrShortPayload)
}

func TestTable_Route(t *testing.T) {
	tb := NewTable()
	var got []FrameType
	tb.Register(TypeDeviceInfo, func(f *Frame) error {
		got = append(got, f.Type)
		return nil
	})

	ok, err := tb.Route(&Frame{Type: TypeDeviceInfo})
	assert.True(t, ok)
	assert.NoError(t, err)

	ok, err = tb.Route(&Frame{Type: TypeBattery})
	assert.False(t, ok)
	assert.NoError(t, err)
	assert.Equal(t, []FrameType{TypeDeviceInfo}, got)
}
