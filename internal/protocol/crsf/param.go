package crsf

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrShortPayload 参数载荷不足以解析其声明的类型
var ErrShortPayload = errors.New("crsf: short parameter payload")

// ParamType 参数类型（type_and_hidden 字节的低 6 位）
type ParamType uint8

const (
	ParamUint8         ParamType = 0x00
	ParamInt8          ParamType = 0x01
	ParamUint16        ParamType = 0x02
	ParamInt16         ParamType = 0x03
	ParamUint32        ParamType = 0x04
	ParamInt32         ParamType = 0x05
	ParamFloat         ParamType = 0x08
	ParamTextSelection ParamType = 0x09
	ParamString        ParamType = 0x0A
	ParamFolder        ParamType = 0x0B
	ParamInfo          ParamType = 0x0C
	ParamCommand       ParamType = 0x0D
)

const (
	paramTypeMask  = 0x3F
	paramHiddenBit = 0x80
)

var paramTypeNames = map[ParamType]string{
	ParamUint8:         "uint8",
	ParamInt8:          "int8",
	ParamUint16:        "uint16",
	ParamInt16:         "int16",
	ParamUint32:        "uint32",
	ParamInt32:         "int32",
	ParamFloat:         "float",
	ParamTextSelection: "text_selection",
	ParamString:        "string",
	ParamFolder:        "folder",
	ParamInfo:          "info",
	ParamCommand:       "command",
}

func (t ParamType) String() string {
	if s, ok := paramTypeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("unknown(0x%02X)", uint8(t))
}

// Editable 可编辑的数值/选择类类型（序号小于 STRING）
func (t ParamType) Editable() bool { return t < ParamString }

// CommandStatus 命令参数的状态字节
type CommandStatus uint8

const (
	CommandReady        CommandStatus = 0 // 空闲/已停止
	CommandStart        CommandStatus = 1
	CommandProgress     CommandStatus = 2
	CommandConfirmation CommandStatus = 3 // 需要用户确认
	CommandConfirm      CommandStatus = 4
	CommandCancel       CommandStatus = 5
	CommandQuery        CommandStatus = 6
)

func (s CommandStatus) String() string {
	switch s {
	case CommandReady:
		return "ready"
	case CommandStart:
		return "start"
	case CommandProgress:
		return "progress"
	case CommandConfirmation:
		return "confirmation_needed"
	case CommandConfirm:
		return "confirm"
	case CommandCancel:
		return "cancel"
	case CommandQuery:
		return "query"
	}
	return fmt.Sprintf("status(%d)", uint8(s))
}

// Numeric 整型参数（UINT8..INT32）
type Numeric struct {
	Value   int64  `json:"value" yaml:"value"`
	Min     int64  `json:"min" yaml:"min"`
	Max     int64  `json:"max" yaml:"max"`
	Default int64  `json:"default" yaml:"default"`
	Unit    string `json:"unit,omitempty" yaml:"unit,omitempty"`
}

// Float 定点小数参数，原始值需除以 10^Precision
type Float struct {
	Value     int32  `json:"value" yaml:"value"`
	Min       int32  `json:"min" yaml:"min"`
	Max       int32  `json:"max" yaml:"max"`
	Default   int32  `json:"default" yaml:"default"`
	Precision uint8  `json:"precision" yaml:"precision"`
	Step      int32  `json:"step" yaml:"step"`
	Unit      string `json:"unit,omitempty" yaml:"unit,omitempty"`
}

// Scale 将定点原始值换算为浮点
func (f *Float) Scale(raw int32) float64 {
	return float64(raw) / math.Pow10(int(f.Precision))
}

// Raw 将浮点值换算为定点原始值（四舍五入）；超出 [Min, Max] 或非数值时 ok 为 false
func (f *Float) Raw(v float64) (raw int32, ok bool) {
	r := math.Round(v * math.Pow10(int(f.Precision)))
	if math.IsNaN(r) || r < float64(f.Min) || r > float64(f.Max) {
		return 0, false
	}
	return int32(r), true
}

// Selection 文本选择参数
type Selection struct {
	Options []string `json:"options" yaml:"options"`
	Value   uint8    `json:"value" yaml:"value"`
	Min     uint8    `json:"min" yaml:"min"`
	Max     uint8    `json:"max" yaml:"max"`
	Default uint8    `json:"default" yaml:"default"`
	Unit    string   `json:"unit,omitempty" yaml:"unit,omitempty"`
}

// Current 当前选中项文本，越界返回空串
func (s *Selection) Current() string {
	if int(s.Value) < len(s.Options) {
		return s.Options[s.Value]
	}
	return ""
}

// Text STRING / INFO 参数
type Text struct {
	Value     string `json:"value" yaml:"value"`
	MaxLength uint8  `json:"maxLength,omitempty" yaml:"maxLength,omitempty"` // 仅 STRING
}

// Command 命令参数
type Command struct {
	Status  CommandStatus `json:"status" yaml:"status"`
	Timeout uint8         `json:"timeout" yaml:"timeout"` // 单位 10ms
	Info    string        `json:"info,omitempty" yaml:"info,omitempty"`
}

// Parameter 一个完整解析后的设备参数。类型相关的字段只有一个非 nil。
type Parameter struct {
	Number uint8     `json:"number" yaml:"number"`
	Parent uint8     `json:"parent" yaml:"parent"`
	Type   ParamType `json:"type" yaml:"type"`
	Hidden bool      `json:"hidden,omitempty" yaml:"hidden,omitempty"`
	Name   string    `json:"name" yaml:"name"`

	Numeric   *Numeric   `json:"numeric,omitempty" yaml:"numeric,omitempty"`
	Float     *Float     `json:"float,omitempty" yaml:"float,omitempty"`
	Selection *Selection `json:"selection,omitempty" yaml:"selection,omitempty"`
	Text      *Text      `json:"text,omitempty" yaml:"text,omitempty"`
	Command   *Command   `json:"command,omitempty" yaml:"command,omitempty"`
}

// Supported 类型是否已知；未知类型只保留头部字段
func (p *Parameter) Supported() bool {
	_, ok := decoders[p.Type]
	return ok
}

// IsFolder 是否为文件夹
func (p *Parameter) IsFolder() bool { return p.Type == ParamFolder }

// DisplayValue 返回适合展示的值文本
func (p *Parameter) DisplayValue() string {
	switch {
	case p.Numeric != nil:
		return fmt.Sprintf("%d%s", p.Numeric.Value, p.Numeric.Unit)
	case p.Float != nil:
		return fmt.Sprintf("%.*f%s", int(p.Float.Precision), p.Float.Scale(p.Float.Value), p.Float.Unit)
	case p.Selection != nil:
		return p.Selection.Current() + p.Selection.Unit
	case p.Text != nil:
		return p.Text.Value
	case p.Command != nil:
		return p.Command.Info
	}
	if !p.Supported() {
		return "unsupported"
	}
	return ""
}

type decodeFunc func(p *Parameter, r *Reader)

// decoders 按类型分发，未在表中的类型解码为 stub
var decoders = map[ParamType]decodeFunc{
	ParamUint8:         decodeInt(func(r *Reader) int64 { return int64(r.U8()) }),
	ParamInt8:          decodeInt(func(r *Reader) int64 { return int64(r.I8()) }),
	ParamUint16:        decodeInt(func(r *Reader) int64 { return int64(r.U16()) }),
	ParamInt16:         decodeInt(func(r *Reader) int64 { return int64(r.I16()) }),
	ParamUint32:        decodeInt(func(r *Reader) int64 { return int64(r.U32()) }),
	ParamInt32:         decodeInt(func(r *Reader) int64 { return int64(r.I32()) }),
	ParamFloat:         decodeFloat,
	ParamTextSelection: decodeSelection,
	ParamString:        decodeString,
	ParamFolder:        func(*Parameter, *Reader) {},
	ParamInfo:          decodeInfo,
	ParamCommand:       decodeCommand,
}

func decodeInt(read func(*Reader) int64) decodeFunc {
	return func(p *Parameter, r *Reader) {
		n := &Numeric{}
		n.Value = read(r)
		n.Min = read(r)
		n.Max = read(r)
		n.Default = read(r)
		n.Unit = r.CString()
		p.Numeric = n
	}
}

func decodeFloat(p *Parameter, r *Reader) {
	f := &Float{}
	f.Value = r.I32()
	f.Min = r.I32()
	f.Max = r.I32()
	f.Default = r.I32()
	f.Precision = r.U8()
	f.Step = r.I32()
	f.Unit = r.CString()
	p.Float = f
}

func decodeSelection(p *Parameter, r *Reader) {
	s := &Selection{}
	s.Options = strings.Split(r.CString(), ";")
	s.Value = r.U8()
	s.Min = r.U8()
	s.Max = r.U8()
	s.Default = r.U8()
	s.Unit = r.CString()
	p.Selection = s
}

func decodeString(p *Parameter, r *Reader) {
	t := &Text{Value: r.CString()}
	// 最大长度字节可选
	if r.Remaining() > 0 {
		t.MaxLength = r.U8()
	}
	p.Text = t
}

func decodeInfo(p *Parameter, r *Reader) {
	p.Text = &Text{Value: r.CString()}
}

func decodeCommand(p *Parameter, r *Reader) {
	c := &Command{}
	c.Status = CommandStatus(r.U8())
	c.Timeout = r.U8()
	c.Info = r.CString()
	p.Command = c
}

// DecodeParameter 解析拼接完成的 PARAM_ENTRY 载荷（不含参数号与剩余分片字节）
func DecodeParameter(number uint8, payload []byte) (*Parameter, error) {
	if len(payload) < 3 {
		return nil, fmt.Errorf("%w: param %d has %d bytes", ErrShortPayload, number, len(payload))
	}
	r := NewReader(payload)
	p := &Parameter{Number: number}
	p.Parent = r.U8()
	tb := r.U8()
	p.Type = ParamType(tb & paramTypeMask)
	p.Hidden = tb&paramHiddenBit != 0
	p.Name = r.CString()

	dec, ok := decoders[p.Type]
	if !ok {
		return p, nil
	}
	dec(p, r)
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("%w: param %d (%s): %v", ErrShortPayload, number, p.Type, err)
	}
	return p, nil
}
