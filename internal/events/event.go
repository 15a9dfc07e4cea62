// Package events 会话事件的定义与投递（日志、Redis 发布、内存环形缓冲）。
package events

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Kind 事件类型
type Kind string

const (
	KindDeviceDiscovered     Kind = "device_discovered"
	KindScanComplete         Kind = "scan_complete"
	KindDeviceSelected       Kind = "device_selected"
	KindParamUpdated         Kind = "param_updated"
	KindParamMissing         Kind = "param_missing"
	KindLoadComplete         Kind = "load_complete"
	KindReloadComplete       Kind = "reload_complete"
	KindLinkStatus           Kind = "link_status"
	KindNotice               Kind = "notice"
	KindCommandStatus        Kind = "command_status"
	KindConfirmationRequired Kind = "confirmation_required"
	KindChannelClosed        Kind = "channel_closed"
)

// Event 一条会话事件
type Event struct {
	ID     string         `json:"id"`
	Kind   Kind           `json:"kind"`
	Device uint8          `json:"device"`
	Param  uint8          `json:"param,omitempty"`
	Time   time.Time      `json:"time"`
	Data   map[string]any `json:"data,omitempty"`
}

// New 创建带唯一 ID 的事件
func New(kind Kind, device uint8, at time.Time) Event {
	return Event{ID: uuid.NewString(), Kind: kind, Device: device, Time: at}
}

// WithParam 附带参数号
func (e Event) WithParam(n uint8) Event {
	e.Param = n
	return e
}

// With 附带数据字段
func (e Event) With(key string, v any) Event {
	if e.Data == nil {
		e.Data = make(map[string]any, 2)
	}
	e.Data[key] = v
	return e
}

// Sink 事件接收方
type Sink interface {
	Publish(ctx context.Context, ev Event) error
}

// SinkFunc 函数适配
type SinkFunc func(ctx context.Context, ev Event) error

func (f SinkFunc) Publish(ctx context.Context, ev Event) error { return f(ctx, ev) }

// Fanout 依次投递到多个 Sink，汇总错误
type Fanout []Sink

func (f Fanout) Publish(ctx context.Context, ev Event) error {
	var errs []error
	for _, s := range f {
		if s == nil {
			continue
		}
		if err := s.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard 丢弃所有事件
var Discard Sink = SinkFunc(func(context.Context, Event) error { return nil })
