package events

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogSink 以结构化日志输出事件
type LogSink struct {
	log   *zap.Logger
	level zapcore.Level
}

// NewLogSink 创建日志 Sink；噪声较大的 link_status 以 Debug 输出
func NewLogSink(log *zap.Logger) *LogSink {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogSink{log: log, level: zapcore.InfoLevel}
}

func (s *LogSink) Publish(_ context.Context, ev Event) error {
	lvl := s.level
	switch ev.Kind {
	case KindLinkStatus:
		lvl = zapcore.DebugLevel
	case KindParamMissing, KindNotice, KindChannelClosed:
		lvl = zapcore.WarnLevel
	}
	if ce := s.log.Check(lvl, "session event"); ce != nil {
		fields := []zap.Field{
			zap.String("event_id", ev.ID),
			zap.String("kind", string(ev.Kind)),
			zap.Uint8("device", ev.Device),
		}
		if ev.Param != 0 {
			fields = append(fields, zap.Uint8("param", ev.Param))
		}
		if len(ev.Data) > 0 {
			fields = append(fields, zap.Any("data", ev.Data))
		}
		ce.Write(fields...)
	}
	return nil
}
