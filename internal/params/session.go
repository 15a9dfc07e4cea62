// Package params 实现参数协议客户端会话：设备扫描、分片加载、写入、命令执行、链路轮询与文件夹导航。
package params

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/taoyao-code/crsfctl/internal/channel"
	"github.com/taoyao-code/crsfctl/internal/clock"
	"github.com/taoyao-code/crsfctl/internal/events"
	"github.com/taoyao-code/crsfctl/internal/metrics"
	"github.com/taoyao-code/crsfctl/internal/protocol/crsf"
)

// Config 协议时序参数
type Config struct {
	ScanWindow       time.Duration
	ParamTimeout     time.Duration
	MaxAttempts      int
	SettleDelay      time.Duration
	LinkPollInterval time.Duration
	EnforceCRC       bool
	// 命令 timeout 字段为 0 时使用的默认值（10ms 单位）
	DefaultCommandTimeout uint8
}

// DefaultConfig 默认时序
func DefaultConfig() Config {
	return Config{
		ScanWindow:            2 * time.Second,
		ParamTimeout:          3 * time.Second,
		MaxAttempts:           3,
		SettleDelay:           200 * time.Millisecond,
		LinkPollInterval:      time.Second,
		EnforceCRC:            true,
		DefaultCommandTimeout: 50,
	}
}

func (c *Config) normalize() {
	d := DefaultConfig()
	if c.ScanWindow <= 0 {
		c.ScanWindow = d.ScanWindow
	}
	if c.ParamTimeout <= 0 {
		c.ParamTimeout = d.ParamTimeout
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.SettleDelay <= 0 {
		c.SettleDelay = d.SettleDelay
	}
	if c.LinkPollInterval <= 0 {
		c.LinkPollInterval = d.LinkPollInterval
	}
	if c.DefaultCommandTimeout == 0 {
		c.DefaultCommandTimeout = d.DefaultCommandTimeout
	}
}

// Option 会话选项
type Option func(*Session)

// WithConfig 设置时序参数
func WithConfig(cfg Config) Option {
	return func(s *Session) { s.cfg = cfg }
}

// WithClock 替换时钟（测试用手动时钟）
func WithClock(c clock.Clock) Option {
	return func(s *Session) {
		if c != nil {
			s.clk = c
		}
	}
}

// WithLogger 设置日志
func WithLogger(l *zap.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.log = l
		}
	}
}

// WithMetrics 设置指标
func WithMetrics(m *metrics.AppMetrics) Option {
	return func(s *Session) { s.metrics = m }
}

// WithSink 设置事件接收方
func WithSink(sink events.Sink) Option {
	return func(s *Session) {
		if sink != nil {
			s.sink = sink
		}
	}
}

// stamp 定时器与请求的代际标记，过期回调按结构丢弃
type stamp struct {
	gen uint64
	seq uint64
}

// Session 单个通道上的协议会话。所有状态受 mu 保护；帧发送与事件投递在释放锁之后进行。
type Session struct {
	ch      channel.Channel
	clk     clock.Clock
	log     *zap.Logger
	metrics *metrics.AppMetrics
	sink    events.Sink
	cfg     Config

	mu       sync.Mutex
	gen      uint64
	seq      uint64
	registry *Registry

	scanning  bool
	scanTimer clock.Timer
	scanStamp stamp
	scanDone  chan struct{}

	selected *Device
	origin   byte
	table    map[uint8]*crsf.Parameter
	ld       *loader
	reqTimer clock.Timer
	loadDone chan struct{}

	settleTimer clock.Timer
	settleStamp stamp
	settleQueue []uint8

	link   linkState
	notice *Notice
	cmd    *commandExec
	oob    oobBuffer

	folders folderNav
	routes  *crsf.Table

	outFrames [][]byte
	outEvents []events.Event
}

// NewSession 创建会话并接管通道的回调
func NewSession(ch channel.Channel, opts ...Option) *Session {
	s := &Session{
		ch:       ch,
		clk:      clock.NewReal(),
		log:      zap.NewNop(),
		sink:     events.Discard,
		cfg:      DefaultConfig(),
		registry: NewRegistry(),
		origin:   crsf.AddrRadioTransmitter,
		table:    make(map[uint8]*crsf.Parameter),
		scanDone: closedChan(),
		loadDone: closedChan(),
	}
	for _, o := range opts {
		o(s)
	}
	s.cfg.normalize()
	s.ld = newLoader(s.cfg.MaxAttempts)
	s.routes = s.newRoutes()
	ch.SetHandlers(s.handleMessage, s.handleClose)
	return s
}

func closedChan() chan struct{} {
	c := make(chan struct{})
	close(c)
	return c
}

// Config 返回生效的时序参数
func (s *Session) Config() Config { return s.cfg }

// Channel 返回底层通道
func (s *Session) Channel() channel.Channel { return s.ch }

// do 在锁内执行 fn，释放锁后依次发送排队的帧并投递事件
func (s *Session) do(fn func()) {
	s.mu.Lock()
	fn()
	frames, evs := s.outFrames, s.outEvents
	s.outFrames, s.outEvents = nil, nil
	s.mu.Unlock()
	s.flush(frames, evs)
}

func (s *Session) flush(frames [][]byte, evs []events.Event) {
	for _, f := range frames {
		if err := s.ch.Send(f); err != nil {
			if errors.Is(err, channel.ErrClosed) {
				s.log.Debug("send skipped", zap.Error(ErrChannelUnavailable))
			} else {
				s.log.Warn("send failed", zap.Error(err))
			}
			s.metrics.FrameError("send")
			continue
		}
		s.metrics.FrameSent(crsf.FrameType(f[2]).String())
	}
	for _, ev := range evs {
		if err := s.sink.Publish(context.Background(), ev); err != nil {
			s.log.Warn("publish event failed", zap.String("kind", string(ev.Kind)), zap.Error(err))
		}
	}
}

// queueLocked 排队一帧，释放锁后发送
func (s *Session) queueLocked(frame []byte) {
	if frame != nil {
		s.outFrames = append(s.outFrames, frame)
	}
}

func (s *Session) emitLocked(ev events.Event) {
	s.outEvents = append(s.outEvents, ev)
}

func (s *Session) event(kind events.Kind) events.Event {
	var addr uint8
	if s.selected != nil {
		addr = s.selected.Address
	}
	return events.New(kind, addr, s.clk.Now())
}

func (s *Session) nextStamp() stamp {
	s.seq++
	return stamp{gen: s.gen, seq: s.seq}
}

func stopTimer(t clock.Timer) {
	if t != nil {
		t.Stop()
	}
}

// ensureOpen 打开通道（幂等），失败对调用方可见
func (s *Session) ensureOpen(ctx context.Context) error {
	if s.ch.IsOpen() {
		return nil
	}
	if err := s.ch.Open(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrChannelUnavailable, err)
	}
	return nil
}

// ---------------------------------------------------------------------
// 扫描

// ScanDevices 清空注册表并广播 DEVICE_PING，在扫描窗口内收集 DEVICE_INFO
func (s *Session) ScanDevices(ctx context.Context) error {
	if err := s.ensureOpen(ctx); err != nil {
		return err
	}
	s.do(func() {
		s.registry.Clear()
		s.metrics.SetDevices(0)
		stopTimer(s.scanTimer)
		if !s.scanning {
			s.scanDone = make(chan struct{})
		}
		s.scanning = true
		st := s.nextStamp()
		s.scanStamp = st
		s.scanTimer = s.clk.AfterFunc(s.cfg.ScanWindow, func() { s.onScanWindowClosed(st) })
		s.queueLocked(crsf.PingFrame(s.origin))
		s.log.Info("scan started", zap.Duration("window", s.cfg.ScanWindow))
	})
	return nil
}

func (s *Session) onScanWindowClosed(st stamp) {
	s.do(func() {
		if !s.scanning || st != s.scanStamp {
			return
		}
		s.closeScanLocked()
	})
}

func (s *Session) closeScanLocked() {
	if !s.scanning {
		return
	}
	s.scanning = false
	stopTimer(s.scanTimer)
	s.scanTimer = nil
	close(s.scanDone)
	s.emitLocked(s.event(events.KindScanComplete).With("devices", s.registry.Len()))
	s.log.Info("scan complete", zap.Int("devices", s.registry.Len()))
}

// WaitScan 阻塞直到当前扫描窗口关闭
func (s *Session) WaitScan(ctx context.Context) error {
	s.mu.Lock()
	done := s.scanDone
	s.mu.Unlock()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Scanning 扫描窗口是否打开
func (s *Session) Scanning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scanning
}

// ---------------------------------------------------------------------
// 选择与加载

// SelectDevice 选择设备：停止轮询，丢弃上一设备的全部状态并开始加载参数
func (s *Session) SelectDevice(ctx context.Context, address uint8) error {
	if err := s.ensureOpen(ctx); err != nil {
		return err
	}
	var err error
	s.do(func() {
		d, ok := s.registry.Get(address)
		if !ok {
			err = fmt.Errorf("%w: 0x%02X", ErrUnknownDevice, address)
			return
		}
		s.stopCommandLocked()
		s.stopLinkLocked()
		s.link.flags = 0
		s.notice = nil
		s.gen++
		s.selected = &d
		s.origin = originFor(d)
		s.folders.reset()
		s.emitLocked(s.event(events.KindDeviceSelected).With("name", d.Name).With("origin", s.origin))
		s.log.Info("device selected",
			zap.String("name", d.Name),
			zap.Uint8("address", d.Address),
			zap.Uint8("origin", s.origin),
			zap.Uint8("params", d.ParametersTotal))
		s.startLoadLocked()
	})
	return err
}

// LoadParameters 重新加载已选设备的全部参数
func (s *Session) LoadParameters(ctx context.Context) error {
	s.mu.Lock()
	selected := s.selected != nil
	s.mu.Unlock()
	if !selected {
		return ErrNoDevice
	}
	if err := s.ensureOpen(ctx); err != nil {
		return err
	}
	var err error
	s.do(func() {
		if s.selected == nil {
			err = ErrNoDevice
			return
		}
		s.gen++
		s.startLoadLocked()
	})
	return err
}

func (s *Session) startLoadLocked() {
	stopTimer(s.reqTimer)
	stopTimer(s.settleTimer)
	s.settleQueue = nil
	s.table = make(map[uint8]*crsf.Parameter)
	s.oob.reset()
	if s.loadDone != nil {
		select {
		case <-s.loadDone:
		default:
			close(s.loadDone)
		}
	}
	s.loadDone = make(chan struct{})
	out := s.ld.startBulk(s.selected.ParametersTotal)
	s.applyLocked(out)
}

// WaitLoad 阻塞直到当前加载（含缺失补拉）结束
func (s *Session) WaitLoad(ctx context.Context) error {
	s.mu.Lock()
	done := s.loadDone
	s.mu.Unlock()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// issueReadLocked 发送 PARAM_READ 并为其设置应答超时
func (s *Session) issueReadLocked(req *readRequest) {
	if s.selected == nil {
		return
	}
	s.queueLocked(crsf.ParamReadFrame(s.selected.Address, s.origin, req.Number, req.Chunk))
	s.metrics.ParamRequested()
	stopTimer(s.reqTimer)
	st := stamp{gen: s.gen, seq: req.Seq}
	s.reqTimer = s.clk.AfterFunc(s.cfg.ParamTimeout, func() { s.onRequestTimeout(st) })
}

func (s *Session) onRequestTimeout(st stamp) {
	s.do(func() {
		if st.gen != s.gen {
			return
		}
		out, ok := s.ld.onTimeout(st.seq)
		if !ok {
			return
		}
		s.metrics.ParamTimedOut()
		s.log.Debug("param request timeout",
			zap.Uint8("param", out.number),
			zap.Int("attempt", out.attempt),
			zap.Error(ErrRequestTimeout))
		s.applyLocked(out)
	})
}

// applyLocked 执行一次状态机迁移的结果
func (s *Session) applyLocked(out outcome) {
	if out.stored != nil {
		p := out.stored
		s.table[p.Number] = p
		s.metrics.ParamLoaded()
		s.emitLocked(s.event(events.KindParamUpdated).WithParam(p.Number).With("name", p.Name).With("value", p.DisplayValue()))
		if s.cmd != nil && s.cmd.number == p.Number && p.Command != nil {
			s.commandUpdateLocked(p)
		}
	}
	if out.decodeErr != nil {
		s.log.Warn("param decode failed", zap.Uint8("param", out.number), zap.Error(out.decodeErr))
		s.metrics.FrameError("decode")
	}
	if out.abandoned {
		s.log.Debug("param reload abandoned", zap.Uint8("param", out.number))
	}
	if out.missed {
		s.metrics.ParamMissing()
		s.log.Warn("param missing", zap.Uint8("param", out.number), zap.Int("attempts", s.cfg.MaxAttempts))
		s.emitLocked(s.event(events.KindParamMissing).WithParam(out.number))
	}
	if out.request != nil {
		s.issueReadLocked(out.request)
	} else if !s.ld.busy() {
		stopTimer(s.reqTimer)
		s.reqTimer = nil
	}
	if out.reloadDone {
		s.folders.refresh(s.table)
		s.emitLocked(s.event(events.KindReloadComplete))
	}
	if out.loadDone {
		s.finishLoadLocked()
	}
	if out.reloadDone || out.loadDone {
		s.resumeSettleLocked()
	}
}

func (s *Session) finishLoadLocked() {
	missing := s.ld.missingNow()
	s.folders.refresh(s.table)
	s.emitLocked(s.event(events.KindLoadComplete).
		With("loaded", s.ld.loaded).
		With("total", int(s.ld.total)).
		With("missing", missing))
	s.log.Info("params loaded",
		zap.Int("loaded", s.ld.loaded),
		zap.Int("total", int(s.ld.total)),
		zap.Int("missing", len(missing)))
	select {
	case <-s.loadDone:
	default:
		close(s.loadDone)
	}
	s.startLinkLocked()
}

// ---------------------------------------------------------------------
// 入站帧

func (s *Session) handleMessage(raw []byte) {
	var (
		f   *crsf.Frame
		err error
	)
	if s.cfg.EnforceCRC {
		f, err = crsf.DecodeStrict(raw)
	} else {
		f, err = crsf.Decode(raw)
	}
	if err != nil {
		reason := "malformed"
		if errors.Is(err, crsf.ErrCRCMismatch) {
			reason = "crc"
		}
		s.metrics.FrameError(reason)
		s.log.Debug("frame rejected", zap.String("reason", reason), zap.Error(err))
		return
	}
	s.metrics.FrameReceived(f.Type.String())

	// 遥测等未注册类型直接忽略
	_, _ = s.routes.Route(f)
}

// newRoutes 会话关心的入站帧类型
func (s *Session) newRoutes() *crsf.Table {
	t := crsf.NewTable()
	locked := func(h func(*crsf.Frame)) crsf.Handler {
		return func(f *crsf.Frame) error {
			s.do(func() { h(f) })
			return nil
		}
	}
	t.Register(crsf.TypeDeviceInfo, locked(s.onDeviceInfoLocked))
	t.Register(crsf.TypeParamEntry, locked(s.onParamEntryLocked))
	t.Register(crsf.TypeElrsStatus, locked(s.onStatusLocked))
	return t
}

func (s *Session) fromSelectedLocked(f *crsf.Frame) bool {
	return s.selected != nil && f.Origin == s.selected.Address
}

func (s *Session) onDeviceInfoLocked(f *crsf.Frame) {
	// 窗口关闭后只接受已选设备的身份刷新
	if !s.scanning && !s.fromSelectedLocked(f) {
		return
	}
	info, err := crsf.DecodeDeviceInfo(f)
	if err != nil {
		s.metrics.FrameError("decode")
		s.log.Debug("device info rejected", zap.Error(err))
		return
	}
	d, isNew := s.registry.Upsert(info, s.clk.Now())
	s.metrics.SetDevices(s.registry.Len())
	if s.selected != nil && s.selected.Address == d.Address {
		s.selected = &d
		s.origin = originFor(d)
	}
	s.emitLocked(s.event(events.KindDeviceDiscovered).
		With("address", d.Address).
		With("name", d.Name).
		With("new", isNew))
}

func (s *Session) onParamEntryLocked(f *crsf.Frame) {
	if !s.fromSelectedLocked(f) {
		return
	}
	if len(f.Payload) < 2 {
		s.metrics.FrameError("short_entry")
		return
	}
	n, remaining, data := f.Payload[0], f.Payload[1], f.Payload[2:]

	if s.ld.expects(n) {
		stopTimer(s.reqTimer)
		s.reqTimer = nil
		out, _ := s.ld.onChunk(n, remaining, data)
		s.applyLocked(out)
		return
	}
	if s.cmd != nil && s.cmd.number == n {
		s.onCommandChunkLocked(n, remaining, data)
		return
	}
	s.metrics.FrameError("unexpected_param")
	s.log.Debug("param response dropped",
		zap.Uint8("param", n),
		zap.Uint8("pending", s.ld.pending.Number),
		zap.Error(ErrUnexpectedResponse))
}

func (s *Session) handleClose(cause error) {
	s.do(func() {
		s.gen++
		s.stopCommandLocked()
		s.stopLinkLocked()
		stopTimer(s.reqTimer)
		s.reqTimer = nil
		stopTimer(s.settleTimer)
		s.settleQueue = nil
		if s.ld.busy() {
			s.ld.abort()
			select {
			case <-s.loadDone:
			default:
				close(s.loadDone)
			}
		}
		s.closeScanLocked()
		ev := s.event(events.KindChannelClosed)
		if cause != nil {
			ev = ev.With("error", cause.Error())
		}
		s.emitLocked(ev)
	})
}

// Close 关闭底层通道
func (s *Session) Close() error { return s.ch.Close() }
