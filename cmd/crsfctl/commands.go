package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/taoyao-code/crsfctl/internal/app"
	"github.com/taoyao-code/crsfctl/internal/app/bootstrap"
	"github.com/taoyao-code/crsfctl/internal/channel"
	cfgpkg "github.com/taoyao-code/crsfctl/internal/config"
	"github.com/taoyao-code/crsfctl/internal/events"
	"github.com/taoyao-code/crsfctl/internal/logging"
	"github.com/taoyao-code/crsfctl/internal/params"
	"github.com/taoyao-code/crsfctl/internal/protocol/crsf"
	redisstorage "github.com/taoyao-code/crsfctl/internal/storage/redis"
)

// 测试替换点
var (
	openChannel = app.NewChannel
	serialPorts = channel.SerialPorts
	serve       = bootstrap.Run
	newRedis    = app.NewRedisClient
	subscribe   = events.Subscribe
)

// loadTimeout 单个设备参数加载的上限
const loadTimeout = 60 * time.Second

// env 子命令公共环境
type env struct {
	cfg *cfgpkg.Config
	log *zap.Logger
}

func newFlagSet(name string, out io.Writer) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(out)
	path := fs.String("config", "", "config file (default $CRSF_CONFIG or configs/example.yaml)")
	return fs, path
}

func loadEnv(path string) (*env, error) {
	cfg, err := cfgpkg.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	log, err := logging.InitLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, log: log}, nil
}

func (e *env) newSession() (*params.Session, error) {
	ch, err := openChannel(e.cfg.Channel, e.log)
	if err != nil {
		return nil, err
	}
	return app.NewSession(e.cfg, ch, nil, nil, e.log), nil
}

func (e *env) scan(ctx context.Context, s *params.Session) error {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.Channel.DialTimeout+s.Config().ScanWindow+time.Second)
	defer cancel()
	if err := s.ScanDevices(ctx); err != nil {
		return err
	}
	return s.WaitScan(ctx)
}

// connect 扫描、选择设备并等待参数加载完成
func (e *env) connect(ctx context.Context, addr uint8) (*params.Session, error) {
	s, err := e.newSession()
	if err != nil {
		return nil, err
	}
	if err := e.scan(ctx, s); err != nil {
		_ = s.Close()
		return nil, err
	}
	if err := s.SelectDevice(ctx, addr); err != nil {
		_ = s.Close()
		return nil, err
	}
	loadCtx, cancel := context.WithTimeout(ctx, loadTimeout)
	defer cancel()
	if err := s.WaitLoad(loadCtx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("load parameters: %w", err)
	}
	if missing := s.Missing(); len(missing) > 0 {
		e.log.Warn("parameters missing after load", zap.Any("missing", missing))
	}
	return s, nil
}

func parseAddr(s string) (uint8, error) {
	v, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q", s)
	}
	return uint8(v), nil
}

func runScan(args []string, out io.Writer) error {
	fs, path := newFlagSet("scan", out)
	if err := fs.Parse(args); err != nil {
		return err
	}
	e, err := loadEnv(*path)
	if err != nil {
		return err
	}
	defer func() { _ = e.log.Sync() }()

	s, err := e.newSession()
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()
	if err := e.scan(context.Background(), s); err != nil {
		return err
	}
	writeDevices(out, s.Devices())
	return nil
}

func runDump(args []string, out io.Writer) error {
	fs, path := newFlagSet("dump", out)
	addrFlag := fs.String("addr", "0xEE", "device address")
	format := fs.String("format", "yaml", "output format: yaml|json")
	if err := fs.Parse(args); err != nil {
		return err
	}
	addr, err := parseAddr(*addrFlag)
	if err != nil {
		return err
	}
	e, err := loadEnv(*path)
	if err != nil {
		return err
	}
	defer func() { _ = e.log.Sync() }()

	s, err := e.connect(context.Background(), addr)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()
	d, _ := s.SelectedDevice()
	return writeDump(out, *format, newDump(d, s.Parameters(), s.Missing()))
}

func runSet(args []string, out io.Writer) error {
	fs, path := newFlagSet("set", out)
	addrFlag := fs.String("addr", "0xEE", "device address")
	number := fs.Uint("param", 0, "parameter number")
	value := fs.String("value", "", "new value: integer, float, option name/index or text")
	if err := fs.Parse(args); err != nil {
		return err
	}
	addr, err := parseAddr(*addrFlag)
	if err != nil {
		return err
	}
	if *number == 0 || *number > 0xFF {
		return errors.New("-param must be in [1, 255]")
	}
	n := uint8(*number)
	e, err := loadEnv(*path)
	if err != nil {
		return err
	}
	defer func() { _ = e.log.Sync() }()

	s, err := e.connect(context.Background(), addr)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	p, ok := s.Parameter(n)
	if !ok {
		return fmt.Errorf("%w: %d", params.ErrUnknownParameter, n)
	}
	if err := writeValue(s, p, *value); err != nil {
		return err
	}
	// 等待设备提交后的刷新
	time.Sleep(s.Config().SettleDelay + s.Config().ParamTimeout/2)
	p, _ = s.Parameter(n)
	fmt.Fprintf(out, "%d %s = %s\n", p.Number, p.Name, p.DisplayValue())
	return nil
}

// writeValue 按参数类型解析文本值并写入
func writeValue(s *params.Session, p crsf.Parameter, value string) error {
	switch {
	case p.Type == crsf.ParamString:
		return s.UpdateText(p.Number, value)
	case p.Float != nil:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid float %q", value)
		}
		return s.UpdateFloat(p.Number, f)
	case p.Selection != nil:
		for i, opt := range p.Selection.Options {
			if opt != "" && strings.EqualFold(opt, value) {
				return s.UpdateParameter(p.Number, int64(i))
			}
		}
	}
	v, err := strconv.ParseInt(value, 0, 64)
	if err != nil {
		return fmt.Errorf("invalid value %q for %s", value, p.Type)
	}
	return s.UpdateParameter(p.Number, v)
}

func runExec(args []string, out io.Writer) error {
	fs, path := newFlagSet("exec", out)
	addrFlag := fs.String("addr", "0xEE", "device address")
	number := fs.Uint("param", 0, "command parameter number")
	yes := fs.Bool("yes", false, "confirm automatically when the device asks")
	timeout := fs.Duration("timeout", 30*time.Second, "overall command timeout")
	if err := fs.Parse(args); err != nil {
		return err
	}
	addr, err := parseAddr(*addrFlag)
	if err != nil {
		return err
	}
	if *number == 0 || *number > 0xFF {
		return errors.New("-param must be in [1, 255]")
	}
	e, err := loadEnv(*path)
	if err != nil {
		return err
	}
	defer func() { _ = e.log.Sync() }()

	s, err := e.connect(context.Background(), addr)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	if err := s.ExecuteCommand(uint8(*number)); err != nil {
		return err
	}
	return followCommand(s, out, *yes, *timeout)
}

// followCommand 跟踪命令直到结束；需要确认时按 yes 决定确认或放弃
func followCommand(s *params.Session, out io.Writer, yes bool, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	last := ""
	for time.Now().Before(deadline) {
		if c := s.Confirmation(); c != nil {
			fmt.Fprintf(out, "%s: %s\n", c.Name, c.Message)
			if !yes {
				_ = s.CancelCommand()
				return errors.New("confirmation required, rerun with -yes")
			}
			if err := s.ConfirmCommand(); err != nil {
				return err
			}
			continue
		}
		cmd := s.Command()
		if cmd == nil {
			fmt.Fprintln(out, "done")
			return nil
		}
		if line := cmd.Status + " " + cmd.Info; line != last {
			fmt.Fprintf(out, "%s: %s\n", cmd.Name, strings.TrimSpace(line))
			last = line
		}
		time.Sleep(20 * time.Millisecond)
	}
	_ = s.CancelCommand()
	return errors.New("command timed out")
}

func runPorts(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("ports", flag.ContinueOnError)
	fs.SetOutput(out)
	if err := fs.Parse(args); err != nil {
		return err
	}
	ports, err := serialPorts()
	if err != nil {
		return fmt.Errorf("list serial ports: %w", err)
	}
	if len(ports) == 0 {
		fmt.Fprintln(out, "no serial ports found")
		return nil
	}
	for _, p := range ports {
		fmt.Fprintln(out, p)
	}
	return nil
}

func runServe(args []string, out io.Writer) error {
	fs, path := newFlagSet("serve", out)
	if err := fs.Parse(args); err != nil {
		return err
	}
	e, err := loadEnv(*path)
	if err != nil {
		return err
	}
	defer func() { _ = e.log.Sync() }()
	zap.ReplaceGlobals(e.log)
	return serve(e.cfg, e.log)
}

// runWatch 订阅 Redis 事件频道，逐行输出 JSON
func runWatch(args []string, out io.Writer) error {
	fs, path := newFlagSet("watch", out)
	count := fs.Int("n", 0, "exit after N events (0 = until interrupted)")
	kind := fs.String("kind", "", "only print events of this kind")
	if err := fs.Parse(args); err != nil {
		return err
	}
	e, err := loadEnv(*path)
	if err != nil {
		return err
	}
	defer func() { _ = e.log.Sync() }()
	if !e.cfg.Redis.Enabled {
		return fmt.Errorf("watch needs redis.enabled: %w", redisstorage.ErrDisabled)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	client, err := newRedis(ctx, e.cfg.Redis, e.log)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	enc := json.NewEncoder(out)
	seen := 0
	err = subscribe(ctx, client, e.cfg.Redis.Channel, func(ev events.Event) {
		if *kind != "" && string(ev.Kind) != *kind {
			return
		}
		if err := enc.Encode(ev); err != nil {
			e.log.Warn("write event failed", zap.Error(err))
			return
		}
		seen++
		if *count > 0 && seen >= *count {
			cancel()
		}
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
