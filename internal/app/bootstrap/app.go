// Package bootstrap 组装 serve 模式下的全部组件
package bootstrap

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taoyao-code/crsfctl/internal/api"
	"github.com/taoyao-code/crsfctl/internal/api/middleware"
	"github.com/taoyao-code/crsfctl/internal/app"
	cfgpkg "github.com/taoyao-code/crsfctl/internal/config"
	"github.com/taoyao-code/crsfctl/internal/events"
	"github.com/taoyao-code/crsfctl/internal/metrics"
)

// Run 统一启动流程：通道 → 会话 → 事件 → HTTP，收到信号后优雅关闭
func Run(cfg *cfgpkg.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return RunContext(ctx, cfg, log)
}

// RunContext 与 Run 相同，由 ctx 控制退出
func RunContext(ctx context.Context, cfg *cfgpkg.Config, log *zap.Logger) error {
	log.Info("starting crsfctl", zap.String("app", cfg.App.Name), zap.String("env", cfg.App.Env))

	// ========== 阶段1: 基础组件 ==========
	reg, appm := app.NewMetrics()
	metricsHandler := metrics.Handler(reg)

	ch, err := app.NewChannel(cfg.Channel, log)
	if err != nil {
		return err
	}

	// ========== 阶段2: Redis 事件发布（可选）==========
	redisClient, err := app.NewRedisClient(ctx, cfg.Redis, log)
	if err != nil {
		log.Error("redis initialization failed", zap.Error(err))
		return err
	}
	defer func() { _ = redisClient.Close() }()

	ring := events.NewRing(cfg.Events.RingSize)
	sinks := events.Fanout{events.NewLogSink(log), ring}
	if redisClient != nil {
		pub := events.NewAsync(events.NewRedisSink(redisClient, cfg.Redis.Channel), cfg.Events.QueueSize,
			log.With(zap.String("component", "event_queue")))
		defer pub.Close()
		sinks = append(sinks, pub)
		log.Info("redis event sink enabled",
			zap.String("channel", cfg.Redis.Channel),
			zap.Int("queue_size", cfg.Events.QueueSize))
	}

	// ========== 阶段3: 参数会话 ==========
	sess := app.NewSession(cfg, ch, appm, sinks, log)
	defer func() { _ = sess.Close() }()

	// 启动时尝试连接，失败不退出，扫描时会重新打开
	openCtx, cancel := context.WithTimeout(ctx, cfg.Channel.DialTimeout+time.Second)
	if err := sess.ScanDevices(openCtx); err != nil {
		log.Warn("initial scan failed", zap.String("channel", ch.Name()), zap.Error(err))
	}
	cancel()

	// ========== 阶段4: HTTP 服务 ==========
	healthAgg := app.NewHealthAggregator(ch, sess)
	if redisClient != nil {
		app.AddRedisChecker(healthAgg, redisClient)
	}

	httpSrv := app.NewHTTPServer(cfg, metricsHandler)
	httpSrv.Register(func(r *gin.Engine) {
		app.RegisterHealthRoutes(r, healthAgg)
		if !cfg.API.Enabled {
			return
		}
		authCfg := middleware.AuthConfig{
			APIKeys: cfg.API.Auth.APIKeys,
			Enabled: cfg.API.Auth.Enabled,
		}
		limiter := middleware.NewRateLimiter(cfg.API.RateLimit.RatePerSec, cfg.API.RateLimit.Burst)
		api.RegisterParamRoutes(r, sess, ring, authCfg, limiter, log)
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpSrv.Start()
	}()
	log.Info("http server started", zap.String("addr", cfg.HTTP.Addr))

	// ========== 阶段5: 等待关闭信号 ==========
	select {
	case <-ctx.Done():
		log.Info("received shutdown signal, gracefully shutting down...")
	case err := <-errCh:
		if err != nil {
			log.Error("http server error", zap.Error(err))
			return err
		}
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	_ = httpSrv.Shutdown(shutdownCtx)
	log.Info("http server stopped")

	log.Info("shutdown complete")
	return nil
}
