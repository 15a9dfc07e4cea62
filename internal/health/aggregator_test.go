package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taoyao-code/crsfctl/internal/channel"
	"github.com/taoyao-code/crsfctl/internal/params"
	"github.com/taoyao-code/crsfctl/internal/protocol/crsf"
)

// mockChecker 模拟检查器
type mockChecker struct {
	name   string
	status Status
}

func (m *mockChecker) Name() string { return m.name }

func (m *mockChecker) Check(context.Context) CheckResult {
	return CheckResult{Status: m.status, Message: "mock", Latency: time.Millisecond}
}

func TestAggregator(t *testing.T) {
	tests := []struct {
		name      string
		checkers  []Checker
		want      Status
		wantReady bool
	}{
		{"全部健康", []Checker{&mockChecker{"channel", StatusHealthy}, &mockChecker{"redis", StatusHealthy}}, StatusHealthy, true},
		{"部分降级", []Checker{&mockChecker{"channel", StatusHealthy}, &mockChecker{"redis", StatusDegraded}}, StatusDegraded, true},
		{"部分不健康", []Checker{&mockChecker{"channel", StatusUnhealthy}, &mockChecker{"redis", StatusDegraded}}, StatusUnhealthy, false},
		{"无检查器", nil, StatusHealthy, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agg := NewAggregator(tt.checkers...)
			assert.Equal(t, tt.want, agg.OverallStatus(context.Background()))
			assert.Equal(t, tt.wantReady, agg.Ready(context.Background()))
			assert.True(t, agg.Alive())
		})
	}

	t.Run("动态添加检查器", func(t *testing.T) {
		agg := NewAggregator(&mockChecker{"initial", StatusHealthy})
		agg.AddChecker(&mockChecker{"added", StatusDegraded})
		report := agg.Report(context.Background())
		assert.Len(t, report.Checks, 2)
		assert.Equal(t, StatusDegraded, report.Status)
	})
}

type fakeProbe struct{ view params.LinkView }

func (f fakeProbe) LinkStatus() params.LinkView { return f.view }

func TestChannelChecker(t *testing.T) {
	mem := channel.NewMemory()

	t.Run("通道关闭", func(t *testing.T) {
		r := NewChannelChecker(mem, nil).Check(context.Background())
		assert.Equal(t, StatusUnhealthy, r.Status)
		assert.Equal(t, "memory", r.Details["channel"])
	})

	require.NoError(t, mem.Open(context.Background()))

	t.Run("通道打开", func(t *testing.T) {
		r := NewChannelChecker(mem, fakeProbe{}).Check(context.Background())
		assert.Equal(t, StatusHealthy, r.Status)
		assert.Equal(t, false, r.Details["polling"])
	})

	t.Run("接收端未连接", func(t *testing.T) {
		probe := fakeProbe{view: params.LinkView{Polling: true, Status: &crsf.LinkStatus{Good: 0, Flags: 0}}}
		r := NewChannelChecker(mem, probe).Check(context.Background())
		assert.Equal(t, StatusDegraded, r.Status)
	})

	t.Run("链路正常", func(t *testing.T) {
		probe := fakeProbe{view: params.LinkView{Polling: true, Connected: true, Status: &crsf.LinkStatus{Good: 250, Flags: crsf.StatusFlagConnected}}}
		r := NewChannelChecker(mem, probe).Check(context.Background())
		assert.Equal(t, StatusHealthy, r.Status)
		assert.Equal(t, uint16(250), r.Details["good"])
	})
}

type fakePinger struct {
	err   error
	stats redis.PoolStats
}

func (f *fakePinger) HealthCheck(context.Context) error { return f.err }
func (f *fakePinger) Stats() *redis.PoolStats          { return &f.stats }

func TestRedisChecker(t *testing.T) {
	t.Run("ping 失败降级", func(t *testing.T) {
		r := NewRedisChecker(&fakePinger{err: errors.New("connection refused")}).Check(context.Background())
		assert.Equal(t, StatusDegraded, r.Status)
		assert.Contains(t, r.Message, "connection refused")
	})
	t.Run("连接池接近上限", func(t *testing.T) {
		r := NewRedisChecker(&fakePinger{stats: redis.PoolStats{TotalConns: 10, IdleConns: 0}}).Check(context.Background())
		assert.Equal(t, StatusDegraded, r.Status)
	})
	t.Run("正常", func(t *testing.T) {
		r := NewRedisChecker(&fakePinger{stats: redis.PoolStats{TotalConns: 4, IdleConns: 3}}).Check(context.Background())
		assert.Equal(t, StatusHealthy, r.Status)
		assert.Equal(t, "25.0%", r.Details["utilization"])
	})
}

func TestHTTPRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)

	do := func(agg *Aggregator, path string) *httptest.ResponseRecorder {
		r := gin.New()
		RegisterHTTPRoutes(r, agg)
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		return rr
	}

	healthy := NewAggregator(&mockChecker{"channel", StatusHealthy})
	down := NewAggregator(&mockChecker{"channel", StatusUnhealthy})

	assert.Equal(t, http.StatusOK, do(healthy, "/health/ready").Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(down, "/health/ready").Code)
	assert.Equal(t, http.StatusOK, do(down, "/health/live").Code)

	rr := do(down, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	var report HealthReport
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &report))
	assert.Equal(t, StatusUnhealthy, report.Status)
	assert.Contains(t, report.Checks, "channel")
}
