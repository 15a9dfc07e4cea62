package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taoyao-code/crsfctl/internal/events"
	"github.com/taoyao-code/crsfctl/internal/params"
	"github.com/taoyao-code/crsfctl/internal/protocol/crsf"
)

// waitTimeout 同步等待扫描/加载的上限
const waitTimeout = 30 * time.Second

// ParamHandler 参数 API 处理器
type ParamHandler struct {
	ctl    Controller
	ring   *events.Ring
	logger *zap.Logger
}

// NewParamHandler 创建处理器；ring 为 nil 时事件接口返回空列表
func NewParamHandler(ctl Controller, ring *events.Ring, logger *zap.Logger) *ParamHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ParamHandler{ctl: ctl, ring: ring, logger: logger}
}

// statusFor 错误到 HTTP 状态码
func statusFor(err error) int {
	switch {
	case errors.Is(err, params.ErrUnknownDevice), errors.Is(err, params.ErrUnknownParameter):
		return http.StatusNotFound
	case errors.Is(err, params.ErrNoDevice), errors.Is(err, params.ErrNoCommand),
		errors.Is(err, params.ErrNoConfirmation), errors.Is(err, params.ErrNoNotice):
		return http.StatusConflict
	case errors.Is(err, params.ErrNotWritable), errors.Is(err, params.ErrNotFolder),
		errors.Is(err, params.ErrNotCommand), errors.Is(err, params.ErrValueOutOfRange):
		return http.StatusBadRequest
	case errors.Is(err, params.ErrChannelUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func (h *ParamHandler) fail(c *gin.Context, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		h.logger.Error("api request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(code, gin.H{"error": err.Error()})
}

// parseByte 解析 "0xEE" 或 "238" 形式的 8 位值
func parseByte(s string) (uint8, error) {
	v, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid 8-bit value %q", s)
	}
	return uint8(v), nil
}

func (h *ParamHandler) byteParam(c *gin.Context, name string) (uint8, bool) {
	v, err := parseByte(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return 0, false
	}
	return v, true
}

func wait(c *gin.Context) bool { return c.DefaultQuery("wait", "true") != "false" }

// ListDevices GET /api/devices
func (h *ParamHandler) ListDevices(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"devices": h.ctl.Devices(), "scanning": h.ctl.Scanning()})
}

// Scan POST /api/scan[?wait=false]
func (h *ParamHandler) Scan(c *gin.Context) {
	if err := h.ctl.ScanDevices(c.Request.Context()); err != nil {
		h.fail(c, err)
		return
	}
	if !wait(c) {
		c.JSON(http.StatusAccepted, gin.H{"scanning": true})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), waitTimeout)
	defer cancel()
	if err := h.ctl.WaitScan(ctx); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"devices": h.ctl.Devices()})
}

// SelectDevice POST /api/devices/:addr/select[?wait=false]
func (h *ParamHandler) SelectDevice(c *gin.Context) {
	addr, ok := h.byteParam(c, "addr")
	if !ok {
		return
	}
	if err := h.ctl.SelectDevice(c.Request.Context(), addr); err != nil {
		h.fail(c, err)
		return
	}
	h.respondLoad(c)
}

// Reload POST /api/params/reload[?wait=false]
func (h *ParamHandler) Reload(c *gin.Context) {
	if err := h.ctl.LoadParameters(c.Request.Context()); err != nil {
		h.fail(c, err)
		return
	}
	h.respondLoad(c)
}

func (h *ParamHandler) respondLoad(c *gin.Context) {
	if !wait(c) {
		c.JSON(http.StatusAccepted, gin.H{"progress": h.ctl.LoadProgress()})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), waitTimeout)
	defer cancel()
	if err := h.ctl.WaitLoad(ctx); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"progress": h.ctl.LoadProgress()})
}

// Selected GET /api/device
func (h *ParamHandler) Selected(c *gin.Context) {
	d, ok := h.ctl.SelectedDevice()
	if !ok {
		h.fail(c, params.ErrNoDevice)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"device":   d,
		"firmware": d.FirmwareVersion(),
		"progress": h.ctl.LoadProgress(),
	})
}

// ListParams GET /api/params[?all=true]
func (h *ParamHandler) ListParams(c *gin.Context) {
	if c.Query("all") == "true" {
		c.JSON(http.StatusOK, gin.H{"params": h.ctl.Parameters()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"folder":     h.ctl.CurrentFolder(),
		"breadcrumb": h.ctl.Breadcrumb(),
		"params":     h.ctl.VisibleParameters(),
	})
}

// GetParam GET /api/params/:num
func (h *ParamHandler) GetParam(c *gin.Context) {
	n, ok := h.byteParam(c, "num")
	if !ok {
		return
	}
	p, found := h.ctl.Parameter(n)
	if !found {
		h.fail(c, fmt.Errorf("%w: %d", params.ErrUnknownParameter, n))
		return
	}
	c.JSON(http.StatusOK, gin.H{"param": p, "display": p.DisplayValue()})
}

// writeRequest PUT 请求体：value 为数字（整型、选择项索引、FLOAT 实际值）或字符串
type writeRequest struct {
	Value json.RawMessage `json:"value" binding:"required"`
	// Raw 为 true 时 FLOAT 按定点原始值写入
	Raw bool `json:"raw"`
}

// UpdateParam PUT /api/params/:num
func (h *ParamHandler) UpdateParam(c *gin.Context) {
	n, ok := h.byteParam(c, "num")
	if !ok {
		return
	}
	var req writeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p, found := h.ctl.Parameter(n)
	if !found {
		h.fail(c, fmt.Errorf("%w: %d", params.ErrUnknownParameter, n))
		return
	}

	var err error
	switch {
	case p.Type == crsf.ParamString:
		var s string
		if err = json.Unmarshal(req.Value, &s); err == nil {
			err = h.ctl.UpdateText(n, s)
		}
	case p.Type == crsf.ParamFloat && !req.Raw:
		var f float64
		if err = json.Unmarshal(req.Value, &f); err == nil {
			err = h.ctl.UpdateFloat(n, f)
		}
	default:
		var v int64
		if err = json.Unmarshal(req.Value, &v); err == nil {
			err = h.ctl.UpdateParameter(n, v)
		}
	}
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	h.logger.Info("api param write", zap.Uint8("param", n), zap.ByteString("value", req.Value))
	updated, _ := h.ctl.Parameter(n)
	c.JSON(http.StatusOK, gin.H{"param": updated})
}

// Execute POST /api/params/:num/exec
func (h *ParamHandler) Execute(c *gin.Context) {
	n, ok := h.byteParam(c, "num")
	if !ok {
		return
	}
	if err := h.ctl.ExecuteCommand(n); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"command": h.ctl.Command()})
}

// CommandState GET /api/command
func (h *ParamHandler) CommandState(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"command": h.ctl.Command(), "confirmation": h.ctl.Confirmation()})
}

// Confirm POST /api/command/confirm
func (h *ParamHandler) Confirm(c *gin.Context) {
	if err := h.ctl.ConfirmCommand(); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"command": h.ctl.Command()})
}

// Cancel POST /api/command/cancel
func (h *ParamHandler) Cancel(c *gin.Context) {
	if err := h.ctl.CancelCommand(); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// EnterFolder POST /api/folders/:num
func (h *ParamHandler) EnterFolder(c *gin.Context) {
	n, ok := h.byteParam(c, "num")
	if !ok {
		return
	}
	if err := h.ctl.NavigateToFolder(n); err != nil {
		h.fail(c, err)
		return
	}
	h.ListParams(c)
}

// LeaveFolder POST /api/folders/back
func (h *ParamHandler) LeaveFolder(c *gin.Context) {
	h.ctl.NavigateBack()
	h.ListParams(c)
}

// Link GET /api/link
func (h *ParamHandler) Link(c *gin.Context) {
	c.JSON(http.StatusOK, h.ctl.LinkStatus())
}

// GetNotice GET /api/notice
func (h *ParamHandler) GetNotice(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"notice": h.ctl.Notice()})
}

// AckNotice POST /api/notice/ack
func (h *ParamHandler) AckNotice(c *gin.Context) {
	if err := h.ctl.AcknowledgeNotice(); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Events GET /api/events[?n=100]
func (h *ParamHandler) Events(c *gin.Context) {
	n := 100
	if v := c.Query("n"); v != "" {
		if vv, err := strconv.Atoi(v); err == nil {
			n = vv
		}
	}
	list := []events.Event{}
	if h.ring != nil {
		list = append(list, h.ring.Recent(n)...)
	}
	c.JSON(http.StatusOK, gin.H{"events": list})
}
