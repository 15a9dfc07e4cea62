package params

import (
	"slices"

	"github.com/taoyao-code/crsfctl/internal/protocol/crsf"
)

// phase 加载状态机阶段
type phase uint8

const (
	phaseIdle  phase = iota
	phaseBulk        // 顺序加载 1..total
	phaseSweep       // 对缺失参数的唯一一轮补拉
	phaseReload      // 写入后的单参数刷新队列
)

func (p phase) String() string {
	switch p {
	case phaseBulk:
		return "bulk"
	case phaseSweep:
		return "retry_missing"
	case phaseReload:
		return "reload"
	}
	return "idle"
}

// readRequest 一次 PARAM_READ；seq 用于识别过期的超时回调
type readRequest struct {
	Number uint8
	Chunk  uint8
	Seq    uint64
}

// outcome 状态机一次迁移的结果，最多携带一个待发送请求
type outcome struct {
	request    *readRequest
	stored     *crsf.Parameter
	decodeErr  error
	missed     bool
	abandoned  bool // reload 超时放弃
	attempt    int  // 超时重发时的重试序号
	number     uint8
	loadDone   bool
	reloadDone bool
}

// loader 参数加载状态机。任意时刻最多一个未应答请求，由 pending 描述。
type loader struct {
	phase       phase
	total       uint8
	loaded      int
	pending     readRequest
	chunks      [][]byte
	attempts    int
	maxAttempts int
	missing     map[uint8]struct{}
	sweep       []uint8
	sweepIdx    int
	reload      []uint8
	seq         uint64

	decode func(uint8, []byte) (*crsf.Parameter, error)
}

func newLoader(maxAttempts int) *loader {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &loader{
		maxAttempts: maxAttempts,
		missing:     make(map[uint8]struct{}),
		decode:      crsf.DecodeParameter,
	}
}

func (l *loader) busy() bool { return l.phase != phaseIdle }

// expects 应答的参数号是否为当前未完成的请求
func (l *loader) expects(n uint8) bool { return l.busy() && l.pending.Number == n }

func (l *loader) reset() {
	l.phase = phaseIdle
	l.total = 0
	l.loaded = 0
	l.pending = readRequest{}
	l.chunks = nil
	l.attempts = 0
	l.missing = make(map[uint8]struct{})
	l.sweep = nil
	l.sweepIdx = 0
	l.reload = nil
}

// abort 中止进行中的加载，保留已记录的缺失
func (l *loader) abort() {
	l.phase = phaseIdle
	l.pending = readRequest{}
	l.chunks = nil
	l.attempts = 0
	l.reload = nil
}

func (l *loader) request(n, chunk uint8) *readRequest {
	l.seq++
	l.pending = readRequest{Number: n, Chunk: chunk, Seq: l.seq}
	r := l.pending
	return &r
}

func (l *loader) begin(n uint8) *readRequest {
	l.chunks = nil
	l.attempts = 0
	return l.request(n, 0)
}

// startBulk 重置并从 1 号参数开始顺序加载
func (l *loader) startBulk(total uint8) outcome {
	l.reset()
	l.total = total
	if total == 0 {
		return outcome{loadDone: true}
	}
	l.phase = phaseBulk
	return outcome{request: l.begin(1)}
}

// startReload 依次刷新 queue 中的参数；忙时忽略
func (l *loader) startReload(queue []uint8) (outcome, bool) {
	if l.busy() || len(queue) == 0 {
		return outcome{}, false
	}
	l.phase = phaseReload
	l.reload = append([]uint8(nil), queue[1:]...)
	return outcome{request: l.begin(queue[0])}, true
}

// onChunk 处理一个 PARAM_ENTRY 分片；不是当前请求的应答返回 false
func (l *loader) onChunk(n, remaining uint8, data []byte) (outcome, bool) {
	if !l.expects(n) {
		return outcome{}, false
	}
	l.attempts = 0
	l.chunks = append(l.chunks, append([]byte(nil), data...))
	if remaining > 0 {
		return outcome{request: l.request(n, uint8(len(l.chunks)))}, true
	}

	var full []byte
	for _, c := range l.chunks {
		full = append(full, c...)
	}
	l.chunks = nil

	out := outcome{number: n}
	p, err := l.decode(n, full)
	if err != nil {
		out.decodeErr = err
	} else {
		out.stored = p
		if l.phase != phaseReload {
			l.loaded++
		}
	}
	l.advance(&out)
	return out, true
}

// onTimeout 处理请求超时；seq 过期返回 false
func (l *loader) onTimeout(seq uint64) (outcome, bool) {
	if !l.busy() || seq != l.pending.Seq {
		return outcome{}, false
	}
	n := l.pending.Number
	out := outcome{number: n}
	if l.phase == phaseReload {
		l.chunks = nil
		out.abandoned = true
		l.advance(&out)
		return out, true
	}
	l.attempts++
	if l.attempts < l.maxAttempts {
		out.attempt = l.attempts
		out.request = l.request(n, l.pending.Chunk)
		return out, true
	}
	l.missing[n] = struct{}{}
	l.chunks = nil
	l.attempts = 0
	out.missed = true
	l.advance(&out)
	return out, true
}

// advance 唯一的迁移函数：当前参数已完成（成功/放弃/缺失）后决定下一步
func (l *loader) advance(out *outcome) {
	done := l.pending.Number
	switch l.phase {
	case phaseReload:
		if len(l.reload) > 0 {
			next := l.reload[0]
			l.reload = l.reload[1:]
			out.request = l.begin(next)
			return
		}
		l.phase = phaseIdle
		l.pending = readRequest{}
		out.reloadDone = true
	case phaseBulk:
		if int(done) < int(l.total) {
			out.request = l.begin(done + 1)
			return
		}
		if len(l.missing) == 0 {
			l.finish(out)
			return
		}
		l.sweep = l.missingSorted()
		l.missing = make(map[uint8]struct{})
		l.sweepIdx = 0
		l.phase = phaseSweep
		out.request = l.begin(l.sweep[0])
	case phaseSweep:
		l.sweepIdx++
		if l.sweepIdx < len(l.sweep) {
			out.request = l.begin(l.sweep[l.sweepIdx])
			return
		}
		l.finish(out)
	}
}

func (l *loader) finish(out *outcome) {
	l.phase = phaseIdle
	l.pending = readRequest{}
	l.sweep = nil
	l.sweepIdx = 0
	out.loadDone = true
}

func (l *loader) missingSorted() []uint8 {
	out := make([]uint8, 0, len(l.missing))
	for n := range l.missing {
		out = append(out, n)
	}
	slices.Sort(out)
	return out
}

// missingNow 已确认缺失与补拉中尚未处理的参数号
func (l *loader) missingNow() []uint8 {
	out := l.missingSorted()
	if l.phase == phaseSweep {
		out = append(out, l.sweep[l.sweepIdx:]...)
		slices.Sort(out)
		out = slices.Compact(out)
	}
	return out
}
