package hardware

import (
	"time"

	"github.com/wfunc/kiosk-devices/internal/logger"
	"go.uber.org/zap"
)

type options struct {
	logger        *zap.Logger
	recorder      FrameRecorder
	ledger        Ledger
	frameInterval time.Duration
	readTimeout   time.Duration
	now           func() time.Time
}

// Option 设备与会话的可选参数
type Option func(*options)

func newOptions(opts []Option) options {
	o := options{
		logger:        logger.WithModule("serial"),
		frameInterval: 500 * time.Millisecond,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithLogger 指定日志器
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithRecorder 记录收发的每一帧
func WithRecorder(r FrameRecorder) Option {
	return func(o *options) { o.recorder = r }
}

// WithLedger 金额变动写入账本
func WithLedger(l Ledger) Option {
	return func(o *options) { o.ledger = l }
}

// WithFrameInterval 多帧命令（如凭条打印）之间的间隔
func WithFrameInterval(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.frameInterval = d
		}
	}
}

// WithReadTimeout 单次读超时，覆盖设备默认值
func WithReadTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.readTimeout = d
		}
	}
}

// WithClock 替换时间源
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}
