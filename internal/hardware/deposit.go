package hardware

import (
	"fmt"
	"sync"
	"time"

	apperrors "github.com/wfunc/kiosk-devices/internal/errors"
	"go.uber.org/zap"
)

// denominationCodes 面额码表
var denominationCodes = map[byte]int{
	0x40: 100,
	0x41: 200,
	0x42: 500,
	0x43: 1000,
}

// acceptedDenominations 允许入账的面额。2000 没有对应的面额码，保持原样。
var acceptedDenominations = map[int]bool{
	100:  true,
	200:  true,
	500:  true,
	1000: true,
	2000: true,
}

// DenominationForCode 面额码转金额
func DenominationForCode(code byte) (int, bool) {
	amount, ok := denominationCodes[code]
	return amount, ok
}

// ValidateDenomination 校验面额是否可接受
func ValidateDenomination(amount int) error {
	if !acceptedDenominations[amount] {
		return apperrors.Newf(apperrors.ErrInvalidDenomination, "amount %d", amount)
	}
	return nil
}

// DepositPhase 入钞会话阶段
type DepositPhase int

const (
	DepositIdle DepositPhase = iota
	DepositPending
)

func (p DepositPhase) String() string {
	if p == DepositPending {
		return "pending"
	}
	return "idle"
}

// MarshalText JSON 输出字符串
func (p DepositPhase) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// UnmarshalText 解析 String 的输出
func (p *DepositPhase) UnmarshalText(text []byte) error {
	return unmarshalEnum(p, text, DepositPending, "deposit phase")
}

// DepositEventKind 入钞机事件类型
type DepositEventKind int

const (
	DepositReady DepositEventKind = iota
	DepositNoteDetected
	DepositValidationFailed
	DepositAccepted
	DepositUnknown
)

func (k DepositEventKind) String() string {
	switch k {
	case DepositReady:
		return "ready"
	case DepositNoteDetected:
		return "note_detected"
	case DepositValidationFailed:
		return "validation_failed"
	case DepositAccepted:
		return "accepted"
	default:
		return "unknown"
	}
}

// MarshalText JSON 输出字符串
func (k DepositEventKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// UnmarshalText 解析 String 的输出
func (k *DepositEventKind) UnmarshalText(text []byte) error {
	return unmarshalEnum(k, text, DepositUnknown, "deposit event")
}

// DepositEvent 入钞机上报事件
type DepositEvent struct {
	Kind    DepositEventKind `json:"kind"`
	Opcode  byte             `json:"opcode"`
	Code    byte             `json:"code,omitempty"`
	HasCode bool             `json:"has_code"`
}

// ParseDepositEvent 以首字节区分事件，81 后跟面额码
func ParseDepositEvent(chunk []byte) DepositEvent {
	if len(chunk) == 0 {
		return DepositEvent{Kind: DepositUnknown}
	}
	ev := DepositEvent{Opcode: chunk[0]}
	switch chunk[0] {
	case DepositEventReady:
		ev.Kind = DepositReady
	case DepositEventDetected:
		ev.Kind = DepositNoteDetected
		if len(chunk) > 1 {
			ev.Code = chunk[1]
			ev.HasCode = true
		}
	case DepositEventRejected:
		ev.Kind = DepositValidationFailed
	case DepositEventConfirmed:
		ev.Kind = DepositAccepted
	default:
		ev.Kind = DepositUnknown
	}
	return ev
}

// DepositState 入钞会话快照
type DepositState struct {
	Connection    ConnStatus    `json:"connection"`
	Phase         DepositPhase  `json:"phase"`
	CurrentAmount int           `json:"current_amount"`
	TotalAmount   int           `json:"total_amount"`
	Monitoring    bool          `json:"monitoring"`
	Rejected      int           `json:"rejected"`
	LastEvent     *DepositEvent `json:"last_event,omitempty"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// DepositAcceptor TP70 纸币接收器
type DepositAcceptor struct {
	session *Session
	opts    options
	logger  *zap.Logger

	mu      sync.Mutex
	state   DepositState
	ledger  ledgerQueue
	updates *Broadcaster[DepositState]
}

// NewDepositAcceptor 创建纸币接收器控制器
func NewDepositAcceptor(port string, opener Opener, opts ...Option) (*DepositAcceptor, error) {
	line, err := LineConfigFor(DeviceTP70, port)
	if err != nil {
		return nil, err
	}
	o := newOptions(opts)
	d := &DepositAcceptor{
		opts:    o,
		logger:  o.logger.With(zap.String("device", string(DeviceTP70))),
		updates: NewBroadcaster[DepositState](),
	}
	d.session = NewSession(DeviceTP70, line, opener, d.onData, opts...)
	return d, nil
}

// Session 串口会话
func (d *DepositAcceptor) Session() *Session { return d.session }

// Open 连接
func (d *DepositAcceptor) Open() error {
	err := d.session.Open()
	d.publish()
	return err
}

// Close 断开；暂存中的金额保留，重连后由设备事件或调用方处理
func (d *DepositAcceptor) Close() error {
	err := d.session.Close()
	d.mu.Lock()
	d.state.Monitoring = false
	d.mu.Unlock()
	d.publish()
	return err
}

// Snapshot 当前状态
func (d *DepositAcceptor) Snapshot() DepositState {
	d.mu.Lock()
	s := d.state
	d.mu.Unlock()
	s.Connection = d.session.Status()
	return s
}

// Updates 订阅状态快照
func (d *DepositAcceptor) Updates(buffer int) (<-chan DepositState, func()) {
	return d.updates.Subscribe(buffer)
}

func (d *DepositAcceptor) publish() {
	d.updates.Publish(d.Snapshot())
}

func (d *DepositAcceptor) onData(chunk []byte) {
	d.HandleEvent(ParseDepositEvent(chunk))
}

// HandleEvent 状态机入口，由读循环调用
func (d *DepositAcceptor) HandleEvent(ev DepositEvent) {
	d.mu.Lock()
	last := ev
	d.state.LastEvent = &last
	d.state.UpdatedAt = d.opts.now()

	switch ev.Kind {
	case DepositReady:
		if err := d.session.Send([]byte{DepositActionConfirm}); err != nil {
			d.logger.Error("回应启动失败", zap.Error(err))
		} else {
			d.state.Monitoring = true
			d.logger.Info("等待入钞")
		}
	case DepositNoteDetected:
		d.onNoteDetectedLocked(ev)
	case DepositValidationFailed:
		if d.state.Phase == DepositPending {
			amount := d.state.CurrentAmount
			d.returnLocked()
			d.logger.Info("验钞失败，纸币已退回", zap.Int("amount", amount))
		} else {
			d.logger.Warn("空闲状态收到验钞失败")
		}
	case DepositAccepted:
		if d.state.Phase == DepositPending {
			d.commitLocked()
		} else {
			d.logger.Warn("空闲状态收到收钞确认")
		}
	case DepositUnknown:
		d.logger.Warn("未知命令",
			zap.String("opcode", fmt.Sprintf("%02X", ev.Opcode)),
			zap.Error(apperrors.Newf(apperrors.ErrUnknownResponseCode, "%02X", ev.Opcode)))
	}
	entries := d.ledger.take()
	d.mu.Unlock()

	d.opts.record(entries)
	d.publish()
}

func (d *DepositAcceptor) onNoteDetectedLocked(ev DepositEvent) {
	if d.state.Phase == DepositPending {
		// 不回应答，设备继续等待暂存纸币的确认或退回
		d.logger.Warn("已有暂存纸币，忽略新的入钞事件",
			zap.Int("pending", d.state.CurrentAmount),
			zap.String("code", fmt.Sprintf("%02X", ev.Code)),
			zap.Bool("device_waiting", true))
		return
	}

	amount, ok := DenominationForCode(ev.Code)
	var reason error
	switch {
	case !ev.HasCode:
		reason = apperrors.New(apperrors.ErrInvalidDenomination, "missing denomination code")
	case !ok:
		reason = apperrors.Newf(apperrors.ErrInvalidDenomination, "unmapped code %02X", ev.Code)
	default:
		reason = ValidateDenomination(amount)
	}

	if reason != nil {
		d.state.Rejected++
		d.logger.Warn("拒收纸币", zap.Error(reason))
		if err := d.session.Send([]byte{DepositActionCancel}); err != nil {
			d.logger.Error("发送退钞失败", zap.Error(err))
		}
		return
	}

	if err := d.session.Send([]byte{DepositActionPending}); err != nil {
		d.logger.Error("发送暂存失败", zap.Error(err))
		return
	}
	d.state.Phase = DepositPending
	d.state.CurrentAmount = amount
	d.logger.Info("已入钞，等待确认", zap.Int("amount", amount))
}

func (d *DepositAcceptor) commitLocked() {
	amount := d.state.CurrentAmount
	d.state.TotalAmount += amount
	d.state.CurrentAmount = 0
	d.state.Phase = DepositIdle
	d.logger.Info("入钞成功", zap.Int("amount", amount), zap.Int("total", d.state.TotalAmount))
	d.ledger.add(LedgerEntry{Device: DeviceTP70, Kind: LedgerDeposit, Amount: amount, Total: d.state.TotalAmount})
}

func (d *DepositAcceptor) returnLocked() {
	amount := d.state.CurrentAmount
	d.state.CurrentAmount = 0
	d.state.Phase = DepositIdle
	d.ledger.add(LedgerEntry{Device: DeviceTP70, Kind: LedgerReturned, Amount: amount, Total: d.state.TotalAmount})
}

// ConfirmDeposit 确认暂存纸币；空闲时什么都不做
func (d *DepositAcceptor) ConfirmDeposit() error {
	d.mu.Lock()
	if d.state.Phase != DepositPending {
		d.mu.Unlock()
		return nil
	}
	if err := d.session.Send([]byte{DepositActionConfirm}); err != nil {
		d.mu.Unlock()
		return err
	}
	d.commitLocked()
	d.state.UpdatedAt = d.opts.now()
	entries := d.ledger.take()
	d.mu.Unlock()

	d.opts.record(entries)
	d.publish()
	return nil
}

// CancelDeposit 退回暂存纸币；空闲时什么都不做
func (d *DepositAcceptor) CancelDeposit() error {
	d.mu.Lock()
	if d.state.Phase != DepositPending {
		d.mu.Unlock()
		return nil
	}
	if err := d.session.Send([]byte{DepositActionCancel}); err != nil {
		d.mu.Unlock()
		return err
	}
	amount := d.state.CurrentAmount
	d.returnLocked()
	d.state.UpdatedAt = d.opts.now()
	entries := d.ledger.take()
	d.mu.Unlock()

	d.opts.record(entries)
	d.logger.Info("取消入钞，纸币退回", zap.Int("amount", amount))
	d.publish()
	return nil
}

// Disable 停止收钞
func (d *DepositAcceptor) Disable() error {
	return d.session.Send([]byte{DepositActionClose})
}

// Enable 恢复收钞
func (d *DepositAcceptor) Enable() error {
	return d.session.Send([]byte{DepositActionReopen})
}
