package hardware

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	apperrors "github.com/wfunc/kiosk-devices/internal/errors"
	"go.uber.org/zap"
)

// 出钞机帧头："0200" 以两个字节发送
var dispenserHeader = []byte{0x02, 0x00}

// dispenserHeaderText 校验和按报文文本计算，帧头记作 "0200"
const dispenserHeaderText = "0200"

// MaxDispenseAmount 参数字段为4位十进制
const MaxDispenseAmount = 9999

// 响应帧最小长度
const (
	minAmountFrame = 8 // b/c：金额位于 [5:8]
	minStatusFrame = 5 // s：状态位于 [4]
	minErrorFrame  = 6 // s+e：错误码位于 [5]
)

// BuildDispenserFrame STX + 0200 + 命令 + 4位参数 + 校验和 + ETX。
// 校验和是文本 "0200"+命令+参数 的字符码之和。
func BuildDispenserFrame(opcode byte, params string) ([]byte, error) {
	if len(params) != 4 {
		return nil, apperrors.Newf(apperrors.ErrInvalidParam, "params %q must be 4 characters", params)
	}
	body := concat(dispenserHeader, []byte{opcode}, []byte(params))
	return concat([]byte{DispenserSTX}, body, []byte{DispenserChecksum(opcode, params), DispenserETX}), nil
}

// DispenserChecksum 报文文本的校验和
func DispenserChecksum(opcode byte, params string) byte {
	return Checksum([]byte(dispenserHeaderText + string(rune(opcode)) + params))
}

// DispenseFrame 出钞命令
func DispenseFrame(amount int) ([]byte, error) {
	if amount < 1 || amount > MaxDispenseAmount {
		return nil, apperrors.Newf(apperrors.ErrInvalidParam, "dispense amount %d not in 1..%d", amount, MaxDispenseAmount)
	}
	return BuildDispenserFrame(DispenserCmdDispense, fmt.Sprintf("%04d", amount))
}

// DispenserPhase 出钞机状态
type DispenserPhase int

const (
	DispenserIdle DispenserPhase = iota
	DispenserDispensing
	DispenserError
)

func (p DispenserPhase) String() string {
	switch p {
	case DispenserDispensing:
		return "dispensing"
	case DispenserError:
		return "error"
	default:
		return "idle"
	}
}

// MarshalText JSON 输出字符串
func (p DispenserPhase) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// UnmarshalText 解析 String 的输出
func (p *DispenserPhase) UnmarshalText(text []byte) error {
	return unmarshalEnum(p, text, DispenserError, "dispenser phase")
}

// DispenserEventKind 出钞机事件类型
type DispenserEventKind int

const (
	DispenserDispensed DispenserEventKind = iota
	DispenserStatusReady
	DispenserStatusBusy
	DispenserStatusError
	DispenserCount
	DispenserMalformed
	DispenserUnknown
)

// DispenserEvent 出钞机响应事件
type DispenserEvent struct {
	Kind      DispenserEventKind
	Opcode    byte
	Amount    int
	ErrorCode byte
	Err       error
}

// ParseDispenserResponse 第4字节为响应命令，金额为 [5:8] 的三位十进制
func ParseDispenserResponse(frame []byte) DispenserEvent {
	if len(frame) < 4 {
		return DispenserEvent{Kind: DispenserMalformed, Err: malformed(frame, "shorter than 4 bytes")}
	}
	ev := DispenserEvent{Opcode: frame[3]}

	switch frame[3] {
	case DispenserRespDispense, DispenserRespCount:
		if len(frame) < minAmountFrame {
			return DispenserEvent{Kind: DispenserMalformed, Opcode: frame[3], Err: malformed(frame, "amount field truncated")}
		}
		amount, err := strconv.Atoi(string(frame[5:8]))
		if err != nil || amount < 0 {
			return DispenserEvent{Kind: DispenserMalformed, Opcode: frame[3], Err: malformed(frame, "amount not decimal")}
		}
		ev.Amount = amount
		if frame[3] == DispenserRespDispense {
			ev.Kind = DispenserDispensed
		} else {
			ev.Kind = DispenserCount
		}
	case DispenserRespStatus:
		if len(frame) < minStatusFrame {
			return DispenserEvent{Kind: DispenserMalformed, Opcode: frame[3], Err: malformed(frame, "status byte missing")}
		}
		switch frame[4] {
		case DispenserStateReady:
			ev.Kind = DispenserStatusReady
		case DispenserStateDispensing:
			ev.Kind = DispenserStatusBusy
		case DispenserStateError:
			if len(frame) < minErrorFrame {
				return DispenserEvent{Kind: DispenserMalformed, Opcode: frame[3], Err: malformed(frame, "error code missing")}
			}
			ev.Kind = DispenserStatusError
			ev.ErrorCode = frame[5]
		default:
			ev.Kind = DispenserUnknown
			ev.Err = apperrors.Newf(apperrors.ErrUnknownResponseCode, "status %02X", frame[4])
		}
	default:
		ev.Kind = DispenserUnknown
		ev.Err = apperrors.Newf(apperrors.ErrUnknownResponseCode, "opcode %02X", frame[3])
	}
	return ev
}

func malformed(frame []byte, reason string) error {
	return apperrors.Newf(apperrors.ErrMalformedFrame, "%s: % X", reason, frame)
}

// DispenserState 出钞会话快照
type DispenserState struct {
	Connection          ConnStatus     `json:"connection"`
	Phase               DispenserPhase `json:"phase"`
	ErrorCode           string         `json:"error_code,omitempty"`
	LastDispensedAmount int            `json:"last_dispensed_amount"`
	TotalDispensed      int            `json:"total_dispensed"`
	UpdatedAt           time.Time      `json:"updated_at"`
}

// Dispenser XC100 出钞机
type Dispenser struct {
	session *Session
	opts    options
	logger  *zap.Logger

	mu      sync.Mutex
	state   DispenserState
	ledger  ledgerQueue
	updates *Broadcaster[DispenserState]
}

// NewDispenser 创建出钞机控制器
func NewDispenser(port string, opener Opener, opts ...Option) (*Dispenser, error) {
	line, err := LineConfigFor(DeviceXC100, port)
	if err != nil {
		return nil, err
	}
	o := newOptions(opts)
	d := &Dispenser{
		opts:    o,
		logger:  o.logger.With(zap.String("device", string(DeviceXC100))),
		updates: NewBroadcaster[DispenserState](),
	}
	d.session = NewSession(DeviceXC100, line, opener, d.onData, opts...)
	return d, nil
}

// Session 串口会话
func (d *Dispenser) Session() *Session { return d.session }

// Open 连接
func (d *Dispenser) Open() error {
	err := d.session.Open()
	d.publish()
	return err
}

// Close 断开
func (d *Dispenser) Close() error {
	err := d.session.Close()
	d.publish()
	return err
}

// Snapshot 当前状态
func (d *Dispenser) Snapshot() DispenserState {
	d.mu.Lock()
	s := d.state
	d.mu.Unlock()
	s.Connection = d.session.Status()
	return s
}

// Updates 订阅状态快照
func (d *Dispenser) Updates(buffer int) (<-chan DispenserState, func()) {
	return d.updates.Subscribe(buffer)
}

func (d *Dispenser) publish() {
	d.updates.Publish(d.Snapshot())
}

// Dispense 出钞，发送成功后进入出钞中
func (d *Dispenser) Dispense(amount int) error {
	frame, err := DispenseFrame(amount)
	if err != nil {
		return err
	}

	d.mu.Lock()
	if err := d.session.Send(frame); err != nil {
		d.mu.Unlock()
		return err
	}
	d.state.Phase = DispenserDispensing
	d.state.ErrorCode = ""
	d.state.UpdatedAt = d.opts.now()
	d.mu.Unlock()

	d.logger.Info("出钞", zap.Int("amount", amount))
	d.publish()
	return nil
}

// RequestStatus 查询状态
func (d *Dispenser) RequestStatus() error {
	return d.sendCommand(DispenserCmdStatus, "0000")
}

// RequestCount 查询累计出钞数，响应会覆盖本地累计
func (d *Dispenser) RequestCount() error {
	return d.sendCommand(DispenserCmdCount, "0000")
}

// ClearCount 清除设备累计数和错误，本地累计同步归零
func (d *Dispenser) ClearCount() error {
	frame, err := BuildDispenserFrame(DispenserCmdClearCount, "0001")
	if err != nil {
		return err
	}

	d.mu.Lock()
	if err := d.session.Send(frame); err != nil {
		d.mu.Unlock()
		return err
	}
	d.state.TotalDispensed = 0
	d.state.ErrorCode = ""
	if d.state.Phase == DispenserError {
		d.state.Phase = DispenserIdle
	}
	d.state.UpdatedAt = d.opts.now()
	d.mu.Unlock()

	d.opts.record([]LedgerEntry{{Device: DeviceXC100, Kind: LedgerCleared, Total: 0}})
	d.publish()
	return nil
}

func (d *Dispenser) sendCommand(opcode byte, params string) error {
	frame, err := BuildDispenserFrame(opcode, params)
	if err != nil {
		return err
	}
	return d.session.Send(frame)
}

func (d *Dispenser) onData(chunk []byte) {
	d.HandleEvent(ParseDispenserResponse(chunk))
}

// HandleEvent 状态机入口，由读循环调用
func (d *Dispenser) HandleEvent(ev DispenserEvent) {
	d.mu.Lock()
	d.state.UpdatedAt = d.opts.now()

	switch ev.Kind {
	case DispenserDispensed:
		d.state.LastDispensedAmount = ev.Amount
		d.state.TotalDispensed += ev.Amount
		d.state.Phase = DispenserIdle
		d.logger.Info("出钞完成", zap.Int("amount", ev.Amount), zap.Int("total", d.state.TotalDispensed))
		d.ledger.add(LedgerEntry{Device: DeviceXC100, Kind: LedgerDispensed, Amount: ev.Amount, Total: d.state.TotalDispensed})
	case DispenserStatusReady:
		d.state.Phase = DispenserIdle
		d.state.ErrorCode = ""
	case DispenserStatusBusy:
		d.state.Phase = DispenserDispensing
	case DispenserStatusError:
		d.state.Phase = DispenserError
		d.state.ErrorCode = fmt.Sprintf("%02X", ev.ErrorCode)
		d.logger.Warn("出钞机错误", zap.String("code", d.state.ErrorCode))
	case DispenserCount:
		d.state.TotalDispensed = ev.Amount
		d.logger.Info("出钞计数同步", zap.Int("total", ev.Amount))
		d.ledger.add(LedgerEntry{Device: DeviceXC100, Kind: LedgerResync, Total: ev.Amount})
	case DispenserMalformed:
		d.logger.Warn("响应帧格式错误", zap.Error(ev.Err))
	case DispenserUnknown:
		d.logger.Warn("未知命令", zap.Error(ev.Err))
	}
	entries := d.ledger.take()
	d.mu.Unlock()

	d.opts.record(entries)
	d.publish()
}
