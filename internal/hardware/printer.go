package hardware

import (
	"fmt"
	"sync"
	"time"

	apperrors "github.com/wfunc/kiosk-devices/internal/errors"
	"go.uber.org/zap"
)

// PrinterEventKind 打印机事件类型
type PrinterEventKind int

const (
	PrinterAck PrinterEventKind = iota
	PrinterNack
	PrinterBlockReceived
	PrinterAllReceived
	PrinterStatusOK
	PrinterOutOfPaper
	PrinterCutterFault
	PrinterUnknown
)

func (k PrinterEventKind) String() string {
	switch k {
	case PrinterAck:
		return "ack"
	case PrinterNack:
		return "nack"
	case PrinterBlockReceived:
		return "block_received"
	case PrinterAllReceived:
		return "all_received"
	case PrinterStatusOK:
		return "status_ok"
	case PrinterOutOfPaper:
		return "out_of_paper"
	case PrinterCutterFault:
		return "cutter_fault"
	default:
		return "unknown"
	}
}

// MarshalText JSON 输出字符串
func (k PrinterEventKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// UnmarshalText 解析 String 的输出
func (k *PrinterEventKind) UnmarshalText(text []byte) error {
	return unmarshalEnum(k, text, PrinterUnknown, "printer event")
}

// PrinterEvent 打印机响应事件
type PrinterEvent struct {
	Kind PrinterEventKind `json:"kind"`
	Code byte             `json:"code"`
}

// ClassifyPrinterByte 单字节响应分类
func ClassifyPrinterByte(b byte) PrinterEvent {
	ev := PrinterEvent{Code: b}
	switch b {
	case PrinterRespAck:
		ev.Kind = PrinterAck
	case PrinterRespNack:
		ev.Kind = PrinterNack
	case PrinterRespBlockOK:
		ev.Kind = PrinterBlockReceived
	case PrinterRespAllReceived:
		ev.Kind = PrinterAllReceived
	case PrinterRespStatusOK:
		ev.Kind = PrinterStatusOK
	case PrinterRespOutOfPaper:
		ev.Kind = PrinterOutOfPaper
	case PrinterRespCutterFault:
		ev.Kind = PrinterCutterFault
	default:
		ev.Kind = PrinterUnknown
	}
	return ev
}

// ClassifyPrinterResponse 一块数据里每个字节都是一个响应
func ClassifyPrinterResponse(chunk []byte) []PrinterEvent {
	events := make([]PrinterEvent, len(chunk))
	for i, b := range chunk {
		events[i] = ClassifyPrinterByte(b)
	}
	return events
}

// PrinterState 打印机状态快照
type PrinterState struct {
	Model        DeviceKind    `json:"model"`
	Connection   ConnStatus    `json:"connection"`
	LastEvent    *PrinterEvent `json:"last_event,omitempty"`
	PaperOut     bool          `json:"paper_out"`
	CutterFault  bool          `json:"cutter_fault"`
	Acks         int           `json:"acks"`
	Nacks        int           `json:"nacks"`
	BlocksOK     int           `json:"blocks_ok"`
	UploadDone   bool          `json:"upload_done"`
	UnknownCodes int           `json:"unknown_codes"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// Printer 票据打印机控制器，支持 TGP58 与 ESC/POS
type Printer struct {
	model   DeviceKind
	tgp     *TGP58Commands
	esc     *ESCPOSCommands
	session *Session
	opts    options
	logger  *zap.Logger

	mu      sync.RWMutex
	state   PrinterState
	updates *Broadcaster[PrinterState]
}

// NewPrinter 创建打印机控制器，model 为 DeviceTGP58 或 DeviceESCPOS
func NewPrinter(model DeviceKind, port string, opener Opener, opts ...Option) (*Printer, error) {
	if model != DeviceTGP58 && model != DeviceESCPOS {
		return nil, apperrors.Newf(apperrors.ErrInvalidParam, "unsupported printer model %q", model)
	}
	line, err := LineConfigFor(model, port)
	if err != nil {
		return nil, err
	}

	o := newOptions(opts)
	p := &Printer{
		model:   model,
		tgp:     NewTGP58Commands(),
		esc:     NewESCPOSCommands(),
		opts:    o,
		logger:  o.logger.With(zap.String("device", string(model))),
		state:   PrinterState{Model: model},
		updates: NewBroadcaster[PrinterState](),
	}
	p.session = NewSession(model, line, opener, p.onData, opts...)
	return p, nil
}

// Model 打印机型号
func (p *Printer) Model() DeviceKind { return p.model }

// Session 串口会话
func (p *Printer) Session() *Session { return p.session }

// Open 连接打印机；TGP58 连接后下发默认报表排版
func (p *Printer) Open() error {
	if err := p.session.Open(); err != nil {
		p.publish()
		return err
	}
	p.publish()

	if p.model != DeviceTGP58 {
		return nil
	}
	frame, err := p.tgp.FormatReport(DefaultReportLayout)
	if err != nil {
		return err
	}
	if err := p.session.Send(frame); err != nil {
		return fmt.Errorf("send default layout: %w", err)
	}
	return nil
}

// Close 断开
func (p *Printer) Close() error {
	err := p.session.Close()
	p.publish()
	return err
}

// Snapshot 当前状态
func (p *Printer) Snapshot() PrinterState {
	p.mu.RLock()
	s := p.state
	p.mu.RUnlock()
	s.Connection = p.session.Status()
	return s
}

// Updates 订阅状态快照
func (p *Printer) Updates(buffer int) (<-chan PrinterState, func()) {
	return p.updates.Subscribe(buffer)
}

func (p *Printer) publish() {
	p.updates.Publish(p.Snapshot())
}

// onData 分发入口，ESC/POS 没有响应表，只记录
func (p *Printer) onData(chunk []byte) {
	if p.model == DeviceESCPOS {
		p.logger.Debug("ESC/POS 响应", zap.String("hex", fmt.Sprintf("% X", chunk)))
		return
	}
	for _, ev := range ClassifyPrinterResponse(chunk) {
		p.handleEvent(ev)
	}
	p.publish()
}

func (p *Printer) handleEvent(ev PrinterEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	last := ev
	p.state.LastEvent = &last
	p.state.UpdatedAt = p.opts.now()

	switch ev.Kind {
	case PrinterAck:
		p.state.Acks++
		p.logger.Debug("命令执行成功")
	case PrinterNack:
		p.state.Nacks++
		p.logger.Warn("命令执行失败")
	case PrinterBlockReceived:
		p.state.BlocksOK++
		p.state.UploadDone = false
	case PrinterAllReceived:
		p.state.UploadDone = true
		p.logger.Debug("全部数据接收完成", zap.Int("blocks", p.state.BlocksOK))
	case PrinterStatusOK:
		p.state.PaperOut = false
		p.state.CutterFault = false
	case PrinterOutOfPaper:
		p.state.PaperOut = true
		p.logger.Warn("打印机缺纸")
	case PrinterCutterFault:
		p.state.CutterFault = true
		p.logger.Warn("打印机裁刀故障")
	case PrinterUnknown:
		p.state.UnknownCodes++
		p.logger.Warn("未知响应码",
			zap.String("code", fmt.Sprintf("%02X", ev.Code)),
			zap.Error(apperrors.Newf(apperrors.ErrUnknownResponseCode, "%02X", ev.Code)))
	}
}

func (p *Printer) requireTGP58(op string) error {
	if p.model != DeviceTGP58 {
		return unsupported(p.model, op)
	}
	return nil
}

// Init 初始化打印机
func (p *Printer) Init() error {
	if p.model == DeviceESCPOS {
		return p.session.Send(p.esc.Init())
	}
	return p.session.Send(p.tgp.Init())
}

// PrintText 打印一行文字；ESC/POS 忽略字号并在末尾切纸
func (p *Printer) PrintText(text string, size FontSize) error {
	if p.model == DeviceESCPOS {
		return p.session.SendSequence(p.esc.PrintText(text), 0)
	}
	return p.session.Send(p.tgp.PrintText(text, size))
}

// PrintPadded 上下空两行打印文字
func (p *Printer) PrintPadded(text string) error {
	if err := p.requireTGP58("print-padded"); err != nil {
		return err
	}
	return p.session.Send(p.tgp.PaddedText(text))
}

// Cut 切纸
func (p *Printer) Cut() error {
	if p.model == DeviceESCPOS {
		return p.session.Send(p.esc.Cut())
	}
	return p.session.Send(p.tgp.Cut())
}

// NewLine 换行
func (p *Printer) NewLine() error {
	if p.model == DeviceESCPOS {
		return p.session.Send(p.esc.LineFeed())
	}
	return p.session.Send(p.tgp.NewLine())
}

// SendCommand 发送 TGP58 无参数命令（printReport、clearLog、getStatus 等）
func (p *Printer) SendCommand(name string) error {
	if err := p.requireTGP58(name); err != nil {
		return err
	}
	frame, err := p.tgp.Simple(name)
	if err != nil {
		return err
	}
	return p.session.Send(frame)
}

// PrintReport 打印报表
func (p *Printer) PrintReport() error { return p.SendCommand(CmdPrintReport) }

// ClearLog 清除日志
func (p *Printer) ClearLog() error { return p.SendCommand(CmdClearLog) }

// RequestStatus 查询状态，结果经响应更新快照
func (p *Printer) RequestStatus() error { return p.SendCommand(CmdGetStatus) }

// RequestFirmwareVersion 查询固件版本
func (p *Printer) RequestFirmwareVersion() error { return p.SendCommand(CmdFirmwareVersion) }

// ReadDateTime 读取打印机时间
func (p *Printer) ReadDateTime() error { return p.SendCommand(CmdReadDateTime) }

// SetDateTime 设置打印机时间
func (p *Printer) SetDateTime(t time.Time) error {
	if err := p.requireTGP58(CmdSetDateTime); err != nil {
		return err
	}
	return p.session.Send(p.tgp.SetDateTime(t))
}

// FormatReport 下发报表排版
func (p *Printer) FormatReport(items []FormatItem) error {
	if err := p.requireTGP58(CmdFormatPrint); err != nil {
		return err
	}
	frame, err := p.tgp.FormatReport(items)
	if err != nil {
		return err
	}
	return p.session.Send(frame)
}

// UploadText 上传报表文本
func (p *Printer) UploadText(lines []string) error {
	if err := p.requireTGP58(CmdUploadText); err != nil {
		return err
	}
	frame, err := p.tgp.UploadText(lines)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.state.BlocksOK = 0
	p.state.UploadDone = false
	p.mu.Unlock()
	return p.session.Send(frame)
}

// Receipt 排版、上传、打印
func (p *Printer) Receipt(layout []FormatItem, lines []string) error {
	if err := p.requireTGP58("receipt"); err != nil {
		return err
	}
	frames, err := p.tgp.Receipt(layout, lines)
	if err != nil {
		return err
	}
	return p.session.SendSequence(frames, p.opts.frameInterval)
}

// AdvancePaper 走纸
func (p *Printer) AdvancePaper(lines int) error {
	if err := p.requireTGP58(CmdAdvancePaper); err != nil {
		return err
	}
	frame, err := p.tgp.AdvancePaper(lines)
	if err != nil {
		return err
	}
	return p.session.Send(frame)
}

// SetContactMode 设置 NO/NC
func (p *Printer) SetContactMode(normallyClosed bool) error {
	if err := p.requireTGP58(CmdSetNONC); err != nil {
		return err
	}
	return p.session.Send(p.tgp.SetContactMode(normallyClosed))
}

// PrintGraphics 打印点阵图
func (p *Printer) PrintGraphics(bitmap []byte) error {
	if err := p.requireTGP58(CmdPrintGraphics); err != nil {
		return err
	}
	frame, err := p.tgp.PrintGraphics(bitmap)
	if err != nil {
		return err
	}
	return p.session.Send(frame)
}

// UploadLogo 上传商标
func (p *Printer) UploadLogo(bitmap []byte) error {
	if err := p.requireTGP58(CmdUploadLogo); err != nil {
		return err
	}
	frame, err := p.tgp.UploadLogo(bitmap)
	if err != nil {
		return err
	}
	return p.session.Send(frame)
}

// PrintVoucher 打印现金凭条，帧间按配置间隔发送
func (p *Printer) PrintVoucher(title string, amount int) error {
	if err := p.requireTGP58("voucher"); err != nil {
		return err
	}
	frames, err := p.tgp.Voucher(title, amount)
	if err != nil {
		return err
	}
	p.logger.Info("打印凭条", zap.String("title", title), zap.Int("amount", amount))
	return p.session.SendSequence(frames, p.opts.frameInterval)
}
