package hardware

import (
	"bytes"
	"fmt"
	"io"
	"math/rand"
	"os"
	"sync"
	"time"

	"github.com/wfunc/kiosk-devices/internal/logger"
	"go.uber.org/zap"
)

// Simulator 模拟三种设备的串口（调试模式，无需硬件）
type Simulator struct {
	// NoteInterval 入钞机就绪后模拟放入纸币的间隔
	NoteInterval time.Duration
	// DispenseDelay 出钞机从收到命令到回报完成的延迟
	DispenseDelay time.Duration
}

// NewSimulator 创建模拟器
func NewSimulator() *Simulator {
	return &Simulator{
		NoteInterval:  8 * time.Second,
		DispenseDelay: 1500 * time.Millisecond,
	}
}

// Open 实现 Opener
func (s *Simulator) Open(cfg LineConfig) (Port, error) {
	p := &simPort{
		device:        cfg.Device,
		readTimeout:   cfg.ReadTimeout,
		noteInterval:  s.NoteInterval,
		dispenseDelay: s.DispenseDelay,
		rx:            make(chan []byte, 64),
		stopCh:        make(chan struct{}),
		logger:        logger.WithModule("simulator").With(zap.String("device", string(cfg.Device))),
	}
	if p.readTimeout <= 0 {
		p.readTimeout = DefaultReadTimeout
	}

	if cfg.Device == DeviceTP70 {
		go p.emitAfter(200*time.Millisecond, []byte{DepositEventReady})
	}
	p.logger.Info("模拟串口已打开", zap.String("port", cfg.Port))
	return p, nil
}

type simPort struct {
	device        DeviceKind
	readTimeout   time.Duration
	noteInterval  time.Duration
	dispenseDelay time.Duration
	logger        *zap.Logger

	rx      chan []byte
	pending []byte

	mu       sync.Mutex
	closed   bool
	stopCh   chan struct{}
	noteLoop bool
	holding  bool
	count    int
}

func (p *simPort) Read(b []byte) (int, error) {
	if len(p.pending) > 0 {
		n := copy(b, p.pending)
		p.pending = p.pending[n:]
		return n, nil
	}

	timer := time.NewTimer(p.readTimeout)
	defer timer.Stop()

	select {
	case chunk := <-p.rx:
		n := copy(b, chunk)
		p.pending = chunk[n:]
		return n, nil
	case <-timer.C:
		return 0, nil
	case <-p.stopCh:
		return 0, io.EOF
	}
}

func (p *simPort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, os.ErrClosed
	}

	frame := append([]byte(nil), b...)
	switch p.device {
	case DeviceTGP58:
		p.respondPrinter(frame)
	case DeviceTP70:
		p.respondDeposit(frame)
	case DeviceXC100:
		p.respondDispenser(frame)
	}
	return len(b), nil
}

func (p *simPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	close(p.stopCh)
	return nil
}

func (p *simPort) emit(chunk []byte) {
	select {
	case p.rx <- chunk:
	case <-p.stopCh:
	default:
		p.logger.Warn("模拟响应队列已满，丢弃", zap.String("hex", fmt.Sprintf("% X", chunk)))
	}
}

func (p *simPort) emitAfter(d time.Duration, chunk []byte) {
	select {
	case <-time.After(d):
		p.emit(chunk)
	case <-p.stopCh:
	}
}

func (p *simPort) respondPrinter(frame []byte) {
	switch {
	case bytes.Equal(frame, TGP58Opcodes.mustGet(CmdGetStatus)):
		p.emit([]byte{PrinterRespStatusOK})
	case bytes.HasPrefix(frame, TGP58Opcodes.mustGet(CmdUploadText)):
		blocks := (len(frame) - 2) / TextSlotWidth
		resp := bytes.Repeat([]byte{PrinterRespBlockOK}, blocks)
		p.emit(append(resp, PrinterRespAllReceived))
	default:
		p.emit([]byte{PrinterRespAck})
	}
}

func (p *simPort) respondDeposit(frame []byte) {
	if len(frame) != 1 {
		return
	}
	switch frame[0] {
	case DepositActionConfirm:
		if p.holding {
			p.holding = false
			return
		}
		if !p.noteLoop {
			p.noteLoop = true
			go p.insertNotes()
		}
	case DepositActionPending:
		p.holding = true
	case DepositActionCancel:
		p.holding = false
	}
}

// insertNotes 周期性模拟放入纸币，偶尔放入无法识别的纸币
func (p *simPort) insertNotes() {
	ticker := time.NewTicker(p.noteInterval)
	defer ticker.Stop()

	codes := []byte{0x40, 0x41, 0x42, 0x43}
	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.mu.Lock()
			holding := p.holding
			p.mu.Unlock()
			if holding {
				continue
			}
			code := codes[rand.Intn(len(codes))]
			if rand.Float32() < 0.1 {
				code = 0x4F
			}
			p.emit([]byte{DepositEventDetected, code})
		}
	}
}

func (p *simPort) respondDispenser(frame []byte) {
	if len(frame) < 8 || frame[0] != DispenserSTX {
		return
	}
	params := string(frame[4:8])
	switch frame[3] {
	case DispenserCmdDispense:
		var amount int
		fmt.Sscanf(params, "%d", &amount)
		p.count += amount
		go p.emitAfter(p.dispenseDelay, simDispenserFrame(DispenserRespDispense, fmt.Sprintf("0%03d", amount%1000)))
	case DispenserCmdStatus:
		p.emit(simDispenserFrame(DispenserRespStatus, "r000"))
	case DispenserCmdCount:
		p.emit(simDispenserFrame(DispenserRespCount, fmt.Sprintf("0%03d", p.count%1000)))
	case DispenserCmdClearCount:
		p.count = 0
	}
}

func simDispenserFrame(opcode byte, params string) []byte {
	frame, _ := BuildDispenserFrame(opcode, params)
	return frame
}
