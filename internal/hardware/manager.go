package hardware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/wfunc/kiosk-devices/internal/config"
	apperrors "github.com/wfunc/kiosk-devices/internal/errors"
	"go.uber.org/zap"
)

// 设备角色名，用于 API 路径与配置
const (
	RolePrinter   = "printer"
	RoleDeposit   = "deposit"
	RoleDispenser = "dispenser"
)

// Event 推送给订阅者的设备事件
type Event struct {
	Device string      `json:"device"`
	Type   string      `json:"type"` // connection | state
	Data   interface{} `json:"data"`
	At     time.Time   `json:"at"`
}

// Snapshots 全部设备的状态快照，未配置的设备为 nil
type Snapshots struct {
	Printer   *PrinterState   `json:"printer,omitempty"`
	Deposit   *DepositState   `json:"deposit,omitempty"`
	Dispenser *DispenserState `json:"dispenser,omitempty"`
}

// Manager 设备管理器，按配置创建并打开设备
type Manager struct {
	mu     sync.RWMutex
	logger *zap.Logger
	cfg    config.SerialConfig

	printer   *Printer
	deposit   *DepositAcceptor
	dispenser *Dispenser

	ctx       context.Context
	cancel    context.CancelFunc
	running   bool
	startTime time.Time

	events *Broadcaster[Event]
	wg     sync.WaitGroup
}

// NewManager 根据串口驱动名创建管理器
func NewManager(cfg config.SerialConfig, opts ...Option) (*Manager, error) {
	opener, err := NewOpener(cfg.Driver)
	if err != nil {
		return nil, err
	}
	return NewManagerWithOpener(cfg, opener, opts...)
}

// NewManagerWithOpener 使用指定的串口实现创建管理器
func NewManagerWithOpener(cfg config.SerialConfig, opener Opener, opts ...Option) (*Manager, error) {
	if cfg.FrameInterval > 0 {
		opts = append([]Option{WithFrameInterval(cfg.FrameInterval)}, opts...)
	}
	if cfg.ReadTimeout > 0 {
		opts = append([]Option{WithReadTimeout(cfg.ReadTimeout)}, opts...)
	}
	o := newOptions(opts)
	m := &Manager{
		logger: o.logger.Named("manager"),
		cfg:    cfg,
		events: NewBroadcaster[Event](),
	}

	if cfg.Printer.Enabled {
		p, err := NewPrinter(DeviceKind(cfg.Printer.Model), cfg.Printer.Port, opener, opts...)
		if err != nil {
			return nil, fmt.Errorf("create printer: %w", err)
		}
		m.printer = p
	}
	if cfg.Deposit.Enabled {
		d, err := NewDepositAcceptor(cfg.Deposit.Port, opener, opts...)
		if err != nil {
			return nil, fmt.Errorf("create deposit acceptor: %w", err)
		}
		m.deposit = d
	}
	if cfg.Dispenser.Enabled {
		d, err := NewDispenser(cfg.Dispenser.Port, opener, opts...)
		if err != nil {
			return nil, fmt.Errorf("create dispenser: %w", err)
		}
		m.dispenser = d
	}

	m.logger.Info("设备管理器初始化完成",
		zap.String("driver", cfg.Driver),
		zap.Bool("printer", m.printer != nil),
		zap.Bool("deposit", m.deposit != nil),
		zap.Bool("dispenser", m.dispenser != nil))
	return m, nil
}

// Start 启动事件转发，并打开 auto_open 的设备；单个设备打开失败不影响其他设备
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return fmt.Errorf("device manager already running")
	}
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.running = true
	m.startTime = time.Now()

	if m.printer != nil {
		m.forward(RolePrinter, m.printer.Session())
		forwardState(m, RolePrinter, m.printer.Updates)
		if m.cfg.Printer.AutoOpen {
			m.openLogged(RolePrinter, m.printer.Open)
		}
	}
	if m.deposit != nil {
		m.forward(RoleDeposit, m.deposit.Session())
		forwardState(m, RoleDeposit, m.deposit.Updates)
		if m.cfg.Deposit.AutoOpen {
			m.openLogged(RoleDeposit, m.deposit.Open)
		}
	}
	if m.dispenser != nil {
		m.forward(RoleDispenser, m.dispenser.Session())
		forwardState(m, RoleDispenser, m.dispenser.Updates)
		if m.cfg.Dispenser.AutoOpen {
			m.openLogged(RoleDispenser, m.dispenser.Open)
		}
	}

	m.logger.Info("设备管理器启动成功")
	return nil
}

func (m *Manager) openLogged(role string, open func() error) {
	if err := open(); err != nil {
		m.logger.Warn("打开设备失败，可稍后手动重试", zap.String("device", role), zap.Error(err))
	}
}

// forward 把连接状态变化转成事件
func (m *Manager) forward(role string, s *Session) {
	ch, cancel := s.StatusChanges(16)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer cancel()
		for {
			select {
			case <-m.ctx.Done():
				return
			case change, ok := <-ch:
				if !ok {
					return
				}
				data := map[string]interface{}{"status": change.Status}
				if change.Err != nil {
					data["error"] = change.Err.Error()
				}
				m.events.Publish(Event{Device: role, Type: "connection", Data: data, At: change.At})
			}
		}
	}()
}

func forwardState[T any](m *Manager, role string, subscribe func(int) (<-chan T, func())) {
	ch, cancel := subscribe(16)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer cancel()
		for {
			select {
			case <-m.ctx.Done():
				return
			case state, ok := <-ch:
				if !ok {
					return
				}
				m.events.Publish(Event{Device: role, Type: "state", Data: state, At: time.Now()})
			}
		}
	}()
}

// Stop 关闭全部设备
func (m *Manager) Stop() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = false
	m.cancel()
	m.mu.Unlock()

	m.wg.Wait()

	var firstErr error
	for role, closeFn := range m.closers() {
		if err := closeFn(); err != nil {
			m.logger.Error("关闭设备失败", zap.String("device", role), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	m.logger.Info("设备管理器已停止")
	return firstErr
}

func (m *Manager) closers() map[string]func() error {
	closers := make(map[string]func() error)
	if m.printer != nil {
		closers[RolePrinter] = m.printer.Close
	}
	if m.deposit != nil {
		closers[RoleDeposit] = m.deposit.Close
	}
	if m.dispenser != nil {
		closers[RoleDispenser] = m.dispenser.Close
	}
	return closers
}

// IsRunning 是否正在运行
func (m *Manager) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

// Uptime 运行时长
func (m *Manager) Uptime() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.running {
		return 0
	}
	return time.Since(m.startTime)
}

func notConfigured(role string) error {
	return apperrors.Newf(apperrors.ErrDeviceNotConfigured, "%s", role)
}

// Printer 打印机
func (m *Manager) Printer() (*Printer, error) {
	if m.printer == nil {
		return nil, notConfigured(RolePrinter)
	}
	return m.printer, nil
}

// Deposit 纸币接收器
func (m *Manager) Deposit() (*DepositAcceptor, error) {
	if m.deposit == nil {
		return nil, notConfigured(RoleDeposit)
	}
	return m.deposit, nil
}

// Dispenser 出钞机
func (m *Manager) Dispenser() (*Dispenser, error) {
	if m.dispenser == nil {
		return nil, notConfigured(RoleDispenser)
	}
	return m.dispenser, nil
}

// Session 按角色名取串口会话
func (m *Manager) Session(role string) (*Session, error) {
	switch role {
	case RolePrinter:
		if m.printer != nil {
			return m.printer.Session(), nil
		}
	case RoleDeposit:
		if m.deposit != nil {
			return m.deposit.Session(), nil
		}
	case RoleDispenser:
		if m.dispenser != nil {
			return m.dispenser.Session(), nil
		}
	default:
		return nil, apperrors.Newf(apperrors.ErrNotFound, "unknown device %q", role)
	}
	return nil, notConfigured(role)
}

// Open 按角色名打开设备
func (m *Manager) Open(role string) error {
	switch role {
	case RolePrinter:
		if m.printer != nil {
			return m.printer.Open()
		}
	case RoleDeposit:
		if m.deposit != nil {
			return m.deposit.Open()
		}
	case RoleDispenser:
		if m.dispenser != nil {
			return m.dispenser.Open()
		}
	default:
		return apperrors.Newf(apperrors.ErrNotFound, "unknown device %q", role)
	}
	return notConfigured(role)
}

// Close 按角色名关闭设备
func (m *Manager) Close(role string) error {
	switch role {
	case RolePrinter:
		if m.printer != nil {
			return m.printer.Close()
		}
	case RoleDeposit:
		if m.deposit != nil {
			return m.deposit.Close()
		}
	case RoleDispenser:
		if m.dispenser != nil {
			return m.dispenser.Close()
		}
	default:
		return apperrors.Newf(apperrors.ErrNotFound, "unknown device %q", role)
	}
	return notConfigured(role)
}

// Snapshots 全部设备状态
func (m *Manager) Snapshots() Snapshots {
	var s Snapshots
	if m.printer != nil {
		ps := m.printer.Snapshot()
		s.Printer = &ps
	}
	if m.deposit != nil {
		ds := m.deposit.Snapshot()
		s.Deposit = &ds
	}
	if m.dispenser != nil {
		xs := m.dispenser.Snapshot()
		s.Dispenser = &xs
	}
	return s
}

// Events 订阅设备事件
func (m *Manager) Events(buffer int) (<-chan Event, func()) {
	return m.events.Subscribe(buffer)
}
