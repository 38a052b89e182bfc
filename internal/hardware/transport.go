package hardware

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/tarm/serial"
	apperrors "github.com/wfunc/kiosk-devices/internal/errors"
	bugst "go.bug.st/serial"
)

// Port 已打开的串口句柄。
// Read 在读超时到期时应返回 (0, nil)，io.EOF 表示对端关闭。
type Port interface {
	io.ReadWriteCloser
}

// Opener 按线路参数打开串口
type Opener interface {
	Open(cfg LineConfig) (Port, error)
}

// OpenerFunc 函数适配器
type OpenerFunc func(cfg LineConfig) (Port, error)

// Open 实现 Opener
func (f OpenerFunc) Open(cfg LineConfig) (Port, error) { return f(cfg) }

// 串口驱动
const (
	DriverTarm  = "tarm"
	DriverBugst = "bugst"
	DriverSim   = "sim"
)

// NewOpener 根据驱动名选择串口实现
func NewOpener(driver string) (Opener, error) {
	switch strings.ToLower(driver) {
	case "", DriverTarm:
		return tarmOpener{}, nil
	case DriverBugst:
		return bugstOpener{}, nil
	case DriverSim:
		return NewSimulator(), nil
	default:
		return nil, apperrors.Newf(apperrors.ErrInvalidParam, "unknown serial driver %q", driver)
	}
}

// PortExists 检查串口设备节点是否存在
func PortExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

type tarmOpener struct{}

func (tarmOpener) Open(cfg LineConfig) (Port, error) {
	if cfg.Port == "" {
		return nil, apperrors.New(apperrors.ErrTransportUnavailable, "empty port name")
	}

	serialCfg := &serial.Config{
		Name:        cfg.Port,
		Baud:        cfg.BaudRate,
		Size:        byte(cfg.DataBits),
		ReadTimeout: cfg.ReadTimeout,
	}
	switch cfg.Parity {
	case ParityEven:
		serialCfg.Parity = serial.ParityEven
	default:
		serialCfg.Parity = serial.ParityNone
	}
	switch cfg.StopBits {
	case 2:
		serialCfg.StopBits = serial.Stop2
	default:
		serialCfg.StopBits = serial.Stop1
	}

	p, err := serial.OpenPort(serialCfg)
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.ErrTransportUnavailable, "open %s", cfg)
	}
	return &tarmPort{p: p}, nil
}

// tarmPort tarm 在 VTIME 超时后返回 io.EOF，这里转换成 (0, nil)
type tarmPort struct {
	p *serial.Port
}

func (t *tarmPort) Read(b []byte) (int, error) {
	n, err := t.p.Read(b)
	if errors.Is(err, io.EOF) {
		return n, nil
	}
	return n, err
}

func (t *tarmPort) Write(b []byte) (int, error) { return t.p.Write(b) }

func (t *tarmPort) Close() error { return t.p.Close() }

type bugstOpener struct{}

func (bugstOpener) Open(cfg LineConfig) (Port, error) {
	if cfg.Port == "" {
		return nil, apperrors.New(apperrors.ErrTransportUnavailable, "empty port name")
	}

	mode := &bugst.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: cfg.DataBits,
		Parity:   bugst.NoParity,
		StopBits: bugst.OneStopBit,
	}
	if cfg.Parity == ParityEven {
		mode.Parity = bugst.EvenParity
	}
	if cfg.StopBits == 2 {
		mode.StopBits = bugst.TwoStopBits
	}

	p, err := bugst.Open(cfg.Port, mode)
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.ErrTransportUnavailable, "open %s", cfg)
	}
	if cfg.ReadTimeout > 0 {
		if err := p.SetReadTimeout(cfg.ReadTimeout); err != nil {
			p.Close()
			return nil, apperrors.Wrapf(err, apperrors.ErrTransportUnavailable, "set read timeout on %s", cfg.Port)
		}
	}
	return p, nil
}

func describeOpenFailure(cfg LineConfig, err error) string {
	if !PortExists(cfg.Port) {
		return fmt.Sprintf("%s: device node not found", cfg.Port)
	}
	return fmt.Sprintf("%s: %v", cfg.Port, err)
}
