package hardware

import (
	"fmt"
	"time"

	apperrors "github.com/wfunc/kiosk-devices/internal/errors"
)

// DeviceKind 设备型号
type DeviceKind string

const (
	DeviceTGP58  DeviceKind = "tgp58"  // 热敏票据打印机
	DeviceESCPOS DeviceKind = "escpos" // ESC/POS兼容打印机
	DeviceTP70   DeviceKind = "tp70"   // 纸币接收器
	DeviceXC100  DeviceKind = "xc100"  // 出钞机
)

// Parity 校验位
type Parity string

const (
	ParityNone Parity = "none"
	ParityEven Parity = "even"
)

// FlowControl 流控
type FlowControl string

const FlowNone FlowControl = "none"

// DefaultReadTimeout 读超时，读循环借此定期检查关闭信号
const DefaultReadTimeout = 100 * time.Millisecond

// LineConfig 串口线路参数
type LineConfig struct {
	Device      DeviceKind
	Port        string
	BaudRate    int
	DataBits    int
	StopBits    int
	Parity      Parity
	FlowControl FlowControl
	ReadTimeout time.Duration
}

func (c LineConfig) String() string {
	p := "N"
	if c.Parity == ParityEven {
		p = "E"
	}
	return fmt.Sprintf("%s@%d %d%s%d", c.Port, c.BaudRate, c.DataBits, p, c.StopBits)
}

// lineTable 每种设备固定的线路参数，不协商
var lineTable = map[DeviceKind]LineConfig{
	DeviceTGP58:  {BaudRate: 38400, DataBits: 8, StopBits: 1, Parity: ParityNone, FlowControl: FlowNone},
	DeviceESCPOS: {BaudRate: 9600, DataBits: 8, StopBits: 1, Parity: ParityNone, FlowControl: FlowNone},
	DeviceTP70:   {BaudRate: 9600, DataBits: 8, StopBits: 1, Parity: ParityEven, FlowControl: FlowNone},
	DeviceXC100:  {BaudRate: 9600, DataBits: 8, StopBits: 1, Parity: ParityNone, FlowControl: FlowNone},
}

// LineConfigFor 返回设备在指定端口上的线路参数
func LineConfigFor(kind DeviceKind, port string) (LineConfig, error) {
	cfg, ok := lineTable[kind]
	if !ok {
		return LineConfig{}, fmt.Errorf("unknown device kind %q", kind)
	}
	cfg.Device = kind
	cfg.Port = port
	cfg.ReadTimeout = DefaultReadTimeout
	return cfg, nil
}

// ConnStatus 连接状态
type ConnStatus int

const (
	StatusDisconnected ConnStatus = iota
	StatusConnecting
	StatusConnected
	StatusFaulted
)

func (s ConnStatus) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusFaulted:
		return "faulted"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// MarshalText 以字符串形式输出到JSON
func (s ConnStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText 解析 String 的输出
func (s *ConnStatus) UnmarshalText(text []byte) error {
	return unmarshalEnum(s, text, StatusFaulted, "connection status")
}

// textEnum 以字符串形式序列化的枚举
type textEnum interface {
	~int
	String() string
}

// unmarshalEnum 在 [0, last] 中查找 String() 与 text 相同的值
func unmarshalEnum[T textEnum](dst *T, text []byte, last T, name string) error {
	for v := T(0); v <= last; v++ {
		if v.String() == string(text) {
			*dst = v
			return nil
		}
	}
	return apperrors.Newf(apperrors.ErrInvalidParam, "unknown %s %q", name, text)
}

// StatusChange 连接状态变更事件
type StatusChange struct {
	Device DeviceKind `json:"device"`
	Status ConnStatus `json:"status"`
	Err    error      `json:"-"`
	At     time.Time  `json:"at"`
}
