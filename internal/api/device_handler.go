package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wfunc/kiosk-devices/internal/hardware"
)

// Devices 控制面需要的设备管理能力，由 hardware.Manager 实现
type Devices interface {
	IsRunning() bool
	Uptime() time.Duration
	Snapshots() hardware.Snapshots
	Open(role string) error
	Close(role string) error
	Session(role string) (*hardware.Session, error)
	Printer() (*hardware.Printer, error)
	Deposit() (*hardware.DepositAcceptor, error)
	Dispenser() (*hardware.Dispenser, error)
}

// DeviceHandler 设备连接与诊断
type DeviceHandler struct {
	devices Devices
}

// NewDeviceHandler 创建设备处理器
func NewDeviceHandler(devices Devices) *DeviceHandler {
	return &DeviceHandler{devices: devices}
}

// DevicesResponse 设备总览
type DevicesResponse struct {
	Running bool               `json:"running"`
	Uptime  string             `json:"uptime"`
	Devices hardware.Snapshots `json:"devices"`
}

// InboundResponse 接收缓冲，新数据在前
type InboundResponse struct {
	Device string   `json:"device"`
	Length int      `json:"length"`
	Hex    []string `json:"hex"`
}

// List 全部设备状态
func (h *DeviceHandler) List(c *gin.Context) {
	respond(c, DevicesResponse{
		Running: h.devices.IsRunning(),
		Uptime:  h.devices.Uptime().Truncate(time.Second).String(),
		Devices: h.devices.Snapshots(),
	})
}

// Open 打开设备
func (h *DeviceHandler) Open(c *gin.Context) {
	if err := h.devices.Open(c.Param("device")); err != nil {
		fail(c, err)
		return
	}
	respondMessage(c, "设备已打开")
}

// Close 关闭设备
func (h *DeviceHandler) Close(c *gin.Context) {
	if err := h.devices.Close(c.Param("device")); err != nil {
		fail(c, err)
		return
	}
	respondMessage(c, "设备已关闭")
}

// Inbound 查看接收缓冲
func (h *DeviceHandler) Inbound(c *gin.Context) {
	device := c.Param("device")
	s, err := h.devices.Session(device)
	if err != nil {
		fail(c, err)
		return
	}
	buf := s.Inbound()
	respond(c, InboundResponse{Device: device, Length: buf.Len(), Hex: buf.Hex()})
}

// ClearInbound 清空接收缓冲
func (h *DeviceHandler) ClearInbound(c *gin.Context) {
	s, err := h.devices.Session(c.Param("device"))
	if err != nil {
		fail(c, err)
		return
	}
	s.Inbound().Clear()
	respondMessage(c, "接收缓冲已清空")
}
