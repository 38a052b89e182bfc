package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wfunc/kiosk-devices/internal/hardware"
)

// PrinterHandler 打印机接口
type PrinterHandler struct {
	devices Devices
}

// NewPrinterHandler 创建打印机处理器
func NewPrinterHandler(devices Devices) *PrinterHandler {
	return &PrinterHandler{devices: devices}
}

// PrintTextRequest 打印文字
type PrintTextRequest struct {
	Text string `json:"text" binding:"required"`
	Size int    `json:"size"` // 字号等级 1..6，缺省为 1
}

// VoucherRequest 打印凭条
type VoucherRequest struct {
	Title  string `json:"title" binding:"required"`
	Amount int    `json:"amount" binding:"required,min=1"`
}

// DateTimeRequest 设置时间，缺省为当前时间
type DateTimeRequest struct {
	Time *time.Time `json:"time"`
}

// withPrinter 取打印机并执行操作
func (h *PrinterHandler) withPrinter(c *gin.Context, message string, op func(p *hardware.Printer) error) {
	p, err := h.devices.Printer()
	if err != nil {
		fail(c, err)
		return
	}
	if err := op(p); err != nil {
		fail(c, err)
		return
	}
	respondMessage(c, message)
}

// Get 打印机状态
func (h *PrinterHandler) Get(c *gin.Context) {
	p, err := h.devices.Printer()
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, p.Snapshot())
}

// PrintText 打印文字
func (h *PrinterHandler) PrintText(c *gin.Context) {
	var req PrintTextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if req.Size == 0 {
		req.Size = 1
	}
	size, err := hardware.FontSizeFromLevel(req.Size)
	if err != nil {
		fail(c, err)
		return
	}
	h.withPrinter(c, "已发送", func(p *hardware.Printer) error {
		return p.PrintText(req.Text, size)
	})
}

// PrintPadded 上下留白打印
func (h *PrinterHandler) PrintPadded(c *gin.Context) {
	var req PrintTextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	h.withPrinter(c, "已发送", func(p *hardware.Printer) error {
		return p.PrintPadded(req.Text)
	})
}

// Cut 切纸
func (h *PrinterHandler) Cut(c *gin.Context) {
	h.withPrinter(c, "已切纸", (*hardware.Printer).Cut)
}

// Report 打印报表
func (h *PrinterHandler) Report(c *gin.Context) {
	h.withPrinter(c, "已发送", (*hardware.Printer).PrintReport)
}

// Status 查询状态，结果通过事件推送
func (h *PrinterHandler) Status(c *gin.Context) {
	h.withPrinter(c, "已查询", (*hardware.Printer).RequestStatus)
}

// Firmware 查询固件版本，应答经事件推送
func (h *PrinterHandler) Firmware(c *gin.Context) {
	h.withPrinter(c, "已查询", (*hardware.Printer).RequestFirmwareVersion)
}

// Voucher 打印凭条
func (h *PrinterHandler) Voucher(c *gin.Context) {
	var req VoucherRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	h.withPrinter(c, "凭条已发送", func(p *hardware.Printer) error {
		return p.PrintVoucher(req.Title, req.Amount)
	})
}

// DateTime 设置打印机时间
func (h *PrinterHandler) DateTime(c *gin.Context) {
	var req DateTimeRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}
	at := time.Now()
	if req.Time != nil {
		at = *req.Time
	}
	h.withPrinter(c, "时间已设置", func(p *hardware.Printer) error {
		return p.SetDateTime(at)
	})
}
