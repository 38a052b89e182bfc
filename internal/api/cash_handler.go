package api

import (
	"github.com/gin-gonic/gin"
	"github.com/wfunc/kiosk-devices/internal/hardware"
)

// DepositHandler 纸币接收器接口
type DepositHandler struct {
	devices Devices
}

// NewDepositHandler 创建纸币接收器处理器
func NewDepositHandler(devices Devices) *DepositHandler {
	return &DepositHandler{devices: devices}
}

func (h *DepositHandler) with(c *gin.Context, op func(d *hardware.DepositAcceptor) error) {
	d, err := h.devices.Deposit()
	if err != nil {
		fail(c, err)
		return
	}
	if err := op(d); err != nil {
		fail(c, err)
		return
	}
	respond(c, d.Snapshot())
}

// Get 纸币接收器状态
func (h *DepositHandler) Get(c *gin.Context) {
	h.with(c, func(*hardware.DepositAcceptor) error { return nil })
}

// Confirm 确认暂存的纸币
func (h *DepositHandler) Confirm(c *gin.Context) {
	h.with(c, (*hardware.DepositAcceptor).ConfirmDeposit)
}

// Cancel 退回暂存的纸币
func (h *DepositHandler) Cancel(c *gin.Context) {
	h.with(c, (*hardware.DepositAcceptor).CancelDeposit)
}

// Close 停止收钞
func (h *DepositHandler) Close(c *gin.Context) {
	h.with(c, (*hardware.DepositAcceptor).Disable)
}

// Reopen 恢复收钞
func (h *DepositHandler) Reopen(c *gin.Context) {
	h.with(c, (*hardware.DepositAcceptor).Enable)
}

// DispenserHandler 出钞机接口
type DispenserHandler struct {
	devices Devices
}

// NewDispenserHandler 创建出钞机处理器
func NewDispenserHandler(devices Devices) *DispenserHandler {
	return &DispenserHandler{devices: devices}
}

// DispenseRequest 出钞请求
type DispenseRequest struct {
	Amount int `json:"amount" binding:"required"`
}

func (h *DispenserHandler) with(c *gin.Context, op func(d *hardware.Dispenser) error) {
	d, err := h.devices.Dispenser()
	if err != nil {
		fail(c, err)
		return
	}
	if err := op(d); err != nil {
		fail(c, err)
		return
	}
	respond(c, d.Snapshot())
}

// Get 出钞机状态
func (h *DispenserHandler) Get(c *gin.Context) {
	h.with(c, func(*hardware.Dispenser) error { return nil })
}

// Dispense 出钞，完成结果通过事件推送
func (h *DispenserHandler) Dispense(c *gin.Context) {
	var req DispenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	h.with(c, func(d *hardware.Dispenser) error { return d.Dispense(req.Amount) })
}

// Status 查询出钞机状态
func (h *DispenserHandler) Status(c *gin.Context) {
	h.with(c, (*hardware.Dispenser).RequestStatus)
}

// Count 查询累计出钞
func (h *DispenserHandler) Count(c *gin.Context) {
	h.with(c, (*hardware.Dispenser).RequestCount)
}

// Clear 清零累计出钞
func (h *DispenserHandler) Clear(c *gin.Context) {
	h.with(c, (*hardware.Dispenser).ClearCount)
}
