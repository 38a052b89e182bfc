package api

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	apperrors "github.com/wfunc/kiosk-devices/internal/errors"
	"github.com/wfunc/kiosk-devices/internal/models"
)

// LedgerReader 会话账本查询
type LedgerReader interface {
	SessionID() string
	Entries(ctx context.Context, limit int) ([]*models.LedgerEntry, error)
	Totals(ctx context.Context) (*models.LedgerTotals, error)
}

// FrameReader 帧日志查询
type FrameReader interface {
	Latest(ctx context.Context, limit int, device string) ([]*models.FrameLog, error)
	Stats(ctx context.Context) (*models.FrameLogStats, error)
	Query(ctx context.Context, query *models.FrameLogQuery) ([]*models.FrameLog, int64, error)
	Cleanup(ctx context.Context, retention time.Duration) (int64, error)
}

// LedgerHandler 账本与帧日志接口
type LedgerHandler struct {
	ledger LedgerReader
	frames FrameReader
}

// NewLedgerHandler 创建账本处理器，未启用的部分传 nil
func NewLedgerHandler(ledger LedgerReader, frames FrameReader) *LedgerHandler {
	return &LedgerHandler{ledger: ledger, frames: frames}
}

// LedgerResponse 账本查询结果
type LedgerResponse struct {
	SessionID string                `json:"session_id"`
	Totals    *models.LedgerTotals  `json:"totals"`
	Net       int64                 `json:"net"`
	Entries   []*models.LedgerEntry `json:"entries"`
}

// FramesResponse 帧日志查询结果
type FramesResponse struct {
	Frames []*models.FrameLog    `json:"frames"`
	Stats  *models.FrameLogStats `json:"stats"`
}

// FrameSearchResponse 帧日志条件查询结果
type FrameSearchResponse struct {
	Frames []*models.FrameLog `json:"frames"`
	Total  int64              `json:"total"`
}

// CleanupResponse 帧日志清理结果
type CleanupResponse struct {
	Deleted int64 `json:"deleted"`
}

// Ledger 本会话账本
func (h *LedgerHandler) Ledger(c *gin.Context) {
	if h.ledger == nil {
		fail(c, apperrors.New(apperrors.ErrNotFound, "账本未启用"))
		return
	}
	ctx := c.Request.Context()
	entries, err := h.ledger.Entries(ctx, queryInt(c, "limit", 50))
	if err != nil {
		fail(c, err)
		return
	}
	totals, err := h.ledger.Totals(ctx)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, LedgerResponse{
		SessionID: h.ledger.SessionID(),
		Totals:    totals,
		Net:       totals.Net(),
		Entries:   entries,
	})
}

// Frames 最近的串口帧
func (h *LedgerHandler) Frames(c *gin.Context) {
	if h.frames == nil {
		fail(c, apperrors.New(apperrors.ErrNotFound, "帧日志未启用"))
		return
	}
	ctx := c.Request.Context()
	frames, err := h.frames.Latest(ctx, queryInt(c, "limit", 100), c.Query("device"))
	if err != nil {
		fail(c, err)
		return
	}
	stats, err := h.frames.Stats(ctx)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, FramesResponse{Frames: frames, Stats: stats})
}

// SearchFrames 按设备、方向、会话分页查询帧日志
func (h *LedgerHandler) SearchFrames(c *gin.Context) {
	if h.frames == nil {
		fail(c, apperrors.New(apperrors.ErrNotFound, "帧日志未启用"))
		return
	}
	query := &models.FrameLogQuery{
		Device:    c.Query("device"),
		Direction: c.Query("direction"),
		SessionID: c.Query("session_id"),
		Limit:     queryInt(c, "limit", 100),
		Offset:    queryInt(c, "offset", 0),
	}
	switch query.Direction {
	case "", models.DirectionSend, models.DirectionReceive:
	default:
		fail(c, apperrors.Newf(apperrors.ErrInvalidParam, "未知方向 %q", query.Direction))
		return
	}
	frames, total, err := h.frames.Query(c.Request.Context(), query)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, FrameSearchResponse{Frames: frames, Total: total})
}

// CleanupFrames 删除早于 older_than 的帧日志，如 older_than=24h
func (h *LedgerHandler) CleanupFrames(c *gin.Context) {
	if h.frames == nil {
		fail(c, apperrors.New(apperrors.ErrNotFound, "帧日志未启用"))
		return
	}
	retention, err := time.ParseDuration(c.Query("older_than"))
	if err != nil {
		badRequest(c, err)
		return
	}
	n, err := h.frames.Cleanup(c.Request.Context(), retention)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, CleanupResponse{Deleted: n})
}
