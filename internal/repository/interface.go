package repository

import (
	"context"
	"time"

	"github.com/wfunc/kiosk-devices/internal/models"
	"gorm.io/gorm"
)

// Pagination 分页参数
type Pagination struct {
	Page     int   `json:"page"`
	PageSize int   `json:"page_size"`
	Total    int64 `json:"total"`
}

// NewPagination 创建分页参数
func NewPagination(page, pageSize int) *Pagination {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 500 {
		pageSize = 500
	}
	return &Pagination{
		Page:     page,
		PageSize: pageSize,
	}
}

// Offset 计算偏移量
func (p *Pagination) Offset() int {
	return (p.Page - 1) * p.PageSize
}

// Paginate 分页查询
func Paginate(p *Pagination) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Offset(p.Offset()).Limit(p.PageSize)
	}
}

// LedgerRepository 账本仓储
type LedgerRepository interface {
	Create(ctx context.Context, entry *models.LedgerEntry) error
	List(ctx context.Context, sessionID string, p *Pagination) ([]*models.LedgerEntry, error)
	Totals(ctx context.Context, sessionID string) (*models.LedgerTotals, error)
}

// FrameLogRepository 帧日志仓储
type FrameLogRepository interface {
	CreateBatch(ctx context.Context, logs []*models.FrameLog) error
	Query(ctx context.Context, query *models.FrameLogQuery) ([]*models.FrameLog, int64, error)
	Latest(ctx context.Context, limit int, device string) ([]*models.FrameLog, error)
	Stats(ctx context.Context) (*models.FrameLogStats, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}
