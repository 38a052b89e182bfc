package repository

import (
	"context"
	"time"

	"github.com/wfunc/kiosk-devices/internal/models"
	"gorm.io/gorm"
)

type frameLogRepo struct {
	db *gorm.DB
}

// NewFrameLogRepository 创建帧日志仓储
func NewFrameLogRepository(db *gorm.DB) FrameLogRepository {
	return &frameLogRepo{db: db}
}

// CreateBatch 批量写入
func (r *frameLogRepo) CreateBatch(ctx context.Context, logs []*models.FrameLog) error {
	if len(logs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(logs, 100).Error
}

// Query 条件查询，返回当前页和总数
func (r *frameLogRepo) Query(ctx context.Context, query *models.FrameLogQuery) ([]*models.FrameLog, int64, error) {
	db := r.db.WithContext(ctx).Model(&models.FrameLog{})

	if query.Device != "" {
		db = db.Where("device = ?", query.Device)
	}
	if query.Direction != "" {
		db = db.Where("direction = ?", query.Direction)
	}
	if query.SessionID != "" {
		db = db.Where("session_id = ?", query.SessionID)
	}
	if query.StartTime != nil {
		db = db.Where("created_at >= ?", *query.StartTime)
	}
	if query.EndTime != nil {
		db = db.Where("created_at <= ?", *query.EndTime)
	}

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	db = db.Order("id DESC")
	if query.Limit > 0 {
		db = db.Limit(query.Limit)
	}
	if query.Offset > 0 {
		db = db.Offset(query.Offset)
	}

	var logs []*models.FrameLog
	if err := db.Find(&logs).Error; err != nil {
		return nil, 0, err
	}
	return logs, total, nil
}

// Latest 最新的若干帧，device 为空时不过滤
func (r *frameLogRepo) Latest(ctx context.Context, limit int, device string) ([]*models.FrameLog, error) {
	logs, _, err := r.Query(ctx, &models.FrameLogQuery{Device: device, Limit: limit})
	return logs, err
}

// Stats 统计信息
func (r *frameLogRepo) Stats(ctx context.Context) (*models.FrameLogStats, error) {
	stats := &models.FrameLogStats{ByDevice: make(map[string]int64)}
	db := r.db.WithContext(ctx)

	if err := db.Model(&models.FrameLog{}).Count(&stats.TotalCount).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.FrameLog{}).
		Where("direction = ?", models.DirectionSend).
		Count(&stats.TotalSend).Error; err != nil {
		return nil, err
	}
	stats.TotalReceive = stats.TotalCount - stats.TotalSend

	var bytesTotal struct{ Total int64 }
	if err := db.Model(&models.FrameLog{}).
		Select("COALESCE(SUM(bytes_count), 0) AS total").
		Scan(&bytesTotal).Error; err != nil {
		return nil, err
	}
	stats.TotalBytes = bytesTotal.Total

	var rows []struct {
		Device string
		Count  int64
	}
	if err := db.Model(&models.FrameLog{}).
		Select("device, COUNT(*) AS count").
		Group("device").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		stats.ByDevice[row.Device] = row.Count
	}
	return stats, nil
}

// DeleteBefore 删除早于指定时间的帧
func (r *frameLogRepo) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Where("created_at < ?", before).Delete(&models.FrameLog{})
	return result.RowsAffected, result.Error
}
