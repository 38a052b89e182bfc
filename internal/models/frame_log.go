package models

import (
	"time"

	"gorm.io/gorm"
)

// 帧方向
const (
	DirectionSend    = "tx"
	DirectionReceive = "rx"
)

// FrameLog 串口收发的一帧
type FrameLog struct {
	BaseModel

	Device     string `gorm:"type:varchar(20);index:idx_frame_device_time,priority:1;not null" json:"device"` // tgp58/escpos/tp70/xc100
	Direction  string `gorm:"type:varchar(4);index;not null" json:"direction"`                               // tx/rx
	HexData    string `gorm:"type:text" json:"hex_data"`
	BytesCount int    `gorm:"default:0" json:"bytes_count"`
	SessionID  string `gorm:"type:varchar(64);index" json:"session_id"`
	Timestamp  int64  `gorm:"index:idx_frame_device_time,priority:2" json:"timestamp"` // Unix毫秒
}

// TableName 指定表名
func (FrameLog) TableName() string {
	return "frame_logs"
}

// BeforeCreate 创建前的钩子
func (f *FrameLog) BeforeCreate(tx *gorm.DB) error {
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now()
	}
	if f.Timestamp == 0 {
		f.Timestamp = f.CreatedAt.UnixMilli()
	}
	return nil
}

// FrameLogQuery 查询参数
type FrameLogQuery struct {
	Device    string     `json:"device,omitempty"`
	Direction string     `json:"direction,omitempty"`
	SessionID string     `json:"session_id,omitempty"`
	StartTime *time.Time `json:"start_time,omitempty"`
	EndTime   *time.Time `json:"end_time,omitempty"`
	Limit     int        `json:"limit,omitempty"`
	Offset    int        `json:"offset,omitempty"`
}

// FrameLogStats 统计信息
type FrameLogStats struct {
	TotalCount   int64            `json:"total_count"`
	TotalSend    int64            `json:"total_send"`
	TotalReceive int64            `json:"total_receive"`
	TotalBytes   int64            `json:"total_bytes"`
	ByDevice     map[string]int64 `json:"by_device"`
}
