package models

import (
	"time"

	"gorm.io/gorm"
)

// 账本条目类型
const (
	LedgerKindDeposit   = "deposit"
	LedgerKindReturned  = "returned"
	LedgerKindDispensed = "dispensed"
	LedgerKindResync    = "resync"
	LedgerKindCleared   = "cleared"
)

// LedgerEntry 会话账本条目，金额为面额整数
type LedgerEntry struct {
	BaseModel
	SessionID string `gorm:"type:varchar(64);index;not null" json:"session_id"`
	Device    string `gorm:"type:varchar(20);index;not null" json:"device"`
	Kind      string `gorm:"type:varchar(20);index;not null" json:"kind"`
	Amount    int64  `gorm:"not null;default:0" json:"amount"`
	Total     int64  `gorm:"not null;default:0" json:"total"` // 变动后设备侧累计
}

// TableName 指定表名
func (LedgerEntry) TableName() string {
	return "ledger_entries"
}

// BeforeCreate 创建前的钩子
func (e *LedgerEntry) BeforeCreate(tx *gorm.DB) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	return nil
}

// LedgerTotals 账本汇总
type LedgerTotals struct {
	SessionID string `json:"session_id"`
	Deposited int64  `json:"deposited"`
	Returned  int64  `json:"returned"`
	Dispensed int64  `json:"dispensed"`
	Entries   int64  `json:"entries"`
}

// Net 净入钞
func (t LedgerTotals) Net() int64 {
	return t.Deposited - t.Dispensed
}
