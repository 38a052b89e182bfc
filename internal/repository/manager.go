package repository

import (
	"context"
	"sync"

	"gorm.io/gorm"
)

// Manager 仓储管理器，提供所有仓储的统一访问接口
type Manager struct {
	db *gorm.DB

	ledgerOnce sync.Once
	ledger     LedgerRepository

	frameLogOnce sync.Once
	frameLog     FrameLogRepository
}

// NewManager 创建仓储管理器
func NewManager(db *gorm.DB) *Manager {
	return &Manager{db: db}
}

// GetDB 获取数据库实例
func (m *Manager) GetDB() *gorm.DB {
	return m.db
}

// Ledger 账本仓储
func (m *Manager) Ledger() LedgerRepository {
	m.ledgerOnce.Do(func() {
		m.ledger = NewLedgerRepository(m.db)
	})
	return m.ledger
}

// FrameLog 帧日志仓储
func (m *Manager) FrameLog() FrameLogRepository {
	m.frameLogOnce.Do(func() {
		m.frameLog = NewFrameLogRepository(m.db)
	})
	return m.frameLog
}

// Transaction 在事务中执行，fn 收到绑定事务的仓储管理器
func (m *Manager) Transaction(ctx context.Context, fn func(tx *Manager) error) error {
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewManager(tx))
	})
}
