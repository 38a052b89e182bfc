package database

import (
	"fmt"

	"github.com/wfunc/kiosk-devices/internal/logger"
	"github.com/wfunc/kiosk-devices/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// migrationModels 账本库的全部表
var migrationModels = []interface{}{
	&models.LedgerEntry{},
	&models.FrameLog{},
}

// AutoMigrate 自动迁移表结构
func AutoMigrate(db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("数据库未初始化")
	}
	for _, model := range migrationModels {
		if err := db.AutoMigrate(model); err != nil {
			return fmt.Errorf("迁移 %T 失败: %w", model, err)
		}
	}
	logger.Debug("数据库迁移完成", zap.Int("tables", len(migrationModels)))
	return nil
}

// DropAllTables 删除全部表
func DropAllTables(db *gorm.DB) error {
	for i := len(migrationModels) - 1; i >= 0; i-- {
		if err := db.Migrator().DropTable(migrationModels[i]); err != nil {
			return fmt.Errorf("删除表失败: %w", err)
		}
	}
	return nil
}
