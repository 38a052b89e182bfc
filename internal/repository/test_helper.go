package repository

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wfunc/kiosk-devices/internal/config"
	"github.com/wfunc/kiosk-devices/internal/database"
	"gorm.io/gorm"
)

// SetupTestDB 每个测试一个独立的内存库
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Open(&config.LedgerConfig{LogLevel: "silent"})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}
