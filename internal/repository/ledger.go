package repository

import (
	"context"

	"github.com/wfunc/kiosk-devices/internal/models"
	"gorm.io/gorm"
)

type ledgerRepo struct {
	db *gorm.DB
}

// NewLedgerRepository 创建账本仓储
func NewLedgerRepository(db *gorm.DB) LedgerRepository {
	return &ledgerRepo{db: db}
}

func (r *ledgerRepo) Create(ctx context.Context, entry *models.LedgerEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

// List 按时间倒序；sessionID 为空时不过滤
func (r *ledgerRepo) List(ctx context.Context, sessionID string, p *Pagination) ([]*models.LedgerEntry, error) {
	db := r.db.WithContext(ctx).Model(&models.LedgerEntry{})
	if sessionID != "" {
		db = db.Where("session_id = ?", sessionID)
	}
	if p != nil {
		if err := db.Count(&p.Total).Error; err != nil {
			return nil, err
		}
		db = db.Scopes(Paginate(p))
	}

	var entries []*models.LedgerEntry
	err := db.Order("id DESC").Find(&entries).Error
	return entries, err
}

// Totals 按条目类型汇总金额
func (r *ledgerRepo) Totals(ctx context.Context, sessionID string) (*models.LedgerTotals, error) {
	type kindSum struct {
		Kind  string
		Sum   int64
		Count int64
	}
	var rows []kindSum

	db := r.db.WithContext(ctx).Model(&models.LedgerEntry{})
	if sessionID != "" {
		db = db.Where("session_id = ?", sessionID)
	}
	err := db.Select("kind, SUM(amount) AS sum, COUNT(*) AS count").
		Group("kind").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	totals := &models.LedgerTotals{SessionID: sessionID}
	for _, row := range rows {
		totals.Entries += row.Count
		switch row.Kind {
		case models.LedgerKindDeposit:
			totals.Deposited = row.Sum
		case models.LedgerKindReturned:
			totals.Returned = row.Sum
		case models.LedgerKindDispensed:
			totals.Dispensed = row.Sum
		}
	}
	return totals, nil
}
