package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/wfunc/kiosk-devices/internal/errors"
	"github.com/wfunc/kiosk-devices/internal/hardware"
	"github.com/wfunc/kiosk-devices/internal/logger"
	"github.com/wfunc/kiosk-devices/internal/models"
	"github.com/wfunc/kiosk-devices/internal/repository"
	"go.uber.org/zap"
)

const ledgerWriteTimeout = 2 * time.Second

// LedgerService 会话账本，实现 hardware.Ledger
//
// 每次进程启动生成一个新的会话 ID，账本只存在于内存数据库中。
// Record 只入队不阻塞，后台协程按顺序写库；查询前先写完队列。
type LedgerService struct {
	repo      repository.LedgerRepository
	logger    *zap.Logger
	sessionID string

	mu        sync.Mutex
	queue     []*models.LedgerEntry
	wake      chan struct{}
	flushReq  chan chan struct{}
	stopCh    chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewLedgerService 创建账本服务并启动后台写入协程
func NewLedgerService(repo repository.LedgerRepository, log *zap.Logger) *LedgerService {
	s := &LedgerService{
		repo:      repo,
		logger:    log.Named("ledger"),
		sessionID: uuid.New().String(),
		wake:      make(chan struct{}, 1),
		flushReq:  make(chan chan struct{}),
		stopCh:    make(chan struct{}),
		done:      make(chan struct{}),
	}
	go s.backgroundWriter()
	return s
}

// SessionID 当前会话 ID
func (s *LedgerService) SessionID() string {
	return s.sessionID
}

// Record 登记一条金额变动，写库失败只记录日志
func (s *LedgerService) Record(entry hardware.LedgerEntry) {
	logger.LogLedgerEntry(string(entry.Device), string(entry.Kind), entry.Amount, entry.Total)

	s.mu.Lock()
	s.queue = append(s.queue, &models.LedgerEntry{
		SessionID: s.sessionID,
		Device:    string(entry.Device),
		Kind:      string(entry.Kind),
		Amount:    int64(entry.Amount),
		Total:     int64(entry.Total),
	})
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *LedgerService) backgroundWriter() {
	defer close(s.done)
	for {
		select {
		case <-s.wake:
			s.writeQueued()
		case ack := <-s.flushReq:
			s.writeQueued()
			close(ack)
		case <-s.stopCh:
			s.writeQueued()
			return
		}
	}
}

func (s *LedgerService) writeQueued() {
	s.mu.Lock()
	entries := s.queue
	s.queue = nil
	s.mu.Unlock()

	for _, e := range entries {
		ctx, cancel := context.WithTimeout(context.Background(), ledgerWriteTimeout)
		err := s.repo.Create(ctx, e)
		cancel()
		if err != nil {
			s.logger.Error("写入账本失败",
				zap.String("device", e.Device),
				zap.String("kind", e.Kind),
				zap.Int64("amount", e.Amount),
				zap.Error(err))
		}
	}
}

// Flush 等待已登记的条目写入
func (s *LedgerService) Flush() {
	ack := make(chan struct{})
	select {
	case s.flushReq <- ack:
		<-ack
	case <-s.done:
	}
}

// Close 写完队列并停止后台协程
func (s *LedgerService) Close() {
	s.closeOnce.Do(func() {
		close(s.stopCh)
	})
	<-s.done
}

// Entries 最近的账本条目，新条目在前
func (s *LedgerService) Entries(ctx context.Context, limit int) ([]*models.LedgerEntry, error) {
	s.Flush()
	entries, err := s.repo.List(ctx, s.sessionID, repository.NewPagination(1, limit))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrDatabaseQuery)
	}
	return entries, nil
}

// List 分页查询本会话账本
func (s *LedgerService) List(ctx context.Context, page, pageSize int) ([]*models.LedgerEntry, *repository.Pagination, error) {
	s.Flush()
	p := repository.NewPagination(page, pageSize)
	entries, err := s.repo.List(ctx, s.sessionID, p)
	if err != nil {
		return nil, nil, apperrors.Wrap(err, apperrors.ErrDatabaseQuery)
	}
	return entries, p, nil
}

// Totals 本会话汇总
func (s *LedgerService) Totals(ctx context.Context) (*models.LedgerTotals, error) {
	s.Flush()
	totals, err := s.repo.Totals(ctx, s.sessionID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrDatabaseQuery)
	}
	return totals, nil
}
