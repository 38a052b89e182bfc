package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/wfunc/kiosk-devices/internal/errors"
	"github.com/wfunc/kiosk-devices/internal/hardware"
	"github.com/wfunc/kiosk-devices/internal/models"
	"github.com/wfunc/kiosk-devices/internal/repository"
	"go.uber.org/zap"
)

// FrameLogOption 帧日志服务选项
type FrameLogOption func(*FrameLogService)

// WithBatchSize 缓冲达到 n 条时立即写入
func WithBatchSize(n int) FrameLogOption {
	return func(s *FrameLogService) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithFlushInterval 定时写入间隔
func WithFlushInterval(d time.Duration) FrameLogOption {
	return func(s *FrameLogService) {
		if d > 0 {
			s.flushInterval = d
		}
	}
}

// FrameLogService 串口帧日志服务，实现 hardware.FrameRecorder
//
// RecordFrame 在读循环中调用，只做非阻塞入队；写库由后台协程批量完成。
type FrameLogService struct {
	repo          repository.FrameLogRepository
	logger        *zap.Logger
	batchSize     int
	flushInterval time.Duration

	buffer    []*models.FrameLog
	bufferCh  chan *models.FrameLog
	flushReq  chan chan struct{}
	stopCh    chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	sessionID string
}

// NewFrameLogService 创建帧日志服务并启动后台写入协程
func NewFrameLogService(repo repository.FrameLogRepository, log *zap.Logger, opts ...FrameLogOption) *FrameLogService {
	s := &FrameLogService{
		repo:          repo,
		logger:        log.Named("frames"),
		batchSize:     100,
		flushInterval: 5 * time.Second,
		bufferCh:      make(chan *models.FrameLog, 1000),
		flushReq:      make(chan chan struct{}),
		stopCh:        make(chan struct{}),
		done:          make(chan struct{}),
		sessionID:     uuid.New().String(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.buffer = make([]*models.FrameLog, 0, s.batchSize)

	go s.backgroundWriter()
	return s
}

// SessionID 当前会话 ID
func (s *FrameLogService) SessionID() string {
	return s.sessionID
}

func (s *FrameLogService) backgroundWriter() {
	defer close(s.done)
	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case f := <-s.bufferCh:
			s.buffer = append(s.buffer, f)
			if len(s.buffer) >= s.batchSize {
				s.flushBuffer()
			}

		case <-ticker.C:
			s.flushBuffer()

		case ack := <-s.flushReq:
			s.drain()
			s.flushBuffer()
			close(ack)

		case <-s.stopCh:
			// 退出前写入剩余的帧
			s.drain()
			s.flushBuffer()
			return
		}
	}
}

func (s *FrameLogService) drain() {
	for {
		select {
		case f := <-s.bufferCh:
			s.buffer = append(s.buffer, f)
		default:
			return
		}
	}
}

func (s *FrameLogService) flushBuffer() {
	if len(s.buffer) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.repo.CreateBatch(ctx, s.buffer); err != nil {
		s.logger.Error("批量写入帧日志失败", zap.Int("count", len(s.buffer)), zap.Error(err))
	} else {
		s.logger.Debug("批量写入帧日志成功", zap.Int("count", len(s.buffer)))
	}

	s.buffer = make([]*models.FrameLog, 0, s.batchSize)
}

// RecordFrame 记录一帧，缓冲区满时丢弃
func (s *FrameLogService) RecordFrame(device hardware.DeviceKind, direction string, frame []byte) {
	now := time.Now()
	entry := &models.FrameLog{
		Device:     string(device),
		Direction:  direction,
		HexData:    hardware.EncodeHex(frame),
		BytesCount: len(frame),
		SessionID:  s.sessionID,
		Timestamp:  now.UnixMilli(),
	}
	entry.CreatedAt = now

	select {
	case <-s.stopCh:
		return
	default:
	}
	select {
	case s.bufferCh <- entry:
	default:
		s.logger.Warn("帧日志缓冲区满，丢弃帧", zap.String("device", string(device)))
	}
}

// Flush 立即写入已入队的帧
func (s *FrameLogService) Flush() {
	ack := make(chan struct{})
	select {
	case s.flushReq <- ack:
		<-ack
	case <-s.done:
	}
}

// Latest 最近的帧，device 为空时不过滤
func (s *FrameLogService) Latest(ctx context.Context, limit int, device string) ([]*models.FrameLog, error) {
	s.Flush()
	logs, err := s.repo.Latest(ctx, limit, device)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrDatabaseQuery)
	}
	return logs, nil
}

// Query 条件查询
func (s *FrameLogService) Query(ctx context.Context, query *models.FrameLogQuery) ([]*models.FrameLog, int64, error) {
	s.Flush()
	logs, total, err := s.repo.Query(ctx, query)
	if err != nil {
		return nil, 0, apperrors.Wrap(err, apperrors.ErrDatabaseQuery)
	}
	return logs, total, nil
}

// Stats 统计信息
func (s *FrameLogService) Stats(ctx context.Context) (*models.FrameLogStats, error) {
	s.Flush()
	stats, err := s.repo.Stats(ctx)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrDatabaseQuery)
	}
	return stats, nil
}

// Cleanup 删除早于 retention 的帧
func (s *FrameLogService) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	s.Flush()
	n, err := s.repo.DeleteBefore(ctx, time.Now().Add(-retention))
	if err != nil {
		return 0, apperrors.Wrap(err, apperrors.ErrDatabaseQuery)
	}
	return n, nil
}

// Close 停止后台协程并写入剩余的帧
func (s *FrameLogService) Close() {
	s.closeOnce.Do(func() {
		close(s.stopCh)
		<-s.done
	})
}
