package hardware

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	apperrors "github.com/wfunc/kiosk-devices/internal/errors"
	"github.com/wfunc/kiosk-devices/internal/logger"
	"go.uber.org/zap"
)

// InboundCapacity 诊断缓冲区容量（字节数）
const InboundCapacity = 1000

// InboundBuffer 最近收到的字节，新的在前
type InboundBuffer struct {
	mu   sync.RWMutex
	cap  int
	data []byte
}

// NewInboundBuffer 创建诊断缓冲区
func NewInboundBuffer(capacity int) *InboundBuffer {
	if capacity <= 0 {
		capacity = InboundCapacity
	}
	return &InboundBuffer{cap: capacity}
}

// Push 把一块数据放到最前面，超出容量时丢弃最旧的字节
func (b *InboundBuffer) Push(chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(chunk) >= b.cap {
		b.data = append([]byte(nil), chunk[len(chunk)-b.cap:]...)
		return
	}

	keep := len(b.data)
	if keep > b.cap-len(chunk) {
		keep = b.cap - len(chunk)
	}
	next := make([]byte, 0, len(chunk)+keep)
	next = append(next, chunk...)
	next = append(next, b.data[:keep]...)
	b.data = next
}

// Bytes 缓冲区副本
func (b *InboundBuffer) Bytes() []byte {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]byte(nil), b.data...)
}

// Hex 缓冲区内容的十六进制表示
func (b *InboundBuffer) Hex() []string {
	return HexTokens(b.Bytes())
}

// Len 当前字节数
func (b *InboundBuffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.data)
}

// Clear 清空
func (b *InboundBuffer) Clear() {
	b.mu.Lock()
	b.data = nil
	b.mu.Unlock()
}

// DispatchFunc 处理读循环收到的一块数据
type DispatchFunc func(chunk []byte)

// Session 一个设备的串口会话：连接状态、读循环、写串行化
type Session struct {
	kind   DeviceKind
	line   LineConfig
	opener Opener
	opts   options
	logger *zap.Logger

	mu       sync.RWMutex
	status   ConnStatus
	port     Port
	lastErr  error
	stopCh   chan struct{}
	dispatch DispatchFunc

	writeMu sync.Mutex
	inbound *InboundBuffer
	changes *Broadcaster[StatusChange]
}

// NewSession 创建会话，dispatch 在读循环所在的分发协程中调用
func NewSession(kind DeviceKind, line LineConfig, opener Opener, dispatch DispatchFunc, opts ...Option) *Session {
	o := newOptions(opts)
	if o.readTimeout > 0 {
		line.ReadTimeout = o.readTimeout
	}
	if line.ReadTimeout <= 0 {
		line.ReadTimeout = DefaultReadTimeout
	}
	return &Session{
		kind:     kind,
		line:     line,
		opener:   opener,
		opts:     o,
		logger:   o.logger.With(zap.String("device", string(kind)), zap.String("port", line.Port)),
		status:   StatusDisconnected,
		dispatch: dispatch,
		inbound:  NewInboundBuffer(InboundCapacity),
		changes:  NewBroadcaster[StatusChange](),
	}
}

// Kind 设备型号
func (s *Session) Kind() DeviceKind { return s.kind }

// Line 线路参数
func (s *Session) Line() LineConfig { return s.line }

// Open 打开串口并启动读循环，已连接时直接返回
func (s *Session) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == StatusConnected {
		return nil
	}
	if s.opener == nil {
		return apperrors.New(apperrors.ErrTransportUnavailable, "no transport configured")
	}

	s.setStatusLocked(StatusConnecting, nil)

	port, err := s.opener.Open(s.line)
	if err != nil {
		err = apperrors.Wrap(err, apperrors.ErrTransportUnavailable, describeOpenFailure(s.line, err))
		s.setStatusLocked(StatusDisconnected, err)
		s.logger.Error("打开串口失败", zap.Error(err))
		return err
	}

	s.port = port
	s.stopCh = make(chan struct{})
	s.lastErr = nil
	s.setStatusLocked(StatusConnected, nil)

	chunks := make(chan []byte)
	handled := make(chan struct{})
	go s.readLoop(port, s.stopCh, chunks, handled)
	go s.dispatchLoop(s.stopCh, chunks, handled)

	s.logger.Info("串口已连接", zap.String("line", s.line.String()))
	return nil
}

// Close 关闭串口；挂起的读会因串口关闭或读超时而返回
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.port == nil {
		if s.status != StatusDisconnected {
			s.setStatusLocked(StatusDisconnected, nil)
		}
		return nil
	}

	close(s.stopCh)
	err := s.port.Close()
	s.port = nil
	s.lastErr = nil
	s.setStatusLocked(StatusDisconnected, nil)
	s.logger.Info("串口已关闭")

	if err != nil {
		return fmt.Errorf("close %s: %w", s.line.Port, err)
	}
	return nil
}

// Send 写一帧，未连接时返回 NotConnected
func (s *Session) Send(frame []byte) error {
	s.mu.RLock()
	status, port := s.status, s.port
	s.mu.RUnlock()

	if status != StatusConnected || port == nil {
		return apperrors.Newf(apperrors.ErrNotConnected, "%s is %s", s.kind, status)
	}

	s.writeMu.Lock()
	n, err := port.Write(frame)
	s.writeMu.Unlock()

	if err != nil {
		s.logger.Error("写串口失败", zap.String("hex", fmt.Sprintf("% X", frame)), zap.Error(err))
		return apperrors.Wrapf(err, apperrors.ErrSerialPortWrite, "%s write", s.kind)
	}
	if n != len(frame) {
		return apperrors.Newf(apperrors.ErrSerialPortWrite, "incomplete write: %d/%d", n, len(frame))
	}

	logger.LogSerialFrame(string(s.kind), DirectionTX, frame)
	if s.opts.recorder != nil {
		s.opts.recorder.RecordFrame(s.kind, DirectionTX, frame)
	}
	return nil
}

// SendHex 十六进制字符串形式发送，格式错误时不写入
func (s *Session) SendHex(hexFrame string) error {
	frame, err := DecodeHex(hexFrame)
	if err != nil {
		return err
	}
	return s.Send(frame)
}

// SendSequence 依次发送多帧，帧间等待 interval
func (s *Session) SendSequence(frames [][]byte, interval time.Duration) error {
	for i, frame := range frames {
		if i > 0 && interval > 0 {
			time.Sleep(interval)
		}
		if err := s.Send(frame); err != nil {
			return fmt.Errorf("frame %d/%d: %w", i+1, len(frames), err)
		}
	}
	return nil
}

// Status 当前连接状态
func (s *Session) Status() ConnStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// IsConnected 是否已连接
func (s *Session) IsConnected() bool {
	return s.Status() == StatusConnected
}

// LastError 导致会话中断的最后一个错误
func (s *Session) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// Inbound 诊断缓冲区
func (s *Session) Inbound() *InboundBuffer { return s.inbound }

// StatusChanges 订阅连接状态变化
func (s *Session) StatusChanges(buffer int) (<-chan StatusChange, func()) {
	return s.changes.Subscribe(buffer)
}

func (s *Session) setStatusLocked(status ConnStatus, err error) {
	s.status = status
	if err != nil {
		s.lastErr = err
	}
	s.changes.Publish(StatusChange{Device: s.kind, Status: status, Err: err, At: s.opts.now()})
}

// readLoop 独占串口的读端，每读到一块数据交给分发协程，处理完才进行下一次读
func (s *Session) readLoop(port Port, stop <-chan struct{}, chunks chan<- []byte, handled <-chan struct{}) {
	buf := make([]byte, 1024)
	for {
		select {
		case <-stop:
			return
		default:
		}

		n, err := port.Read(buf)
		if n > 0 {
			chunk := append([]byte(nil), buf[:n]...)
			select {
			case chunks <- chunk:
			case <-stop:
				return
			}
			select {
			case <-handled:
			case <-stop:
				return
			}
		}
		if err != nil {
			select {
			case <-stop:
				// Close 引起的读错误
				return
			default:
			}
			s.fail(port, err)
			return
		}
	}
}

func (s *Session) dispatchLoop(stop <-chan struct{}, chunks <-chan []byte, handled chan<- struct{}) {
	for {
		select {
		case chunk := <-chunks:
			s.handleChunk(chunk)
			select {
			case handled <- struct{}{}:
			case <-stop:
				return
			}
		case <-stop:
			return
		}
	}
}

func (s *Session) handleChunk(chunk []byte) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("分发响应时发生panic", zap.Any("panic", r), zap.String("hex", fmt.Sprintf("% X", chunk)))
		}
	}()

	logger.LogSerialFrame(string(s.kind), DirectionRX, chunk)
	if s.opts.recorder != nil {
		s.opts.recorder.RecordFrame(s.kind, DirectionRX, chunk)
	}
	s.inbound.Push(chunk)
	if s.dispatch != nil {
		s.dispatch(chunk)
	}
}

// fail 读失败后结束会话，需要调用方重新 Open
func (s *Session) fail(port Port, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.port != port {
		return
	}
	close(s.stopCh)
	port.Close()
	s.port = nil

	if errors.Is(err, io.EOF) {
		s.logger.Warn("串口数据流结束")
		s.setStatusLocked(StatusDisconnected, apperrors.Wrap(err, apperrors.ErrReadFailure, "stream ended"))
		return
	}
	readErr := apperrors.Wrapf(err, apperrors.ErrReadFailure, "%s read", s.kind)
	s.logger.Error("读串口失败", zap.Error(readErr))
	s.setStatusLocked(StatusFaulted, readErr)
}
