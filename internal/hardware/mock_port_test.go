package hardware

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
)

// mockPort 可注入入站数据的模拟串口
type mockPort struct {
	mock.Mock

	rx      chan []byte
	readErr chan error
	closed  chan struct{}
	once    sync.Once

	mu      sync.Mutex
	written [][]byte
}

func newMockPort(writeErr error) *mockPort {
	p := &mockPort{
		rx:      make(chan []byte, 16),
		readErr: make(chan error, 1),
		closed:  make(chan struct{}),
	}
	p.On("Write", mock.Anything).Return(writeErr).Maybe()
	p.On("Close").Return(nil).Maybe()
	return p
}

func (p *mockPort) Read(b []byte) (int, error) {
	select {
	case chunk := <-p.rx:
		return copy(b, chunk), nil
	case err := <-p.readErr:
		return 0, err
	case <-p.closed:
		return 0, os.ErrClosed
	case <-time.After(5 * time.Millisecond):
		return 0, nil
	}
}

func (p *mockPort) Write(b []byte) (int, error) {
	args := p.Called(b)
	if err := args.Error(0); err != nil {
		return 0, err
	}
	p.mu.Lock()
	p.written = append(p.written, append([]byte(nil), b...))
	p.mu.Unlock()
	return len(b), nil
}

func (p *mockPort) Close() error {
	p.once.Do(func() { close(p.closed) })
	return p.Called().Error(0)
}

// feed 模拟设备发来一块数据
func (p *mockPort) feed(b ...byte) {
	p.rx <- b
}

// hangUp 模拟设备断开
func (p *mockPort) hangUp() {
	p.readErr <- io.EOF
}

func (p *mockPort) frames() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([][]byte, len(p.written))
	copy(out, p.written)
	return out
}

func (p *mockPort) lastFrame() []byte {
	frames := p.frames()
	if len(frames) == 0 {
		return nil
	}
	return frames[len(frames)-1]
}

// mockOpener 记录打开时的线路参数
type mockOpener struct {
	mu    sync.Mutex
	port  *mockPort
	err   error
	lines []LineConfig
}

func (o *mockOpener) Open(cfg LineConfig) (Port, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.lines = append(o.lines, cfg)
	if o.err != nil {
		return nil, o.err
	}
	return o.port, nil
}

func testOptions() []Option {
	return []Option{WithLogger(zap.NewNop()), WithFrameInterval(0)}
}

const (
	waitFor = time.Second
	tick    = 5 * time.Millisecond
)
