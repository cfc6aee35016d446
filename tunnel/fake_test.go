package tunnel

import (
	"context"
	"io"
	"net"
	"sync"
	"time"

	"github.com/e1732a364fed/ws_relay/advLayer"
)

// fakeConn 是 内存中的 FramedConn. 关闭 in 表示 对端 EOF.
type fakeConn struct {
	in   chan advLayer.Message
	sent chan []byte

	closed    chan struct{}
	closeOnce sync.Once

	mu          sync.Mutex
	closeCode   int
	closeReason string
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:     make(chan advLayer.Message, 16),
		sent:   make(chan []byte, 16),
		closed: make(chan struct{}),
	}
}

func (f *fakeConn) push(data []byte) {
	f.in <- advLayer.Message{Kind: advLayer.MsgData, Data: data}
}

func (f *fakeConn) pushClose() {
	f.in <- advLayer.Message{Kind: advLayer.MsgClose, CloseCode: advLayer.CloseNormal}
}

func (f *fakeConn) NextMessage(ctx context.Context) (advLayer.Message, error) {
	select {
	case m, ok := <-f.in:
		if !ok {
			return advLayer.Message{}, io.EOF
		}
		return m, nil
	case <-f.closed:
		return advLayer.Message{}, net.ErrClosed
	case <-ctx.Done():
		return advLayer.Message{}, ctx.Err()
	}
}

func (f *fakeConn) Send(p []byte) error {
	select {
	case <-f.closed:
		return net.ErrClosed
	default:
	}
	f.sent <- append([]byte(nil), p...)
	return nil
}

func (f *fakeConn) Close(code int, reason string) error {
	err := net.ErrClosed
	f.closeOnce.Do(func() {
		f.mu.Lock()
		f.closeCode, f.closeReason = code, reason
		f.mu.Unlock()
		close(f.closed)
		err = nil
	})
	return err
}

func (f *fakeConn) isClosed() bool {
	select {
	case <-f.closed:
		return true
	default:
		return false
	}
}

func (f *fakeConn) closeInfo() (int, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closeCode, f.closeReason
}

func (f *fakeConn) waitSent(timeout time.Duration) []byte {
	select {
	case b := <-f.sent:
		return b
	case <-time.After(timeout):
		return nil
	}
}
