package netLayer

import (
	"io"
	"time"

	"go.uber.org/atomic"
)

// IdleTimer 在 d 时间内 没有任何 Touch 时 调用 onIdle, 只调用一次.
type IdleTimer struct {
	d      time.Duration
	last   atomic.Int64
	fired  atomic.Bool
	onIdle func()
	t      *time.Timer
}

// d <= 0 时 返回 nil; nil 的 IdleTimer 的所有方法 都是安全的空操作.
func NewIdleTimer(d time.Duration, onIdle func()) *IdleTimer {
	if d <= 0 {
		return nil
	}
	it := &IdleTimer{d: d, onIdle: onIdle}
	it.last.Store(time.Now().UnixNano())
	it.t = time.AfterFunc(d, it.check)
	return it
}

func (it *IdleTimer) check() {
	elapsed := time.Duration(time.Now().UnixNano() - it.last.Load())
	if elapsed < it.d {
		it.t.Reset(it.d - elapsed)
		return
	}
	if it.fired.CompareAndSwap(false, true) {
		it.onIdle()
	}
}

func (it *IdleTimer) Touch() {
	if it == nil {
		return
	}
	it.last.Store(time.Now().UnixNano())
}

func (it *IdleTimer) Stop() {
	if it == nil {
		return
	}
	it.t.Stop()
}

func (it *IdleTimer) Fired() bool {
	if it == nil {
		return false
	}
	return it.fired.Load()
}

// IdleRWC 每次 成功读写 都会 Touch 其 IdleTimer.
type IdleRWC struct {
	io.ReadWriteCloser
	Timer *IdleTimer
}

func (c IdleRWC) Read(p []byte) (n int, err error) {
	n, err = c.ReadWriteCloser.Read(p)
	if n > 0 {
		c.Timer.Touch()
	}
	return
}

func (c IdleRWC) Write(p []byte) (n int, err error) {
	n, err = c.ReadWriteCloser.Write(p)
	if n > 0 {
		c.Timer.Touch()
	}
	return
}
