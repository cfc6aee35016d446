package tunnel

import (
	"bytes"
	"context"
	"io"

	"github.com/e1732a364fed/ws_relay/advLayer"
	"github.com/e1732a364fed/ws_relay/utils"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

const (
	DefaultMaxMessageSize = 64 * 1024
	DefaultMaxBufferSize  = 512 * 1024
)

// Adapter 把 advLayer.FramedConn 适配为 io.ReadWriteCloser.
//
// 读取 只能在 一个 goroutine 中进行, 所以 buf 不加锁; Write 与 Shutdown 可在任意 goroutine 调用.
type Adapter struct {
	conn advLayer.FramedConn
	ctx  context.Context

	MaxMessageSize int
	MaxBufferSize  int

	// 收到 关闭通知 或 传输错误 时 调用; 可能被调用 不止一次, 须可重入
	OnPeerClose func()

	buf bytes.Buffer

	// 因 buf 已满 而 暂不接纳 的消息
	pending []byte

	eof bool
	err error

	// watchPeer 预读的 一条消息; 非nil 时 pull 从这里取, 不直接读 conn
	prefetch chan pulled

	peerGone atomic.Bool
}

type pulled struct {
	msg advLayer.Message
	err error
}

// NewAdapter 中 maxMessageSize 大于 maxBufferSize 时 会被 降为 maxBufferSize, 一条消息 总能放入 空的 buf.
func NewAdapter(ctx context.Context, conn advLayer.FramedConn, maxMessageSize, maxBufferSize int) *Adapter {
	if maxMessageSize <= 0 {
		maxMessageSize = DefaultMaxMessageSize
	}
	if maxBufferSize <= 0 {
		maxBufferSize = DefaultMaxBufferSize
	}
	if maxMessageSize > maxBufferSize {
		maxMessageSize = maxBufferSize
	}
	return &Adapter{
		conn:           conn,
		ctx:            ctx,
		MaxMessageSize: maxMessageSize,
		MaxBufferSize:  maxBufferSize,
	}
}

func (a *Adapter) setContext(ctx context.Context) { a.ctx = ctx }

// Buffered 返回 已缓存 未读取 的字节数
func (a *Adapter) Buffered() int { return a.buf.Len() }

// admit 尝试 把一条消息 放入 buf. 放不下时 暂存到 pending, 这不是错误.
func (a *Adapter) admit(data []byte) error {
	if len(data) > a.MaxMessageSize {
		return utils.ErrInErr{ErrDesc: ErrMessageTooLarge.ErrDesc, ErrDetail: ErrMessageTooLarge, Data: len(data)}
	}
	if a.buf.Len() > 0 && a.buf.Len()+len(data) > a.MaxBufferSize {
		a.pending = data
		return nil
	}
	a.buf.Write(data)
	return nil
}

func (a *Adapter) admitPending() {
	if a.pending == nil {
		return
	}
	if a.buf.Len() == 0 || a.buf.Len()+len(a.pending) <= a.MaxBufferSize {
		a.buf.Write(a.pending)
		a.pending = nil
	}
}

// PeerGone 报告 对端 是否 已经关闭 或 出错. 可在任意 goroutine 调用.
func (a *Adapter) PeerGone() bool { return a.peerGone.Load() }

func (a *Adapter) peerClosed(err error) {
	if a.eof || a.err != nil {
		return
	}
	a.peerGone.Store(true)
	if err != nil {
		a.err = err
	} else {
		a.eof = true
	}
	if a.OnPeerClose != nil {
		a.OnPeerClose()
	}
}

// pull 读取 下一条消息. 返回 false 表示 不会再有数据了 (关闭 或 出错, 出错时 a.err 非空).
func (a *Adapter) pull(ctx context.Context) (bool, error) {
	if a.eof {
		return false, nil
	}
	if a.err != nil {
		return false, a.err
	}

	var msg advLayer.Message
	var err error
	if a.prefetch != nil {
		r := <-a.prefetch
		a.prefetch = nil
		msg, err = r.msg, r.err
	} else {
		msg, err = a.conn.NextMessage(ctx)
	}
	if err != nil {
		if err == io.EOF {
			a.peerClosed(nil)
			return false, nil
		}
		a.peerClosed(err)
		return false, err
	}

	if msg.Kind == advLayer.MsgClose {
		if ce := utils.CanLogDebug("peer closed"); ce != nil {
			ce.Write(zap.Int("code", msg.CloseCode), zap.String("reason", msg.CloseReason))
		}
		a.peerClosed(nil)
		return false, nil
	}

	if err = a.admit(msg.Data); err != nil {
		return false, err
	}
	return true, nil
}

// watchPeer 在 没有人读取 的阶段 (拨号, DoH) 于后台 预读 一条消息.
// 读到 关闭通知 或 错误 时 立即调用 OnPeerClose; 读到的数据 留给 下一次 pull, 不会丢失.
//
// 预读 用的是 a.ctx, 会话结束时 它被取消, 后台goroutine 随之退出.
func (a *Adapter) watchPeer() {
	if a.eof || a.err != nil || a.prefetch != nil {
		return
	}
	ch := make(chan pulled, 1)
	a.prefetch = ch

	ctx, onClose := a.ctx, a.OnPeerClose
	go func() {
		msg, err := a.conn.NextMessage(ctx)
		if err != nil || msg.Kind == advLayer.MsgClose {
			a.peerGone.Store(true)
			if onClose != nil {
				onClose()
			}
		}
		ch <- pulled{msg: msg, err: err}
	}()
}

// FillUntil 不断读取消息, 直到 缓存了至少 n 字节, 或者 对端关闭 (不算错误), 或者 出错.
func (a *Adapter) FillUntil(ctx context.Context, n int) error {
	for a.buf.Len() < n {
		if a.pending != nil {
			return nil
		}
		ok, err := a.pull(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
	}
	return nil
}

// Peek 返回 缓存中 前 n 个字节 (不足n 时 返回全部), 不消耗. 返回的切片 在下次读取前 有效.
func (a *Adapter) Peek(n int) []byte {
	b := a.buf.Bytes()
	if n < len(b) {
		return b[:n]
	}
	return b
}

// Read 先读 缓存, 缓存为空时 等待 下一条消息. 对端关闭 后 返回 io.EOF.
func (a *Adapter) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	for a.buf.Len() == 0 {
		if a.pending != nil {
			a.admitPending()
			continue
		}
		ok, err := a.pull(a.ctx)
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, io.EOF
		}
	}
	n, _ := a.buf.Read(p)
	a.admitPending()
	return n, nil
}

// Write 每次调用 发送 恰好一条 二进制消息.
func (a *Adapter) Write(p []byte) (int, error) {
	if err := a.conn.Send(p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Shutdown 以 1000 "shutdown" 关闭 分帧传输. 重复调用 返回 底层的错误, 无其它副作用.
func (a *Adapter) Shutdown() error {
	return a.conn.Close(advLayer.CloseNormal, "shutdown")
}

func (a *Adapter) Close() error {
	return a.Shutdown()
}
