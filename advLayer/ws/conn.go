package ws

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/e1732a364fed/ws_relay/advLayer"
	"github.com/e1732a364fed/ws_relay/utils"
	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

var aLongTimeAgo = time.Unix(1, 0)

// 实现 advLayer.FramedConn.
//
// 因为 gobwas/ws 不包装conn，在读取时 我们要用 wsutil.Reader 的 NextFrame 自己处理 控制帧,
// 写入则直接用 wsutil.WriteServerBinary, 一次写一帧.
type Conn struct {
	net.Conn

	state ws.State
	r     *wsutil.Reader

	controlHandler wsutil.FrameHandlerFunc

	// 对 Conn 的写入 可能同时来自 转发goroutine 和 控制帧的回复, 所以要加锁
	wmu sync.Mutex

	ReadLimit int64

	serverEndGotEarlyData []byte

	closed     atomic.Bool
	peerClosed atomic.Bool //对端发来了 close帧, 且我们已经回复过了
}

// lockedWriter 让 控制帧的回复 与 Send 互斥
type lockedWriter struct{ c *Conn }

func (lw lockedWriter) Write(p []byte) (int, error) {
	lw.c.wmu.Lock()
	defer lw.c.wmu.Unlock()
	return lw.c.Conn.Write(p)
}

func newConn(underlay net.Conn, source io.Reader, state ws.State, earlyData []byte) *Conn {
	c := &Conn{
		Conn:                  underlay,
		state:                 state,
		ReadLimit:             DefaultReadLimit,
		serverEndGotEarlyData: earlyData,
	}
	c.controlHandler = wsutil.ControlFrameHandler(lockedWriter{c}, state)
	c.r = &wsutil.Reader{
		Source: source,
		State:  state,
		// 分片消息 中间夹杂的 控制帧
		OnIntermediate: c.controlHandler,
	}
	return c
}

// NextMessage 读取下一条完整的 数据消息; 收到 close帧时 返回 Kind 为 MsgClose 的消息, 并已回复 close帧.
//
// ctx 结束时 会打断 阻塞的读取, 并返回 ctx.Err().
func (c *Conn) NextMessage(ctx context.Context) (advLayer.Message, error) {
	if len(c.serverEndGotEarlyData) > 0 {
		ed := c.serverEndGotEarlyData
		c.serverEndGotEarlyData = nil
		return advLayer.Message{Kind: advLayer.MsgData, Data: ed}, nil
	}

	stop := context.AfterFunc(ctx, func() {
		c.Conn.SetReadDeadline(aLongTimeAgo)
	})
	defer stop()

	msg, err := c.nextMessage()
	if err != nil && ctx.Err() != nil {
		return msg, ctx.Err()
	}
	return msg, err
}

func (c *Conn) nextMessage() (advLayer.Message, error) {
	for {
		h, err := c.r.NextFrame()
		if err != nil {
			return advLayer.Message{}, err
		}

		if h.OpCode.IsControl() {
			if err = c.controlHandler(h, c.r); err != nil {
				var ce wsutil.ClosedError
				if errors.As(err, &ce) {
					c.peerClosed.Store(true)
					return advLayer.Message{Kind: advLayer.MsgClose, CloseCode: int(ce.Code), CloseReason: ce.Reason}, nil
				}
				return advLayer.Message{}, err
			}
			continue
		}

		//文本帧我们也当作数据, 对 代理协议 来说 没有区别
		if h.OpCode != ws.OpBinary && h.OpCode != ws.OpText {
			if err = c.r.Discard(); err != nil {
				return advLayer.Message{}, err
			}
			continue
		}

		if h.Length > c.ReadLimit {
			return advLayer.Message{}, utils.ErrInErr{ErrDesc: ErrReadLimit.Error(), ErrDetail: ErrReadLimit, Data: h.Length}
		}

		//wsutil.Reader 在一条消息 (包括 分片的后续帧) 结束时 返回 io.EOF, 所以可以 ReadAll
		data, err := io.ReadAll(io.LimitReader(c.r, c.ReadLimit+1))
		if err != nil {
			return advLayer.Message{}, err
		}
		if int64(len(data)) > c.ReadLimit {
			return advLayer.Message{}, utils.ErrInErr{ErrDesc: ErrReadLimit.Error(), ErrDetail: ErrReadLimit, Data: len(data)}
		}
		return advLayer.Message{Kind: advLayer.MsgData, Data: data}, nil
	}
}

// Send 发送一条 二进制消息
func (c *Conn) Send(p []byte) error {
	if c.closed.Load() || c.peerClosed.Load() {
		return net.ErrClosed
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()

	if c.state == ws.StateClientSide {
		return wsutil.WriteClientBinary(c.Conn, p)
	}
	return wsutil.WriteServerBinary(c.Conn, p)
}

// Close 发送 close帧 然后关闭底层连接. 第二次调用 返回 net.ErrClosed.
func (c *Conn) Close(code int, reason string) error {
	if !c.closed.CompareAndSwap(false, true) {
		return net.ErrClosed
	}
	if c.peerClosed.Load() {
		return c.Conn.Close()
	}

	c.wmu.Lock()
	c.Conn.SetWriteDeadline(time.Now().Add(time.Second))
	frame := ws.NewCloseFrame(ws.NewCloseFrameBody(ws.StatusCode(code), reason))
	if c.state == ws.StateClientSide {
		frame = ws.MaskFrameInPlace(frame)
	}
	e := ws.WriteFrame(c.Conn, frame)
	c.wmu.Unlock()

	if e != nil {
		if ce := utils.CanLogDebug("ws write close frame failed"); ce != nil {
			ce.Write(zap.Error(e))
		}
	}

	return c.Conn.Close()
}
