package netLayer

import (
	"io"

	"github.com/e1732a364fed/ws_relay/utils"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// TrafficCounter 记录 一条转发 两个方向上的 字节数; 可被多个goroutine 同时读取.
type TrafficCounter struct {
	Up   atomic.Uint64 // 本地 -> 远程
	Down atomic.Uint64 // 远程 -> 本地
}

// countingWriter 在每次写入成功后 立即累加计数, 这样 转发途中 也能观察到 已传输的量.
type countingWriter struct {
	io.Writer
	n *atomic.Uint64
}

func (cw countingWriter) Write(p []byte) (int, error) {
	n, err := cw.Writer.Write(p)
	if n > 0 {
		cw.n.Add(uint64(n))
	}
	return n, err
}

// TryCopy 循环 从 readConn 读取数据并写入 writeConn, 直到错误发生, 使用 池中的 64k buffer.
func TryCopy(writeConn io.Writer, readConn io.Reader) (allnum int64, err error) {
	bs := utils.GetPacket()
	allnum, err = io.CopyBuffer(writeConn, readConn, bs)
	utils.PutPacket(bs)
	return
}

// Relay 从 wlc 读取 写入到 wrc，并同时从 wrc 读取写入 wlc, 阻塞.
//
// 任一方向结束后 会主动关闭双方连接, 然后等待另一方向 也退出.
// 返回的 err 为 先结束的那个方向 的错误; 正常的 EOF 和 因我们自己关闭而产生的错误 不算错误.
func Relay(realTargetAddr *Addr, wrc, wlc io.ReadWriteCloser, counter *TrafficCounter) (err error) {
	if counter == nil {
		counter = new(TrafficCounter)
	}

	type result struct {
		direction string
		err       error
	}
	done := make(chan result, 2)

	go func() {
		_, e := TryCopy(countingWriter{wrc, &counter.Up}, wlc)
		done <- result{"本地->远程", e}
	}()
	go func() {
		_, e := TryCopy(countingWriter{wlc, &counter.Down}, wrc)
		done <- result{"远程->本地", e}
	}()

	first := <-done

	wlc.Close()
	wrc.Close()

	second := <-done

	if ce := utils.CanLogDebug("转发结束"); ce != nil {
		ce.Write(
			zap.String("target", realTargetAddr.String()),
			zap.String("first", first.direction),
			zap.NamedError("firstErr", first.err),
			zap.NamedError("secondErr", second.err),
			zap.Uint64("up", counter.Up.Load()),
			zap.Uint64("down", counter.Down.Load()),
		)
	}

	if IsClosedOrCanceled(first.err) {
		return nil
	}
	return first.err
}
