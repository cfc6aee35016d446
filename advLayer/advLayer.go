// Package advLayer contains subpackages for Advanced Layer in VSI model.
//
// 本作中 advLayer 只负责 "按消息收发" 的 分帧传输 (目前只有 ws), 不关心上层协议.
package advLayer

import (
	"context"
	"fmt"
)

type MsgKind byte

const (
	MsgData MsgKind = iota
	MsgClose
)

// Message 是从 分帧传输 读到的 一条完整消息, 或者 对端的关闭通知.
type Message struct {
	Kind MsgKind
	Data []byte

	CloseCode   int
	CloseReason string
}

func (m Message) String() string {
	if m.Kind == MsgClose {
		return fmt.Sprintf("close(%d,%q)", m.CloseCode, m.CloseReason)
	}
	return fmt.Sprintf("data(%d)", len(m.Data))
}

// 常用的 关闭码, 见 rfc6455 7.4.1
const (
	CloseNormal        = 1000
	CloseGoingAway     = 1001
	CloseProtocolErr   = 1002
	CloseMessageTooBig = 1009
	CloseInternalErr   = 1011
)

// FramedConn 是一个 全双工 按消息分帧 的传输.
//
// NextMessage 只能在一个 goroutine 中调用; Send 与 Close 可以在任意 goroutine 中调用.
type FramedConn interface {
	// 阻塞直到 收到一条数据消息 或 关闭通知, 或出错, 或 ctx 结束.
	NextMessage(ctx context.Context) (Message, error)

	// 一次调用 发送一条二进制消息
	Send(p []byte) error

	// 第二次调用 会返回错误, 但不会有其它副作用
	Close(code int, reason string) error
}
