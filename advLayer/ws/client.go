package ws

import (
	"context"
	"encoding/base64"
	"io"

	"github.com/e1732a364fed/ws_relay/utils"
	"github.com/gobwas/ws"
)

// Dial 作为客户端 连接 url (ws://host/path), 用于测试 和 自检.
//
// earlyData 不为空时 会被 base64 编码后 放入 Sec-WebSocket-Protocol.
func Dial(ctx context.Context, url string, earlyData []byte) (*Conn, error) {
	if len(earlyData) > MaxEarlyDataLen {
		return nil, utils.ErrInErr{ErrDesc: "early data too long", ErrDetail: utils.ErrWrongParameter, Data: len(earlyData)}
	}

	d := ws.Dialer{}
	if len(earlyData) > 0 {
		d.Protocols = []string{base64.RawURLEncoding.EncodeToString(earlyData)}
	}

	underlay, br, _, err := d.Dial(ctx, url)
	if err != nil {
		return nil, err
	}

	var source io.Reader = underlay
	if br != nil {
		source = br
	}
	return newConn(underlay, source, ws.StateClientSide, nil), nil
}
