package ws

import (
	"encoding/base64"
	"io"
	"net/http"

	"github.com/e1732a364fed/ws_relay/utils"
	"github.com/gobwas/ws"
	"go.uber.org/zap"
)

type Server struct {
	UseEarlyData bool
	ReadLimit    int64 //<=0 时 使用 DefaultReadLimit
}

func NewServer(useEarlyData bool, readLimit int64) *Server {
	return &Server{
		UseEarlyData: useEarlyData,
		ReadLimit:    readLimit,
	}
}

// 从 Sec-WebSocket-Protocol 中 提取 early data.
//
// xray和v2ray中，使用了 header中的 Sec-WebSocket-Protocol 字段 来传输 earlydata，来实现 0-rtt; 我们为了兼容同样用此字段.
// (websocket标准是没有定义 0-rtt的方法的，但是ws的握手包头部是可以自定义header的)
// 因为是 earlydata，所以没有逗号，全部都是 base64 编码的内容.
func extractEarlyData(r *http.Request) (proto string, ed []byte) {
	proto = r.Header.Get("Sec-WebSocket-Protocol")
	if proto == "" || len(proto) > MaxEarlyDataLen_Base64 {
		return "", nil
	}
	bs, err := base64.RawURLEncoding.DecodeString(proto)
	if err != nil {
		// 传来的并不是base64数据，可能是 其它正常的 子协议, 我们不选择它就是了
		return "", nil
	}
	return proto, bs
}

// UpgradeHTTP 用于 websocket的 Server 监听端，建立握手. 用到了 gobwas/ws.HTTPUpgrader.
//
// 调用者 必须先确认 请求中 Upgrade: websocket, 本函数失败时 gobwas 已经回复了 http错误.
func (s *Server) UpgradeHTTP(w http.ResponseWriter, r *http.Request) (*Conn, error) {
	var edProto string
	var earlyData []byte

	if s.UseEarlyData {
		edProto, earlyData = extractEarlyData(r)
	}

	upgrader := ws.HTTPUpgrader{
		Protocol: func(p string) bool {
			//浏览器要求 服务端 原样返回 其选中的子协议, 所以这里 选中 early data 本身
			return edProto != "" && p == edProto
		},
	}

	underlay, rw, _, err := upgrader.Upgrade(r, w)
	if err != nil {
		return nil, err
	}

	var source io.Reader = underlay
	if rw != nil && rw.Reader.Buffered() > 0 {
		//客户端 在握手后 立即发来的数据 已经被 读进 bufio 里了
		source = rw.Reader
	}

	c := newConn(underlay, source, ws.StateServerSide, earlyData)
	if s.ReadLimit > 0 {
		c.ReadLimit = s.ReadLimit
	}

	if ce := utils.CanLogDebug("ws upgraded"); ce != nil {
		ce.Write(
			zap.String("from", underlay.RemoteAddr().String()),
			zap.String("path", r.URL.Path),
			zap.Int("earlydata", len(earlyData)),
		)
	}
	return c, nil
}
