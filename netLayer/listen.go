package netLayer

import (
	"net"
	"time"

	"github.com/e1732a364fed/ws_relay/utils"
	"github.com/pires/go-proxyproto"
	"go.uber.org/zap"
	"golang.org/x/net/netutil"
)

// ListenConf 是 监听 tcp 时 可以调节的选项
type ListenConf struct {
	Addr string

	// 前面有 haproxy/nginx 等 且发送 PROXY protocol 头部时 打开.
	// Reference： http://www.haproxy.org/download/1.8/doc/proxy-protocol.txt
	ProxyProtocol bool

	ProxyProtocolTimeout time.Duration

	//同时存在的 连接数 上限, <=0 表示不限制
	MaxConns int
}

// 没有头部的连接 也放行, 这样 本地直连 测试时 也能用.
var proxyProtocolListenPolicyFunc = func(upstream net.Addr) (proxyproto.Policy, error) { return proxyproto.USE, nil }

// Listen 监听 tcp, 并按 lc 的设置 包装 proxy protocol 与 连接数限制.
//
// 非阻塞, 返回的 listener 交给 http.Server.Serve 即可.
func Listen(lc ListenConf) (net.Listener, error) {
	l, err := net.Listen("tcp", lc.Addr)
	if err != nil {
		return nil, utils.ErrInErr{ErrDesc: "listen failed", ErrDetail: err, Data: lc.Addr}
	}

	if lc.MaxConns > 0 {
		l = netutil.LimitListener(l, lc.MaxConns)
	}

	if lc.ProxyProtocol {
		timeout := lc.ProxyProtocolTimeout
		if timeout <= 0 {
			timeout = time.Second * 5
		}
		l = &proxyproto.Listener{
			Listener:          l,
			Policy:            proxyProtocolListenPolicyFunc,
			ReadHeaderTimeout: timeout,
		}
	}

	if ce := utils.CanLogInfo("listening"); ce != nil {
		ce.Write(
			zap.String("addr", l.Addr().String()),
			zap.Bool("proxy_protocol", lc.ProxyProtocol),
			zap.Int("max_conns", lc.MaxConns),
		)
	}
	return l, nil
}
