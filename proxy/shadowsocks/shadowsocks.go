/*
Package shadowsocks implements plain shadowsocks header parsing for proxy.HeaderParser.

# Reference

https://github.com/shadowsocks/shadowsocks-org/wiki/Protocol

在 ws 上 跑的 shadowsocks 一般使用 "none" 加密, 此时 ws 消息的开头 直接就是 socks5 格式的 目标地址:

	1 atyp (1,3,4) | 地址 | 2 端口 | payload

所以 这里 不需要 加解密, 只解析地址. 而且 只支持 tcp: 头部里 没有任何字段 能表示 udp.
*/
package shadowsocks

import (
	"io"

	"github.com/e1732a364fed/ws_relay/netLayer"
	"github.com/e1732a364fed/ws_relay/proxy"
)

const Name = "shadowsocks"

func init() {
	proxy.RegisterParser(proxy.Shadowsocks, func(*proxy.ParserConf) (proxy.HeaderParser, error) {
		return Server{}, nil
	})
}

type Server struct{}

func (Server) Name() string { return Name }

func (Server) Parse(rw io.ReadWriter) (result proxy.Result, err error) {
	result.Target, err = netLayer.ReadSocksAddr(rw)
	if err != nil {
		return
	}
	result.Kind = netLayer.TCP
	result.Target.Network = "tcp"
	result.Payload = rw
	return
}
