/*
Package netLayer contains definitions in network layer AND transport layer.

本包有 地址解析, 出站拨号与过滤(cidr, geoip), 双向转发(relay), 空闲超时, 监听(proxy protocol), 以及 DoH 解析 等相关功能。

如果要控制tcp/udp拨号的细节时，也要在此包里实现.
*/
package netLayer

import (
	"errors"
	"io"
	"net"
	"strings"
)

// Atyp, for vless and vmess; 注意与 trojan和socks5的区别，trojan和socks5的相同含义的值是1，3，4
const (
	AtypIP4    byte = 1
	AtypDomain byte = 2
	AtypIP6    byte = 3
)

// socks5/trojan/shadowsocks 标准的 atyp
const (
	Socks5AtypIP4    byte = 1
	Socks5AtypDomain byte = 3
	Socks5AtypIP6    byte = 4
)

// 默认netLayer的 AType (AtypIP4,AtypIP6,AtypDomain) 遵循v2ray标准的定义;
// 如果需要符合 socks5/trojan标准, 需要用本函数转换一下。
// 即从 123 转换到 134
func ATypeToSocks5Standard(atype byte) byte {
	if atype == 1 {
		return 1
	}
	return atype + 1
}

// TransportKind 表示 一个会话 最终要用的传输层协议
type TransportKind byte

const (
	TCP TransportKind = iota
	UDP
)

func (tk TransportKind) String() string {
	if tk == UDP {
		return "udp"
	}
	return "tcp"
}

func IsStrUDP_network(s string) bool {
	switch s {
	case "udp", "udp4", "udp6":
		return true
	}
	return false
}

// IsClosedOrCanceled 判断 err 是否只是 因为连接被我们自己关闭 而产生的, 这种错误 不必当作 转发错误.
func IsClosedOrCanceled(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return true
	}
	return strings.Contains(err.Error(), "use of closed network connection")
}
