package proxy

import "encoding/binary"

const (
	// 嗅探时 最多 偷看 的字节数
	SniffPeekLen = 62

	// 少于这个数 就不嗅探了, 直接报 ErrNotEnoughData
	MinSniffLen = SniffPeekLen / 2
)

type SniffRule struct {
	Tag   Tag
	Match func(prefix []byte) bool
}

// SniffTable 按顺序匹配, 第一个匹配的获胜.
//
// vless 的 第一字节 是 版本号0, 而 shadowsocks 的第一字节是 atyp(1,3,4), 两者不会冲突;
// trojan 的 第56,57字节 是 CRLF; vmess 的 头部 是 随机的 authid, 所以只能兜底.
var SniffTable = []SniffRule{
	{VLESS, IsVLESS},
	{Shadowsocks, IsShadowsocks},
	{Trojan, IsTrojan},
	{VMess, IsVMess},
}

// Sniff 不修改 prefix. prefix 为空时 返回 Unrecognized.
func Sniff(prefix []byte) Tag {
	for _, rule := range SniffTable {
		if rule.Match(prefix) {
			return rule.Tag
		}
	}
	return Unrecognized
}

func IsVLESS(b []byte) bool {
	return len(b) > 0 && b[0] == 0
}

// 明文 shadowsocks 的 头部 就是 socks5 地址: atyp + addr + port, 端口为0 的 不算.
func IsShadowsocks(b []byte) bool {
	if len(b) == 0 {
		return false
	}
	switch b[0] {
	case 1:
		if len(b) < 7 {
			return false
		}
		return binary.BigEndian.Uint16(b[5:7]) != 0
	case 3:
		if len(b) < 2 {
			return false
		}
		l := int(b[1])
		if len(b) < 2+l+2 {
			return false
		}
		return binary.BigEndian.Uint16(b[2+l:2+l+2]) != 0
	case 4:
		if len(b) < 19 {
			return false
		}
		return binary.BigEndian.Uint16(b[17:19]) != 0
	}
	return false
}

// trojan: 56字节的 hex(sha224(password)) 之后 紧跟 CRLF
func IsTrojan(b []byte) bool {
	return len(b) > 57 && b[56] == '\r' && b[57] == '\n'
}

func IsVMess(b []byte) bool {
	return len(b) > 0
}
