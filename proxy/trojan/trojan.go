// Package trojan implements trojan header parsing for proxy.HeaderParser.
//
// See https://trojan-gfw.github.io/trojan/protocol .
//
// 请求:
//
//	56 hex(SHA224(password)) | CRLF | 1 CMD | socks5 地址 | CRLF | payload
//
// udp 时 payload 由若干个 包 组成:
//
//	socks5 地址 | 2 Length | CRLF | Length 字节数据
package trojan

const Name = "trojan"

const (
	CmdConnect      = 0x01
	CmdUDPAssociate = 0x03
)

const passHexLen = 56

var crlf = []byte{0x0d, 0x0a}
