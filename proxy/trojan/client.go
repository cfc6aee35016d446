package trojan

import (
	"bytes"

	"github.com/e1732a364fed/ws_relay/netLayer"
	"github.com/e1732a364fed/ws_relay/proxy"
)

// EncodeRequest 生成 trojan 请求头部, 用于 测试 与 自检.
func EncodeRequest(password string, cmd byte, target netLayer.Addr) []byte {
	buf := &bytes.Buffer{}
	buf.Write(proxy.SHA224_hexStringBytes(password))
	buf.Write(crlf)
	buf.WriteByte(cmd)
	buf.Write(target.SocksBytes())
	buf.Write(crlf)
	return buf.Bytes()
}

// EncodeUDPPacket 生成 一个 trojan udp 包
func EncodeUDPPacket(target netLayer.Addr, payload []byte) []byte {
	buf := &bytes.Buffer{}
	buf.Write(target.SocksBytes())
	buf.Write([]byte{byte(len(payload) >> 8), byte(len(payload))})
	buf.Write(crlf)
	buf.Write(payload)
	return buf.Bytes()
}
