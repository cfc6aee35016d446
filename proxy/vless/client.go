package vless

import (
	"bytes"

	"github.com/e1732a364fed/ws_relay/netLayer"
)

// EncodeRequest 生成 vless v0 请求头部, 用于 测试 与 自检. addon 可以为空.
func EncodeRequest(uuid [16]byte, cmd byte, target netLayer.Addr, addon []byte) []byte {
	buf := &bytes.Buffer{}
	buf.WriteByte(0)
	buf.Write(uuid[:])
	buf.WriteByte(byte(len(addon)))
	buf.Write(addon)
	buf.WriteByte(cmd)
	buf.Write([]byte{byte(target.Port >> 8), byte(target.Port)})

	if ip := target.IP.To4(); ip != nil {
		buf.WriteByte(netLayer.AtypIP4)
		buf.Write(ip)
	} else if target.IP != nil {
		buf.WriteByte(netLayer.AtypIP6)
		buf.Write(target.IP.To16())
	} else {
		buf.WriteByte(netLayer.AtypDomain)
		buf.WriteByte(byte(len(target.Name)))
		buf.WriteString(target.Name)
	}
	return buf.Bytes()
}
