package trojan

import (
	"encoding/binary"
	"io"

	"github.com/e1732a364fed/ws_relay/netLayer"
	"github.com/e1732a364fed/ws_relay/utils"
)

// UDPConn 读写 trojan udp 包. 每次 Read 返回一个包的数据 (放不下时 剩余部分 下次返回).
//
// 写入的包 的地址 使用 最近一次读到的包的地址; 还没读过 时 用 请求头中的地址.
type UDPConn struct {
	io.Reader
	io.Writer

	target   netLayer.Addr
	leftover []byte
}

func (u *UDPConn) Read(p []byte) (int, error) {
	if len(u.leftover) > 0 {
		n := copy(p, u.leftover)
		u.leftover = u.leftover[n:]
		return n, nil
	}

	addr, err := netLayer.ReadSocksAddr(u.Reader)
	if err != nil {
		return 0, err
	}
	u.target = addr

	var lenBs [2]byte
	if _, err = io.ReadFull(u.Reader, lenBs[:]); err != nil {
		return 0, err
	}
	if err = readCRLF(u.Reader); err != nil {
		return 0, err
	}

	l := int(binary.BigEndian.Uint16(lenBs[:]))
	if l <= len(p) {
		return io.ReadFull(u.Reader, p[:l])
	}
	bs := make([]byte, l)
	if _, err = io.ReadFull(u.Reader, bs); err != nil {
		return 0, err
	}
	n := copy(p, bs)
	u.leftover = bs[n:]
	return n, nil
}

func (u *UDPConn) Write(p []byte) (int, error) {
	if len(p) > 65535 {
		return 0, utils.ErrInErr{ErrDesc: "trojan udp packet too long", ErrDetail: utils.ErrInvalidData, Data: len(p)}
	}
	buf := utils.GetBuf()
	defer utils.PutBuf(buf)

	buf.Write(u.target.SocksBytes())
	buf.Write([]byte{byte(len(p) >> 8), byte(len(p))})
	buf.Write(crlf)
	buf.Write(p)

	if _, err := u.Writer.Write(buf.Bytes()); err != nil {
		return 0, err
	}
	return len(p), nil
}
