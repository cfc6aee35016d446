package vless

import (
	"encoding/binary"
	"io"

	"github.com/e1732a364fed/ws_relay/utils"
)

// UDPConn 按 2字节长度 + 数据 的格式 读写 udp 包. 每次 Read 最多返回 一个包.
type UDPConn struct {
	io.Reader
	io.Writer

	leftover []byte
}

func (u *UDPConn) Read(p []byte) (int, error) {
	if len(u.leftover) > 0 {
		n := copy(p, u.leftover)
		u.leftover = u.leftover[n:]
		return n, nil
	}

	var lenBs [2]byte
	if _, err := io.ReadFull(u.Reader, lenBs[:]); err != nil {
		return 0, err
	}
	l := int(binary.BigEndian.Uint16(lenBs[:]))
	if l == 0 {
		return 0, nil
	}

	if l <= len(p) {
		return io.ReadFull(u.Reader, p[:l])
	}

	bs := make([]byte, l)
	if _, err := io.ReadFull(u.Reader, bs); err != nil {
		return 0, err
	}
	n := copy(p, bs)
	u.leftover = bs[n:]
	return n, nil
}

func (u *UDPConn) Write(p []byte) (int, error) {
	if len(p) > 65535 {
		return 0, utils.ErrInErr{ErrDesc: "vless udp packet too long", ErrDetail: utils.ErrInvalidData, Data: len(p)}
	}
	buf := utils.GetBuf()
	defer utils.PutBuf(buf)

	buf.Write([]byte{byte(len(p) >> 8), byte(len(p))})
	buf.Write(p)
	if _, err := u.Writer.Write(buf.Bytes()); err != nil {
		return 0, err
	}
	return len(p), nil
}
