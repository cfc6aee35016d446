package vmess

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"hash/fnv"
	"io"
	"time"

	"github.com/e1732a364fed/ws_relay/netLayer"
	"github.com/e1732a364fed/ws_relay/utils"
)

// ClientSession 是 vmess 客户端 一次连接的状态, 用于 测试 与 自检.
type ClientSession struct {
	cmdKey [16]byte

	reqKey, reqIV   [16]byte
	respKey, respIV []byte
	v               byte

	Opt      byte
	Security byte
}

func NewClientSession(uuid [utils.UUID_BytesLen]byte, security, opt byte) *ClientSession {
	c := &ClientSession{cmdKey: GetCmdKey(uuid), Security: security, Opt: opt}
	rand.Read(c.reqKey[:])
	rand.Read(c.reqIV[:])
	var one [1]byte
	rand.Read(one[:])
	c.v = one[0]
	c.respKey, c.respIV = responseKeyIV(c.reqKey[:], c.reqIV[:])
	return c
}

func (c *ClientSession) instruction(cmd byte, target netLayer.Addr) []byte {
	var one [1]byte
	rand.Read(one[:])
	padding := int(one[0] % 16)

	buf := &bytes.Buffer{}
	buf.WriteByte(1)
	buf.Write(c.reqIV[:])
	buf.Write(c.reqKey[:])
	buf.WriteByte(c.v)
	buf.WriteByte(c.Opt)
	buf.WriteByte(byte(padding<<4) | c.Security)
	buf.WriteByte(0)
	buf.WriteByte(cmd)
	binary.Write(buf, binary.BigEndian, uint16(target.Port))

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

	if padding > 0 {
		pad := make([]byte, padding)
		rand.Read(pad)
		buf.Write(pad)
	}

	h := fnv.New32a()
	h.Write(buf.Bytes())
	buf.Write(h.Sum(nil))
	return buf.Bytes()
}

// EncodeRequest 返回 authid + 加密的头部
func (c *ClientSession) EncodeRequest(cmd byte, target netLayer.Addr) []byte {
	return c.EncodeRequestAt(cmd, target, time.Now())
}

func (c *ClientSession) EncodeRequestAt(cmd byte, target netLayer.Addr, t time.Time) []byte {
	authid := createAuthID(c.cmdKey[:], t.Unix())
	return append(authid[:], sealAEADHeader(c.cmdKey[:], authid, c.instruction(cmd, target))...)
}

func (c *ClientSession) BodyWriter(w io.Writer) (io.Writer, error) {
	return newBodyWriter(w, c.Opt, c.Security, c.reqKey[:], c.reqIV[:])
}

// ResponseReader 读取 并验证 响应头部, 然后 返回 数据部分的 Reader.
func (c *ClientSession) ResponseReader(r io.Reader) (io.Reader, error) {
	v, err := openResponseHeader(c.respKey, c.respIV, r)
	if err != nil {
		return nil, err
	}
	if v != c.v {
		return nil, utils.ErrInErr{ErrDesc: "vmess: response V not match", ErrDetail: utils.ErrInvalidData, Data: v}
	}
	return newBodyReader(r, c.Opt, c.Security, c.respKey, c.respIV)
}
