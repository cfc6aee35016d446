package vmess

import (
	"bytes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/binary"
	"hash/fnv"
	"io"

	"github.com/e1732a364fed/ws_relay/netLayer"
	"github.com/e1732a364fed/ws_relay/proxy"
	"github.com/e1732a364fed/ws_relay/utils"
	"go.uber.org/zap"
)

func init() {
	proxy.RegisterParser(proxy.VMess, func(conf *proxy.ParserConf) (proxy.HeaderParser, error) {
		return NewServer(conf), nil
	})
}

// 指令部分 除去 地址 与 padding 之后 的最小长度
const minInstructionLen = 1 + 16 + 16 + 1 + 1 + 1 + 1 + 1 + 2 + 4

var (
	ErrInstructionTooShort = utils.ErrInErr{ErrDesc: "vmess: instruction too short", ErrDetail: utils.ErrInvalidData}
	ErrBadChecksum         = utils.ErrInErr{ErrDesc: "vmess: instruction checksum not match", ErrDetail: utils.ErrInvalidData}
)

type Server struct {
	conf *proxy.ParserConf

	cmdKey      [16]byte
	authidBlock cipher.Block
	antiReplay  *authid_antiReplayMachine
}

func NewServer(conf *proxy.ParserConf) *Server {
	s := &Server{
		conf:       conf,
		cmdKey:     GetCmdKey(conf.UUID),
		antiReplay: newAuthIDAntiReplyMachine(),
	}
	s.authidBlock = newAuthIDBlock(s.cmdKey[:])
	return s
}

func (s *Server) Name() string { return Name }

func (s *Server) Stop() {
	s.antiReplay.stop()
}

// vmess 没有 明文 特征, 所以 这里 每一步的 失败 都要 返回错误, 不能 猜.
func (s *Server) Parse(rw io.ReadWriter) (result proxy.Result, err error) {
	var authid [authid_len]byte
	if _, err = io.ReadFull(rw, authid[:]); err != nil {
		return
	}

	if _, err = decodeAuthID(s.authidBlock, authid, nowUnix()); err != nil {
		err = utils.ErrInErr{ErrDesc: "vmess: authid not valid", ErrDetail: proxy.ErrAuthFailed, Data: err.Error()}
		return
	}
	if !s.antiReplay.check(authid) {
		err = ErrReplayAttack
		return
	}

	instruction, err := openAEADHeader(s.cmdKey[:], authid, rw)
	if err != nil {
		return
	}

	req, err := parseInstruction(instruction)
	if err != nil {
		return
	}

	if ce := utils.CanLogDebug("vmess instruction"); ce != nil {
		ce.Write(
			zap.Uint8("opt", req.opt),
			zap.Uint8("security", req.security),
			zap.Uint8("cmd", req.cmd),
			zap.String("target", req.target.String()),
		)
	}

	switch req.cmd {
	case CmdTCP:
		result.Kind = netLayer.TCP
	case CmdUDP:
		result.Kind = netLayer.UDP
	default:
		err = utils.ErrInErr{ErrDesc: proxy.ErrUnsupportedCmd.ErrDesc, ErrDetail: utils.ErrInvalidData, Data: req.cmd}
		return
	}
	result.Target = req.target
	result.Target.Network = result.Kind.String()

	respKey, respIV := responseKeyIV(req.key[:], req.iv[:])

	bodyR, err := newBodyReader(rw, req.opt, req.security, req.key[:], req.iv[:])
	if err != nil {
		return
	}
	pw := &utils.PrefixWriter{Writer: rw, Prefix: sealResponseHeader(respKey, respIV, req.v)}
	bodyW, err := newBodyWriter(pw, req.opt, req.security, respKey, respIV)
	if err != nil {
		return
	}

	result.Payload = utils.RW{Reader: bodyR, Writer: bodyW}
	return
}

type request struct {
	iv, key  [16]byte
	v        byte
	opt      byte
	security byte
	cmd      byte
	target   netLayer.Addr
}

func responseKeyIV(key, iv []byte) (respKey, respIV []byte) {
	k := sha256.Sum256(key)
	i := sha256.Sum256(iv)
	return k[:16], i[:16]
}

func parseInstruction(b []byte) (req request, err error) {
	if len(b) < minInstructionLen {
		err = ErrInstructionTooShort
		return
	}
	body, sum := b[:len(b)-4], b[len(b)-4:]

	h := fnv.New32a()
	h.Write(body)
	if h.Sum32() != binary.BigEndian.Uint32(sum) {
		err = ErrBadChecksum
		return
	}

	if body[0] != 1 {
		err = utils.ErrInErr{ErrDesc: "vmess: unknown version", ErrDetail: utils.ErrInvalidData, Data: body[0]}
		return
	}
	copy(req.iv[:], body[1:17])
	copy(req.key[:], body[17:33])
	req.v = body[33]
	req.opt = body[34]
	padding := int(body[35] >> 4)
	req.security = body[35] & 0x0f
	req.cmd = body[37]
	port := int(binary.BigEndian.Uint16(body[38:40]))

	if req.opt&OptAuthenticatedLength != 0 {
		err = utils.ErrInErr{ErrDesc: "vmess: authenticated length not supported", ErrDetail: utils.ErrNotImplemented}
		return
	}
	if _, err = bodyAEAD(req.security, req.key[:]); err != nil {
		return
	}

	br := bytes.NewReader(body[40:])
	host, err := netLayer.ReadV2rayHost(br)
	if err != nil {
		return
	}
	if br.Len() != padding {
		err = utils.ErrInErr{ErrDesc: "vmess: padding length not match", ErrDetail: utils.ErrInvalidData, Data: br.Len()}
		return
	}
	req.target, err = netLayer.NewAddrByHostAndPort(host, port)
	return
}
