package vless

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/e1732a364fed/ws_relay/netLayer"
	"github.com/e1732a364fed/ws_relay/proxy"
	"github.com/e1732a364fed/ws_relay/utils"
	"go.uber.org/zap"
)

func init() {
	proxy.RegisterParser(proxy.VLESS, func(conf *proxy.ParserConf) (proxy.HeaderParser, error) {
		return &Server{conf: conf}, nil
	})
}

type Server struct {
	conf *proxy.ParserConf
}

func (s *Server) Name() string { return Name }

func (s *Server) Parse(rw io.ReadWriter) (result proxy.Result, err error) {
	var head [1 + utils.UUID_BytesLen + 1]byte
	if _, err = io.ReadFull(rw, head[:]); err != nil {
		return
	}
	version := head[0]

	if !bytes.Equal(head[1:1+utils.UUID_BytesLen], s.conf.UUID[:]) {
		if s.conf.EnforceUser {
			err = utils.ErrInErr{ErrDesc: "vless unknown user", ErrDetail: proxy.ErrAuthFailed, Data: utils.UUIDToStr(head[1 : 1+utils.UUID_BytesLen])}
			return
		}
		if ce := utils.CanLogDebug("vless uuid mismatch, accepted anyway"); ce != nil {
			ce.Write(zap.String("uuid", utils.UUIDToStr(head[1:1+utils.UUID_BytesLen])))
		}
	}

	//附加信息 我们不认识, 丢弃即可
	if addonLen := int(head[1+utils.UUID_BytesLen]); addonLen > 0 {
		if _, err = io.CopyN(io.Discard, rw, int64(addonLen)); err != nil {
			return
		}
	}

	var cmdPort [3]byte
	if _, err = io.ReadFull(rw, cmdPort[:]); err != nil {
		return
	}
	cmd := cmdPort[0]
	port := int(binary.BigEndian.Uint16(cmdPort[1:]))

	switch cmd {
	case CmdTCP:
		result.Kind = netLayer.TCP
	case CmdUDP:
		result.Kind = netLayer.UDP
	default:
		err = utils.ErrInErr{ErrDesc: proxy.ErrUnsupportedCmd.ErrDesc, ErrDetail: utils.ErrInvalidData, Data: cmd}
		return
	}

	host, err := netLayer.ReadV2rayHost(rw)
	if err != nil {
		return
	}
	result.Target, err = netLayer.NewAddrByHostAndPort(host, port)
	if err != nil {
		return
	}
	result.Target.Network = result.Kind.String()

	w := &utils.PrefixWriter{Writer: rw, Prefix: []byte{version, 0}}

	if result.Kind == netLayer.UDP {
		result.Payload = &UDPConn{Reader: rw, Writer: w}
	} else {
		result.Payload = utils.RW{Reader: rw, Writer: w}
	}
	return
}
