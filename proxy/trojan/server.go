package trojan

import (
	"bytes"
	"crypto/subtle"
	"io"

	"github.com/e1732a364fed/ws_relay/netLayer"
	"github.com/e1732a364fed/ws_relay/proxy"
	"github.com/e1732a364fed/ws_relay/utils"
	"go.uber.org/zap"
)

func init() {
	proxy.RegisterParser(proxy.Trojan, func(conf *proxy.ParserConf) (proxy.HeaderParser, error) {
		return &Server{
			conf:     conf,
			passHash: proxy.SHA224_hexStringBytes(conf.TrojanPassword()),
		}, nil
	})
}

type Server struct {
	conf     *proxy.ParserConf
	passHash []byte
}

func (s *Server) Name() string { return Name }

func readCRLF(r io.Reader) error {
	var bs [2]byte
	if _, err := io.ReadFull(r, bs[:]); err != nil {
		return err
	}
	if !bytes.Equal(bs[:], crlf) {
		return utils.ErrInErr{ErrDesc: "trojan crlf not match", ErrDetail: utils.ErrInvalidData, Data: bs}
	}
	return nil
}

func (s *Server) Parse(rw io.ReadWriter) (result proxy.Result, err error) {
	var hash [passHexLen]byte
	if _, err = io.ReadFull(rw, hash[:]); err != nil {
		return
	}
	if subtle.ConstantTimeCompare(hash[:], s.passHash) != 1 {
		if s.conf.EnforceUser {
			err = utils.ErrInErr{ErrDesc: "trojan password not match", ErrDetail: proxy.ErrAuthFailed}
			return
		}
		if ce := utils.CanLogDebug("trojan password mismatch, accepted anyway"); ce != nil {
			ce.Write(zap.ByteString("hash", hash[:8]))
		}
	}
	if err = readCRLF(rw); err != nil {
		return
	}

	var cmd [1]byte
	if _, err = io.ReadFull(rw, cmd[:]); err != nil {
		return
	}
	switch cmd[0] {
	case CmdConnect:
		result.Kind = netLayer.TCP
	case CmdUDPAssociate:
		result.Kind = netLayer.UDP
	default:
		err = utils.ErrInErr{ErrDesc: proxy.ErrUnsupportedCmd.ErrDesc, ErrDetail: utils.ErrInvalidData, Data: cmd[0]}
		return
	}

	if result.Target, err = netLayer.ReadSocksAddr(rw); err != nil {
		return
	}
	result.Target.Network = result.Kind.String()

	if err = readCRLF(rw); err != nil {
		return
	}

	if result.Kind == netLayer.UDP {
		result.Payload = &UDPConn{Reader: rw, Writer: rw, target: result.Target}
	} else {
		result.Payload = rw
	}
	return
}
