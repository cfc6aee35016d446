package proxy

import (
	"errors"

	"github.com/e1732a364fed/ws_relay/utils"
)

var (
	ErrNotEnoughData         = errors.New("not enough data to sniff")
	ErrProtocolNotRecognized = errors.New("protocol not recognized")

	ErrAuthFailed = errors.New("auth failed")

	ErrUnsupportedCmd = utils.ErrInErr{ErrDesc: "unsupported command", ErrDetail: utils.ErrInvalidData}
)
