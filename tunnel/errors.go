package tunnel

import (
	"context"
	"errors"

	"github.com/e1732a364fed/ws_relay/proxy"
	"github.com/e1732a364fed/ws_relay/utils"
)

var (
	ErrNotEnoughData         = proxy.ErrNotEnoughData
	ErrProtocolNotRecognized = proxy.ErrProtocolNotRecognized

	ErrMessageTooLarge = utils.ErrInErr{ErrDesc: "message exceeds max message size", ErrDetail: utils.ErrInvalidData}

	ErrConnectFailed = errors.New("outbound connect failed")
	ErrIdleTimeout   = errors.New("session idle timeout")
	ErrSniffTimeout  = errors.New("sniff timeout")
)

// errKind 用于 指标 的 标签
func errKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotEnoughData):
		return "not_enough_data"
	case errors.Is(err, ErrProtocolNotRecognized):
		return "not_recognized"
	case errors.Is(err, ErrMessageTooLarge):
		return "message_too_large"
	case errors.Is(err, ErrConnectFailed):
		return "connect"
	case errors.Is(err, ErrIdleTimeout):
		return "idle"
	case errors.Is(err, ErrSniffTimeout):
		return "sniff_timeout"
	case errors.Is(err, proxy.ErrAuthFailed):
		return "auth"
	case errors.Is(err, context.Canceled):
		return "canceled"
	}
	return "other"
}
