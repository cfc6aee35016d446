package tunnel

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/e1732a364fed/ws_relay/advLayer"
	"github.com/e1732a364fed/ws_relay/netLayer"
	"github.com/e1732a364fed/ws_relay/proxy"
	"github.com/e1732a364fed/ws_relay/utils"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

type State int32

const (
	StateSniffing State = iota
	StateDispatching
	StateRelaying
	StateClosed
	StateErrored
)

func (st State) String() string {
	switch st {
	case StateSniffing:
		return "sniffing"
	case StateDispatching:
		return "dispatching"
	case StateRelaying:
		return "relaying"
	case StateClosed:
		return "closed"
	case StateErrored:
		return "errored"
	}
	return "unknown"
}

const (
	DefaultSniffTimeout = 10 * time.Second
	DefaultIdleTimeout  = 5 * time.Minute
)

type Config struct {
	PeekLen        int
	MaxMessageSize int
	MaxBufferSize  int

	// 0 表示 不限制
	SniffTimeout time.Duration
	IdleTimeout  time.Duration
}

func DefaultConfig() Config {
	return Config{
		PeekLen:        proxy.SniffPeekLen,
		MaxMessageSize: DefaultMaxMessageSize,
		MaxBufferSize:  DefaultMaxBufferSize,
		SniffTimeout:   DefaultSniffTimeout,
		IdleTimeout:    DefaultIdleTimeout,
	}
}

// Handler 持有 所有会话 共用的 只读部件.
type Handler struct {
	Conf      Config
	Parsers   proxy.Parsers
	Connector *Connector
	Stats     *Stats
}

// Serve 为 conn 创建会话 并处理, 阻塞 直到 会话结束.
// proxyAddr 是 路由 给出的 代理地址, 只在 启用 proxy_fallback 时 使用.
func (h *Handler) Serve(ctx context.Context, conn advLayer.FramedConn, proxyAddr netLayer.Addr) error {
	return h.NewSession(conn, proxyAddr).Process(ctx)
}

var lastSessionID atomic.Uint32

// Session 对应 一条 被接受的 分帧传输.
type Session struct {
	ID        uint32
	Tag       proxy.Tag
	Target    netLayer.Addr
	Kind      netLayer.TransportKind
	ProxyAddr netLayer.Addr

	// 只用于 日志 与 指标
	Counter netLayer.TrafficCounter

	h    *Handler
	conf Config
	conn advLayer.FramedConn

	adapter *Adapter
	cancel  context.CancelFunc
	state   atomic.Int32

	mu       sync.Mutex
	outbound io.Closer

	cleanupOnce sync.Once
}

func (h *Handler) NewSession(conn advLayer.FramedConn, proxyAddr netLayer.Addr) *Session {
	conf := h.Conf
	if conf.PeekLen <= 0 {
		conf.PeekLen = proxy.SniffPeekLen
	}
	return &Session{
		ID:        lastSessionID.Inc(),
		ProxyAddr: proxyAddr,
		h:         h,
		conf:      conf,
		conn:      conn,
	}
}

func (s *Session) State() State { return State(s.state.Load()) }

func (s *Session) setState(st State) { s.state.Store(int32(st)) }

func (s *Session) setOutbound(c io.Closer) {
	s.mu.Lock()
	s.outbound = c
	s.mu.Unlock()
}

// Process 运行 会话的 状态机, 返回 导致会话结束的 错误; 正常结束 返回 nil.
func (s *Session) Process(ctx context.Context) (err error) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.adapter = NewAdapter(ctx, s.conn, s.conf.MaxMessageSize, s.conf.MaxBufferSize)
	s.adapter.OnPeerClose = cancel

	s.h.Stats.sessionStart()
	defer func() {
		s.cleanup(err)
	}()

	// sniff 与 dispatch 共用 一个 超时
	sniffCtx, stop := s.sniffContext(ctx)

	s.setState(StateSniffing)
	if err = s.sniff(sniffCtx); err != nil {
		stop()
		return
	}

	s.setState(StateDispatching)
	result, err := s.dispatch(ctx, sniffCtx)
	stop()
	if err != nil {
		return
	}

	s.setState(StateRelaying)
	if ce := utils.CanLogInfo("relaying"); ce != nil {
		ce.Write(
			zap.Uint32("sid", s.ID),
			zap.String("tag", s.Tag.String()),
			zap.String("target", s.Target.String()),
			zap.String("network", s.Kind.String()),
			zap.Int("header", result.Consumed),
		)
	}
	// 拨号 与 DoH 期间 没有人读取 客户端; 由 watchPeer 负责 及时发现 客户端 断开.
	s.adapter.watchPeer()
	err = s.h.Connector.Connect(ctx, s, result)
	return
}

func (s *Session) sniffContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.conf.SniffTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.conf.SniffTimeout)
}

func sniffErr(sniffCtx context.Context, err error) error {
	if errors.Is(sniffCtx.Err(), context.DeadlineExceeded) {
		return utils.ErrInErr{ErrDesc: ErrSniffTimeout.Error(), ErrDetail: ErrSniffTimeout, Data: err.Error()}
	}
	return err
}

func (s *Session) sniff(sniffCtx context.Context) error {
	if err := s.adapter.FillUntil(sniffCtx, s.conf.PeekLen); err != nil {
		return sniffErr(sniffCtx, err)
	}

	if n := s.adapter.Buffered(); n < s.conf.PeekLen/2 {
		return utils.ErrInErr{ErrDesc: ErrNotEnoughData.Error(), ErrDetail: ErrNotEnoughData, Data: n}
	}

	s.Tag = proxy.Sniff(s.adapter.Peek(s.conf.PeekLen))
	if s.Tag == proxy.Unrecognized {
		return ErrProtocolNotRecognized
	}
	s.h.Stats.sniffed(s.Tag.String())

	if ce := utils.CanLogDebug("sniffed"); ce != nil {
		ce.Write(zap.Uint32("sid", s.ID), zap.String("tag", s.Tag.String()), zap.Int("buffered", s.adapter.Buffered()))
	}
	return nil
}

func (s *Session) dispatch(ctx, sniffCtx context.Context) (proxy.Result, error) {
	s.adapter.setContext(sniffCtx)
	defer s.adapter.setContext(ctx)

	r, err := s.h.Parsers.ParseHeader(s.Tag, s.adapter)
	if err != nil {
		return r, sniffErr(sniffCtx, err)
	}
	s.Target = r.Target
	s.Kind = r.Kind
	return r, nil
}

func (s *Session) cleanup(err error) {
	s.cleanupOnce.Do(func() {
		s.cancel()

		s.mu.Lock()
		ob := s.outbound
		s.mu.Unlock()
		if ob != nil {
			ob.Close()
		}
		s.adapter.Shutdown()

		if err != nil {
			s.setState(StateErrored)
		} else {
			s.setState(StateClosed)
		}
		s.h.Stats.sessionEnd(err)

		if err == nil {
			if ce := utils.CanLogDebug("session closed"); ce != nil {
				ce.Write(zap.Uint32("sid", s.ID), zap.String("tag", s.Tag.String()), zap.String("target", s.Target.String()))
			}
			return
		}
		if ce := utils.CanLogWarn("session failed"); ce != nil {
			ce.Write(
				zap.Uint32("sid", s.ID),
				zap.String("tag", s.Tag.String()),
				zap.String("target", s.Target.String()),
				zap.Error(err),
			)
		}
	})
}
