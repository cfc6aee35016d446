package tunnel

import (
	"context"
	"fmt"
	"io"
	"net"

	"github.com/e1732a364fed/ws_relay/netLayer"
	"github.com/e1732a364fed/ws_relay/proxy"
	"github.com/e1732a364fed/ws_relay/utils"
	"go.uber.org/zap"
)

// Connector 负责 出站: tcp 双向转发, 或 udp 的 单次 DoH 解析.
type Connector struct {
	Dialer   *netLayer.Dialer
	Resolver netLayer.Resolver

	// 直连失败时 再尝试一次 路由中给出的 代理地址
	ProxyFallback bool

	Stats *Stats
}

// Connect 阻塞 直到 转发结束.
func (c *Connector) Connect(ctx context.Context, s *Session, r proxy.Result) error {
	if r.Kind == netLayer.UDP {
		return c.resolveUDP(ctx, s, r)
	}
	return c.relayTCP(ctx, s, r)
}

func (c *Connector) dial(ctx context.Context, s *Session, target netLayer.Addr) (net.Conn, error) {
	target.Network = "tcp"
	conn, err := c.Dialer.DialContext(ctx, target)
	if err == nil {
		return conn, nil
	}

	fb := s.ProxyAddr
	if c.ProxyFallback && !fb.IsEmpty() && fb.String() != target.String() && ctx.Err() == nil {
		if ce := utils.CanLogInfo("direct dial failed, trying proxy address"); ce != nil {
			ce.Write(
				zap.Uint32("sid", s.ID),
				zap.String("target", target.String()),
				zap.String("proxy", fb.String()),
				zap.Error(err),
			)
		}
		fb.Network = "tcp"
		conn, err = c.Dialer.DialContext(ctx, fb)
		if err == nil {
			return conn, nil
		}
	}
	return nil, fmt.Errorf("%w: %s: %w", ErrConnectFailed, target.String(), err)
}

type localRWC struct {
	io.ReadWriter
	io.Closer
}

func (c *Connector) relayTCP(ctx context.Context, s *Session, r proxy.Result) error {
	conn, err := c.dial(ctx, s, r.Target)
	if err != nil {
		if s.adapter.PeerGone() {
			if ce := utils.CanLogDebug("client left while dialing"); ce != nil {
				ce.Write(zap.Uint32("sid", s.ID), zap.String("target", r.Target.String()))
			}
			return nil
		}
		return err
	}
	s.setOutbound(conn)

	var local io.ReadWriteCloser = localRWC{ReadWriter: r.Payload, Closer: s.adapter}
	var remote io.ReadWriteCloser = conn

	timer := netLayer.NewIdleTimer(s.conf.IdleTimeout, func() {
		s.cancel()
		conn.Close()
	})
	defer timer.Stop()
	if timer != nil {
		local = netLayer.IdleRWC{ReadWriteCloser: local, Timer: timer}
		remote = netLayer.IdleRWC{ReadWriteCloser: remote, Timer: timer}
	}

	err = netLayer.Relay(&r.Target, remote, local, &s.Counter)

	c.Stats.addTraffic(&s.Counter)

	if ce := utils.CanLogInfo(fmt.Sprintf("copied data from %s, up: %s and dl: %s",
		r.Target.String(),
		utils.FormatBytes(s.Counter.Up.Load()),
		utils.FormatBytes(s.Counter.Down.Load()),
	)); ce != nil {
		ce.Write(zap.Uint32("sid", s.ID))
	}

	if timer.Fired() {
		return ErrIdleTimeout
	}
	return err
}

// resolveUDP 只处理 一个 数据报: 读一次, 交给 DoH, 把 DoH 的响应 写回.
// 解析失败 时 静默丢弃, 不算 会话错误.
func (c *Connector) resolveUDP(ctx context.Context, s *Session, r proxy.Result) error {
	bs := utils.GetPacket()
	defer utils.PutPacket(bs)

	n, err := r.Payload.Read(bs)
	if n == 0 {
		if err == nil || err == io.EOF {
			return nil
		}
		return err
	}
	s.Counter.Up.Add(uint64(n))

	if c.Resolver == nil {
		if ce := utils.CanLogDebug("no resolver, udp datagram dropped"); ce != nil {
			ce.Write(zap.Uint32("sid", s.ID))
		}
		return nil
	}

	resp, err := c.Resolver.Resolve(ctx, bs[:n])
	if err != nil {
		if ce := utils.CanLogDebug("doh failed, udp datagram dropped"); ce != nil {
			ce.Write(zap.Uint32("sid", s.ID), zap.String("target", r.Target.String()), zap.Error(err))
		}
		return nil
	}

	if _, err = r.Payload.Write(resp); err != nil {
		return err
	}
	s.Counter.Down.Add(uint64(len(resp)))
	c.Stats.addTraffic(&s.Counter)
	return nil
}
