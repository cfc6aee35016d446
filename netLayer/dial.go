package netLayer

import (
	"context"
	"net"
	"time"

	"github.com/e1732a364fed/ws_relay/utils"
	"go.uber.org/zap"
)

const DefaultDialTimeout = time.Second * 15

// Dialer 拨号 出站目标. 只拨号一次, 不重试.
type Dialer struct {
	Timeout  time.Duration
	Filter   *OutboundFilter
	Resolver *net.Resolver //为nil时 使用 net.DefaultResolver
}

func (d *Dialer) timeout() time.Duration {
	if d == nil || d.Timeout <= 0 {
		return DefaultDialTimeout
	}
	return d.Timeout
}

// DialContext 按 addr.Network 拨号, 空 Network 视为 tcp.
// 如果有 Filter, 域名会先被解析, 然后用第一个被允许的ip 拨号.
func (d *Dialer) DialContext(ctx context.Context, addr Addr) (net.Conn, error) {
	network := addr.Network
	if network == "" {
		network = "tcp"
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout())
	defer cancel()

	target := addr.String()

	if d != nil && !d.Filter.IsEmpty() {
		ip, err := d.pickAllowedIP(ctx, addr)
		if err != nil {
			return nil, err
		}
		target = net.JoinHostPort(ip.String(), itoa(addr.Port))
	}

	if ce := utils.CanLogDebug("dialing"); ce != nil {
		ce.Write(zap.String("network", network), zap.String("target", target))
	}

	var nd net.Dialer
	return nd.DialContext(ctx, network, target)
}

func (d *Dialer) pickAllowedIP(ctx context.Context, addr Addr) (net.IP, error) {
	if addr.IP != nil {
		if err := d.Filter.Check(addr.IP); err != nil {
			return nil, err
		}
		return addr.IP, nil
	}

	r := d.Resolver
	if r == nil {
		r = net.DefaultResolver
	}
	ips, err := r.LookupIPAddr(ctx, addr.Name)
	if err != nil {
		return nil, err
	}
	var lastErr error = utils.ErrInErr{ErrDesc: "no ip resolved", ErrDetail: utils.ErrFailed, Data: addr.Name}
	for _, ia := range ips {
		if err := d.Filter.Check(ia.IP); err != nil {
			lastErr = err
			continue
		}
		return ia.IP, nil
	}
	return nil, lastErr
}
