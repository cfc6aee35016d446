/*
Package machine 把 运行一个 ws_relay 所需的 所有部件 组装起来, 对外像一个黑盒子.

关键点是不使用任何静态变量，所有变量都放在machine中; 除了 utils 里的 日志设置.
*/
package machine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/e1732a364fed/ws_relay/advLayer/ws"
	"github.com/e1732a364fed/ws_relay/config"
	"github.com/e1732a364fed/ws_relay/httpLayer"
	"github.com/e1732a364fed/ws_relay/netLayer"
	"github.com/e1732a364fed/ws_relay/proxy"
	"github.com/e1732a364fed/ws_relay/selector"
	"github.com/e1732a364fed/ws_relay/tunnel"
	"github.com/e1732a364fed/ws_relay/utils"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	_ "github.com/e1732a364fed/ws_relay/proxy/shadowsocks"
	_ "github.com/e1732a364fed/ws_relay/proxy/trojan"
	_ "github.com/e1732a364fed/ws_relay/proxy/vless"
	_ "github.com/e1732a364fed/ws_relay/proxy/vmess"
)

const shutdownTimeout = 5 * time.Second

type M struct {
	conf *config.Conf

	Parsers  proxy.Parsers
	Filter   *netLayer.OutboundFilter
	Store    selector.Store
	Selector *selector.Selector
	Registry *prometheus.Registry
	Stats    *tunnel.Stats
	Handler  *tunnel.Handler
	Router   *httpLayer.Router

	sync.Mutex
	running     atomic.Bool
	addr        atomic.String
	metricsAddr atomic.String

	ctx    context.Context
	cancel context.CancelFunc

	listener net.Listener
	server   *http.Server
	metrics  *http.Server
	done     chan struct{}
}

// New 按 conf 创建 所有部件, 但不监听. conf 应该已经 SetDefaults 与 Validate.
func New(conf *config.Conf) (_ *M, err error) {
	m := &M{conf: conf}
	defer func() {
		if err != nil {
			m.closeParts()
		}
	}()

	pc, err := proxy.NewParserConf(conf.Tunnel.UUID, conf.Tunnel.EnforceUser)
	if err != nil {
		return nil, err
	}
	if m.Parsers, err = proxy.NewParsers(pc); err != nil {
		return nil, err
	}

	oc := conf.Outbound
	if m.Filter, err = netLayer.NewOutboundFilter(oc.DenyCIDRs, oc.GeoipFile, oc.DenyCountries); err != nil {
		return nil, err
	}

	if conf.Selector.DBPath != "" {
		if m.Store, err = selector.OpenBoltStore(conf.Selector.DBPath); err != nil {
			return nil, utils.ErrInErr{ErrDesc: "open selector db failed", ErrDetail: err, Data: conf.Selector.DBPath}
		}
	} else {
		m.Store = selector.NewMemStore()
	}
	m.Selector = selector.New(conf.SelectorConf(), m.Store)

	m.Registry = prometheus.NewRegistry()
	m.Stats = tunnel.NewStats(m.Registry)

	m.Handler = &tunnel.Handler{
		Conf:    conf.TunnelConfig(),
		Parsers: m.Parsers,
		Connector: &tunnel.Connector{
			Dialer:        &netLayer.Dialer{Timeout: conf.DialTimeout(), Filter: m.Filter},
			Resolver:      netLayer.NewDoHResolver(conf.DNS.DoHURL, conf.DoHTimeout()),
			ProxyFallback: conf.Tunnel.ProxyFallback,
			Stats:         m.Stats,
		},
		Stats: m.Stats,
	}

	wsServer := ws.NewServer(conf.EarlyData(), 0)
	m.Router = httpLayer.NewRouter(conf.Tunnel.MainPageURL, m.Selector, wsServer, m.Handler)
	return m, nil
}

func (m *M) IsRunning() bool {
	return m.running.Load()
}

// Addr 返回 实际监听的地址, 未运行时 返回 空字符串
func (m *M) Addr() string {
	return m.addr.Load()
}

func (m *M) MetricsAddr() string {
	return m.metricsAddr.Load()
}

// Start 开始监听, 非阻塞.
func (m *M) Start() error {
	m.Lock()
	defer m.Unlock()
	if m.running.Load() {
		return nil
	}

	l, err := netLayer.Listen(m.conf.ListenConf())
	if err != nil {
		return err
	}

	m.ctx, m.cancel = context.WithCancel(context.Background())
	m.Router.BaseCtx = m.ctx
	m.listener = l
	m.server = &http.Server{
		Handler:           m.Router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       time.Minute,
		BaseContext:       func(net.Listener) context.Context { return m.ctx },
	}
	m.done = make(chan struct{})

	go func(srv *http.Server, done chan struct{}) {
		defer close(done)
		if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			if ce := utils.CanLogErr("http server stopped"); ce != nil {
				ce.Write(zap.Error(err))
			}
		}
	}(m.server, m.done)

	if addr := m.conf.Listen.MetricsAddr; addr != "" {
		if m.metrics, err = m.startMetricsServer(addr, m.conf.Listen.MetricsPass); err != nil {
			m.cancel()
			m.server.Close()
			<-m.done
			return err
		}
	}

	m.addr.Store(l.Addr().String())
	m.running.Store(true)
	if ce := utils.CanLogInfo("Starting..."); ce != nil {
		ce.Write(zap.String("addr", l.Addr().String()))
	}
	return nil
}

// Stop 停止监听, 取消 所有会话 并等待它们结束. Stop 之后 还可以 再次 Start.
func (m *M) Stop() {
	m.Lock()
	defer m.Unlock()
	if !m.running.Load() {
		return
	}
	if ce := utils.CanLogInfo("Stopping..."); ce != nil {
		ce.Write(zap.String("addr", m.addr.Load()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// 升级后的 ws连接 已被 hijack, Shutdown 不会等待它们, 所以要 取消 会话的ctx
	m.cancel()
	m.server.Shutdown(ctx)
	<-m.done
	if m.metrics != nil {
		m.metrics.Shutdown(ctx)
		m.metrics = nil
		m.metricsAddr.Store("")
	}
	m.Router.Wait()

	m.listener = nil
	m.addr.Store("")
	m.running.Store(false)
}

// Close 停止 并 释放 所有部件. Close 之后 m 不能再使用.
func (m *M) Close() error {
	m.Stop()
	return m.closeParts()
}

func (m *M) closeParts() error {
	var errs []error
	for _, p := range m.Parsers {
		if s, ok := p.(interface{ Stop() }); ok {
			s.Stop()
		}
	}
	if m.Store != nil {
		errs = append(errs, m.Store.Close())
	}
	if m.Selector != nil {
		m.Selector.Flush()
	}
	if m.Filter != nil {
		errs = append(errs, m.Filter.Close())
	}
	return errors.Join(errs...)
}

func (m *M) PrintAllState(w io.Writer) {
	if w == nil {
		w = os.Stdout
	}
	fmt.Fprintln(w, "running", m.IsRunning())
	if a := m.Addr(); a != "" {
		fmt.Fprintln(w, "listen", a)
	}
	fmt.Fprintln(w, "protocols", len(m.Parsers))
	for tag := range m.Parsers {
		fmt.Fprintln(w, "protocol", tag.String())
	}
}
