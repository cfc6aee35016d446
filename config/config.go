/*
Package config 读取 toml 配置文件, 并用 环境变量 与 命令行参数 覆盖.

优先级: 命令行 > 环境变量 > 配置文件 > 默认值.

	[app]
	loglevel = 1
	logfile = "ws_relay.log"

	[listen]
	addr = "0.0.0.0:8080"
	proxy_protocol = false
	max_conns = 0
	metrics_addr = "127.0.0.1:9100"

	[tunnel]
	uuid = "a684455c-b14f-11ea-bf0d-42010aaa0003"
	main_page_url = "https://example.com"
	proxy_kv_url = "https://example.com/proxy_kv.json"
	max_message_size = 65536   # 不能大于 max_buffer_size, 也不能大于 1MiB
	max_buffer_size = 524288
	sniff_timeout = 10   # 秒, 0 表示 不限时
	idle_timeout = 300   # 秒, 0 表示 不限时
	dial_timeout = 15    # 秒, 0 表示 使用 拨号器 默认值
	enforce_user = false
	proxy_fallback = false

	[dns]
	doh_url = "https://1.1.1.1/dns-query"

	[selector]
	db_path = "ws_relay.db"
	ttl = 21600          # 秒

	[outbound]
	deny_cidrs = ["127.0.0.0/8", "10.0.0.0/8"]
	geoip_file = "GeoLite2-Country.mmdb"
	deny_countries = ["KP"]
*/
package config

import (
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/asaskevich/govalidator"
	"github.com/biter777/countries"
	"github.com/e1732a364fed/ws_relay/advLayer/ws"
	"github.com/e1732a364fed/ws_relay/netLayer"
	"github.com/e1732a364fed/ws_relay/selector"
	"github.com/e1732a364fed/ws_relay/tunnel"
	"github.com/e1732a364fed/ws_relay/utils"
)

const (
	DefaultListenAddr = "0.0.0.0:8080"
	DefaultDoHURL     = netLayer.DefaultDoHURL

	// 与 worker 环境变量 同名
	EnvUUID        = "UUID"
	EnvMainPageURL = "MAIN_PAGE_URL"
	EnvProxyKVURL  = "PROXY_KV_URL"
)

// Conf 是 整个配置文件.
type Conf struct {
	App      *AppConf     `toml:"app"`
	Listen   ListenConf   `toml:"listen"`
	Tunnel   TunnelConf   `toml:"tunnel"`
	DNS      DNSConf      `toml:"dns"`
	Selector SelectorConf `toml:"selector"`
	Outbound OutboundConf `toml:"outbound"`
}

// AppConf 配置App级别的配置
type AppConf struct {
	LogLevel *int    `toml:"loglevel"` //需要为指针, 否则无法判断0到底是未给出的默认值还是 显式声明的0
	LogFile  *string `toml:"logfile"`
}

type ListenConf struct {
	Addr          string `toml:"addr"`
	ProxyProtocol bool   `toml:"proxy_protocol"`
	MaxConns      int    `toml:"max_conns"`
	MetricsAddr   string `toml:"metrics_addr"` //为空时 不开启 /metrics
	MetricsPass   string `toml:"metrics_pass"` //不为空时 用 basic auth 保护, 用户名为 admin
}

type TunnelConf struct {
	UUID        string `toml:"uuid"`
	MainPageURL string `toml:"main_page_url"`
	ProxyKVURL  string `toml:"proxy_kv_url"`

	PeekLen        int   `toml:"peek_len"`
	MaxMessageSize int   `toml:"max_message_size"`
	MaxBufferSize  int   `toml:"max_buffer_size"`
	SniffTimeout   *int  `toml:"sniff_timeout"`
	IdleTimeout    *int  `toml:"idle_timeout"`
	DialTimeout    *int  `toml:"dial_timeout"`
	EnforceUser    bool  `toml:"enforce_user"`
	ProxyFallback  bool  `toml:"proxy_fallback"`
	EarlyData      *bool `toml:"early_data"`
}

type DNSConf struct {
	DoHURL  string `toml:"doh_url"`
	Timeout *int   `toml:"timeout"`
}

type SelectorConf struct {
	DBPath          string `toml:"db_path"` //为空时 只使用 内存缓存
	TTL             *int   `toml:"ttl"`
	RefreshInterval *int   `toml:"refresh_interval"`
	RetryMax        int    `toml:"retry_max"`
}

type OutboundConf struct {
	DenyCIDRs     []string `toml:"deny_cidrs"`
	GeoipFile     string   `toml:"geoip_file"`
	DenyCountries []string `toml:"deny_countries"`
}

// seconds 只在 未配置 时 返回 def; 配置为 0 时 返回 0, 由 使用方 决定 0 的含义.
func seconds(p *int, def time.Duration) time.Duration {
	if p == nil {
		return def
	}
	return time.Duration(*p) * time.Second
}

func LoadFromBytes(bs []byte) (c *Conf, err error) {
	c = new(Conf)
	if _, err = toml.Decode(string(bs), c); err != nil {
		return nil, utils.ErrInErr{ErrDesc: "can not parse config", ErrDetail: err}
	}
	return
}

// LoadFile 读取 fn, 然后 应用 环境变量覆盖 与 默认值, 并检查.
func LoadFile(fn string) (*Conf, error) {
	bs, err := os.ReadFile(fn)
	if err != nil {
		return nil, utils.ErrInErr{ErrDesc: "can't open config file", ErrDetail: err, Data: fn}
	}
	c, err := LoadFromBytes(bs)
	if err != nil {
		return nil, err
	}
	c.ApplyEnv()
	c.SetDefaults()
	return c, c.Validate()
}

// ApplyEnv 用 UUID, MAIN_PAGE_URL, PROXY_KV_URL 覆盖 对应配置
func (c *Conf) ApplyEnv() {
	if v := os.Getenv(EnvUUID); v != "" {
		c.Tunnel.UUID = v
	}
	if v := os.Getenv(EnvMainPageURL); v != "" {
		c.Tunnel.MainPageURL = v
	}
	if v := os.Getenv(EnvProxyKVURL); v != "" {
		c.Tunnel.ProxyKVURL = v
	}
}

func (c *Conf) SetDefaults() {
	if c.Listen.Addr == "" {
		c.Listen.Addr = DefaultListenAddr
	}
	if c.DNS.DoHURL == "" {
		c.DNS.DoHURL = DefaultDoHURL
	}
	for i, cc := range c.Outbound.DenyCountries {
		c.Outbound.DenyCountries[i] = strings.ToUpper(strings.TrimSpace(cc))
	}
}

// Validate 检查 必填项 与 格式. uuid 是 必填的, 它是 所有协议 的 身份.
func (c *Conf) Validate() error {
	if c.Tunnel.UUID == "" {
		return utils.ErrInErr{ErrDesc: "tunnel.uuid is required", ErrDetail: utils.ErrWrongParameter}
	}
	if !govalidator.IsUUID(c.Tunnel.UUID) {
		return utils.ErrInErr{ErrDesc: "tunnel.uuid is not a valid uuid", ErrDetail: utils.ErrWrongParameter, Data: c.Tunnel.UUID}
	}
	if _, err := utils.StrToUUID(c.Tunnel.UUID); err != nil {
		return utils.ErrInErr{ErrDesc: "tunnel.uuid is not a valid uuid", ErrDetail: err, Data: c.Tunnel.UUID}
	}

	for _, u := range []struct{ name, v string }{
		{"tunnel.main_page_url", c.Tunnel.MainPageURL},
		{"tunnel.proxy_kv_url", c.Tunnel.ProxyKVURL},
		{"dns.doh_url", c.DNS.DoHURL},
	} {
		if u.v != "" && !govalidator.IsURL(u.v) {
			return utils.ErrInErr{ErrDesc: u.name + " is not a valid url", ErrDetail: utils.ErrWrongParameter, Data: u.v}
		}
	}

	for _, d := range []struct {
		name string
		v    *int
	}{
		{"tunnel.sniff_timeout", c.Tunnel.SniffTimeout},
		{"tunnel.idle_timeout", c.Tunnel.IdleTimeout},
		{"tunnel.dial_timeout", c.Tunnel.DialTimeout},
		{"dns.timeout", c.DNS.Timeout},
		{"selector.ttl", c.Selector.TTL},
		{"selector.refresh_interval", c.Selector.RefreshInterval},
	} {
		if d.v != nil && *d.v < 0 {
			return utils.ErrInErr{ErrDesc: d.name + " can not be negative", ErrDetail: utils.ErrWrongParameter, Data: *d.v}
		}
	}

	tc := c.TunnelConfig()
	if tc.MaxMessageSize > tc.MaxBufferSize {
		return utils.ErrInErr{ErrDesc: "tunnel.max_message_size is larger than tunnel.max_buffer_size", ErrDetail: utils.ErrWrongParameter, Data: tc.MaxMessageSize}
	}
	if tc.MaxMessageSize > ws.DefaultReadLimit {
		return utils.ErrInErr{ErrDesc: "tunnel.max_message_size is larger than the websocket read limit", ErrDetail: utils.ErrWrongParameter, Data: tc.MaxMessageSize}
	}

	for _, cc := range c.Outbound.DenyCountries {
		if countries.ByName(cc) == countries.Unknown {
			return utils.ErrInErr{ErrDesc: "unknown country code in outbound.deny_countries", ErrDetail: utils.ErrWrongParameter, Data: cc}
		}
	}
	if len(c.Outbound.DenyCountries) > 0 && c.Outbound.GeoipFile == "" {
		return utils.ErrInErr{ErrDesc: "outbound.deny_countries needs outbound.geoip_file", ErrDetail: utils.ErrWrongParameter}
	}
	return nil
}

// Setup 把 [app] 应用到 utils 的 全局日志设置. 命令行 给出的 -ll, -lf 优先.
func (ac *AppConf) Setup() {
	if ac == nil {
		return
	}
	if ac.LogFile != nil && !utils.IsFlagGiven("lf") {
		utils.LogFile = *ac.LogFile
	}
	if ac.LogLevel != nil && !utils.IsFlagGiven("ll") {
		utils.LogLevel = *ac.LogLevel
	}
}

// TunnelConfig 转换为 tunnel 包 使用的 会话配置
func (c *Conf) TunnelConfig() tunnel.Config {
	tc := tunnel.DefaultConfig()
	if c.Tunnel.PeekLen > 0 {
		tc.PeekLen = c.Tunnel.PeekLen
	}
	if c.Tunnel.MaxMessageSize > 0 {
		tc.MaxMessageSize = c.Tunnel.MaxMessageSize
	}
	if c.Tunnel.MaxBufferSize > 0 {
		tc.MaxBufferSize = c.Tunnel.MaxBufferSize
	}
	tc.SniffTimeout = seconds(c.Tunnel.SniffTimeout, tunnel.DefaultSniffTimeout)
	tc.IdleTimeout = seconds(c.Tunnel.IdleTimeout, tunnel.DefaultIdleTimeout)
	return tc
}

func (c *Conf) DialTimeout() time.Duration {
	return seconds(c.Tunnel.DialTimeout, netLayer.DefaultDialTimeout)
}

func (c *Conf) DoHTimeout() time.Duration {
	return seconds(c.DNS.Timeout, netLayer.DefaultDoHTimeout)
}

func (c *Conf) EarlyData() bool {
	return c.Tunnel.EarlyData == nil || *c.Tunnel.EarlyData
}

func (c *Conf) SelectorConf() selector.Conf {
	return selector.Conf{
		ProxyKVURL:      c.Tunnel.ProxyKVURL,
		TTL:             seconds(c.Selector.TTL, selector.DefaultTTL),
		RefreshInterval: seconds(c.Selector.RefreshInterval, selector.DefaultRefreshInterval),
		RetryMax:        c.Selector.RetryMax,
	}
}

func (c *Conf) ListenConf() netLayer.ListenConf {
	return netLayer.ListenConf{
		Addr:          c.Listen.Addr,
		ProxyProtocol: c.Listen.ProxyProtocol,
		MaxConns:      c.Listen.MaxConns,
	}
}
