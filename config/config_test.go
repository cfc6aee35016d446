package config

import (
	"errors"
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/e1732a364fed/ws_relay/netLayer"
	"github.com/e1732a364fed/ws_relay/selector"
	"github.com/e1732a364fed/ws_relay/tunnel"
	"github.com/e1732a364fed/ws_relay/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConf = `
[app]
loglevel = 0
logfile = "relay.log"

[listen]
addr = "127.0.0.1:9000"
proxy_protocol = true
max_conns = 100
metrics_addr = "127.0.0.1:9100"

[tunnel]
uuid = "a684455c-b14f-11ea-bf0d-42010aaa0003"
main_page_url = "https://example.com/home"
proxy_kv_url = "https://example.com/kv.json"
max_message_size = 1024
sniff_timeout = 3
idle_timeout = 60
enforce_user = true
early_data = false

[dns]
doh_url = "https://dns.example.com/dns-query"
timeout = 2

[selector]
db_path = "relay.db"
ttl = 120

[outbound]
deny_cidrs = ["10.0.0.0/8"]
geoip_file = "GeoLite2-Country.mmdb"
deny_countries = [" kp "]
`

func writeConf(t *testing.T, content string) string {
	fn := filepath.Join(t.TempDir(), "relay.toml")
	require.NoError(t, os.WriteFile(fn, []byte(content), 0o600))
	return fn
}

func TestLoadFile(t *testing.T) {
	c, err := LoadFile(writeConf(t, testConf))
	require.NoError(t, err)

	require.NotNil(t, c.App)
	assert.Equal(t, 0, *c.App.LogLevel)
	assert.Equal(t, "relay.log", *c.App.LogFile)

	assert.Equal(t, "127.0.0.1:9000", c.Listen.Addr)
	lc := c.ListenConf()
	assert.True(t, lc.ProxyProtocol)
	assert.Equal(t, 100, lc.MaxConns)

	tc := c.TunnelConfig()
	assert.Equal(t, 1024, tc.MaxMessageSize)
	assert.Equal(t, tunnel.DefaultMaxBufferSize, tc.MaxBufferSize)
	assert.Equal(t, 3*time.Second, tc.SniffTimeout)
	assert.Equal(t, time.Minute, tc.IdleTimeout)
	assert.True(t, c.Tunnel.EnforceUser)
	assert.False(t, c.EarlyData())

	assert.Equal(t, 2*time.Second, c.DoHTimeout())
	assert.Equal(t, 15*time.Second, c.DialTimeout())

	sc := c.SelectorConf()
	assert.Equal(t, "https://example.com/kv.json", sc.ProxyKVURL)
	assert.Equal(t, 2*time.Minute, sc.TTL)
	assert.Equal(t, selector.DefaultRefreshInterval, sc.RefreshInterval)

	assert.Equal(t, []string{"KP"}, c.Outbound.DenyCountries)
}

func TestDefaults(t *testing.T) {
	c, err := LoadFromBytes([]byte(`[tunnel]
uuid = "a684455c-b14f-11ea-bf0d-42010aaa0003"`))
	require.NoError(t, err)
	c.SetDefaults()
	require.NoError(t, c.Validate())

	assert.Nil(t, c.App)
	assert.Equal(t, DefaultListenAddr, c.Listen.Addr)
	assert.Equal(t, DefaultDoHURL, c.DNS.DoHURL)
	assert.True(t, c.EarlyData())
	assert.Equal(t, tunnel.DefaultConfig(), c.TunnelConfig())
	assert.Equal(t, selector.DefaultTTL, c.SelectorConf().TTL)
}

func TestZeroTimeouts(t *testing.T) {
	c, err := LoadFromBytes([]byte(`[tunnel]
uuid = "a684455c-b14f-11ea-bf0d-42010aaa0003"
sniff_timeout = 0
idle_timeout = 0

[dns]
timeout = 0`))
	require.NoError(t, err)
	c.SetDefaults()
	require.NoError(t, c.Validate())

	tc := c.TunnelConfig()
	assert.Zero(t, tc.SniffTimeout)
	assert.Zero(t, tc.IdleTimeout)
	assert.Zero(t, c.DoHTimeout())
	assert.Equal(t, netLayer.DefaultDialTimeout, c.DialTimeout())
}

func TestApplyEnv(t *testing.T) {
	t.Setenv(EnvUUID, "b831381d-6324-4d53-ad4f-8cda48b30811")
	t.Setenv(EnvMainPageURL, "https://env.example.com")
	t.Setenv(EnvProxyKVURL, "")

	c, err := LoadFile(writeConf(t, testConf))
	require.NoError(t, err)
	assert.Equal(t, "b831381d-6324-4d53-ad4f-8cda48b30811", c.Tunnel.UUID)
	assert.Equal(t, "https://env.example.com", c.Tunnel.MainPageURL)
	assert.Equal(t, "https://example.com/kv.json", c.Tunnel.ProxyKVURL)
}

func TestValidate(t *testing.T) {
	valid := func() *Conf {
		c := &Conf{}
		c.Tunnel.UUID = "a684455c-b14f-11ea-bf0d-42010aaa0003"
		c.SetDefaults()
		return c
	}
	require.NoError(t, valid().Validate())

	cases := []struct {
		name   string
		modify func(c *Conf)
	}{
		{"no uuid", func(c *Conf) { c.Tunnel.UUID = "" }},
		{"bad uuid", func(c *Conf) { c.Tunnel.UUID = "not-a-uuid" }},
		{"bad main page", func(c *Conf) { c.Tunnel.MainPageURL = "::nope" }},
		{"bad doh", func(c *Conf) { c.DNS.DoHURL = "https://exa mple.com" }},
		{"unknown country", func(c *Conf) {
			c.Outbound.GeoipFile = "x.mmdb"
			c.Outbound.DenyCountries = []string{"QQ"}
		}},
		{"country without geoip", func(c *Conf) { c.Outbound.DenyCountries = []string{"KP"} }},
		{"message over buffer", func(c *Conf) {
			c.Tunnel.MaxMessageSize = 100
			c.Tunnel.MaxBufferSize = 10
		}},
		{"message over default buffer", func(c *Conf) { c.Tunnel.MaxMessageSize = tunnel.DefaultMaxBufferSize + 1 }},
		{"message over ws read limit", func(c *Conf) {
			c.Tunnel.MaxMessageSize = 2 << 20
			c.Tunnel.MaxBufferSize = 4 << 20
		}},
		{"negative idle", func(c *Conf) {
			v := -1
			c.Tunnel.IdleTimeout = &v
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := valid()
			tc.modify(c)
			err := c.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, utils.ErrWrongParameter) || errors.Is(err, utils.ErrInvalidData), err.Error())
		})
	}
}

func TestLoadBadFile(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)

	_, err = LoadFile(writeConf(t, "[tunnel\nuuid="))
	require.Error(t, err)
}

func TestAppConfSetup(t *testing.T) {
	oldLL, oldLF, oldGiven := utils.LogLevel, utils.LogFile, utils.GivenFlags
	defer func() { utils.LogLevel, utils.LogFile, utils.GivenFlags = oldLL, oldLF, oldGiven }()

	ll, lf := 3, "x.log"
	ac := &AppConf{LogLevel: &ll, LogFile: &lf}

	utils.GivenFlags = map[string]*flag.Flag{"ll": nil}
	utils.LogLevel = 1
	ac.Setup()
	assert.Equal(t, 1, utils.LogLevel)
	assert.Equal(t, "x.log", utils.LogFile)

	var nilConf *AppConf
	nilConf.Setup()
}
