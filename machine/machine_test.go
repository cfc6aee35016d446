package machine

import (
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/e1732a364fed/ws_relay/advLayer"
	"github.com/e1732a364fed/ws_relay/advLayer/ws"
	"github.com/e1732a364fed/ws_relay/config"
	"github.com/e1732a364fed/ws_relay/netLayer"
	"github.com/e1732a364fed/ws_relay/proxy"
	"github.com/e1732a364fed/ws_relay/proxy/trojan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testUUID = "a684455c-b14f-11ea-bf0d-42010aaa0003"

func testConf(t *testing.T) *config.Conf {
	c, err := config.LoadFromBytes([]byte(`
[listen]
addr = "127.0.0.1:0"
metrics_addr = "127.0.0.1:0"
metrics_pass = "secret"

[tunnel]
uuid = "` + testUUID + `"
main_page_url = "https://example.com/home"
idle_timeout = 5
`))
	require.NoError(t, err)
	c.SetDefaults()
	require.NoError(t, c.Validate())
	return c
}

func echoTarget(t *testing.T) netLayer.Addr {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				io.Copy(c, c)
				c.Close()
			}()
		}
	}()
	a := ln.Addr().(*net.TCPAddr)
	return netLayer.Addr{IP: a.IP, Port: a.Port}
}

func noRedirectClient() *http.Client {
	return &http.Client{
		Timeout: 5 * time.Second,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func TestNewStartStop(t *testing.T) {
	m, err := New(testConf(t))
	require.NoError(t, err)
	defer m.Close()

	require.Len(t, m.Parsers, 4)
	for _, tag := range []proxy.Tag{proxy.VLESS, proxy.Shadowsocks, proxy.Trojan, proxy.VMess} {
		assert.Contains(t, m.Parsers, tag)
	}

	require.False(t, m.IsRunning())
	require.NoError(t, m.Start())
	require.True(t, m.IsRunning())
	require.NotEmpty(t, m.Addr())
	require.NoError(t, m.Start())

	resp, err := noRedirectClient().Get("http://" + m.Addr() + "/")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusFound, resp.StatusCode)
	require.Equal(t, "https://example.com/home", resp.Header.Get("Location"))

	m.Stop()
	require.False(t, m.IsRunning())
	require.Empty(t, m.Addr())
	m.Stop()

	require.NoError(t, m.Start())
	require.True(t, m.IsRunning())
	m.Stop()
}

func TestTrojanTunnel(t *testing.T) {
	m, err := New(testConf(t))
	require.NoError(t, err)
	defer m.Close()
	require.NoError(t, m.Start())

	target := echoTarget(t)
	payload := []byte("trojan payload through the whole machine, long enough to sniff it")
	first := append(trojan.EncodeRequest(testUUID, trojan.CmdConnect, target), payload...)

	c, err := ws.Dial(context.Background(), "ws://"+m.Addr()+"/free/proxy.example.com:443", nil)
	require.NoError(t, err)
	require.NoError(t, c.Send(first))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var got []byte
	for len(got) < len(payload) {
		msg, err := c.NextMessage(ctx)
		require.NoError(t, err)
		require.Equal(t, advLayer.MsgData, msg.Kind)
		got = append(got, msg.Data...)
	}
	require.Equal(t, payload, got)

	// Stop 要能 结束 仍在转发中的 会话
	m.Stop()
	msg, err := c.NextMessage(ctx)
	if err == nil {
		require.Equal(t, advLayer.MsgClose, msg.Kind)
	}
	c.Close(advLayer.CloseNormal, "")
}

func TestMetricsServer(t *testing.T) {
	m, err := New(testConf(t))
	require.NoError(t, err)
	defer m.Close()
	require.NoError(t, m.Start())
	defer m.Stop()

	url := "http://" + m.MetricsAddr()

	resp, err := http.Get(url + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	get := func(path string) string {
		req, err := http.NewRequest(http.MethodGet, url+path, nil)
		require.NoError(t, err)
		req.SetBasicAuth(metricsUser, "secret")
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		bs, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return string(bs)
	}

	assert.Contains(t, get("/metrics"), "ws_relay_sessions_active")

	state := get("/api/allstate")
	assert.True(t, strings.HasPrefix(state, "running true"), state)
	assert.Contains(t, state, m.Addr())
}

func TestNewBadOutbound(t *testing.T) {
	c := testConf(t)
	c.Outbound.DenyCIDRs = []string{"not a cidr"}
	_, err := New(c)
	require.Error(t, err)

	c = testConf(t)
	c.Outbound.DenyCountries = []string{"KP"}
	c.Outbound.GeoipFile = "/nonexistent/GeoLite2-Country.mmdb"
	_, err = New(c)
	require.Error(t, err)
}
