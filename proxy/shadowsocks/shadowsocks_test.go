package shadowsocks_test

import (
	"bytes"
	"io"
	"testing"

	"github.com/e1732a364fed/ws_relay/netLayer"
	"github.com/e1732a364fed/ws_relay/proxy"
	_ "github.com/e1732a364fed/ws_relay/proxy/shadowsocks"
	"github.com/stretchr/testify/require"
)

type rwBuf struct {
	r *bytes.Reader
	w bytes.Buffer
}

func (b *rwBuf) Read(p []byte) (int, error)  { return b.r.Read(p) }
func (b *rwBuf) Write(p []byte) (int, error) { return b.w.Write(p) }

func TestShadowsocksDomain(t *testing.T) {
	conf, err := proxy.NewParserConf("a684455c-b14f-11ea-bf0d-42010aaa0003", false)
	require.NoError(t, err)
	ps, err := proxy.NewParsers(conf)
	require.NoError(t, err)

	target := netLayer.Addr{Name: "example.com", Port: 443}
	req := append(target.SocksBytes(), "GET / HTTP/1.1\r\nHost: example.com\r\n\r\n"...)
	require.Equal(t, proxy.Shadowsocks, proxy.Sniff(req))

	r, err := ps.ParseHeader(proxy.Shadowsocks, &rwBuf{r: bytes.NewReader(req)})
	require.NoError(t, err)
	require.Equal(t, "example.com:443", r.Target.String())
	require.Equal(t, netLayer.TCP, r.Kind)
	require.Equal(t, 2+len("example.com")+2, r.Consumed)

	rest, _ := io.ReadAll(r.Payload)
	require.Equal(t, "GET / HTTP/1.1\r\nHost: example.com\r\n\r\n", string(rest))
}

func TestShadowsocksZeroPort(t *testing.T) {
	conf, _ := proxy.NewParserConf("a684455c-b14f-11ea-bf0d-42010aaa0003", false)
	ps, _ := proxy.NewParsers(conf)

	req := []byte{1, 8, 8, 8, 8, 0, 0, 'x'}
	_, err := ps.ParseHeader(proxy.Shadowsocks, &rwBuf{r: bytes.NewReader(req)})
	require.Error(t, err)
}
