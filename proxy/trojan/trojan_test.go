package trojan_test

import (
	"bytes"
	"io"
	"net"
	"testing"

	"github.com/e1732a364fed/ws_relay/netLayer"
	"github.com/e1732a364fed/ws_relay/proxy"
	"github.com/e1732a364fed/ws_relay/proxy/trojan"
	"github.com/stretchr/testify/require"
)

const testUUID = "a684455c-b14f-11ea-bf0d-42010aaa0003"

type rwBuf struct {
	r *bytes.Reader
	w bytes.Buffer
}

func (b *rwBuf) Read(p []byte) (int, error)  { return b.r.Read(p) }
func (b *rwBuf) Write(p []byte) (int, error) { return b.w.Write(p) }

func newParsers(t *testing.T, enforce bool) proxy.Parsers {
	conf, err := proxy.NewParserConf(testUUID, enforce)
	require.NoError(t, err)
	ps, err := proxy.NewParsers(conf)
	require.NoError(t, err)
	return ps
}

func TestTrojanTCP(t *testing.T) {
	ps := newParsers(t, true)
	req := trojan.EncodeRequest(testUUID, trojan.CmdConnect, netLayer.Addr{Name: "example.com", Port: 443})
	require.Equal(t, proxy.Trojan, proxy.Sniff(append(req, "hello"...)[:proxy.SniffPeekLen]))

	rw := &rwBuf{r: bytes.NewReader(append(req, "hello"...))}
	r, err := ps.ParseHeader(proxy.Trojan, rw)
	require.NoError(t, err)
	require.Equal(t, "example.com:443", r.Target.String())
	require.Equal(t, netLayer.TCP, r.Kind)
	require.Equal(t, len(req), r.Consumed)

	rest, _ := io.ReadAll(r.Payload)
	require.Equal(t, "hello", string(rest))
}

func TestTrojanUDP(t *testing.T) {
	ps := newParsers(t, true)
	dns := netLayer.Addr{IP: net.ParseIP("1.1.1.1"), Port: 53}
	req := trojan.EncodeRequest(testUUID, trojan.CmdUDPAssociate, dns)
	req = append(req, trojan.EncodeUDPPacket(dns, []byte("query"))...)

	rw := &rwBuf{r: bytes.NewReader(req)}
	r, err := ps.ParseHeader(proxy.Trojan, rw)
	require.NoError(t, err)
	require.Equal(t, netLayer.UDP, r.Kind)

	bs := make([]byte, 3)
	n, err := r.Payload.Read(bs)
	require.NoError(t, err)
	require.Equal(t, "que", string(bs[:n]))
	n, err = r.Payload.Read(bs)
	require.NoError(t, err)
	require.Equal(t, "ry", string(bs[:n]))

	_, err = r.Payload.Write([]byte("answer"))
	require.NoError(t, err)
	require.Equal(t, trojan.EncodeUDPPacket(dns, []byte("answer")), rw.w.Bytes())
}

func TestTrojanErrors(t *testing.T) {
	target := netLayer.Addr{Name: "example.com", Port: 443}

	wrongPass := trojan.EncodeRequest("other", trojan.CmdConnect, target)
	_, err := newParsers(t, true).ParseHeader(proxy.Trojan, &rwBuf{r: bytes.NewReader(wrongPass)})
	require.ErrorIs(t, err, proxy.ErrAuthFailed)

	_, err = newParsers(t, false).ParseHeader(proxy.Trojan, &rwBuf{r: bytes.NewReader(wrongPass)})
	require.NoError(t, err)

	badCmd := trojan.EncodeRequest(testUUID, 2, target)
	_, err = newParsers(t, false).ParseHeader(proxy.Trojan, &rwBuf{r: bytes.NewReader(badCmd)})
	require.Error(t, err)

	noCRLF := trojan.EncodeRequest(testUUID, trojan.CmdConnect, target)
	noCRLF[57] = 'x'
	_, err = newParsers(t, false).ParseHeader(proxy.Trojan, &rwBuf{r: bytes.NewReader(noCRLF)})
	require.Error(t, err)
}
