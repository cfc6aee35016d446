package vless_test

import (
	"bytes"
	"encoding/binary"
	"io"
	"net"
	"testing"

	"github.com/e1732a364fed/ws_relay/netLayer"
	"github.com/e1732a364fed/ws_relay/proxy"
	"github.com/e1732a364fed/ws_relay/proxy/vless"
	"github.com/stretchr/testify/require"
)

const testUUID = "a684455c-b14f-11ea-bf0d-42010aaa0003"

type rwBuf struct {
	r *bytes.Reader
	w bytes.Buffer
}

func (b *rwBuf) Read(p []byte) (int, error)  { return b.r.Read(p) }
func (b *rwBuf) Write(p []byte) (int, error) { return b.w.Write(p) }

func newParsers(t *testing.T, enforce bool) (proxy.Parsers, *proxy.ParserConf) {
	conf, err := proxy.NewParserConf(testUUID, enforce)
	require.NoError(t, err)
	ps, err := proxy.NewParsers(conf)
	require.NoError(t, err)
	return ps, conf
}

func TestVlessTCP(t *testing.T) {
	ps, conf := newParsers(t, true)

	target := netLayer.Addr{Name: "example.com", Port: 443}
	req := vless.EncodeRequest(conf.UUID, vless.CmdTCP, target, []byte{1, 2, 3})
	require.Equal(t, proxy.VLESS, proxy.Sniff(append(req, "GET / HTTP/1.1\r\n"...)))

	rw := &rwBuf{r: bytes.NewReader(append(req, "payload"...))}
	r, err := ps.ParseHeader(proxy.VLESS, rw)
	require.NoError(t, err)
	require.Equal(t, "example.com:443", r.Target.String())
	require.Equal(t, netLayer.TCP, r.Kind)
	require.Equal(t, len(req), r.Consumed)

	rest, err := io.ReadAll(r.Payload)
	require.NoError(t, err)
	require.Equal(t, "payload", string(rest))

	_, err = r.Payload.Write([]byte("resp"))
	require.NoError(t, err)
	require.Equal(t, append([]byte{0, 0}, "resp"...), rw.w.Bytes())
}

func TestVlessUDP(t *testing.T) {
	ps, conf := newParsers(t, false)

	target := netLayer.Addr{IP: net.ParseIP("8.8.8.8"), Port: 53}
	req := vless.EncodeRequest(conf.UUID, vless.CmdUDP, target, nil)
	req = append(req, 0, 3, 'a', 'b', 'c')

	rw := &rwBuf{r: bytes.NewReader(req)}
	r, err := ps.ParseHeader(proxy.VLESS, rw)
	require.NoError(t, err)
	require.Equal(t, netLayer.UDP, r.Kind)
	require.Equal(t, "8.8.8.8:53", r.Target.String())

	bs := make([]byte, 100)
	n, err := r.Payload.Read(bs)
	require.NoError(t, err)
	require.Equal(t, "abc", string(bs[:n]))

	_, err = r.Payload.Write([]byte("xyz"))
	require.NoError(t, err)
	out := rw.w.Bytes()
	require.Equal(t, []byte{0, 0}, out[:2])
	require.EqualValues(t, 3, binary.BigEndian.Uint16(out[2:4]))
	require.Equal(t, "xyz", string(out[4:]))
}

func TestVlessBadUser(t *testing.T) {
	var other [16]byte
	other[0] = 9
	req := vless.EncodeRequest(other, vless.CmdTCP, netLayer.Addr{Name: "a.com", Port: 80}, nil)

	strict, _ := newParsers(t, true)
	_, err := strict.ParseHeader(proxy.VLESS, &rwBuf{r: bytes.NewReader(req)})
	require.ErrorIs(t, err, proxy.ErrAuthFailed)

	loose, _ := newParsers(t, false)
	_, err = loose.ParseHeader(proxy.VLESS, &rwBuf{r: bytes.NewReader(req)})
	require.NoError(t, err)
}

func TestVlessBadHeader(t *testing.T) {
	ps, conf := newParsers(t, false)

	req := vless.EncodeRequest(conf.UUID, vless.CmdMux, netLayer.Addr{Name: "a.com", Port: 80}, nil)
	_, err := ps.ParseHeader(proxy.VLESS, &rwBuf{r: bytes.NewReader(req)})
	require.Error(t, err)

	req = vless.EncodeRequest(conf.UUID, vless.CmdTCP, netLayer.Addr{Name: "a.com", Port: 0}, nil)
	_, err = ps.ParseHeader(proxy.VLESS, &rwBuf{r: bytes.NewReader(req)})
	require.Error(t, err)

	_, err = ps.ParseHeader(proxy.VLESS, &rwBuf{r: bytes.NewReader(req[:10])})
	require.Error(t, err)
}
