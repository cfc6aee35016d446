package netLayer

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOutboundFilter(t *testing.T) {
	f, err := NewOutboundFilter([]string{"10.0.0.0/8", "192.168.1.1", "fd00::/8"}, "", nil)
	require.NoError(t, err)

	require.Error(t, f.Check(net.ParseIP("10.1.2.3")))
	require.Error(t, f.Check(net.ParseIP("192.168.1.1")))
	require.NoError(t, f.Check(net.ParseIP("192.168.1.2")))
	require.Error(t, f.Check(net.ParseIP("fd00::1")))
	require.NoError(t, f.Check(net.ParseIP("8.8.8.8")))

	_, err = NewOutboundFilter([]string{"bad/cidr"}, "", nil)
	require.Error(t, err)

	_, err = NewOutboundFilter(nil, "", []string{"CN"})
	require.Error(t, err)

	var empty *OutboundFilter
	require.True(t, empty.IsEmpty())
	require.NoError(t, empty.Check(net.ParseIP("10.0.0.1")))
}

func TestDialerDenied(t *testing.T) {
	f, err := NewOutboundFilter([]string{"127.0.0.0/8"}, "", nil)
	require.NoError(t, err)

	d := &Dialer{Filter: f}
	_, err = d.DialContext(context.Background(), Addr{IP: net.ParseIP("127.0.0.1"), Port: 80})
	require.ErrorIs(t, err, ErrDenied.ErrDetail)
}

func TestDialerTCP(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()

	go func() {
		c, err := l.Accept()
		if err == nil {
			c.Write([]byte("x"))
			c.Close()
		}
	}()

	a, err := NewAddrByHostPort(l.Addr().String())
	require.NoError(t, err)

	c, err := (&Dialer{}).DialContext(context.Background(), a)
	require.NoError(t, err)
	defer c.Close()

	bs := make([]byte, 1)
	_, err = c.Read(bs)
	require.NoError(t, err)
	require.Equal(t, byte('x'), bs[0])
}
