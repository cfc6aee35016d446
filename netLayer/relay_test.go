package netLayer

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRelayCountsAndClosesBoth(t *testing.T) {
	clientOuter, clientInner := net.Pipe()
	remoteInner, remoteOuter := net.Pipe()

	counter := &TrafficCounter{}
	target := &Addr{Name: "example.com", Port: 80}

	done := make(chan error, 1)
	go func() {
		done <- Relay(target, remoteInner, clientInner, counter)
	}()

	go func() {
		clientOuter.Write([]byte("hello"))
	}()
	buf := make([]byte, 5)
	_, err := io.ReadFull(remoteOuter, buf)
	require.NoError(t, err)
	require.Equal(t, "hello", string(buf))

	go func() {
		remoteOuter.Write([]byte("world!!"))
	}()
	buf = make([]byte, 7)
	_, err = io.ReadFull(clientOuter, buf)
	require.NoError(t, err)
	require.Equal(t, "world!!", string(buf))

	// 远端关闭后, 客户端一侧 也应该被关闭
	remoteOuter.Close()

	select {
	case err = <-done:
		require.NoError(t, err)
	case <-time.After(time.Second * 3):
		t.Fatal("relay did not finish")
	}

	_, err = clientOuter.Read(make([]byte, 1))
	require.Error(t, err)

	require.EqualValues(t, 5, counter.Up.Load())
	require.EqualValues(t, 7, counter.Down.Load())
}

func TestIdleTimer(t *testing.T) {
	fired := make(chan struct{})
	it := NewIdleTimer(time.Millisecond*80, func() { close(fired) })

	for i := 0; i < 4; i++ {
		time.Sleep(time.Millisecond * 30)
		it.Touch()
	}
	require.False(t, it.Fired())

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("idle timer never fired")
	}
	require.True(t, it.Fired())

	var nilTimer *IdleTimer
	nilTimer.Touch()
	nilTimer.Stop()
	require.Nil(t, NewIdleTimer(0, nil))
}
