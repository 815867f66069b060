// SPDX-License-Identifier: GPL-3.0-or-later

package emucore

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/chargen/sockem/emuconf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testAppSocket adapts a dialed connection to the [AppSocket]
// interface, standing in for a harness-managed application socket.
type testAppSocket struct {
	id         SocketID
	conn       net.Conn
	connectErr error
}

func (s *testAppSocket) ID() SocketID { return s.id }

func (s *testAppSocket) Connect(ctx context.Context, network, address string) error {
	if s.connectErr != nil {
		return s.connectErr
	}
	child := &net.Dialer{}
	conn, err := child.DialContext(ctx, network, address)
	if err != nil {
		return err
	}
	s.conn = conn
	return nil
}

// echoLoop echoes every connection accepted from the listener.
func echoLoop(lis net.Listener) {
	for {
		conn, err := lis.Accept()
		if err != nil {
			return
		}
		go func() {
			defer conn.Close()
			io.Copy(conn, conn)
		}()
	}
}

// startEchoServer starts a TCP echo server for the test duration.
func startEchoServer(t *testing.T, network, address string) net.Addr {
	lis, err := net.Listen(network, address)
	require.NoError(t, err)
	t.Cleanup(func() { lis.Close() })
	go echoLoop(lis)
	return lis.Addr()
}

// establishForTest establishes an emulated connection to the given
// address and arranges for teardown at the end of the test. It
// returns the handle and the application side of the connection.
func establishForTest(t *testing.T, mgr *Manager, id SocketID,
	address string, options ...emuconf.Option) (*Handle, net.Conn) {
	sock := &testAppSocket{id: id}
	h, err := mgr.Establish(context.Background(), sock, address, options...)
	require.NoError(t, err)
	require.NotNil(t, sock.conn)
	t.Cleanup(func() { h.Close() })
	t.Cleanup(func() { sock.conn.Close() })
	return h, sock.conn
}

func TestWaitTimeout(t *testing.T) {
	tests := []struct {
		name string
		conf emuconf.Config
		want time.Duration
	}{
		{
			name: "idle configuration waits a full second",
			conf: emuconf.Config{},
			want: time.Second,
		},

		{
			name: "delay and jitter wait the smaller one",
			conf: emuconf.Config{Delay: 50, Jitter: 10},
			want: 10 * time.Millisecond,
		},

		{
			name: "delay only clamps to a millisecond",
			conf: emuconf.Config{Delay: 50},
			want: time.Millisecond,
		},

		{
			name: "jitter only clamps to a millisecond",
			conf: emuconf.Config{Jitter: 30},
			want: time.Millisecond,
		},

		{
			name: "jitter above delay waits the delay",
			conf: emuconf.Config{Delay: 5, Jitter: 200},
			want: 5 * time.Millisecond,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, waitTimeout(tt.conf))
		})
	}
}

func TestInjectedDelay(t *testing.T) {
	tests := []struct {
		name string
		conf emuconf.Config
		want time.Duration
	}{
		{
			name: "no impairment",
			conf: emuconf.Config{},
			want: 0,
		},

		{
			name: "delay plus half the jitter",
			conf: emuconf.Config{Delay: 50, Jitter: 10},
			want: 55 * time.Millisecond,
		},

		{
			name: "odd jitter truncates",
			conf: emuconf.Config{Delay: 10, Jitter: 5},
			want: 12 * time.Millisecond,
		},

		{
			name: "jitter only",
			conf: emuconf.Config{Jitter: 7},
			want: 3 * time.Millisecond,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, injectedDelay(tt.conf))
		})
	}
}

func TestRelayByteFidelity(t *testing.T) {
	mgr := &Manager{}
	addr := startEchoServer(t, "tcp4", "127.0.0.1:0")
	_, conn := establishForTest(t, mgr, 1, addr.String(),
		emuconf.Option{Key: emuconf.KeyBufferSize, Value: 4096})

	// a payload larger than the relay chunk size, so the engine
	// has to forward it in several chunks
	payload := make([]byte, 3*4096+17)
	for i := range payload {
		payload[i] = byte(i % 251)
	}

	conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	_, err := conn.Write(payload)
	require.NoError(t, err)

	echoed := make([]byte, len(payload))
	_, err = io.ReadFull(conn, echoed)
	require.NoError(t, err)
	assert.Equal(t, payload, echoed)
}

func TestImpairedPingPong(t *testing.T) {
	mgr := &Manager{}

	lis, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { lis.Close() })

	received := make(chan time.Time, 1)
	go func() {
		conn, err := lis.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 4)
		if _, err := io.ReadFull(conn, buf); err != nil {
			return
		}
		received <- time.Now()
		conn.Write([]byte("PONG"))
	}()

	_, conn := establishForTest(t, mgr, 1, lis.Addr().String(),
		emuconf.Option{Key: emuconf.KeyDelay, Value: 50},
		emuconf.Option{Key: emuconf.KeyJitter, Value: 10},
		emuconf.Option{Key: emuconf.KeyBufferSize, Value: 4096})

	t0 := time.Now()
	_, err = conn.Write([]byte("PING"))
	require.NoError(t, err)

	buf := make([]byte, 4)
	conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	_, err = io.ReadFull(conn, buf)
	require.NoError(t, err)
	t2 := time.Now()
	require.Equal(t, "PONG", string(buf))
	t1 := <-received

	// each direction injects delay + jitter/2 = 55ms
	assert.GreaterOrEqual(t, t1.Sub(t0), 55*time.Millisecond)
	assert.GreaterOrEqual(t, t2.Sub(t1), 55*time.Millisecond)
}

func TestLiveReconfigure(t *testing.T) {
	mgr := &Manager{}
	addr := startEchoServer(t, "tcp4", "127.0.0.1:0")

	// start with a tiny impairment so relay cycles are short and
	// the engine adopts configuration changes quickly
	h, conn := establishForTest(t, mgr, 1, addr.String(),
		emuconf.Option{Key: emuconf.KeyDelay, Value: 1},
		emuconf.Option{Key: emuconf.KeyJitter, Value: 1})

	conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	_, err := conn.Write([]byte("a"))
	require.NoError(t, err)
	one := make([]byte, 1)
	_, err = io.ReadFull(conn, one)
	require.NoError(t, err)

	require.NoError(t, h.Set(emuconf.Option{Key: emuconf.KeyDelay, Value: 80}))

	// the engine adopts the new configuration at the next cycle
	// boundary, then some slack for the other direction
	assert.Eventually(t, func() bool {
		return h.Effective().Delay == 80
	}, 2*time.Second, time.Millisecond)
	time.Sleep(10 * time.Millisecond)

	t0 := time.Now()
	_, err = conn.Write([]byte("b"))
	require.NoError(t, err)
	_, err = io.ReadFull(conn, one)
	require.NoError(t, err)

	// 80ms per direction, and the connection survived the change
	assert.GreaterOrEqual(t, time.Since(t0), 160*time.Millisecond)
}

func TestTeardown(t *testing.T) {
	mgr := &Manager{}
	addr := startEchoServer(t, "tcp4", "127.0.0.1:0")
	h, conn := establishForTest(t, mgr, 1, addr.String())

	require.NotNil(t, mgr.Find(1))
	require.NoError(t, h.Close())

	// the worker is gone and the handle is unreachable
	select {
	case <-h.Done():
	default:
		t.Fatal("worker still running after Close")
	}
	assert.Nil(t, mgr.Find(1))
	assert.Equal(t, 0, mgr.Len())
	assert.False(t, h.ListenerAddr().IsValid())

	// the application observes the teardown as a dead connection
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	buf := make([]byte, 1)
	_, err := conn.Read(buf)
	assert.Error(t, err)

	// closing again is a no-op
	assert.NoError(t, h.Close())
}

func TestPeerCloseTerminatesConnection(t *testing.T) {
	mgr := &Manager{}

	lis, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { lis.Close() })
	go func() {
		conn, err := lis.Accept()
		if err != nil {
			return
		}
		// greet and hang up straight away
		conn.Write([]byte("bye"))
		conn.Close()
	}()

	h, conn := establishForTest(t, mgr, 1, lis.Addr().String())

	buf := make([]byte, 3)
	conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	_, err = io.ReadFull(conn, buf)
	require.NoError(t, err)
	require.Equal(t, "bye", string(buf))

	// the relay observes the hangup and terminates on its own,
	// without anybody calling Close
	select {
	case <-h.Done():
	case <-time.After(10 * time.Second):
		t.Fatal("worker did not exit after peer close")
	}
	assert.Eventually(t, func() bool {
		return mgr.Find(1) == nil
	}, 2*time.Second, 10*time.Millisecond)

	// the application observes the hangup as well
	_, err = conn.Read(buf)
	assert.Error(t, err)

	// teardown after self-termination stays safe
	assert.NoError(t, h.Close())
}

func TestManagerCloseAll(t *testing.T) {
	mgr := &Manager{}
	addr := startEchoServer(t, "tcp4", "127.0.0.1:0")
	h1, _ := establishForTest(t, mgr, 1, addr.String())
	h2, _ := establishForTest(t, mgr, 2, addr.String())

	require.Equal(t, 2, mgr.Len())
	require.NoError(t, mgr.CloseAll())
	assert.Equal(t, 0, mgr.Len())

	for _, h := range []*Handle{h1, h2} {
		select {
		case <-h.Done():
		default:
			t.Fatal("worker still running after CloseAll")
		}
	}
}
