package proxy

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/die-net/sstunnel/internal/address"
	"github.com/die-net/sstunnel/internal/balancer"
	"github.com/die-net/sstunnel/internal/dialer"
	"github.com/die-net/sstunnel/internal/testutil"
	"github.com/die-net/sstunnel/internal/tunnel"
)

func dialLocal(t *testing.T, addr string) net.Conn {
	t.Helper()

	d := net.Dialer{Timeout: 2 * time.Second}
	c, err := d.DialContext(context.Background(), "tcp", addr)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = c.Close() })
	_ = c.SetDeadline(time.Now().Add(5 * time.Second))
	return c
}

func readN(t *testing.T, c net.Conn, n int) []byte {
	t.Helper()

	buf := make([]byte, n)
	if _, err := io.ReadFull(c, buf); err != nil {
		t.Fatal(err)
	}
	return buf
}

func TestLocalGreeting(t *testing.T) {
	t.Parallel()

	unused := newRedirectDialer("127.0.0.1:1")
	addr, _ := startLocal(t, testConfig(unused), []balancer.Profile{{Addr: "192.0.2.1:8388", Cipher: mustCipher(t, "aes-256-cfb", "x")}})

	tests := []struct {
		name      string
		greeting  []byte
		wantReply []byte
		wantClose bool
	}{
		{name: "no auth", greeting: []byte{0x05, 0x01, 0x00}, wantReply: []byte{0x05, 0x00}},
		{name: "userpass only", greeting: []byte{0x05, 0x01, 0x02}, wantReply: []byte{0x05, 0xff}, wantClose: true},
		{name: "no methods", greeting: []byte{0x05, 0x00}, wantReply: []byte{0x05, 0xff}, wantClose: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := dialLocal(t, addr)
			if _, err := c.Write(tt.greeting); err != nil {
				t.Fatal(err)
			}
			if got := readN(t, c, 2); !bytes.Equal(got, tt.wantReply) {
				t.Fatalf("reply % x want % x", got, tt.wantReply)
			}
			if tt.wantClose {
				if _, err := c.Read(make([]byte, 1)); !errors.Is(err, io.EOF) {
					t.Fatalf("read err=%v want io.EOF", err)
				}
			}
		})
	}
}

func TestLocalRejectsUnsupportedCommands(t *testing.T) {
	t.Parallel()

	unused := newRedirectDialer("127.0.0.1:1")
	addr, _ := startLocal(t, testConfig(unused), []balancer.Profile{{Addr: "192.0.2.1:8388", Cipher: mustCipher(t, "aes-256-cfb", "x")}})

	for _, cmd := range []byte{0x02, 0x03} {
		c := dialLocal(t, addr)
		req := []byte{0x05, 0x01, 0x00, 0x05, cmd, 0x00, 0x01, 127, 0, 0, 1, 0, 80}
		if _, err := c.Write(req); err != nil {
			t.Fatal(err)
		}
		_ = readN(t, c, 2)
		reply := readN(t, c, 10)
		if reply[1] != 0x07 {
			t.Fatalf("cmd %#02x: reply code %#02x want 0x07", cmd, reply[1])
		}
		if _, err := c.Read(make([]byte, 1)); !errors.Is(err, io.EOF) {
			t.Fatalf("cmd %#02x: read err=%v want io.EOF", cmd, err)
		}
	}

	if len(unused.got) != 0 {
		t.Fatal("unsupported command reached a remote server")
	}
}

func TestLocalRemoteUnreachable(t *testing.T) {
	t.Parallel()

	// A port that refuses connections.
	lc := net.ListenConfig{}
	ln, err := lc.Listen(context.Background(), "tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	refused := ln.Addr().String()
	_ = ln.Close()

	d := dialer.NewDirectDialer(dialer.Config{DialTimeout: time.Second})
	addr, b := startLocal(t, testConfig(d), []balancer.Profile{{Addr: refused, Cipher: mustCipher(t, "aes-256-cfb", "x"), Timeout: time.Second}})

	c := dialLocal(t, addr)
	if _, err := c.Write([]byte{0x05, 0x01, 0x00, 0x05, 0x01, 0x00, 0x01, 127, 0, 0, 1, 0, 80}); err != nil {
		t.Fatal(err)
	}
	_ = readN(t, c, 2)
	reply := readN(t, c, 10)
	if reply[1] != 0x01 {
		t.Fatalf("reply code %#02x want 0x01", reply[1])
	}

	if h := b.Snapshot()[0]; h.Failures != 1 {
		t.Fatalf("failures %d want 1", h.Failures)
	}
}

// The local side must send the tunnel header for the requested target with
// a fresh IV for every session.
func TestLocalTunnelHeader(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ci := mustCipher(t, "chacha20-ietf", "secret")
	targets := make(chan address.Address, 2)
	ivs := make(chan []byte, 2)
	remote, _ := testutil.StartAcceptServer(t, ctx, func(c net.Conn) {
		iv := make([]byte, ci.IVSize())
		var rec bytes.Buffer
		tc, target, err := tunnel.Server(&teeConn{Conn: c, w: &rec}, ci)
		if err != nil {
			return
		}
		copy(iv, rec.Bytes())
		ivs <- iv
		targets <- target
		_, _ = tc.Write([]byte("ok"))
		_, _ = io.Copy(io.Discard, tc)
	})

	d := dialer.NewDirectDialer(dialer.Config{DialTimeout: time.Second})
	addr, _ := startLocal(t, testConfig(d), []balancer.Profile{{Addr: remote.Addr().String(), Cipher: ci, Timeout: 2 * time.Second}})

	want, err := address.FromDomain("example.com", 80)
	if err != nil {
		t.Fatal(err)
	}
	for range 2 {
		c := dialLocal(t, addr)
		req := append([]byte{0x05, 0x01, 0x00, 0x05, 0x01, 0x00}, want.Bytes()...)
		if _, err := c.Write(req); err != nil {
			t.Fatal(err)
		}
		_ = readN(t, c, 2)
		if reply := readN(t, c, 10); reply[1] != 0x00 {
			t.Fatalf("reply code %#02x", reply[1])
		}
		if got := readN(t, c, 2); string(got) != "ok" {
			t.Fatalf("got %q", got)
		}
		if got := <-targets; got != want {
			t.Fatalf("target %v want %v", got, want)
		}
		_ = c.Close()
	}

	if bytes.Equal(<-ivs, <-ivs) {
		t.Fatal("two sessions used the same IV")
	}
}

// teeConn copies everything read from the connection to w.
type teeConn struct {
	net.Conn
	w io.Writer
}

func (c *teeConn) Read(p []byte) (int, error) {
	n, err := c.Conn.Read(p)
	_, _ = c.w.Write(p[:n])
	return n, err
}
