package dialer

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	txsocks5 "github.com/txthinking/socks5"

	"github.com/die-net/sstunnel/internal/address"
	"github.com/die-net/sstunnel/internal/socks5"
	"github.com/die-net/sstunnel/internal/testutil"
)

// upstreamFunc answers one CONNECT on an upstream SOCKS5 proxy after the
// greeting was handled. It returns the destination to splice to, or nil
// after writing its own reply.
type upstreamFunc func(c net.Conn, req *socks5.Request) net.Conn

// serveUpstream runs the request phase of a SOCKS5 proxy on c and splices
// the connection to whatever fn returns.
func serveUpstream(c net.Conn, fn upstreamFunc) {
	req, err := socks5.ServerReadRequest(c)
	if err != nil {
		return
	}
	dst := fn(c, req)
	if dst == nil {
		return
	}
	defer dst.Close()

	if err := socks5.WriteSuccessReply(c); err != nil {
		return
	}
	go func() {
		_, _ = io.Copy(dst, c)
		_ = dst.Close()
	}()
	_, _ = io.Copy(c, dst)
}

// redirectTo returns an upstreamFunc that records the requested target and
// connects to addr instead.
func redirectTo(ctx context.Context, addr string, got chan<- address.Address) upstreamFunc {
	return func(c net.Conn, req *socks5.Request) net.Conn {
		got <- req.Target
		d := net.Dialer{}
		dst, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			socks5.WriteGeneralFailureReply(c)
			return nil
		}
		return dst
	}
}

func TestSOCKS5ProxyDialerTargets(t *testing.T) {
	targets := []string{"example.com:7", "[2001:db8::7]:7", "192.0.2.7:7"}

	for _, target := range targets {
		t.Run(target, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()

			want, err := address.Parse(target)
			if err != nil {
				t.Fatal(err)
			}

			echoLn := testutil.StartEchoTCPServer(t, ctx)
			got := make(chan address.Address, 1)

			upLn, waitUp := testutil.StartSingleAcceptServer(t, ctx, func(c net.Conn) {
				if err := socks5.ServerNegotiate(c); err != nil {
					return
				}
				serveUpstream(c, redirectTo(ctx, echoLn.Addr().String(), got))
			})

			d := NewSOCKS5ProxyDialer(Config{DialTimeout: 2 * time.Second}, upLn.Addr().String(), "", "")

			conn, err := d.DialContext(ctx, "tcp", target)
			if err != nil {
				t.Fatal(err)
			}
			if g := <-got; g != want {
				t.Fatalf("upstream got target %v want %v", g, want)
			}

			testutil.AssertEcho(t, conn, conn, []byte("hello"))
			_ = conn.Close()

			waitUp()
		})
	}
}

func TestSOCKS5ProxyDialerUserPass(t *testing.T) {
	tests := []struct {
		name    string
		pass    string
		wantErr bool
	}{
		{name: "accepted", pass: "pass"},
		{name: "rejected", pass: "wrong", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()

			echoLn := testutil.StartEchoTCPServer(t, ctx)
			got := make(chan address.Address, 1)

			upLn, waitUp := testutil.StartSingleAcceptServer(t, ctx, func(c net.Conn) {
				if _, err := txsocks5.NewNegotiationRequestFrom(c); err != nil {
					return
				}
				if _, err := txsocks5.NewNegotiationReply(txsocks5.MethodUsernamePassword).WriteTo(c); err != nil {
					return
				}
				urq, err := txsocks5.NewUserPassNegotiationRequestFrom(c)
				if err != nil {
					return
				}
				if string(urq.Uname) != "user" || string(urq.Passwd) != "pass" {
					_, _ = txsocks5.NewUserPassNegotiationReply(txsocks5.UserPassStatusFailure).WriteTo(c)
					return
				}
				if _, err := txsocks5.NewUserPassNegotiationReply(txsocks5.UserPassStatusSuccess).WriteTo(c); err != nil {
					return
				}
				serveUpstream(c, redirectTo(ctx, echoLn.Addr().String(), got))
			})

			d := NewSOCKS5ProxyDialer(Config{DialTimeout: 2 * time.Second}, upLn.Addr().String(), "user", tt.pass)

			conn, err := d.DialContext(ctx, "tcp", "example.com:7")
			if tt.wantErr {
				if err == nil {
					_ = conn.Close()
					t.Fatal("expected error")
				}
				waitUp()
				return
			}
			if err != nil {
				t.Fatal(err)
			}

			testutil.AssertEcho(t, conn, conn, []byte("hello"))
			_ = conn.Close()

			waitUp()
		})
	}
}

func TestSOCKS5ProxyDialerReplyError(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	const repConnectionRefused = 0x05

	upLn, waitUp := testutil.StartSingleAcceptServer(t, ctx, func(c net.Conn) {
		if err := socks5.ServerNegotiate(c); err != nil {
			return
		}
		serveUpstream(c, func(c net.Conn, _ *socks5.Request) net.Conn {
			_ = socks5.WriteReply(c, repConnectionRefused)
			return nil
		})
	})

	d := NewSOCKS5ProxyDialer(Config{DialTimeout: 2 * time.Second}, upLn.Addr().String(), "", "")

	_, err := d.DialContext(ctx, "tcp", "[2001:db8::1]:443")
	var re *socks5.ReplyError
	if !errors.As(err, &re) {
		t.Fatalf("err=%v want *socks5.ReplyError", err)
	}
	if re.Rep != repConnectionRefused {
		t.Fatalf("rep %#02x want %#02x", re.Rep, repConnectionRefused)
	}

	waitUp()
}

func TestSOCKS5ProxyDialerContextCancel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	// The upstream accepts but never answers the greeting.
	upLn, waitUp := testutil.StartSingleAcceptServer(t, ctx, func(c net.Conn) {
		_, _ = io.Copy(io.Discard, c)
	})

	dctx, dcancel := context.WithCancel(ctx)
	time.AfterFunc(50*time.Millisecond, dcancel)

	d := NewSOCKS5ProxyDialer(Config{DialTimeout: 2 * time.Second}, upLn.Addr().String(), "", "")

	_, err := d.DialContext(dctx, "tcp", "example.com:80")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v want context.Canceled", err)
	}

	waitUp()
}

func TestSOCKS5ProxyDialerRejectsUDP(t *testing.T) {
	d := NewSOCKS5ProxyDialer(Config{}, "127.0.0.1:1", "", "")

	if _, err := d.DialContext(context.Background(), "udp", "192.0.2.1:53"); err == nil {
		t.Fatal("expected error")
	}
}
