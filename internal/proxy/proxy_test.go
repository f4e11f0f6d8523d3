package proxy

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/die-net/sstunnel/internal/balancer"
	"github.com/die-net/sstunnel/internal/cipher"
	"github.com/die-net/sstunnel/internal/dialer"
	"github.com/die-net/sstunnel/internal/resolver"
)

type stubResolver map[string][]netip.Addr

func (r stubResolver) LookupIP(_ context.Context, host string) ([]netip.Addr, error) {
	addrs, ok := r[host]
	if !ok {
		return nil, fmt.Errorf("lookup %s: %w", host, resolver.ErrNoAddress)
	}
	return addrs, nil
}

// redirectDialer records the address it was asked for and connects to a
// fixed address instead.
type redirectDialer struct {
	to  string
	got chan string
}

func newRedirectDialer(to string) *redirectDialer {
	return &redirectDialer{to: to, got: make(chan string, 16)}
}

func (d *redirectDialer) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	d.got <- addr
	nd := net.Dialer{}
	return nd.DialContext(ctx, network, d.to)
}

func testConfig(d dialer.Dialer) Config {
	return Config{
		NegotiationTimeout: 2 * time.Second,
		DrainTimeout:       time.Second,
		Dialer:             d,
		Logger:             zerolog.Nop(),
	}
}

func mustCipher(t *testing.T, method, password string) *cipher.Cipher {
	t.Helper()

	c, err := cipher.New(method, password)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func listen(t *testing.T) net.Listener {
	t.Helper()

	ln, err := ListenTCP(context.Background(), "127.0.0.1:0", net.KeepAliveConfig{Enable: false})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = ln.Close() })
	return ln
}

// startRemote runs a RemoteServer and returns its address.
func startRemote(t *testing.T, cfg Config, ci *cipher.Cipher, timeout time.Duration) string {
	t.Helper()

	ln := listen(t)
	srv := NewRemoteServer(context.Background(), cfg, ci, timeout)
	go func() { _ = srv.Serve(ln) }()
	return ln.Addr().String()
}

// startLocal runs a LocalServer over the given profiles.
func startLocal(t *testing.T, cfg Config, profiles []balancer.Profile) (string, *balancer.Balancer) {
	t.Helper()

	b, err := balancer.New(profiles, balancer.Options{})
	if err != nil {
		t.Fatal(err)
	}

	ln := listen(t)
	srv := NewLocalServer(context.Background(), cfg, b)
	go func() { _ = srv.Serve(ln) }()
	return ln.Addr().String(), b
}
