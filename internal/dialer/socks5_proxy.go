package dialer

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/die-net/sstunnel/internal/address"
	"github.com/die-net/sstunnel/internal/socks5"
)

// SOCKS5ProxyDialer dials TCP connections through an upstream SOCKS5 proxy.
type SOCKS5ProxyDialer struct {
	cfg       Config
	proxyAddr string
	auth      socks5.Auth
	direct    Dialer
}

func NewSOCKS5ProxyDialer(cfg Config, proxyAddr, username, password string) *SOCKS5ProxyDialer {
	return &SOCKS5ProxyDialer{
		cfg:       cfg,
		proxyAddr: proxyAddr,
		auth:      socks5.Auth{Username: username, Password: password},
		direct:    NewDirectDialer(cfg),
	}
}

func (d *SOCKS5ProxyDialer) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	if network != "tcp" && network != "tcp4" && network != "tcp6" {
		return nil, fmt.Errorf("socks5 proxy dial %s %s: unsupported network", network, addr)
	}

	target, err := address.Parse(addr)
	if err != nil {
		return nil, fmt.Errorf("socks5 proxy dial %s: %w", addr, err)
	}

	conn, err := d.direct.DialContext(ctx, "tcp", d.proxyAddr)
	if err != nil {
		return nil, err
	}

	if d.cfg.NegotiationTimeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(d.cfg.NegotiationTimeout))
	}
	// Unblock the handshake if ctx ends first.
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Unix(1, 0))
	})
	defer stop()

	if err := socks5.ClientDial(conn, d.auth, target); err != nil {
		_ = conn.Close()
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return nil, fmt.Errorf("socks5 proxy dial %s via %s: %w", addr, d.proxyAddr, err)
	}

	if !stop() {
		_ = conn.Close()
		return nil, ctx.Err()
	}
	_ = conn.SetDeadline(time.Time{})
	return conn, nil
}
