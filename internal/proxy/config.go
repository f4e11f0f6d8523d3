package proxy

import (
	"net/netip"
	"time"

	"github.com/rs/zerolog"

	"github.com/die-net/sstunnel/internal/dialer"
	"github.com/die-net/sstunnel/internal/metrics"
	"github.com/die-net/sstunnel/internal/resolver"
)

const DefaultDrainTimeout = 5 * time.Second

type Config struct {
	// NegotiationTimeout bounds the SOCKS5 handshake with a client.
	NegotiationTimeout time.Duration

	// DrainTimeout is how long the remaining direction of a relay may stay
	// silent after the other direction ended. Zero means DefaultDrainTimeout.
	DrainTimeout time.Duration

	// Dialer opens outbound connections: to remote servers for sslocal, to
	// destinations for ssserver.
	Dialer dialer.Dialer

	// Resolver resolves destination names on the remote side.
	Resolver resolver.Resolver

	// ForbiddenIPs are destinations the remote side refuses to connect to.
	ForbiddenIPs []netip.Addr

	Logger  zerolog.Logger
	Metrics *metrics.Metrics
}

func (c *Config) drainTimeout() time.Duration {
	if c.DrainTimeout > 0 {
		return c.DrainTimeout
	}
	return DefaultDrainTimeout
}
