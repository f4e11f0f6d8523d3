// Package resolver turns destination host names into IP addresses for the
// remote side. It offers the system resolver, a direct DNS client, and a TTL
// cache that can sit in front of either.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
)

// ErrNoAddress means the name resolved without error but to no usable address.
var ErrNoAddress = errors.New("resolver: no address")

// Resolver looks up the addresses of a host name.
type Resolver interface {
	LookupIP(ctx context.Context, host string) ([]netip.Addr, error)
}

// New returns the DNS client for server, or the system resolver if server is
// empty. A server without a port gets 53.
func New(server string, cfg Config) Resolver {
	if server == "" {
		return NewSystem()
	}
	if _, _, err := net.SplitHostPort(server); err != nil {
		server = net.JoinHostPort(server, "53")
	}
	return NewDNS(server, cfg)
}

type systemResolver struct {
	r *net.Resolver
}

// NewSystem returns a Resolver backed by net.DefaultResolver.
func NewSystem() Resolver {
	return &systemResolver{r: net.DefaultResolver}
}

func (s *systemResolver) LookupIP(ctx context.Context, host string) ([]netip.Addr, error) {
	addrs, err := s.r.LookupNetIP(ctx, "ip", host)
	if err != nil {
		return nil, fmt.Errorf("lookup %s: %w", host, err)
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("lookup %s: %w", host, ErrNoAddress)
	}
	for i, a := range addrs {
		addrs[i] = a.Unmap()
	}
	return addrs, nil
}
