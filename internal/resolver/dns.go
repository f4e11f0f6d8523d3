package resolver

import (
	"context"
	"fmt"
	"net/netip"
	"time"

	"github.com/miekg/dns"
	"golang.org/x/sync/errgroup"
)

// DNS queries one DNS server directly for A and AAAA records.
type DNS struct {
	server string
	client *dns.Client
}

func NewDNS(server string, cfg Config) *DNS {
	return &DNS{
		server: server,
		client: &dns.Client{Net: cfg.Net, Timeout: cfg.Timeout},
	}
}

func (d *DNS) LookupIP(ctx context.Context, host string) ([]netip.Addr, error) {
	addrs, _, err := d.LookupIPTTL(ctx, host)
	return addrs, err
}

// LookupIPTTL is LookupIP that also returns the smallest TTL among the
// answers. IPv4 addresses come first.
func (d *DNS) LookupIPTTL(ctx context.Context, host string) ([]netip.Addr, time.Duration, error) {
	var v4, v6 []netip.Addr
	var ttl4, ttl6 uint32

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		v4, ttl4, err = d.query(gctx, host, dns.TypeA)
		return err
	})
	g.Go(func() error {
		var err error
		v6, ttl6, err = d.query(gctx, host, dns.TypeAAAA)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, 0, fmt.Errorf("lookup %s: %w", host, err)
	}

	addrs := append(v4, v6...)
	if len(addrs) == 0 {
		return nil, 0, fmt.Errorf("lookup %s: %w", host, ErrNoAddress)
	}

	ttl := ttl4
	if len(v4) == 0 || (len(v6) > 0 && ttl6 < ttl) {
		ttl = ttl6
	}
	return addrs, time.Duration(ttl) * time.Second, nil
}

func (d *DNS) query(ctx context.Context, host string, qtype uint16) ([]netip.Addr, uint32, error) {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(host), qtype)
	m.RecursionDesired = true

	r, _, err := d.client.ExchangeContext(ctx, m, d.server)
	if err != nil {
		return nil, 0, fmt.Errorf("query %s %s: %w", dns.TypeToString[qtype], d.server, err)
	}
	switch r.Rcode {
	case dns.RcodeSuccess:
	case dns.RcodeNameError:
		// NXDOMAIN is an empty answer, not a transport failure.
		return nil, 0, nil
	default:
		return nil, 0, fmt.Errorf("query %s %s: %s", dns.TypeToString[qtype], d.server, dns.RcodeToString[r.Rcode])
	}

	var addrs []netip.Addr
	var ttl uint32
	for _, rr := range r.Answer {
		var ip netip.Addr
		var ok bool
		switch v := rr.(type) {
		case *dns.A:
			ip, ok = netip.AddrFromSlice(v.A.To4())
		case *dns.AAAA:
			ip, ok = netip.AddrFromSlice(v.AAAA.To16())
		}
		if !ok {
			continue
		}
		if len(addrs) == 0 || rr.Header().Ttl < ttl {
			ttl = rr.Header().Ttl
		}
		addrs = append(addrs, ip.Unmap())
	}
	return addrs, ttl, nil
}
