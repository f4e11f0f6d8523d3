// Package balancer picks the remote server for each new local connection.
//
// Selection is weighted round robin over the servers that are not cooling
// down. A server that fails FailureThreshold consecutive connection attempts
// cools down for Cooldown and is skipped until then. If every server is
// cooling down, the one whose cooldown ends first is picked anyway.
package balancer

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/die-net/sstunnel/internal/cipher"
	"github.com/die-net/sstunnel/internal/metrics"
)

// ErrNoServers means the balancer was built with an empty server list.
var ErrNoServers = errors.New("balancer: no servers")

const (
	DefaultFailureThreshold = 3
	DefaultCooldown         = 30 * time.Second
)

// Profile is one configured remote server.
type Profile struct {
	// Addr is host:port.
	Addr    string
	Cipher  *cipher.Cipher
	Timeout time.Duration
	// Weight is the relative share of connections; values below 1 count as 1.
	Weight int
}

type Options struct {
	FailureThreshold int
	Cooldown         time.Duration

	// Now is the clock; nil means time.Now.
	Now func() time.Time

	Metrics *metrics.Metrics
}

// Server is a Profile plus its health. Profile is read-only after New.
type Server struct {
	Profile

	mu       sync.Mutex
	failures int
	lastFail time.Time

	// cooldownUntil is unix nanoseconds, 0 when healthy. It is written under
	// mu and read without it.
	cooldownUntil atomic.Int64
}

// Health is a point-in-time view of a Server.
type Health struct {
	Addr          string
	Failures      int
	LastFailure   time.Time
	CooldownUntil time.Time
}

type Balancer struct {
	opts     Options
	servers  []*Server
	schedule []int
	cursor   atomic.Uint64
}

// New builds a balancer over profiles, in order.
func New(profiles []Profile, opts Options) (*Balancer, error) {
	if len(profiles) == 0 {
		return nil, ErrNoServers
	}
	if opts.FailureThreshold <= 0 {
		opts.FailureThreshold = DefaultFailureThreshold
	}
	if opts.Cooldown <= 0 {
		opts.Cooldown = DefaultCooldown
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	b := &Balancer{opts: opts}
	weights := make([]int, len(profiles))
	for i, p := range profiles {
		if p.Weight < 1 {
			p.Weight = 1
		}
		weights[i] = p.Weight
		b.servers = append(b.servers, &Server{Profile: p})
	}
	b.schedule = interleave(weights)

	return b, nil
}

// interleave spreads each index i over the schedule weights[i] times using
// smooth weighted round robin, so heavy servers are not picked in bursts.
func interleave(weights []int) []int {
	total := 0
	for _, w := range weights {
		total += w
	}

	current := make([]int, len(weights))
	schedule := make([]int, 0, total)
	for range total {
		best := 0
		for i, w := range weights {
			current[i] += w
			if current[i] > current[best] {
				best = i
			}
		}
		current[best] -= total
		schedule = append(schedule, best)
	}
	return schedule
}

// Servers returns the servers in configuration order.
func (b *Balancer) Servers() []*Server {
	return b.servers
}

// Pick returns the next server. It never blocks on a server's lock.
func (b *Balancer) Pick() *Server {
	now := b.opts.Now().UnixNano()

	n := uint64(len(b.schedule))
scan:
	for {
		start := b.cursor.Load()
		for i := range n {
			s := b.servers[b.schedule[(start+i)%n]]
			if until := s.cooldownUntil.Load(); until != 0 && until > now {
				continue
			}
			// Move past the slot taken so skipped slots don't all fall to
			// the next available server.
			if b.cursor.CompareAndSwap(start, start+i+1) {
				return s
			}
			continue scan
		}
		break
	}

	// Everything is cooling down; take whichever comes back first.
	best := b.servers[0]
	for _, s := range b.servers[1:] {
		if s.cooldownUntil.Load() < best.cooldownUntil.Load() {
			best = s
		}
	}
	return best
}

// ReportFailure records a failed attempt to reach s. Reaching the failure
// threshold starts a cooldown; the count starts over once it expires.
func (b *Balancer) ReportFailure(s *Server) {
	now := b.opts.Now()
	b.opts.Metrics.BackendFailure(s.Addr)

	s.mu.Lock()
	defer s.mu.Unlock()

	if until := s.cooldownUntil.Load(); until != 0 && until <= now.UnixNano() {
		// A previous cooldown expired; start counting afresh.
		s.cooldownUntil.Store(0)
		s.failures = 0
	}

	s.failures++
	s.lastFail = now
	if s.failures >= b.opts.FailureThreshold && s.cooldownUntil.Load() == 0 {
		s.cooldownUntil.Store(now.Add(b.opts.Cooldown).UnixNano())
		b.opts.Metrics.BackendCooldown(s.Addr)
	}
}

// ReportSuccess records that s relayed data. It clears the failure count and
// any cooldown.
func (b *Balancer) ReportSuccess(s *Server) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.failures = 0
	s.cooldownUntil.Store(0)
}

// Snapshot returns the health of every server in configuration order.
func (b *Balancer) Snapshot() []Health {
	hs := make([]Health, 0, len(b.servers))
	for _, s := range b.servers {
		hs = append(hs, s.Health())
	}
	return hs
}

// Health returns the current health of s.
func (s *Server) Health() Health {
	s.mu.Lock()
	defer s.mu.Unlock()

	h := Health{Addr: s.Addr, Failures: s.failures, LastFailure: s.lastFail}
	if until := s.cooldownUntil.Load(); until != 0 {
		h.CooldownUntil = time.Unix(0, until)
	}
	return h
}

// InCooldown reports whether s is excluded from selection at now.
func (s *Server) InCooldown(now time.Time) bool {
	until := s.cooldownUntil.Load()
	return until != 0 && until > now.UnixNano()
}
