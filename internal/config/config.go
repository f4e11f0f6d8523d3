// Package config loads and validates the server list and listener settings
// shared by sslocal and ssserver.
package config

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/die-net/sstunnel/internal/balancer"
	"github.com/die-net/sstunnel/internal/cipher"
)

const (
	DefaultTimeout   = 300 * time.Second
	DefaultLocalAddr = "127.0.0.1"
	DefaultLocalPort = 1080
)

var ErrNoServers = errors.New("no servers configured")

// Server is one remote server entry.
type Server struct {
	Address  string
	Port     int
	Password string
	Method   string
	// Timeout bounds connecting and is the idle timeout of every session.
	Timeout time.Duration
	Weight  int
}

// Addr returns Address:Port.
func (s Server) Addr() string {
	return net.JoinHostPort(s.Address, strconv.Itoa(s.Port))
}

// Cipher builds the cipher for the entry's method and password.
func (s Server) Cipher() (*cipher.Cipher, error) {
	return cipher.New(s.Method, s.Password)
}

// NewServer builds an entry from a "host:port" address. Timeout and Weight
// are left for Validate to default.
func NewServer(addr, password, method string) (Server, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return Server{}, fmt.Errorf("server address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return Server{}, fmt.Errorf("server port %q: %w", portStr, err)
	}
	return Server{Address: host, Port: port, Password: password, Method: method}, nil
}

type Config struct {
	Servers []Server

	LocalAddress string
	LocalPort    int

	// ForbiddenIPs are destinations ssserver refuses to connect to.
	ForbiddenIPs []netip.Addr
	// DNSServer is queried directly by ssserver; empty uses the system
	// resolver.
	DNSServer string

	FailureThreshold int
	Cooldown         time.Duration
}

// LocalAddr returns LocalAddress:LocalPort.
func (c *Config) LocalAddr() string {
	return net.JoinHostPort(c.LocalAddress, strconv.Itoa(c.LocalPort))
}

// Load reads a configuration file. Files ending in .ini are INI, anything
// else is JSON.
func Load(path string) (*Config, error) {
	var (
		c   *Config
		err error
	)
	if strings.EqualFold(filepath.Ext(path), ".ini") {
		c, err = LoadINI(path)
	} else {
		c, err = LoadJSON(path)
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return c, nil
}

// Validate fills in defaults and checks every entry. An unknown cipher
// method is an error.
func (c *Config) Validate() error {
	if len(c.Servers) == 0 {
		return ErrNoServers
	}

	for i := range c.Servers {
		s := &c.Servers[i]
		if s.Address == "" {
			return fmt.Errorf("server %d: missing address", i)
		}
		if s.Port <= 0 || s.Port > 65535 {
			return fmt.Errorf("server %s: invalid port %d", s.Address, s.Port)
		}
		if s.Timeout <= 0 {
			s.Timeout = DefaultTimeout
		}
		if s.Weight < 1 {
			s.Weight = 1
		}
		if _, err := s.Cipher(); err != nil {
			return fmt.Errorf("server %s: %w", s.Addr(), err)
		}
	}

	if c.LocalAddress == "" {
		c.LocalAddress = DefaultLocalAddr
	}
	if c.LocalPort == 0 {
		c.LocalPort = DefaultLocalPort
	}
	if c.LocalPort < 0 || c.LocalPort > 65535 {
		return fmt.Errorf("invalid local port %d", c.LocalPort)
	}
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = balancer.DefaultFailureThreshold
	}
	if c.Cooldown <= 0 {
		c.Cooldown = balancer.DefaultCooldown
	}
	return nil
}

// Profiles builds the balancer view of the server list. Call Validate first.
func (c *Config) Profiles() ([]balancer.Profile, error) {
	ps := make([]balancer.Profile, 0, len(c.Servers))
	for _, s := range c.Servers {
		ci, err := s.Cipher()
		if err != nil {
			return nil, fmt.Errorf("server %s: %w", s.Addr(), err)
		}
		ps = append(ps, balancer.Profile{Addr: s.Addr(), Cipher: ci, Timeout: s.Timeout, Weight: s.Weight})
	}
	return ps, nil
}

// BalancerOptions returns the balancer settings.
func (c *Config) BalancerOptions() balancer.Options {
	return balancer.Options{FailureThreshold: c.FailureThreshold, Cooldown: c.Cooldown}
}

// ParseIPs parses a list of IP addresses, ignoring blanks.
func ParseIPs(ss []string) ([]netip.Addr, error) {
	var ips []netip.Addr
	for _, s := range ss {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		ip, err := netip.ParseAddr(s)
		if err != nil {
			return nil, fmt.Errorf("forbidden ip: %w", err)
		}
		ips = append(ips, ip.Unmap())
	}
	return ips, nil
}
