package proxy

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"slices"
	"strconv"
	"time"

	"github.com/die-net/sstunnel/internal/address"
	"github.com/die-net/sstunnel/internal/cipher"
	"github.com/die-net/sstunnel/internal/tunnel"
)

const sideRemote = "remote"

// ErrForbiddenIP means every address of a destination is in the forbidden
// list.
var ErrForbiddenIP = errors.New("forbidden destination ip")

// RemoteServer terminates tunnels for one configured server entry and
// connects them onward to their destinations.
type RemoteServer struct {
	ctx     context.Context
	cfg     Config
	cipher  *cipher.Cipher
	timeout time.Duration
}

// NewRemoteServer returns a server decrypting with ci. timeout bounds the
// tunnel handshake and the destination connect, and is the relay idle
// timeout.
func NewRemoteServer(ctx context.Context, cfg Config, ci *cipher.Cipher, timeout time.Duration) *RemoteServer {
	return &RemoteServer{ctx: ctx, cfg: cfg, cipher: ci, timeout: timeout}
}

// Serve accepts tunnels on ln until it is closed.
func (s *RemoteServer) Serve(ln net.Listener) error {
	for {
		c, err := ln.Accept()
		if err != nil {
			return err
		}
		go s.handleConn(c)
	}
}

func (s *RemoteServer) handleConn(conn net.Conn) {
	defer conn.Close()

	log := newSessionLogger(s.cfg.Logger, conn)
	s.cfg.Metrics.SessionStarted(sideRemote)
	defer s.cfg.Metrics.SessionEnded(sideRemote)

	if s.timeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(s.timeout))
	}

	tc, target, err := tunnel.Server(conn, s.cipher)
	if err != nil {
		s.cfg.Metrics.SessionFailed(sideRemote)
		log.Debug().Err(err).Msg("tunnel handshake failed")
		return
	}
	log = log.With().Stringer("target", target).Logger()

	dst, err := s.connect(target)
	if err != nil {
		// There is no way to report the cause; closing the tunnel is the
		// signal.
		s.cfg.Metrics.SessionFailed(sideRemote)
		log.Debug().Err(err).Msg("connect failed")
		return
	}
	_ = conn.SetDeadline(time.Time{})

	log.Debug().Msg("relaying")

	st, err := Relay(s.ctx, tc, dst, s.timeout, s.cfg.drainTimeout())
	s.cfg.Metrics.AddBytes(sideRemote, "up", st.Up)
	s.cfg.Metrics.AddBytes(sideRemote, "down", st.Down)

	logRelayEnd(log, st, err)
}

// connect resolves target if needed and dials the first permitted address.
func (s *RemoteServer) connect(target address.Address) (net.Conn, error) {
	ctx := s.ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	ip, err := s.resolve(ctx, target)
	if err != nil {
		return nil, err
	}

	addr := net.JoinHostPort(ip.String(), strconv.Itoa(int(target.Port())))
	conn, err := s.cfg.Dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func (s *RemoteServer) resolve(ctx context.Context, target address.Address) (netip.Addr, error) {
	if !target.IsDomain() {
		if s.forbidden(target.Addr()) {
			return netip.Addr{}, fmt.Errorf("%w: %s", ErrForbiddenIP, target.Addr())
		}
		return target.Addr(), nil
	}

	ips, err := s.cfg.Resolver.LookupIP(ctx, target.Host())
	if err != nil {
		return netip.Addr{}, err
	}
	for _, ip := range ips {
		if !s.forbidden(ip) {
			return ip, nil
		}
	}
	return netip.Addr{}, fmt.Errorf("%w: %s resolved to %v", ErrForbiddenIP, target.Host(), ips)
}

func (s *RemoteServer) forbidden(ip netip.Addr) bool {
	return slices.Contains(s.cfg.ForbiddenIPs, ip.Unmap())
}
