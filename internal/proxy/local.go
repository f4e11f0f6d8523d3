package proxy

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/die-net/sstunnel/internal/address"
	"github.com/die-net/sstunnel/internal/balancer"
	"github.com/die-net/sstunnel/internal/socks5"
	"github.com/die-net/sstunnel/internal/tunnel"
)

const sideLocal = "local"

// LocalServer is the SOCKS5 front-end. It tunnels every CONNECT to a remote
// server chosen by the balancer.
type LocalServer struct {
	ctx      context.Context
	cfg      Config
	balancer *balancer.Balancer
}

func NewLocalServer(ctx context.Context, cfg Config, b *balancer.Balancer) *LocalServer {
	return &LocalServer{ctx: ctx, cfg: cfg, balancer: b}
}

// Serve accepts SOCKS5 clients on ln until it is closed.
func (s *LocalServer) Serve(ln net.Listener) error {
	for {
		c, err := ln.Accept()
		if err != nil {
			return err
		}
		go s.handleConn(c)
	}
}

func (s *LocalServer) handleConn(conn net.Conn) {
	defer conn.Close()

	log := newSessionLogger(s.cfg.Logger, conn)
	s.cfg.Metrics.SessionStarted(sideLocal)
	defer s.cfg.Metrics.SessionEnded(sideLocal)

	target, err := s.negotiate(conn)
	if err != nil {
		s.cfg.Metrics.SessionFailed(sideLocal)
		log.Debug().Err(err).Msg("socks5 handshake failed")
		return
	}
	log = log.With().Stringer("target", target).Logger()

	tc, srv, err := s.Open(s.ctx, target)
	if err != nil {
		s.cfg.Metrics.SessionFailed(sideLocal)
		log.Debug().Err(err).Msg("open tunnel failed")
		socks5.WriteGeneralFailureReply(conn)
		return
	}
	log = log.With().Str("server", srv.Addr).Logger()

	if err := socks5.WriteSuccessReply(conn); err != nil {
		_ = tc.Close()
		log.Debug().Err(err).Msg("write socks5 reply failed")
		return
	}
	_ = conn.SetDeadline(time.Time{})

	s.relay(conn, tc, srv, sideLocal, log)
}

// negotiate runs the SOCKS5 greeting and request phases and returns the
// CONNECT target. Other commands are refused.
func (s *LocalServer) negotiate(conn net.Conn) (address.Address, error) {
	if s.cfg.NegotiationTimeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(s.cfg.NegotiationTimeout))
	}

	if err := socks5.ServerNegotiate(conn); err != nil {
		return address.Address{}, err
	}

	req, err := socks5.ServerReadRequest(conn)
	if err != nil {
		if errors.Is(err, address.ErrInvalidType) {
			socks5.WriteAddressNotSupportedReply(conn)
		}
		return address.Address{}, err
	}

	if req.Cmd != socks5.CmdConnect {
		socks5.WriteCommandNotSupportedReply(conn)
		return address.Address{}, fmt.Errorf("unsupported socks5 command %#02x", req.Cmd)
	}
	return req.Target, nil
}

// Open picks a remote server, connects to it and sends the tunnel header for
// target. A failed connect counts against the server.
func (s *LocalServer) Open(ctx context.Context, target address.Address) (*tunnel.Conn, *balancer.Server, error) {
	srv := s.balancer.Pick()

	dctx := ctx
	if srv.Timeout > 0 {
		var cancel context.CancelFunc
		dctx, cancel = context.WithTimeout(ctx, srv.Timeout)
		defer cancel()
	}

	conn, err := s.cfg.Dialer.DialContext(dctx, "tcp", srv.Addr)
	if err != nil {
		if ctx.Err() == nil {
			s.balancer.ReportFailure(srv)
		}
		return nil, srv, err
	}

	tc, err := tunnel.Client(conn, srv.Cipher, target, nil)
	if err != nil {
		_ = conn.Close()
		s.balancer.ReportFailure(srv)
		return nil, srv, err
	}
	return tc, srv, nil
}

// Forward tunnels an already accepted connection to target. It is the entry
// point for listeners that learn the target some other way than SOCKS5.
func (s *LocalServer) Forward(conn net.Conn, target address.Address, side string) {
	defer conn.Close()

	log := newSessionLogger(s.cfg.Logger, conn).With().Stringer("target", target).Logger()
	s.cfg.Metrics.SessionStarted(side)
	defer s.cfg.Metrics.SessionEnded(side)

	tc, srv, err := s.Open(s.ctx, target)
	if err != nil {
		s.cfg.Metrics.SessionFailed(side)
		log.Debug().Err(err).Msg("open tunnel failed")
		return
	}
	log = log.With().Str("server", srv.Addr).Logger()

	s.relay(conn, tc, srv, side, log)
}

func (s *LocalServer) relay(conn net.Conn, tc *tunnel.Conn, srv *balancer.Server, side string, log zerolog.Logger) {
	log.Debug().Msg("relaying")

	st, err := Relay(s.ctx, conn, tc, srv.Timeout, s.cfg.drainTimeout())
	s.cfg.Metrics.AddBytes(side, "up", st.Up)
	s.cfg.Metrics.AddBytes(side, "down", st.Down)

	if st.Down > 0 {
		s.balancer.ReportSuccess(srv)
	}

	logRelayEnd(log, st, err)
}

func newSessionLogger(base zerolog.Logger, conn net.Conn) zerolog.Logger {
	return base.With().
		Str("session", uuid.NewString()).
		Stringer("client", conn.RemoteAddr()).
		Logger()
}

func logRelayEnd(log zerolog.Logger, st Stats, err error) {
	ev := log.Debug().Int64("up", st.Up).Int64("down", st.Down)
	switch {
	case err == nil:
		ev.Msg("closed")
	case errors.Is(err, ErrIdleTimeout):
		ev.Msg("closed idle")
	default:
		ev.Err(err).Msg("closed with error")
	}
}
