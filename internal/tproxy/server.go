package tproxy

import (
	"fmt"
	"net"

	"github.com/die-net/sstunnel/internal/address"
)

// Forwarder tunnels an accepted connection to target and closes it.
type Forwarder interface {
	Forward(conn net.Conn, target address.Address, side string)
}

type Server struct {
	fwd Forwarder
}

func NewServer(fwd Forwarder) *Server {
	return &Server{fwd: fwd}
}

// Serve accepts redirected connections on ln until it is closed.
func (s *Server) Serve(ln net.Listener) error {
	for {
		c, err := ln.Accept()
		if err != nil {
			return fmt.Errorf("accept: %w", err)
		}
		go s.handle(c)
	}
}

func (s *Server) handle(conn net.Conn) {
	dst, ok := OriginalDst(conn)
	if !ok {
		_ = conn.Close()
		return
	}
	s.fwd.Forward(conn, address.FromAddrPort(dst), "tproxy")
}
