package socks5

import (
	"errors"
	"fmt"
	"io"
	"net"

	txsocks5 "github.com/txthinking/socks5"

	"github.com/die-net/sstunnel/internal/address"
)

// Request command values.
const (
	CmdConnect = txsocks5.CmdConnect
	CmdBind    = txsocks5.CmdBind
	CmdUDP     = txsocks5.CmdUDP
)

var (
	// ErrNoAcceptableMethod means the client did not offer no-auth. The
	// 0xFF reply has already been written.
	ErrNoAcceptableMethod = errors.New("socks5: no acceptable method")

	// ErrVersion means a message did not start with version 5.
	ErrVersion = errors.New("socks5: bad version")
)

// Request is a parsed client request.
type Request struct {
	Cmd    byte
	Target address.Address
}

// ServerNegotiate reads the client greeting and selects the no-auth method.
// Clients that do not offer it get 0xFF and ErrNoAcceptableMethod.
func ServerNegotiate(conn net.Conn) error {
	neg, err := txsocks5.NewNegotiationRequestFrom(conn)
	if errors.Is(err, txsocks5.ErrBadRequest) {
		// NMETHODS of zero offers nothing we can accept.
		writeNoAcceptableMethods(conn)
		return ErrNoAcceptableMethod
	}
	if err != nil {
		return fmt.Errorf("negotiation request: %w", err)
	}

	if !containsMethod(neg.Methods, txsocks5.MethodNone) {
		writeNoAcceptableMethods(conn)
		return ErrNoAcceptableMethod
	}
	if _, err := txsocks5.NewNegotiationReply(txsocks5.MethodNone).WriteTo(conn); err != nil {
		return fmt.Errorf("negotiation reply: %w", err)
	}
	return nil
}

// ServerReadRequest reads VER CMD RSV followed by the target address. The
// command is returned as-is; rejecting unsupported ones is up to the caller.
func ServerReadRequest(conn net.Conn) (*Request, error) {
	var hdr [3]byte
	if _, err := io.ReadFull(conn, hdr[:]); err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	if hdr[0] != txsocks5.Ver {
		return nil, fmt.Errorf("request: %w: %#02x", ErrVersion, hdr[0])
	}

	target, err := address.ReadFrom(conn)
	if err != nil {
		return nil, fmt.Errorf("request address: %w", err)
	}
	return &Request{Cmd: hdr[1], Target: target}, nil
}

func containsMethod(methods []byte, want byte) bool {
	for _, m := range methods {
		if m == want {
			return true
		}
	}
	return false
}
