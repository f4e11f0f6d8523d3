package socks5

import (
	"errors"
	"fmt"
	"io"
	"net"

	txsocks5 "github.com/txthinking/socks5"

	"github.com/die-net/sstunnel/internal/address"
)

// Auth configures optional username/password authentication when talking to
// an upstream SOCKS5 proxy.
type Auth struct {
	Username string
	Password string
}

// ReplyError is returned by ClientConnect when the server answers with a
// non-success reply code.
type ReplyError struct {
	Rep byte
}

func (e *ReplyError) Error() string {
	return fmt.Sprintf("socks5: connect failed with reply %#02x", e.Rep)
}

// ClientDial negotiates on conn and issues a CONNECT to target.
func ClientDial(conn net.Conn, auth Auth, target address.Address) error {
	if err := ClientNegotiate(conn, auth); err != nil {
		return err
	}
	return ClientConnect(conn, target)
}

func ClientNegotiate(conn net.Conn, auth Auth) error {
	methods := []byte{txsocks5.MethodNone}
	if auth.Username != "" {
		methods = append(methods, txsocks5.MethodUsernamePassword)
	}

	if _, err := txsocks5.NewNegotiationRequest(methods).WriteTo(conn); err != nil {
		return fmt.Errorf("write negotiation: %w", err)
	}

	neg, err := txsocks5.NewNegotiationReplyFrom(conn)
	if err != nil {
		return fmt.Errorf("read negotiation: %w", err)
	}

	switch neg.Method {
	case txsocks5.MethodNone:
		return nil
	case txsocks5.MethodUsernamePassword:
		if auth.Username == "" {
			return errors.New("server requires username/password")
		}

		if _, err := txsocks5.NewUserPassNegotiationRequest([]byte(auth.Username), []byte(auth.Password)).WriteTo(conn); err != nil {
			return fmt.Errorf("write userpass: %w", err)
		}
		rep, err := txsocks5.NewUserPassNegotiationReplyFrom(conn)
		if err != nil {
			return fmt.Errorf("read userpass: %w", err)
		}
		if rep.Status != txsocks5.UserPassStatusSuccess {
			return errors.New("auth failed")
		}
		return nil
	default:
		return fmt.Errorf("%w: server chose %#02x", ErrNoAcceptableMethod, neg.Method)
	}
}

// ClientConnect writes a CONNECT request for target and reads the reply. The
// bound address in the reply is read and discarded.
func ClientConnect(conn net.Conn, target address.Address) error {
	req := make([]byte, 0, 3+target.Len())
	req = append(req, txsocks5.Ver, txsocks5.CmdConnect, 0x00)
	req = target.Append(req)
	if _, err := conn.Write(req); err != nil {
		return fmt.Errorf("write request: %w", err)
	}

	var hdr [3]byte
	if _, err := io.ReadFull(conn, hdr[:]); err != nil {
		return fmt.Errorf("read reply: %w", err)
	}
	if hdr[0] != txsocks5.Ver {
		return fmt.Errorf("read reply: %w: %#02x", ErrVersion, hdr[0])
	}
	if _, err := address.ReadFrom(conn); err != nil {
		return fmt.Errorf("read reply address: %w", err)
	}
	if hdr[1] != txsocks5.RepSuccess {
		return &ReplyError{Rep: hdr[1]}
	}
	return nil
}
