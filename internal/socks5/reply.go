package socks5

import (
	"fmt"
	"net"

	txsocks5 "github.com/txthinking/socks5"
)

// Reply codes sent by the front-end.
const (
	RepSuccess                  = txsocks5.RepSuccess
	RepGeneralFailure      byte = 0x01
	RepCommandNotSupported      = txsocks5.RepCommandNotSupported
	RepAddressNotSupported      = txsocks5.RepAddressNotSupported
)

// WriteReply writes a reply with code rep and an all-zero IPv4 bound address.
func WriteReply(conn net.Conn, rep byte) error {
	if _, err := newZeroAddrReply(rep).WriteTo(conn); err != nil {
		return fmt.Errorf("reply %#02x: %w", rep, err)
	}
	return nil
}

// WriteSuccessReply writes a success reply. The bound address is a
// placeholder; the real outbound socket lives on the remote server.
func WriteSuccessReply(conn net.Conn) error {
	return WriteReply(conn, RepSuccess)
}

// WriteGeneralFailureReply writes a general failure reply, ignoring errors.
func WriteGeneralFailureReply(conn net.Conn) {
	_ = WriteReply(conn, RepGeneralFailure)
}

// WriteCommandNotSupportedReply writes a command-not-supported reply, ignoring
// errors.
func WriteCommandNotSupportedReply(conn net.Conn) {
	_ = WriteReply(conn, RepCommandNotSupported)
}

// WriteAddressNotSupportedReply writes an address-type-not-supported reply,
// ignoring errors.
func WriteAddressNotSupportedReply(conn net.Conn) {
	_ = WriteReply(conn, RepAddressNotSupported)
}

func newZeroAddrReply(rep byte) *txsocks5.Reply {
	return txsocks5.NewReply(rep, txsocks5.ATYPIPv4, []byte{0x00, 0x00, 0x00, 0x00}, []byte{0x00, 0x00})
}

func writeNoAcceptableMethods(conn net.Conn) {
	// RFC 1928: 0xFF indicates no acceptable methods.
	_, _ = txsocks5.NewNegotiationReply(0xff).WriteTo(conn)
}
