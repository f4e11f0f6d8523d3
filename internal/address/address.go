// Package address encodes and decodes the SOCKS5-style target address that
// leads every tunnel stream: ATYP, address bytes, big-endian port.
package address

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"net/netip"
	"strconv"

	txsocks5 "github.com/txthinking/socks5"
)

// Type is the ATYP tag byte.
type Type byte

const (
	TypeIPv4   Type = Type(txsocks5.ATYPIPv4)
	TypeDomain Type = Type(txsocks5.ATYPDomain)
	TypeIPv6   Type = Type(txsocks5.ATYPIPv6)
)

// MaxDomainLength is the longest name the one-byte length prefix can carry.
const MaxDomainLength = 255

// MaxLen is the longest possible encoding.
const MaxLen = 1 + 1 + MaxDomainLength + 2

var (
	// ErrShortBuffer means the input ends before the address does. More
	// bytes may complete it.
	ErrShortBuffer = errors.New("address: short buffer")

	// ErrInvalidType means the ATYP byte is not one of the known tags.
	ErrInvalidType = errors.New("address: invalid type")

	// ErrDomainLength means a domain name is empty or longer than
	// MaxDomainLength.
	ErrDomainLength = errors.New("address: invalid domain length")
)

// Address is a target: an IP address or a domain name, plus a port. The zero
// value is not a valid address.
type Address struct {
	typ  Type
	ip   netip.Addr
	host string
	port uint16
}

// FromAddrPort returns an IPv4 or IPv6 address. IPv4-mapped IPv6 addresses are
// unmapped.
func FromAddrPort(ap netip.AddrPort) Address {
	ip := ap.Addr().Unmap()
	typ := TypeIPv6
	if ip.Is4() {
		typ = TypeIPv4
	}
	return Address{typ: typ, ip: ip, port: ap.Port()}
}

// FromDomain returns a domain name address.
func FromDomain(host string, port uint16) (Address, error) {
	if len(host) == 0 || len(host) > MaxDomainLength {
		return Address{}, fmt.Errorf("%w: %d", ErrDomainLength, len(host))
	}
	return Address{typ: TypeDomain, host: host, port: port}, nil
}

// FromNetAddr converts a *net.TCPAddr or *net.UDPAddr.
func FromNetAddr(a net.Addr) (Address, error) {
	switch v := a.(type) {
	case *net.TCPAddr:
		return FromAddrPort(v.AddrPort()), nil
	case *net.UDPAddr:
		return FromAddrPort(v.AddrPort()), nil
	default:
		return Parse(a.String())
	}
}

// Parse parses "host:port". Literal IPs become IP addresses, anything else a
// domain name.
func Parse(s string) (Address, error) {
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return Address{}, err
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return Address{}, fmt.Errorf("invalid port %q: %w", portStr, err)
	}
	if ip, err := netip.ParseAddr(host); err == nil && ip.Zone() == "" {
		return FromAddrPort(netip.AddrPortFrom(ip, uint16(port))), nil
	}
	return FromDomain(host, uint16(port))
}

// Type returns the ATYP tag.
func (a Address) Type() Type { return a.typ }

// IsDomain reports whether a carries a domain name that needs resolving.
func (a Address) IsDomain() bool { return a.typ == TypeDomain }

// Addr returns the IP address; it is invalid for domain addresses.
func (a Address) Addr() netip.Addr { return a.ip }

// Host returns the domain name, or the IP address in text form.
func (a Address) Host() string {
	if a.typ == TypeDomain {
		return a.host
	}
	return a.ip.String()
}

// Port returns the port.
func (a Address) Port() uint16 { return a.port }

// IsValid reports whether a was produced by a constructor or decoder.
func (a Address) IsValid() bool {
	switch a.typ {
	case TypeIPv4, TypeIPv6:
		return a.ip.IsValid()
	case TypeDomain:
		return a.host != ""
	}
	return false
}

// String returns "host:port", suitable for net.Dial.
func (a Address) String() string {
	if !a.IsValid() {
		return "invalid"
	}
	return net.JoinHostPort(a.Host(), strconv.Itoa(int(a.port)))
}

// Len returns the length of the wire encoding.
func (a Address) Len() int {
	switch a.typ {
	case TypeIPv4:
		return 1 + net.IPv4len + 2
	case TypeIPv6:
		return 1 + net.IPv6len + 2
	case TypeDomain:
		return 1 + 1 + len(a.host) + 2
	}
	return 0
}

// Append appends the wire encoding of a to b. Appending an invalid address
// appends nothing.
func (a Address) Append(b []byte) []byte {
	switch a.typ {
	case TypeIPv4:
		ip4 := a.ip.As4()
		b = append(b, byte(TypeIPv4))
		b = append(b, ip4[:]...)
	case TypeIPv6:
		ip16 := a.ip.As16()
		b = append(b, byte(TypeIPv6))
		b = append(b, ip16[:]...)
	case TypeDomain:
		b = append(b, byte(TypeDomain), byte(len(a.host)))
		b = append(b, a.host...)
	default:
		return b
	}
	return binary.BigEndian.AppendUint16(b, a.port)
}

// Bytes returns the wire encoding of a.
func (a Address) Bytes() []byte {
	return a.Append(make([]byte, 0, a.Len()))
}

// Decode parses an address from the front of b and returns it with the number
// of bytes consumed. ErrShortBuffer means b is a valid but incomplete prefix.
func Decode(b []byte) (Address, int, error) {
	if len(b) < 1 {
		return Address{}, 0, ErrShortBuffer
	}

	var need int
	switch Type(b[0]) {
	case TypeIPv4:
		need = 1 + net.IPv4len + 2
	case TypeIPv6:
		need = 1 + net.IPv6len + 2
	case TypeDomain:
		if len(b) < 2 {
			return Address{}, 0, ErrShortBuffer
		}
		if b[1] == 0 {
			return Address{}, 0, fmt.Errorf("%w: 0", ErrDomainLength)
		}
		need = 1 + 1 + int(b[1]) + 2
	default:
		return Address{}, 0, fmt.Errorf("%w: %#02x", ErrInvalidType, b[0])
	}
	if len(b) < need {
		return Address{}, 0, ErrShortBuffer
	}

	port := binary.BigEndian.Uint16(b[need-2 : need])
	switch Type(b[0]) {
	case TypeIPv4:
		ip := netip.AddrFrom4([4]byte(b[1:5]))
		return Address{typ: TypeIPv4, ip: ip, port: port}, need, nil
	case TypeIPv6:
		ip := netip.AddrFrom16([16]byte(b[1:17]))
		return Address{typ: TypeIPv6, ip: ip, port: port}, need, nil
	default:
		return Address{typ: TypeDomain, host: string(b[2 : need-2]), port: port}, need, nil
	}
}

// ReadFrom reads exactly one encoded address from r. It never reads past the
// end of the address, so the remainder of the stream stays in r.
func ReadFrom(r io.Reader) (Address, error) {
	var buf [MaxLen]byte

	if _, err := io.ReadFull(r, buf[:1]); err != nil {
		return Address{}, err
	}

	n := 1
	for {
		a, _, err := Decode(buf[:n])
		if err == nil {
			return a, nil
		}
		if !errors.Is(err, ErrShortBuffer) {
			return Address{}, err
		}

		need := n + 1
		switch Type(buf[0]) {
		case TypeIPv4:
			need = 1 + net.IPv4len + 2
		case TypeIPv6:
			need = 1 + net.IPv6len + 2
		case TypeDomain:
			if n >= 2 {
				need = 1 + 1 + int(buf[1]) + 2
			}
		}

		if _, err := io.ReadFull(r, buf[n:need]); err != nil {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return Address{}, err
		}
		n = need
	}
}
