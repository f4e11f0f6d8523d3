package address

import (
	"bytes"
	"errors"
	"io"
	"net/netip"
	"strings"
	"testing"
)

func mustDomain(t *testing.T, host string, port uint16) Address {
	t.Helper()

	a, err := FromDomain(host, port)
	if err != nil {
		t.Fatal(err)
	}
	return a
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		addr Address
	}{
		{name: "ipv4", addr: FromAddrPort(netip.MustParseAddrPort("192.0.2.1:8080"))},
		{name: "ipv4 port 0", addr: FromAddrPort(netip.MustParseAddrPort("10.0.0.1:0"))},
		{name: "ipv4 port 65535", addr: FromAddrPort(netip.MustParseAddrPort("10.0.0.1:65535"))},
		{name: "ipv6", addr: FromAddrPort(netip.MustParseAddrPort("[2001:db8::1]:443"))},
		{name: "ipv6 port 65535", addr: FromAddrPort(netip.MustParseAddrPort("[::1]:65535"))},
		{name: "domain", addr: mustDomain(t, "example.com", 80)},
		{name: "domain port 0", addr: mustDomain(t, "a", 0)},
		{name: "domain max length", addr: mustDomain(t, strings.Repeat("x", MaxDomainLength), 65535)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := tt.addr.Bytes()
			if len(b) != tt.addr.Len() {
				t.Fatalf("encoded %d bytes, Len()=%d", len(b), tt.addr.Len())
			}

			got, n, err := Decode(append(b, "trailing payload"...))
			if err != nil {
				t.Fatal(err)
			}
			if n != len(b) {
				t.Fatalf("consumed %d want %d", n, len(b))
			}
			if got != tt.addr {
				t.Fatalf("got %v want %v", got, tt.addr)
			}

			r := bytes.NewReader(append(b, 0xAA))
			got, err = ReadFrom(r)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.addr {
				t.Fatalf("ReadFrom got %v want %v", got, tt.addr)
			}
			if r.Len() != 1 {
				t.Fatalf("ReadFrom left %d bytes, want 1", r.Len())
			}
		})
	}
}

func TestEncodeDomainWireFormat(t *testing.T) {
	t.Parallel()

	a := mustDomain(t, "example.com", 80)
	want := append([]byte{0x03, 11}, "example.com"...)
	want = append(want, 0x00, 0x50)
	if got := a.Bytes(); !bytes.Equal(got, want) {
		t.Fatalf("got % x want % x", got, want)
	}
}

func TestDecodeErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		in      []byte
		wantErr error
	}{
		{name: "empty", in: nil, wantErr: ErrShortBuffer},
		{name: "unknown type", in: []byte{0x02, 1, 2, 3}, wantErr: ErrInvalidType},
		{name: "short ipv4", in: []byte{0x01, 127, 0, 0, 1, 0}, wantErr: ErrShortBuffer},
		{name: "short ipv6", in: append([]byte{0x04}, make([]byte, 10)...), wantErr: ErrShortBuffer},
		{name: "domain missing length", in: []byte{0x03}, wantErr: ErrShortBuffer},
		{name: "short domain", in: []byte{0x03, 5, 'a', 'b'}, wantErr: ErrShortBuffer},
		{name: "domain missing port", in: []byte{0x03, 1, 'a', 0}, wantErr: ErrShortBuffer},
		{name: "zero length domain", in: []byte{0x03, 0, 0, 80}, wantErr: ErrDomainLength},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Decode(tt.in)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err=%v want %v", err, tt.wantErr)
			}
		})
	}
}

func TestReadFromTruncated(t *testing.T) {
	t.Parallel()

	b := mustDomain(t, "example.com", 80).Bytes()
	_, err := ReadFrom(bytes.NewReader(b[:5]))
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("err=%v want io.ErrUnexpectedEOF", err)
	}

	_, err = ReadFrom(bytes.NewReader([]byte{0x09}))
	if !errors.Is(err, ErrInvalidType) {
		t.Fatalf("err=%v want ErrInvalidType", err)
	}
}

func TestFromDomainLength(t *testing.T) {
	t.Parallel()

	if _, err := FromDomain("", 80); !errors.Is(err, ErrDomainLength) {
		t.Fatalf("empty domain err=%v", err)
	}
	if _, err := FromDomain(strings.Repeat("x", MaxDomainLength+1), 80); !errors.Is(err, ErrDomainLength) {
		t.Fatalf("long domain err=%v", err)
	}
}

func TestParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in       string
		wantType Type
		wantStr  string
		wantErr  bool
	}{
		{in: "127.0.0.1:80", wantType: TypeIPv4, wantStr: "127.0.0.1:80"},
		{in: "[::ffff:127.0.0.1]:80", wantType: TypeIPv4, wantStr: "127.0.0.1:80"},
		{in: "[2001:db8::2]:53", wantType: TypeIPv6, wantStr: "[2001:db8::2]:53"},
		{in: "example.com:443", wantType: TypeDomain, wantStr: "example.com:443"},
		{in: "example.com", wantErr: true},
		{in: "example.com:70000", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			a, err := Parse(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err=%v wantErr=%v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if a.Type() != tt.wantType {
				t.Fatalf("type %#x want %#x", a.Type(), tt.wantType)
			}
			if a.String() != tt.wantStr {
				t.Fatalf("String()=%q want %q", a.String(), tt.wantStr)
			}
		})
	}
}

func TestZeroValue(t *testing.T) {
	t.Parallel()

	var a Address
	if a.IsValid() {
		t.Fatal("zero address is valid")
	}
	if len(a.Bytes()) != 0 {
		t.Fatal("zero address encoded to bytes")
	}
}
