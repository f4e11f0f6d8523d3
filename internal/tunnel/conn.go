// Package tunnel implements the encrypted stream between sslocal and ssserver.
//
// Each direction of a connection starts with the sender's IV in the clear and
// continues as ciphertext. The stream from sslocal additionally carries the
// encoded target address as its first encrypted bytes:
//
//	sslocal  -> ssserver: IV || E(ATYP ADDR PORT || payload...)
//	ssserver -> sslocal:  IV || E(payload...)
//
// The method, and therefore the IV length, is configured on both ends and is
// never negotiated.
package tunnel

import (
	stdcipher "crypto/cipher"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/die-net/sstunnel/internal/address"
	"github.com/die-net/sstunnel/internal/cipher"
)

// ErrShortIV means the peer closed the stream before sending a complete IV.
var ErrShortIV = errors.New("tunnel: short iv")

// Conn is a net.Conn that encrypts everything written and decrypts everything
// read. Each direction owns its own stream state: Read and Write may be used
// concurrently from two goroutines, but neither may be called concurrently
// with itself.
//
// The keystream advances before bytes reach the wire, so after a failed Write
// the sending direction is unusable and every later Write returns the same
// error.
type Conn struct {
	net.Conn

	cipher *cipher.Cipher

	enc     stdcipher.Stream
	pending []byte // own IV, not yet written
	wbuf    []byte
	werr    error

	dec stdcipher.Stream
}

// Client wraps c as the sslocal end of a tunnel to target. It writes the IV
// and the encrypted target address, followed by any initial payload, in one
// write before returning.
func Client(c net.Conn, ci *cipher.Cipher, target address.Address, payload []byte) (*Conn, error) {
	if !target.IsValid() {
		return nil, fmt.Errorf("tunnel: invalid target %v", target)
	}

	enc, iv, err := ci.NewEncrypter()
	if err != nil {
		return nil, err
	}

	hdrLen := target.Len()
	buf := make([]byte, len(iv), len(iv)+hdrLen+len(payload))
	copy(buf, iv)
	buf = target.Append(buf)
	buf = append(buf, payload...)
	enc.XORKeyStream(buf[len(iv):], buf[len(iv):])

	if _, err := c.Write(buf); err != nil {
		return nil, fmt.Errorf("write tunnel header: %w", err)
	}

	return &Conn{Conn: c, cipher: ci, enc: enc}, nil
}

// Server wraps c as the ssserver end of a tunnel. It reads the client's IV and
// the target address; payload after the address stays buffered in the
// connection for the first Read.
func Server(c net.Conn, ci *cipher.Cipher) (*Conn, address.Address, error) {
	dec, err := readIV(c, ci)
	if err != nil {
		if errors.Is(err, io.EOF) {
			err = ErrShortIV
		}
		return nil, address.Address{}, err
	}

	tc := &Conn{Conn: c, cipher: ci, dec: dec}
	target, err := address.ReadFrom(tc)
	if err != nil {
		return nil, address.Address{}, fmt.Errorf("read target address: %w", err)
	}
	return tc, target, nil
}

func readIV(r io.Reader, ci *cipher.Cipher) (stdcipher.Stream, error) {
	iv := make([]byte, ci.IVSize())
	if _, err := io.ReadFull(r, iv); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: %w", ErrShortIV, err)
		}
		return nil, err
	}
	return ci.NewDecrypter(iv)
}

// Read reads and decrypts. The first Read on a Client consumes the server's
// IV; a stream that ends partway through it yields ErrShortIV.
func (c *Conn) Read(p []byte) (int, error) {
	if c.dec == nil {
		dec, err := readIV(c.Conn, c.cipher)
		if err != nil {
			return 0, err
		}
		c.dec = dec
	}

	n, err := c.Conn.Read(p)
	if n > 0 {
		c.dec.XORKeyStream(p[:n], p[:n])
	}
	return n, err
}

// Write encrypts and writes p. The first Write on a Server is preceded by a
// fresh IV.
func (c *Conn) Write(p []byte) (int, error) {
	if c.werr != nil {
		return 0, c.werr
	}
	if c.enc == nil {
		enc, iv, err := c.cipher.NewEncrypter()
		if err != nil {
			return 0, err
		}
		c.enc = enc
		c.pending = iv
	}

	need := len(c.pending) + len(p)
	if cap(c.wbuf) < need {
		c.wbuf = make([]byte, need)
	}
	buf := c.wbuf[:need]
	copy(buf, c.pending)
	c.enc.XORKeyStream(buf[len(c.pending):], p)

	n, err := c.Conn.Write(buf)
	if err != nil {
		c.werr = err
	}
	if n < len(c.pending) {
		// Nothing of p went out, and the IV must still be sent first.
		return 0, err
	}
	n -= len(c.pending)
	c.pending = nil
	return n, err
}

// CloseWrite half-closes the underlying connection if it supports it.
func (c *Conn) CloseWrite() error {
	if cw, ok := c.Conn.(interface{ CloseWrite() error }); ok {
		return cw.CloseWrite()
	}
	return nil
}

// Cipher returns the cipher the connection was set up with.
func (c *Conn) Cipher() *cipher.Cipher { return c.cipher }
