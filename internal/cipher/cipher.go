package cipher

import (
	stdcipher "crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
)

var (
	// ErrUnknownMethod is returned by New and Lookup for a method name that is
	// not registered.
	ErrUnknownMethod = errors.New("unknown cipher method")

	// ErrIVSize is returned by NewDecrypter when the IV length does not match
	// the method.
	ErrIVSize = errors.New("invalid iv size")
)

// streamFunc builds one direction of a session from an IV.
type streamFunc func(iv []byte, decrypt bool) (stdcipher.Stream, error)

// Method describes a registered algorithm.
type Method struct {
	Name    string
	KeySize int
	IVSize  int

	// setup binds the method to a derived key. It runs once per Cipher so
	// per-key work (AES key schedule, substitution tables) is not repeated
	// per session.
	setup func(key []byte) (streamFunc, error)
}

var methods = map[string]*Method{}

func register(m *Method) {
	methods[m.Name] = m
}

// Lookup returns the registered method with the given name. Names are case
// insensitive.
func Lookup(name string) (*Method, error) {
	m, ok := methods[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMethod, name)
	}
	return m, nil
}

// Methods returns the names of all registered methods, sorted.
func Methods() []string {
	names := make([]string, 0, len(methods))
	for name := range methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Cipher is a method bound to the key derived from a password.
type Cipher struct {
	method    *Method
	key       []byte
	newStream streamFunc
}

// New looks up method and derives its key from password.
func New(method, password string) (*Cipher, error) {
	m, err := Lookup(method)
	if err != nil {
		return nil, err
	}

	key := DeriveKey(password, m.KeySize)
	fn, err := m.setup(key)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", m.Name, err)
	}

	return &Cipher{method: m, key: key, newStream: fn}, nil
}

// Method returns the method name.
func (c *Cipher) Method() string { return c.method.Name }

// KeySize returns the derived key length in bytes.
func (c *Cipher) KeySize() int { return c.method.KeySize }

// IVSize returns the IV length in bytes. It may be zero.
func (c *Cipher) IVSize() int { return c.method.IVSize }

// Key returns a copy of the derived key.
func (c *Cipher) Key() []byte {
	return append([]byte(nil), c.key...)
}

// NewEncrypter returns a stream for the sending direction along with the
// freshly generated random IV that must precede the ciphertext on the wire.
func (c *Cipher) NewEncrypter() (stdcipher.Stream, []byte, error) {
	iv := make([]byte, c.method.IVSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, nil, fmt.Errorf("generate iv: %w", err)
	}

	s, err := c.newStream(iv, false)
	if err != nil {
		return nil, nil, fmt.Errorf("%s encrypter: %w", c.method.Name, err)
	}
	return s, iv, nil
}

// NewDecrypter returns a stream for the receiving direction using the IV
// read from the peer.
func (c *Cipher) NewDecrypter(iv []byte) (stdcipher.Stream, error) {
	if len(iv) != c.method.IVSize {
		return nil, fmt.Errorf("%w: got %d want %d", ErrIVSize, len(iv), c.method.IVSize)
	}

	s, err := c.newStream(iv, true)
	if err != nil {
		return nil, fmt.Errorf("%s decrypter: %w", c.method.Name, err)
	}
	return s, nil
}
