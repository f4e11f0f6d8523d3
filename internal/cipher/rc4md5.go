package cipher

import (
	stdcipher "crypto/cipher"
	"crypto/md5" //nolint:gosec // Part of the rc4-md5 wire format.
	"crypto/rc4" //nolint:gosec // Legacy method kept for interoperability.
)

func init() {
	register(&Method{Name: "rc4-md5", KeySize: 16, IVSize: 16, setup: setupRC4MD5})
}

// The per-session RC4 key is MD5(key || iv), so every session gets its own
// keystream even though RC4 has no IV of its own.
func setupRC4MD5(key []byte) (streamFunc, error) {
	return func(iv []byte, _ bool) (stdcipher.Stream, error) {
		h := md5.New() //nolint:gosec
		h.Write(key)
		h.Write(iv)
		return rc4.NewCipher(h.Sum(nil)) //nolint:gosec
	}, nil
}
