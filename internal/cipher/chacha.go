package cipher

import (
	stdcipher "crypto/cipher"

	"golang.org/x/crypto/chacha20"
)

// chacha20 is the original 64-bit nonce variant. Its IV fills the last two
// nonce words of the IETF layout; the zero word in front stands in for the
// high half of the 64-bit block counter.
const chaCha20IVSize = 8

func init() {
	register(&Method{Name: "chacha20", KeySize: chacha20.KeySize, IVSize: chaCha20IVSize, setup: setupChaCha20})
	register(&Method{Name: "chacha20-ietf", KeySize: chacha20.KeySize, IVSize: chacha20.NonceSize, setup: setupChaCha20IETF})
}

func setupChaCha20(key []byte) (streamFunc, error) {
	return func(iv []byte, _ bool) (stdcipher.Stream, error) {
		nonce := make([]byte, chacha20.NonceSize-chaCha20IVSize, chacha20.NonceSize)
		return chacha20.NewUnauthenticatedCipher(key, append(nonce, iv...))
	}, nil
}

func setupChaCha20IETF(key []byte) (streamFunc, error) {
	return func(iv []byte, _ bool) (stdcipher.Stream, error) {
		return chacha20.NewUnauthenticatedCipher(key, iv)
	}, nil
}
