package cipher

import (
	stdcipher "crypto/cipher"
	"encoding/binary"

	"golang.org/x/crypto/salsa20/salsa"
)

func init() {
	register(&Method{Name: "salsa20", KeySize: 32, IVSize: 8, setup: setupSalsa20})
}

func setupSalsa20(key []byte) (streamFunc, error) {
	var k [32]byte
	copy(k[:], key)
	return func(iv []byte, _ bool) (stdcipher.Stream, error) {
		s := &salsaStream{key: k}
		copy(s.nonce[:], iv)
		return s, nil
	}, nil
}

// salsaStream keeps the block counter and the position inside the current
// keystream block so that chunks of any size can be processed in sequence.
type salsaStream struct {
	key     [32]byte
	nonce   [8]byte
	counter uint64
	offset  int
	block   [64]byte
}

func (s *salsaStream) input() *[16]byte {
	var in [16]byte
	copy(in[:8], s.nonce[:])
	binary.LittleEndian.PutUint64(in[8:], s.counter)
	return &in
}

func (s *salsaStream) XORKeyStream(dst, src []byte) {
	if len(dst) < len(src) {
		panic("cipher: output smaller than input")
	}

	for len(src) > 0 {
		if s.offset == 0 && len(src) >= len(s.block) {
			n := len(src) &^ (len(s.block) - 1)
			salsa.XORKeyStream(dst[:n], src[:n], s.input(), &s.key)
			s.counter += uint64(n / len(s.block))
			dst, src = dst[n:], src[n:]
			continue
		}

		if s.offset == 0 {
			var zero [64]byte
			salsa.XORKeyStream(s.block[:], zero[:], s.input(), &s.key)
		}

		n := min(len(s.block)-s.offset, len(src))
		for i := range n {
			dst[i] = src[i] ^ s.block[s.offset+i]
		}
		s.offset += n
		if s.offset == len(s.block) {
			s.offset = 0
			s.counter++
		}
		dst, src = dst[n:], src[n:]
	}
}
