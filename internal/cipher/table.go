package cipher

import (
	stdcipher "crypto/cipher"
	"encoding/binary"
	"sort"
)

func init() {
	register(&Method{Name: "table", KeySize: 16, IVSize: 0, setup: setupTable})
}

// setupTable builds the legacy byte substitution tables. The key is
// MD5(password); its first eight bytes seed 1023 rounds of stable sorting.
func setupTable(key []byte) (streamFunc, error) {
	a := binary.LittleEndian.Uint64(key[:8])

	table := make([]uint64, 256)
	for i := range table {
		table[i] = uint64(i)
	}
	for i := uint64(1); i < 1024; i++ {
		sort.SliceStable(table, func(x, y int) bool {
			return a%(table[x]+i) < a%(table[y]+i)
		})
	}

	enc := new(tableStream)
	dec := new(tableStream)
	for i, v := range table {
		enc[i] = byte(v)
		dec[v] = byte(i)
	}

	return func(_ []byte, decrypt bool) (stdcipher.Stream, error) {
		if decrypt {
			return dec, nil
		}
		return enc, nil
	}, nil
}

// tableStream is a stateless substitution; the name XORKeyStream comes from
// crypto/cipher.Stream. It is safe to share between sessions.
type tableStream [256]byte

func (t *tableStream) XORKeyStream(dst, src []byte) {
	if len(dst) < len(src) {
		panic("cipher: output smaller than input")
	}
	for i, b := range src {
		dst[i] = t[b]
	}
}
