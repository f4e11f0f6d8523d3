package cipher

import (
	"crypto/aes"
	stdcipher "crypto/cipher"
)

func init() {
	for _, size := range []int{16, 24, 32} {
		register(&Method{Name: aesName(size, "cfb"), KeySize: size, IVSize: aes.BlockSize, setup: setupAESCFB})
		register(&Method{Name: aesName(size, "ctr"), KeySize: size, IVSize: aes.BlockSize, setup: setupAESCTR})
	}
}

func aesName(keySize int, mode string) string {
	switch keySize {
	case 16:
		return "aes-128-" + mode
	case 24:
		return "aes-192-" + mode
	default:
		return "aes-256-" + mode
	}
}

func setupAESCFB(key []byte) (streamFunc, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return func(iv []byte, decrypt bool) (stdcipher.Stream, error) {
		if decrypt {
			return stdcipher.NewCFBDecrypter(block, iv), nil //nolint:staticcheck // Required for wire compatibility.
		}
		return stdcipher.NewCFBEncrypter(block, iv), nil //nolint:staticcheck // Required for wire compatibility.
	}, nil
}

func setupAESCTR(key []byte) (streamFunc, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return func(iv []byte, _ bool) (stdcipher.Stream, error) {
		return stdcipher.NewCTR(block, iv), nil
	}, nil
}
