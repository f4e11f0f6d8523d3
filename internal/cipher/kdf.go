package cipher

import "crypto/md5" //nolint:gosec // Wire-compatible key derivation, not a password store.

// DeriveKey stretches password to size bytes with the OpenSSL EVP_BytesToKey
// chain: D1 = MD5(password), Dn = MD5(Dn-1 || password), concatenated and
// truncated. Both tunnel ends derive the same key without exchanging it.
func DeriveKey(password string, size int) []byte {
	if size <= 0 {
		return nil
	}

	pw := []byte(password)
	key := make([]byte, 0, size+md5.Size)
	var prev []byte
	for len(key) < size {
		h := md5.New() //nolint:gosec
		h.Write(prev)
		h.Write(pw)
		prev = h.Sum(nil)
		key = append(key, prev...)
	}
	return key[:size]
}
