// Package cipher implements the stream ciphers used on the tunnel between
// sslocal and ssserver.
//
// A method is selected by name once, at configuration load, with [New]. The
// returned [Cipher] holds the key derived from the password and is shared
// read-only by every session using that server. Each session then asks it for
// one encrypting and one decrypting stream:
//
//	c, err := cipher.New("aes-256-cfb", "secret")
//	enc, iv, err := c.NewEncrypter()   // iv is sent in the clear first
//	dec, err := c.NewDecrypter(peerIV) // iv read from the peer
//
// Streams implement crypto/cipher.Stream and may be fed arbitrarily sized
// chunks; the output is the same as processing the whole stream at once.
package cipher
