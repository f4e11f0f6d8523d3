// Package socks5 provides the small slice of SOCKS5 that sslocal speaks:
// no-auth negotiation, CONNECT requests, and replies.
//
// It wraps the message types in github.com/txthinking/socks5 and decodes the
// request address with the same codec the tunnel uses, so a CONNECT target
// moves from the client to the tunnel header without re-encoding.
package socks5
