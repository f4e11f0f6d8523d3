// Package dialer provides the outbound dialers used by sslocal and ssserver.
//
// Dialers implement a small interface (DialContext). sslocal uses one to reach
// its remote servers and ssserver uses one to reach destinations, either
// directly or through an upstream SOCKS5 proxy.
package dialer
