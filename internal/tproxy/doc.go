// Package tproxy accepts transparently redirected TCP connections on Linux
// and tunnels each one to its original destination.
//
// The listener sets IP_TRANSPARENT so it works with iptables/nftables TPROXY
// rules, where the accepted socket's local address is the original
// destination. Connections redirected with REDIRECT (NAT) are also handled by
// asking the kernel for SO_ORIGINAL_DST.
//
// On other platforms the listener returns an error.
package tproxy
