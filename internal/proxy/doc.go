// Package proxy implements the listening halves of the tunnel.
//
// LocalServer is the SOCKS5 front-end run by sslocal: it accepts CONNECT
// requests, picks a remote server from the balancer and tunnels the
// connection there. RemoteServer is run by ssserver: it terminates the tunnel,
// resolves and dials the destination, and relays. Both hand their two legs to
// Relay, which pumps bytes in each direction with idle and drain timeouts.
package proxy
