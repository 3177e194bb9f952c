package forwarder

// Package forwarder implements the local SOCKS5 relay that bridges a
// browser to an authenticated upstream SOCKS5 proxy.
//
// Browsers only accept host:port in --proxy-server=socks5://..., never
// credentials, so the forwarder listens locally with no authentication and
// performs the full credentialed handshake (RFC 1929 username/password
// subnegotiation) against the real upstream on the browser's behalf, then
// relays bytes transparently. One upstream per forwarder, one fresh upstream
// TCP connection per browser connection, CONNECT only.
