package socks5

// Package socks5 implements the pieces of the RFC 1928 wire protocol that
// socksfwd needs to play both SOCKS5 roles at once: server toward a
// connecting browser (no authentication) and client toward an authenticated
// upstream proxy (RFC 1929 username/password subnegotiation).
//
// It is deliberately not a general-purpose SOCKS5 implementation: CONNECT is
// the only command, and the destination address from the client's request is
// carried as raw ATYP+ADDR+PORT bytes so the upstream CONNECT repeats them
// byte-for-byte with no re-encoding.
