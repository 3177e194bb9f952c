package socks5

// Version5 is the SOCKS protocol version byte.
const Version5 byte = 0x05

// Authentication methods (RFC 1928 section 3).
const (
	MethodNoAuth       byte = 0x00
	MethodUserPass     byte = 0x02 // RFC 1929
	MethodNoAcceptable byte = 0xFF
)

// Commands (RFC 1928 section 4).
const (
	CmdConnect      byte = 0x01
	CmdBind         byte = 0x02
	CmdUDPAssociate byte = 0x03
)

// Address types.
const (
	ATYPIPv4   byte = 0x01 // 4 bytes
	ATYPDomain byte = 0x03 // 1 length byte + N bytes
	ATYPIPv6   byte = 0x04 // 16 bytes
)

// Reply codes (RFC 1928 section 6).
const (
	RepSuccess                 byte = 0x00
	RepGeneralFailure          byte = 0x01
	RepConnectionRefused       byte = 0x05
	RepCommandNotSupported     byte = 0x07
	RepAddressTypeNotSupported byte = 0x08
)

// Username/password subnegotiation (RFC 1929).
const (
	UserPassVersion       byte = 0x01
	UserPassStatusSuccess byte = 0x00
)

// MaxCredentialLen is the longest username or password the RFC 1929 frame
// can carry; both fields use a one-byte length prefix.
const MaxCredentialLen = 255
