package socks5

import (
	"errors"
	"fmt"
)

// HandshakeError is a failed SOCKS5 negotiation step. Reply carries the RFC
// 1928 reply code the browser should receive; SendReply is false when the
// failure happened before any protocol-level reply is meaningful (a bad
// version byte, or EOF in the middle of the greeting).
type HandshakeError struct {
	Reply     byte
	SendReply bool
	msg       string
}

func (e *HandshakeError) Error() string { return e.msg }

func failf(reply byte, format string, args ...any) *HandshakeError {
	return &HandshakeError{
		Reply:     reply,
		SendReply: true,
		msg:       fmt.Sprintf(format, args...),
	}
}

// withoutReply marks a handshake failure as one the client must not receive
// reply bytes for. Non-HandshakeError values pass through unchanged.
func withoutReply(err error) error {
	var he *HandshakeError
	if errors.As(err, &he) {
		he.SendReply = false
	}
	return err
}
