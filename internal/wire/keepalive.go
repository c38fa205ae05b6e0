package wire

// KeepaliveMessage consists of only the message header; its body is always
// empty (spec.md §4.1).
type KeepaliveMessage struct{}

// EncodeKeepalive returns the (empty) KEEPALIVE body.
func EncodeKeepalive() []byte {
	return nil
}

// DecodeKeepalive validates that a KEEPALIVE body is empty.
func DecodeKeepalive(body []byte) (KeepaliveMessage, error) {
	if len(body) != 0 {
		return KeepaliveMessage{}, &HeaderError{Subcode: BadMessageLength}
	}
	return KeepaliveMessage{}, nil
}
