// Package localerr defines the closed error taxonomy the node runtime
// surfaces across its boundary API and its internal drop paths.
package localerr

import "errors"

var (
	// ErrInvalidRoom is returned when a room name is empty after
	// normalization or fails the room-name pattern.
	ErrInvalidRoom = errors.New("invalid room name")

	// ErrBindExhausted is returned when all sequential port-fallback
	// attempts fail to bind a UDP socket.
	ErrBindExhausted = errors.New("bind exhausted")

	// ErrNotInRoom is returned when a send is attempted before a
	// successful join.
	ErrNotInRoom = errors.New("not in room")

	// ErrAeadFailure marks a decryption/tag verification failure. It
	// never escapes the receive loop; it is logged and the datagram is
	// dropped.
	ErrAeadFailure = errors.New("aead open failed")

	// ErrDecodeFailure marks malformed JSON or a missing required field.
	// It never escapes the receive loop.
	ErrDecodeFailure = errors.New("envelope decode failed")

	// ErrTransportSend marks an OS-level send error. PermissionDenied is
	// suppressed by the transport; anything else is logged but never
	// propagated per datagram.
	ErrTransportSend = errors.New("transport send failed")
)
