package session

import "errors"

var (
	// ErrInvalidCode is returned when a join references a code with no live
	// session.
	ErrInvalidCode = errors.New("invalid or expired code")

	// ErrSessionFull is returned when a join finds both roles currently bound.
	ErrSessionFull = errors.New("session already has two connected peers")

	// ErrBadCode is returned when a pre-chosen code does not match the
	// configured length or charset.
	ErrBadCode = errors.New("malformed code")

	// ErrCodeTaken is returned when a pre-chosen code collides with a live
	// session.
	ErrCodeTaken = errors.New("code already in use")

	// ErrCodeSpaceExhausted is returned when the generator cannot find a free
	// code. This is a configuration problem (code space too small for the
	// session count), not a user error.
	ErrCodeSpaceExhausted = errors.New("could not generate a unique code")

	// ErrBufferOverflow is returned when a role's pending queue exceeds the
	// configured cap.
	ErrBufferOverflow = errors.New("pending buffer limit exceeded")

	// ErrConnBound is returned when a connection that already holds a session
	// binding attempts to create or join another.
	ErrConnBound = errors.New("connection already bound to a session")
)
