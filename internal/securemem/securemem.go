// Package securemem provides memory-protected storage for sensitive data
// using memguard, so signing secrets cannot be read via debugger, memory
// dump, or swap.
package securemem

import (
	"crypto/subtle"

	"github.com/awnumar/memguard"
)

// Purge wipes all secure buffers. Call on shutdown. Signal handling is
// left to the caller so graceful shutdown still runs.
func Purge() {
	memguard.Purge()
}

// String is a secure string wrapper that stores sensitive data in
// protected memory.
type String struct {
	buf     *memguard.LockedBuffer
	invalid bool
}

// NewString creates a new secure string from the given plaintext.
func NewString(plaintext string) *String {
	return &String{
		buf: memguard.NewBufferFromBytes([]byte(plaintext)),
	}
}

// NewStringFromBytes creates a new secure string from the given bytes.
// NOTE: memguard may wipe the input slice for security.
func NewStringFromBytes(data []byte) *String {
	return &String{
		buf: memguard.NewBufferFromBytes(data),
	}
}

// Bytes returns a copy of the plaintext bytes.
// WARNING: the copy lives in regular memory; zero it when done.
func (s *String) Bytes() []byte {
	if s == nil || s.invalid || s.buf == nil {
		return nil
	}
	b := s.buf.Bytes()
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// IsEmpty returns true if the string is empty or invalid.
func (s *String) IsEmpty() bool {
	if s == nil || s.invalid || s.buf == nil {
		return true
	}
	return len(s.buf.Bytes()) == 0
}

// Len returns the length of the string.
func (s *String) Len() int {
	if s == nil || s.invalid || s.buf == nil {
		return 0
	}
	return len(s.buf.Bytes())
}

// Equal compares the secure string with plaintext in constant time.
func (s *String) Equal(other string) bool {
	if s == nil || s.invalid || s.buf == nil {
		return other == ""
	}
	return subtle.ConstantTimeCompare(s.buf.Bytes(), []byte(other)) == 1
}

// Destroy securely wipes the string from memory. The string must not be
// used afterwards.
func (s *String) Destroy() {
	if s == nil || s.invalid {
		return
	}
	if s.buf != nil {
		s.buf.Destroy()
		s.buf = nil
	}
	s.invalid = true
}
