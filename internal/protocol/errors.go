package protocol

import "errors"

// Decode failure kinds. Decode wraps these with field type and offset
// detail; match with errors.Is.
var (
	// ErrTruncatedHeader means the datagram is shorter than the 6-byte header.
	ErrTruncatedHeader = errors.New("truncated discovery header")

	// ErrTruncatedField means a TLV declared more value bytes than remain
	// in the buffer, or a fixed-size value was shorter than required.
	ErrTruncatedField = errors.New("truncated discovery field")

	// ErrTrailingBytes means bytes remain after the last complete TLV but
	// are too few to start another one (a lone type byte, or a type byte
	// with an incomplete length prefix).
	ErrTrailingBytes = errors.New("trailing bytes after last complete field")

	// ErrMalformedCombinedField means a MAC+IP field (type 0x02) whose
	// value is not exactly 10 bytes.
	ErrMalformedCombinedField = errors.New("malformed combined MAC+IP field")

	// ErrFieldEncoding means a string field holds bytes invalid in its
	// declared encoding.
	ErrFieldEncoding = errors.New("invalid string field encoding")
)
