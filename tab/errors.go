package tab

import (
	"errors"
	"fmt"
)

// Reasons a table can be rejected, use errors.Is on the error returned
// by Decode to tell them apart
var (
	ErrBadSignature       = errors.New("bad signature")
	ErrUnsupportedVersion = errors.New("unsupported version")
	ErrBadAlignment       = errors.New("unexpected alignment")
	ErrBadReserved        = errors.New("reserved field is not zero")
	ErrTruncated          = errors.New("truncated table")
	ErrUnknownLayout      = errors.New("unknown layout")
)

// FormatError describes a structural violation found while decoding a
// table together with the byte offset it was detected at
type FormatError struct {
	Offset int64
	Err    error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("invalid table at offset 0x%x: %s", e.Offset, e.Err)
}

func (e *FormatError) Unwrap() error { return e.Err }

func formatError(offset int64, err error) *FormatError {
	return &FormatError{Offset: offset, Err: err}
}
