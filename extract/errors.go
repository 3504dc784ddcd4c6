package extract

import (
	"errors"
	"fmt"
)

// Per-entry failure classes, use errors.Is to check for them
var (
	// ErrConsistency signals sizes or block references contradicting
	// each other, the table itself is corrupt
	ErrConsistency = errors.New("inconsistent entry")
	// ErrCodec signals the decompressor failed or returned a buffer not
	// matching the declared uncompressed size
	ErrCodec = errors.New("decompression failed")
	// ErrUnsupported signals a compression type this tool cannot handle
	ErrUnsupported = errors.New("unsupported compression")
	// ErrUnsafeName signals a resolved name escaping the output directory
	ErrUnsafeName = errors.New("unsafe output name")
)

// EntryError wraps the failure of a single entry
type EntryError struct {
	Hash uint32
	Name string
	Err  error
}

func (e *EntryError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("entry %08X: %s", e.Hash, e.Err)
	}
	return fmt.Sprintf("entry %08X (%s): %s", e.Hash, e.Name, e.Err)
}

func (e *EntryError) Unwrap() error { return e.Err }
