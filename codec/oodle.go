// Package codec contains the decompressors used to unpack compressed
// archive entries
package codec

import (
	"errors"
	"fmt"

	"github.com/new-world-tools/go-oodle"
)

var (
	// ErrEmptyInput signals a decompression request without input or
	// without room for output, the native decoder must not see those
	ErrEmptyInput = errors.New("empty decompression buffer")
	// ErrDecodedSize signals the decoder reporting more bytes than the
	// output buffer holds
	ErrDecodedSize = errors.New("decoder reported invalid size")
)

// Oodle decompresses payloads using the native Oodle library which
// needs to be available on the system (see EnsureLibrary)
type Oodle struct {
	// decode fills out from in and returns the number of bytes the
	// decoder produced, nil uses the native library
	decode func(in, out []byte) (int, error)
}

// EnsureLibrary checks the native library can be found and downloads
// it to the temp directory when it is missing and download is set
func EnsureLibrary(download bool) error {
	if oodle.IsLibExists() {
		return nil
	}

	if !download {
		return fmt.Errorf("%w: %s", errNoLibrary, libName)
	}

	if err := oodle.Download(); err != nil {
		return fmt.Errorf("downloading %s: %w", libName, err)
	}

	return nil
}

// Decompress unpacks compressed into a buffer of at most
// uncompressedSize bytes. The returned buffer is cut to the number of
// bytes the decoder produced, callers need to compare its length to the
// size they expect.
func (o Oodle) Decompress(compressed []byte, uncompressedSize int) ([]byte, error) {
	if len(compressed) == 0 || uncompressedSize <= 0 {
		return nil, fmt.Errorf("%w: %d bytes in, %d bytes out", ErrEmptyInput, len(compressed), uncompressedSize)
	}

	decode := o.decode
	if decode == nil {
		decode = nativeDecompress
	}

	out := make([]byte, uncompressedSize)
	n, err := decode(compressed, out)
	if err != nil {
		return nil, fmt.Errorf("oodle decompression: %w", err)
	}

	switch {
	case n == 0:
		return nil, errors.New("oodle decompression failed")
	case n < 0 || n > len(out):
		return nil, fmt.Errorf("%w: %d of %d bytes", ErrDecodedSize, n, len(out))
	}

	return out[:n], nil
}
