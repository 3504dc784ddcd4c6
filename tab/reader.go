package tab

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const maxPrimitiveSize = 8

// Reader reads fixed-width primitives from an underlying stream using a
// byte order which can be switched at runtime. It keeps track of the
// number of bytes consumed so errors can be located in the input.
type Reader struct {
	readBuffer [maxPrimitiveSize]byte

	r      io.Reader
	order  binary.ByteOrder
	offset int64
}

// NewReader creates a Reader on top of r starting with the given order
func NewReader(r io.Reader, order binary.ByteOrder) *Reader {
	return &Reader{r: r, order: order}
}

// Offset returns the number of bytes consumed so far
func (r *Reader) Offset() int64 { return r.offset }

// Order returns the byte order currently used to decode values
func (r *Reader) Order() binary.ByteOrder { return r.order }

// SetOrder switches the byte order for all subsequent reads
func (r *Reader) SetOrder(order binary.ByteOrder) { r.order = order }

// ReadBytes reads exactly n bytes. A read hitting the end of the
// stream before the first byte returns io.EOF, a partial read returns
// io.ErrUnexpectedEOF.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	buf := make([]byte, n)
	if err := r.fill(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// ReadU8 reads a single byte
func (r *Reader) ReadU8() (uint8, error) {
	if err := r.fill(r.readBuffer[:1]); err != nil {
		return 0, err
	}
	return r.readBuffer[0], nil
}

// ReadU16 reads an unsigned 16-bit value
func (r *Reader) ReadU16() (uint16, error) {
	if err := r.fill(r.readBuffer[:2]); err != nil {
		return 0, err
	}
	return r.order.Uint16(r.readBuffer[:2]), nil
}

// ReadU32 reads an unsigned 32-bit value
func (r *Reader) ReadU32() (uint32, error) {
	if err := r.fill(r.readBuffer[:4]); err != nil {
		return 0, err
	}
	return r.order.Uint32(r.readBuffer[:4]), nil
}

// ReadU64 reads an unsigned 64-bit value
func (r *Reader) ReadU64() (uint64, error) {
	if err := r.fill(r.readBuffer[:8]); err != nil {
		return 0, err
	}
	return r.order.Uint64(r.readBuffer[:8]), nil
}

func (r *Reader) fill(buf []byte) error {
	n, err := io.ReadFull(r.r, buf)
	r.offset += int64(n)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return err
		}
		return fmt.Errorf("reading %d bytes: %w", len(buf), err)
	}
	return nil
}
