// Package tab contains a decoder for the TAB table-of-contents files
// indexing the resources stored in a companion ARC blob
package tab

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"math/bits"
	"strings"
)

// Signature is the magic at the start of every table ("TAB\0") when
// read little-endian. Big-endian tables carry its byte-swapped form.
const Signature uint32 = 0x00424154

const (
	supportedMajorVersion = 2
	supportedMinorVersion = 1

	expectedAlignment = 0x1000

	flatRecordSize   = 20
	taggedRecordSize = 24

	// Counts are attacker controlled, grow slices on demand above this
	maxPrealloc = 1 << 16
)

type (
	// Layout selects which of the on-disk shapes sharing version 2.1
	// the table is decoded as. The binary data does not tell them
	// apart so the caller has to choose.
	Layout uint8

	// CompressionType tells how the payload of an entry is stored
	CompressionType uint8

	// Header contains the fixed fields at the start of the table
	Header struct {
		MajorVersion uint16
		MinorVersion uint16
		Alignment    uint32
		Reserved     uint32

		// Only meaningful for LayoutBlocks, other layouts keep the raw
		// values of the two fields
		MaxCompressedBlockSize uint32
		UncompressedBlockSize  uint32
	}

	// UnknownPair is a record of the count-prefixed list in the flat
	// and tagged layouts, its meaning is not known
	UnknownPair struct {
		A uint32
		B uint32
	}

	// CompressedBlock is a shared compressed segment referenced by
	// entries of the block layout
	CompressedBlock struct {
		CompressedSize   uint32
		UncompressedSize uint32
	}

	// Entry describes one resource inside the archive blob
	Entry struct {
		NameHash         uint32
		Offset           uint32
		CompressedSize   uint32
		UncompressedSize uint32
		Flags            uint32

		// Not present in LayoutFlat
		BlockIndex  uint8
		Reserved1   uint8
		Compression CompressionType
		Reserved3   uint8
	}

	// Table is the decoded content of a TAB file. A Table is never
	// modified after Decode returned it.
	Table struct {
		Layout    Layout
		ByteOrder binary.ByteOrder
		Header    Header

		Unknowns []UnknownPair     // LayoutFlat, LayoutTagged
		Blocks   []CompressedBlock // LayoutBlocks
		Entries  []Entry
	}
)

// Known layouts
const (
	LayoutFlat Layout = iota
	LayoutTagged
	LayoutBlocks
)

// Known compression types
const (
	CompressionNone  CompressionType = 0
	CompressionOodle CompressionType = 4
)

var layoutNames = map[Layout]string{
	LayoutFlat:   "flat",
	LayoutTagged: "tagged",
	LayoutBlocks: "blocks",
}

// LayoutNames returns the names accepted by ParseLayout
func LayoutNames() []string {
	return []string{"flat", "tagged", "blocks"}
}

// ParseLayout maps a layout name (see LayoutNames) to its Layout
func ParseLayout(name string) (Layout, error) {
	for l, n := range layoutNames {
		if strings.EqualFold(n, name) {
			return l, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownLayout, name)
}

func (l Layout) String() string {
	if n, ok := layoutNames[l]; ok {
		return n
	}
	return fmt.Sprintf("Layout(%d)", uint8(l))
}

func (l Layout) recordSize() int {
	if l == LayoutFlat {
		return flatRecordSize
	}
	return taggedRecordSize
}

func (c CompressionType) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionOodle:
		return "oodle"
	default:
		return fmt.Sprintf("CompressionType(%d)", uint8(c))
	}
}

// IsSentinel reports whether the block is a placeholder which must
// never be decoded
func (b CompressedBlock) IsSentinel() bool {
	return b.CompressedSize == math.MaxUint32 && b.UncompressedSize == math.MaxUint32
}

// IsCompressed reports whether the payload needs to pass the codec
func (e Entry) IsCompressed() bool {
	return e.Compression != CompressionNone
}

// Block returns the compressed block with the given index
func (t *Table) Block(idx int) (CompressedBlock, bool) {
	if idx < 0 || idx >= len(t.Blocks) {
		return CompressedBlock{}, false
	}
	return t.Blocks[idx], true
}

// Decode reads a whole table from r using the given layout. Entries are
// read until less than a full record is left in the stream. On error
// no table is returned.
func Decode(r io.Reader, layout Layout) (*Table, error) {
	if _, ok := layoutNames[layout]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownLayout, layout)
	}

	cr := NewReader(r, binary.LittleEndian)

	magic, err := cr.ReadU32()
	if err != nil {
		return nil, truncated(cr, "signature", err)
	}

	var order binary.ByteOrder
	switch {
	case magic == Signature:
		order = binary.LittleEndian
	case bits.ReverseBytes32(magic) == Signature:
		order = binary.BigEndian
	default:
		return nil, formatError(0, fmt.Errorf("%w: 0x%08x", ErrBadSignature, magic))
	}
	cr.SetOrder(order)

	t := &Table{Layout: layout, ByteOrder: order}

	if err = t.readHeader(cr); err != nil {
		return nil, err
	}

	if err = t.readSegmentTable(cr); err != nil {
		return nil, err
	}

	if err = t.readEntries(cr); err != nil {
		return nil, err
	}

	return t, nil
}

func (t *Table) readHeader(cr *Reader) (err error) {
	h := &t.Header

	if h.MajorVersion, err = cr.ReadU16(); err != nil {
		return truncated(cr, "major version", err)
	}
	if h.MinorVersion, err = cr.ReadU16(); err != nil {
		return truncated(cr, "minor version", err)
	}
	if h.MajorVersion != supportedMajorVersion || h.MinorVersion != supportedMinorVersion {
		return formatError(cr.Offset()-4, fmt.Errorf("%w: %d.%d", ErrUnsupportedVersion, h.MajorVersion, h.MinorVersion)) //nolint:mnd
	}

	if h.Alignment, err = cr.ReadU32(); err != nil {
		return truncated(cr, "alignment", err)
	}
	if h.Alignment != expectedAlignment {
		return formatError(cr.Offset()-4, fmt.Errorf("%w: 0x%x", ErrBadAlignment, h.Alignment)) //nolint:mnd
	}

	if h.Reserved, err = cr.ReadU32(); err != nil {
		return truncated(cr, "reserved field", err)
	}
	if h.Reserved != 0 {
		return formatError(cr.Offset()-4, fmt.Errorf("%w: 0x%x", ErrBadReserved, h.Reserved)) //nolint:mnd
	}

	if h.MaxCompressedBlockSize, err = cr.ReadU32(); err != nil {
		return truncated(cr, "max compressed block size", err)
	}
	if h.UncompressedBlockSize, err = cr.ReadU32(); err != nil {
		return truncated(cr, "uncompressed block size", err)
	}

	return nil
}

// readSegmentTable reads the count-prefixed list of pairs following the
// header: unknown pairs or compressed blocks depending on the layout
func (t *Table) readSegmentTable(cr *Reader) error {
	count, err := cr.ReadU32()
	if err != nil {
		return truncated(cr, "pair count", err)
	}

	pairs := make([][2]uint32, 0, min(count, maxPrealloc))
	for i := uint32(0); i < count; i++ {
		var p [2]uint32
		if p[0], err = cr.ReadU32(); err != nil {
			return truncated(cr, fmt.Sprintf("pair %d", i), err)
		}
		if p[1], err = cr.ReadU32(); err != nil {
			return truncated(cr, fmt.Sprintf("pair %d", i), err)
		}
		pairs = append(pairs, p)
	}

	if t.Layout == LayoutBlocks {
		t.Blocks = make([]CompressedBlock, len(pairs))
		for i, p := range pairs {
			t.Blocks[i] = CompressedBlock{CompressedSize: p[0], UncompressedSize: p[1]}
		}
		return nil
	}

	t.Unknowns = make([]UnknownPair, len(pairs))
	for i, p := range pairs {
		t.Unknowns[i] = UnknownPair{A: p[0], B: p[1]}
	}
	return nil
}

func (t *Table) readEntries(cr *Reader) error {
	size := t.Layout.recordSize()

	for {
		rec, err := cr.ReadBytes(size)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				// Trailing padding shorter than one record
				return nil
			}
			return formatError(cr.Offset(), fmt.Errorf("reading entry %d: %w", len(t.Entries), err))
		}

		t.Entries = append(t.Entries, t.parseEntry(rec))
	}
}

func (t *Table) parseEntry(rec []byte) Entry {
	o := t.ByteOrder
	e := Entry{
		NameHash:         o.Uint32(rec[0:]),
		Offset:           o.Uint32(rec[4:]),
		CompressedSize:   o.Uint32(rec[8:]),
		UncompressedSize: o.Uint32(rec[12:]),
		Flags:            o.Uint32(rec[16:]),
	}

	if t.Layout == LayoutFlat {
		// No type byte, stored entries are those not changing in size
		if e.CompressedSize != e.UncompressedSize {
			e.Compression = CompressionOodle
		}
		return e
	}

	e.BlockIndex = rec[20]
	e.Reserved1 = rec[21]
	e.Compression = CompressionType(rec[22])
	e.Reserved3 = rec[23]
	return e
}

func truncated(cr *Reader, what string, err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return formatError(cr.Offset(), fmt.Errorf("%w: reading %s", ErrTruncated, what))
	}
	return formatError(cr.Offset(), fmt.Errorf("reading %s: %w", what, err))
}
