package tab

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"math/bits"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tableBuilder writes synthetic tables, there is no encoder outside of
// the tests
type tableBuilder struct {
	order  binary.ByteOrder
	layout Layout

	header  Header
	pairs   [][2]uint32
	entries []Entry
	padding int
}

func newBuilder(order binary.ByteOrder, layout Layout) *tableBuilder {
	return &tableBuilder{
		order:  order,
		layout: layout,
		header: Header{
			MajorVersion: 2,
			MinorVersion: 1,
			Alignment:    0x1000,
		},
	}
}

func (b *tableBuilder) bytes() []byte {
	buf := new(bytes.Buffer)
	w := func(v any) { _ = binary.Write(buf, b.order, v) }

	// big-endian tables end up with the byte-swapped signature on disk
	w(Signature)

	w(b.header.MajorVersion)
	w(b.header.MinorVersion)
	w(b.header.Alignment)
	w(b.header.Reserved)
	w(b.header.MaxCompressedBlockSize)
	w(b.header.UncompressedBlockSize)

	w(uint32(len(b.pairs))) //#nosec:G115 // test data
	for _, p := range b.pairs {
		w(p[0])
		w(p[1])
	}

	for _, e := range b.entries {
		w(e.NameHash)
		w(e.Offset)
		w(e.CompressedSize)
		w(e.UncompressedSize)
		w(e.Flags)
		if b.layout != LayoutFlat {
			w([]byte{e.BlockIndex, e.Reserved1, byte(e.Compression), e.Reserved3})
		}
	}

	buf.Write(make([]byte, b.padding))
	return buf.Bytes()
}

func blockTableFixture(order binary.ByteOrder) (*tableBuilder, []CompressedBlock, []Entry) {
	blocks := []CompressedBlock{
		{CompressedSize: math.MaxUint32, UncompressedSize: math.MaxUint32},
		{CompressedSize: 0x1234, UncompressedSize: 0x40000},
		{CompressedSize: 0x0800, UncompressedSize: 0x10000},
	}
	entries := []Entry{
		{NameHash: 0xdeadbeef, Offset: 0x0, CompressedSize: 0x10, UncompressedSize: 0x10, Flags: 7, Compression: CompressionNone},
		{NameHash: 0x31b8a510, Offset: 0x1000, CompressedSize: 0x1a34, UncompressedSize: 0x50000, BlockIndex: 1, Compression: CompressionOodle},
		{NameHash: 0x58d68708, Offset: 0x3000, CompressedSize: 0x99, UncompressedSize: 0x200, Reserved1: 0xaa, Compression: CompressionOodle, Reserved3: 0x55},
	}

	b := newBuilder(order, LayoutBlocks)
	b.header.MaxCompressedBlockSize = 0x40000
	b.header.UncompressedBlockSize = 0x40000
	for _, bl := range blocks {
		b.pairs = append(b.pairs, [2]uint32{bl.CompressedSize, bl.UncompressedSize})
	}
	b.entries = entries

	return b, blocks, entries
}

func TestDecodeBlockLayoutRoundTrip(t *testing.T) {
	b, blocks, entries := blockTableFixture(binary.LittleEndian)

	tbl, err := Decode(bytes.NewReader(b.bytes()), LayoutBlocks)
	require.NoError(t, err)

	assert.Equal(t, binary.LittleEndian, tbl.ByteOrder)
	assert.Equal(t, LayoutBlocks, tbl.Layout)
	assert.Equal(t, uint32(0x40000), tbl.Header.MaxCompressedBlockSize)
	assert.Equal(t, uint32(0x40000), tbl.Header.UncompressedBlockSize)
	assert.Equal(t, blocks, tbl.Blocks)
	assert.Equal(t, entries, tbl.Entries)
	assert.Empty(t, tbl.Unknowns)

	assert.True(t, tbl.Blocks[0].IsSentinel())
	assert.False(t, tbl.Blocks[1].IsSentinel())

	blk, ok := tbl.Block(2)
	assert.True(t, ok)
	assert.Equal(t, blocks[2], blk)
	_, ok = tbl.Block(3)
	assert.False(t, ok)
}

func TestDecodeByteOrderIndependent(t *testing.T) {
	le, _, _ := blockTableFixture(binary.LittleEndian)
	be, _, _ := blockTableFixture(binary.BigEndian)

	leBytes, beBytes := le.bytes(), be.bytes()
	require.NotEqual(t, leBytes, beBytes)
	assert.Equal(t, []byte{0x00, 0x42, 0x41, 0x54}, beBytes[:4])

	leTbl, err := Decode(bytes.NewReader(leBytes), LayoutBlocks)
	require.NoError(t, err)
	beTbl, err := Decode(bytes.NewReader(beBytes), LayoutBlocks)
	require.NoError(t, err)

	assert.Equal(t, binary.BigEndian, beTbl.ByteOrder)
	assert.Equal(t, leTbl.Header, beTbl.Header)
	assert.Equal(t, leTbl.Blocks, beTbl.Blocks)
	assert.Equal(t, leTbl.Entries, beTbl.Entries)
}

func TestDecodeRejectsBadSignature(t *testing.T) {
	valid, _, _ := blockTableFixture(binary.LittleEndian)
	body := valid.bytes()[4:]

	prefixes := []uint32{0, 1, math.MaxUint32, 0x00424155, 0x42415400}
	rng := rand.New(rand.NewSource(1)) //#nosec:G404 // deterministic test input
	for i := 0; i < 2000; i++ {
		prefixes = append(prefixes, rng.Uint32())
	}

	for _, p := range prefixes {
		if p == Signature || bits.ReverseBytes32(p) == Signature {
			continue
		}

		data := binary.LittleEndian.AppendUint32(nil, p)
		data = append(data, body...)

		tbl, err := Decode(bytes.NewReader(data), LayoutBlocks)
		require.Nil(t, tbl)

		var fe *FormatError
		require.ErrorAs(t, err, &fe, "prefix 0x%08x", p)
		assert.ErrorIs(t, err, ErrBadSignature)
		assert.Equal(t, int64(0), fe.Offset)
	}
}

func TestDecodeHeaderValidation(t *testing.T) {
	for name, tc := range map[string]struct {
		modify func(*tableBuilder)
		expect error
		offset int64
	}{
		"major version": {func(b *tableBuilder) { b.header.MajorVersion = 3 }, ErrUnsupportedVersion, 4},
		"minor version": {func(b *tableBuilder) { b.header.MinorVersion = 0 }, ErrUnsupportedVersion, 4},
		"alignment":     {func(b *tableBuilder) { b.header.Alignment = 0x800 }, ErrBadAlignment, 8},
		"reserved":      {func(b *tableBuilder) { b.header.Reserved = 1 }, ErrBadReserved, 12},
	} {
		t.Run(name, func(t *testing.T) {
			b := newBuilder(binary.LittleEndian, LayoutFlat)
			tc.modify(b)

			tbl, err := Decode(bytes.NewReader(b.bytes()), LayoutFlat)
			assert.Nil(t, tbl)
			assert.ErrorIs(t, err, tc.expect)

			var fe *FormatError
			require.ErrorAs(t, err, &fe)
			assert.Equal(t, tc.offset, fe.Offset)
		})
	}
}

func TestDecodeTruncated(t *testing.T) {
	b, _, _ := blockTableFixture(binary.LittleEndian)
	data := b.bytes()

	// header (24) + count (4) + 3 blocks (24), entries follow
	for _, cut := range []int{0, 2, 5, 10, 23, 27, 30, 51} {
		tbl, err := Decode(bytes.NewReader(data[:cut]), LayoutBlocks)
		assert.Nil(t, tbl, "cut at %d", cut)
		assert.ErrorIs(t, err, ErrTruncated, "cut at %d", cut)

		var fe *FormatError
		require.ErrorAs(t, err, &fe)
		assert.Equal(t, int64(cut), fe.Offset)
	}
}

func TestDecodeToleratesTrailingPadding(t *testing.T) {
	for _, layout := range []Layout{LayoutFlat, LayoutTagged, LayoutBlocks} {
		for _, padding := range []int{0, 1, 19} {
			b := newBuilder(binary.LittleEndian, layout)
			b.entries = []Entry{{NameHash: 1, Offset: 2, CompressedSize: 3, UncompressedSize: 3}}
			b.padding = padding

			tbl, err := Decode(bytes.NewReader(b.bytes()), layout)
			require.NoError(t, err, "layout %s padding %d", layout, padding)
			assert.Len(t, tbl.Entries, 1)
		}
	}
}

func TestDecodeEmptyTable(t *testing.T) {
	b := newBuilder(binary.BigEndian, LayoutTagged)

	tbl, err := Decode(bytes.NewReader(b.bytes()), LayoutTagged)
	require.NoError(t, err)
	assert.Empty(t, tbl.Entries)
	assert.Empty(t, tbl.Unknowns)
}

func TestDecodeFlatLayout(t *testing.T) {
	b := newBuilder(binary.LittleEndian, LayoutFlat)
	b.pairs = [][2]uint32{{1, 2}, {3, 4}}
	b.entries = []Entry{
		{NameHash: 0x11, Offset: 0x100, CompressedSize: 16, UncompressedSize: 16, Flags: 0xcafe},
		{NameHash: 0x22, Offset: 0x200, CompressedSize: 10, UncompressedSize: 64},
	}

	tbl, err := Decode(bytes.NewReader(b.bytes()), LayoutFlat)
	require.NoError(t, err)

	assert.Equal(t, []UnknownPair{{A: 1, B: 2}, {A: 3, B: 4}}, tbl.Unknowns)
	assert.Empty(t, tbl.Blocks)
	require.Len(t, tbl.Entries, 2)

	assert.Equal(t, uint32(0xcafe), tbl.Entries[0].Flags)
	assert.Equal(t, CompressionNone, tbl.Entries[0].Compression)
	assert.False(t, tbl.Entries[0].IsCompressed())
	assert.Equal(t, CompressionOodle, tbl.Entries[1].Compression)
	assert.True(t, tbl.Entries[1].IsCompressed())
}

func TestDecodeTaggedLayoutKeepsReservedBytes(t *testing.T) {
	b := newBuilder(binary.LittleEndian, LayoutTagged)
	b.pairs = [][2]uint32{{9, 9}}
	b.entries = []Entry{
		{NameHash: 0x33, Offset: 0x10, CompressedSize: 5, UncompressedSize: 9, BlockIndex: 2, Reserved1: 0x7f, Compression: CompressionType(1), Reserved3: 0x80},
	}

	tbl, err := Decode(bytes.NewReader(b.bytes()), LayoutTagged)
	require.NoError(t, err)

	assert.Equal(t, []UnknownPair{{A: 9, B: 9}}, tbl.Unknowns)
	assert.Equal(t, b.entries, tbl.Entries)
}

func TestDecodePassesIOErrors(t *testing.T) {
	boom := errors.New("boom")

	_, err := Decode(failingReader{err: boom}, LayoutFlat)
	assert.ErrorIs(t, err, boom)

	var fe *FormatError
	assert.ErrorAs(t, err, &fe)
}

func TestDecodeUnknownLayout(t *testing.T) {
	b := newBuilder(binary.LittleEndian, LayoutFlat)

	_, err := Decode(bytes.NewReader(b.bytes()), Layout(9))
	assert.ErrorIs(t, err, ErrUnknownLayout)
}

func TestParseLayout(t *testing.T) {
	for _, name := range LayoutNames() {
		l, err := ParseLayout(name)
		require.NoError(t, err)
		assert.Equal(t, name, l.String())
	}

	l, err := ParseLayout("BLOCKS")
	require.NoError(t, err)
	assert.Equal(t, LayoutBlocks, l)

	_, err = ParseLayout("zip")
	assert.ErrorIs(t, err, ErrUnknownLayout)
}

type failingReader struct{ err error }

func (f failingReader) Read([]byte) (int, error) { return 0, f.err }
