package extract

import (
	"fmt"
	"io"

	"github.com/Luzifer/tab-extract/tab"
)

// payload returns the uncompressed content of the entry
func (p *Pipeline) payload(e tab.Entry) ([]byte, error) {
	switch e.Compression {
	case tab.CompressionNone:
		if e.CompressedSize != e.UncompressedSize {
			return nil, fmt.Errorf(
				"%w: stored entry with compressed size %d and uncompressed size %d",
				ErrConsistency, e.CompressedSize, e.UncompressedSize,
			)
		}
		return p.readRange(e.Offset, e.CompressedSize)

	case tab.CompressionOodle:
		if p.codec == nil {
			return nil, fmt.Errorf("%w: no codec configured for %s", ErrCodec, e.Compression)
		}

		if p.table.Layout == tab.LayoutBlocks && e.BlockIndex != 0 {
			return p.blockPayload(e)
		}

		raw, err := p.readRange(e.Offset, e.CompressedSize)
		if err != nil {
			return nil, err
		}
		return p.decompress(raw, e.UncompressedSize)

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, e.Compression)
	}
}

// segments resolves the chain of compressed blocks an entry is split
// into: consecutive blocks starting at the entry's block index until
// the uncompressed size of the entry is covered
func (p *Pipeline) segments(e tab.Entry) ([]tab.CompressedBlock, error) {
	var (
		segs                 []tab.CompressedBlock
		compressed, expanded uint64
	)

	for idx := int(e.BlockIndex); expanded < uint64(e.UncompressedSize); idx++ {
		b, ok := p.table.Block(idx)
		switch {
		case !ok:
			return nil, fmt.Errorf("%w: block %d out of range (%d blocks)", ErrConsistency, idx, len(p.table.Blocks))
		case b.IsSentinel():
			return nil, fmt.Errorf("%w: block %d is a placeholder", ErrConsistency, idx)
		case b.UncompressedSize == 0:
			return nil, fmt.Errorf("%w: block %d is empty", ErrConsistency, idx)
		}

		segs = append(segs, b)
		compressed += uint64(b.CompressedSize)
		expanded += uint64(b.UncompressedSize)
	}

	if expanded != uint64(e.UncompressedSize) || compressed != uint64(e.CompressedSize) {
		return nil, fmt.Errorf(
			"%w: blocks cover %d/%d bytes, entry declares %d/%d",
			ErrConsistency, compressed, expanded, e.CompressedSize, e.UncompressedSize,
		)
	}

	return segs, nil
}

func (p *Pipeline) blockPayload(e tab.Entry) ([]byte, error) {
	segs, err := p.segments(e)
	if err != nil {
		return nil, err
	}

	raw, err := p.readRange(e.Offset, e.CompressedSize)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, e.UncompressedSize)
	for i, s := range segs {
		seg, err := p.decompress(raw[:s.CompressedSize], s.UncompressedSize)
		if err != nil {
			return nil, fmt.Errorf("segment %d: %w", i, err)
		}
		out = append(out, seg...)
		raw = raw[s.CompressedSize:]
	}

	return out, nil
}

func (p *Pipeline) decompress(raw []byte, size uint32) ([]byte, error) {
	out, err := p.codec.Decompress(raw, int(size))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCodec, err)
	}

	if len(out) != int(size) {
		return nil, fmt.Errorf("%w: got %d bytes, expected %d", ErrCodec, len(out), size)
	}

	return out, nil
}

// readRange reads exactly size bytes at offset from the archive. The
// range is checked against the archive size before the buffer is
// allocated, archives of unknown size are read incrementally.
func (p *Pipeline) readRange(offset, size uint32) ([]byte, error) {
	section := io.NewSectionReader(p.archive, int64(offset), int64(size))

	if p.archiveSize < 0 {
		buf, err := io.ReadAll(section)
		if err != nil {
			return nil, fmt.Errorf("reading %d bytes at 0x%x: %w", size, offset, err)
		}
		if len(buf) != int(size) {
			return nil, fmt.Errorf("reading %d bytes at 0x%x: got %d: %w", size, offset, len(buf), io.ErrUnexpectedEOF)
		}
		return buf, nil
	}

	if end := int64(offset) + int64(size); end > p.archiveSize {
		return nil, fmt.Errorf(
			"reading %d bytes at 0x%x: archive has %d bytes: %w",
			size, offset, p.archiveSize, io.ErrUnexpectedEOF,
		)
	}

	buf := make([]byte, size)
	if _, err := io.ReadFull(section, buf); err != nil {
		return nil, fmt.Errorf("reading %d bytes at 0x%x: %w", size, offset, err)
	}
	return buf, nil
}

// sample reads the leading bytes of an entry for content detection
func (p *Pipeline) sample(e tab.Entry) ([]byte, error) {
	buf := make([]byte, min(sampleSize, e.CompressedSize))
	n, err := io.ReadFull(io.NewSectionReader(p.archive, int64(e.Offset), int64(len(buf))), buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF { //nolint:errorlint // io.ReadFull returns these unwrapped
		return nil, fmt.Errorf("reading sample at 0x%x: %w", e.Offset, err)
	}
	return buf[:n], nil
}
