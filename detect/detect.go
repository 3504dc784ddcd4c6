// Package detect guesses the file extension of resources whose name is
// unknown by looking for well-known magic values in their first bytes
package detect

import "encoding/binary"

// Extensions returned when nothing could be detected
const (
	ExtNull    = "null"
	ExtUnknown = "unknown"
)

// SampleSize is the number of leading bytes Extension looks at
const SampleSize = 32

const maxScanOffset = 16

type fileType struct {
	name    string
	ext     string
	offsets []int
}

var (
	simple4 = map[uint32]fileType{
		0x20534444: {"texture", "dds", []int{0}},
		0x30474154: {"tag container", "tag0", []int{0, 4}},
		0x35425346: {"audio", "fsb5", []int{0}},
		0x41444620: {"arbitrary data format", "adf", []int{0, 4}},
		0x43505452: {"runtime property container", "rtpc", []int{0, 4}},
		0x43524153: {"small archive", "sarc", []int{4}},
		0x57e0e057: {"animation", "ban", []int{0}},
		0x58545641: {"texture", "avtx", []int{0}},
		0x00464141: {"archive file", "aaf", []int{0}},
	}

	simple8 = map[uint64]fileType{
		0x000000300000000e: {"ai", "btc", []int{0}},
		0x444e425200000005: {"RBN", "rbn", []int{0}},
		0x4453425200000005: {"RBS", "rbs", []int{0}},
	}
)

// Extension returns the extension (without dot) matching the content
// of sample. Magic values are only accepted at the offsets known for
// them, the first match in ascending offset order wins. An empty sample
// yields ExtNull, an unrecognized one ExtUnknown.
func Extension(sample []byte) string {
	if len(sample) == 0 {
		return ExtNull
	}

	for off := 0; off <= maxScanOffset && off+4 <= len(sample); off += 4 {
		if ft, ok := simple4[binary.LittleEndian.Uint32(sample[off:])]; ok && ft.allowedAt(off) {
			return ft.ext
		}
	}

	for off := 0; off <= maxScanOffset && off+8 <= len(sample); off += 8 {
		if ft, ok := simple8[binary.LittleEndian.Uint64(sample[off:])]; ok && ft.allowedAt(off) {
			return ft.ext
		}
	}

	if len(sample) >= 3 { //nolint:mnd
		switch {
		case (sample[0] == 'G' || sample[0] == 'C') && sample[1] == 'F' && sample[2] == 'X':
			return "gfx"
		case sample[0] == 0x01 && sample[1] == 0x04 && sample[2] == 0x00:
			return "bin"
		}
	}

	return ExtUnknown
}

func (f fileType) allowedAt(offset int) bool {
	for _, o := range f.offsets {
		if o == offset {
			return true
		}
	}
	return false
}
