package codec

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"
	"github.com/new-world-tools/go-oodle"
)

var errNoLibrary = errors.New("oodle library not found")

// lib holds the native OodleLZ_Decompress binding. go-oodle discards the
// byte count returned by the decoder so the function is bound here.
var lib struct {
	sync.Once
	err error

	decompress func(
		compBuf unsafe.Pointer, compBufSize int64,
		rawBuf unsafe.Pointer, rawLen int64,
		fuzzSafe, checkCRC, verbosity uintptr,
		decBufBase, decBufSize, fpCallback, callbackUserData, decoderMemory, decoderMemorySize uintptr,
		threadPhase uintptr,
	) int64
}

// libraryPaths lists the locations go-oodle looks for the library in
func libraryPaths() []string {
	return []string{
		libName,
		filepath.Join(os.TempDir(), "go-oodle", libName),
	}
}

func loadLibrary() error {
	lib.Do(func() {
		for _, p := range libraryPaths() {
			if _, err := os.Stat(p); err != nil {
				continue
			}

			handle, err := openLibrary(p)
			if err != nil {
				lib.err = fmt.Errorf("loading %s: %w", p, err)
				return
			}

			purego.RegisterLibFunc(&lib.decompress, handle, "OodleLZ_Decompress")
			return
		}

		lib.err = fmt.Errorf("%w: %s", errNoLibrary, libName)
	})

	return lib.err
}

func nativeDecompress(in, out []byte) (int, error) {
	if err := loadLibrary(); err != nil {
		return 0, err
	}

	n := lib.decompress(
		unsafe.Pointer(&in[0]), int64(len(in)),
		unsafe.Pointer(&out[0]), int64(len(out)),
		oodle.FuzzSafeYes, oodle.CheckCRCNo, oodle.VerbosityNone,
		0, 0, 0, 0, 0, 0,
		oodle.DecodeThreadPhaseAll,
	)
	runtime.KeepAlive(in)
	runtime.KeepAlive(out)

	return int(n), nil
}
