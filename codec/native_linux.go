package codec

import "github.com/ebitengine/purego"

const libName = "liboo2corelinux64.so.9"

func openLibrary(path string) (uintptr, error) {
	return purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL) //nolint:wrapcheck // wrapped by caller
}
