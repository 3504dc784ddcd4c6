package codec

import "golang.org/x/sys/windows"

const libName = "oo2core_9_win64.dll"

func openLibrary(path string) (uintptr, error) {
	handle, err := windows.LoadLibrary(path)
	return uintptr(handle), err //nolint:wrapcheck // wrapped by caller
}
