package extract

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

const dirPermissions = 0o750

// Sink receives the extracted payloads. Names are relative paths using
// the separator of the host OS.
type Sink interface {
	// Lock serializes work on a single output name and returns the
	// matching unlock function
	Lock(name string) func()
	// ShouldProcess returns false if the output must not be written
	ShouldProcess(name string) (bool, error)
	// Write stores the complete payload for name
	Write(name string, data []byte) error
}

// FileSink writes entries to the filesystem.
//
// Files are written to a temporary file in the target directory and
// renamed to the final path afterwards so a partially written file is
// never visible at the final path.
type FileSink struct {
	destDir   string
	overwrite bool

	locks sync.Map
}

// FileSinkOption configures a FileSink
type FileSinkOption func(*FileSink)

// WithOverwrite allows overwriting existing files. By default, existing
// files are skipped.
func WithOverwrite(overwrite bool) FileSinkOption {
	return func(s *FileSink) {
		s.overwrite = overwrite
	}
}

// NewFileSink creates a FileSink writing below destDir
func NewFileSink(destDir string, opts ...FileSinkOption) *FileSink {
	s := &FileSink{destDir: destDir}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the destination path for name
func (s *FileSink) Path(name string) string {
	return filepath.Join(s.destDir, name)
}

// Lock implements Sink
func (s *FileSink) Lock(name string) func() {
	m, _ := s.locks.LoadOrStore(filepath.Clean(name), new(sync.Mutex))
	mu := m.(*sync.Mutex) //nolint:forcetypeassert // only mutexes are stored
	mu.Lock()
	return mu.Unlock
}

// ShouldProcess returns false if the file already exists and overwrite
// is disabled. Failing to check for the file is returned as an error.
func (s *FileSink) ShouldProcess(name string) (bool, error) {
	if s.overwrite {
		return true, nil
	}

	_, err := os.Stat(s.Path(name))
	switch {
	case err == nil:
		return false, nil
	case errors.Is(err, fs.ErrNotExist):
		return true, nil
	default:
		return false, fmt.Errorf("checking output: %w", err)
	}
}

// Write implements Sink, parent directories are created as needed
func (s *FileSink) Write(name string, data []byte) error {
	destPath := s.Path(name)

	dir := filepath.Dir(destPath)
	if err := os.MkdirAll(dir, dirPermissions); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".tab-extract-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()        //nolint:errcheck // we're cleaning up
		_ = os.Remove(tmpPath) //nolint:errcheck // best-effort cleanup
		return fmt.Errorf("writing temp file: %w", err)
	}

	if err = tmp.Close(); err != nil {
		_ = os.Remove(tmpPath) //nolint:errcheck // best-effort cleanup
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err = os.Rename(tmpPath, destPath); err != nil {
		_ = os.Remove(tmpPath) //nolint:errcheck // best-effort cleanup
		return fmt.Errorf("renaming to %s: %w", destPath, err)
	}

	return nil
}
