// Package filelist provides the dictionary mapping name hashes found in
// archive tables back to human readable resource names
package filelist

import (
	"bufio"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/Luzifer/tab-extract/jenkins"
)

// Extension of the name list files read by LoadDir
const Extension = ".filelist"

const commentPrefix = ";"

type (
	// List maps name hashes to names. It is safe for concurrent use.
	List struct {
		mu    sync.RWMutex
		names map[uint32]string
	}

	// Breakdown counts how many of the hashes in a table are known
	Breakdown struct {
		Known int
		Total int
	}
)

// New creates an empty List
func New() *List {
	return &List{names: make(map[uint32]string)}
}

// Add hashes the name and stores it. If another name with the same hash
// is already known the existing one is kept and false is returned.
func (l *List) Add(name string) bool {
	h := jenkins.HashString(name)

	l.mu.Lock()
	defer l.mu.Unlock()

	if existing, ok := l.names[h]; ok {
		if existing != name {
			logrus.WithFields(logrus.Fields{
				"hash":     fmt.Sprintf("%08X", h),
				"existing": existing,
				"name":     name,
			}).Warn("hash collision in name list")
			return false
		}
		return true
	}

	l.names[h] = name
	return true
}

// Lookup returns the name for the given hash
func (l *List) Lookup(hash uint32) (string, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	name, ok := l.names[hash]
	return name, ok
}

// Len returns the number of known names
func (l *List) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return len(l.names)
}

// Names returns all known names sorted
func (l *List) Names() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]string, 0, len(l.names))
	for _, n := range l.names {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Load reads names from r, one per line. Empty lines and lines starting
// with a semicolon are ignored.
func (l *List) Load(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, commentPrefix) {
			continue
		}
		l.Add(line)
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading name list: %w", err)
	}

	return nil
}

// LoadFile reads the names stored in the given file
func (l *List) LoadFile(filename string) error {
	f, err := os.Open(filename) //#nosec:G304 // Intended to open arbitrary files
	if err != nil {
		return fmt.Errorf("opening name list: %w", err)
	}
	defer f.Close() //nolint:errcheck // read-only

	if err = l.Load(f); err != nil {
		return fmt.Errorf("loading %s: %w", filename, err)
	}

	return nil
}

// LoadDir reads every name list file found below dir
func (l *List) LoadDir(dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() || !strings.EqualFold(filepath.Ext(p), Extension) {
			return nil
		}

		logrus.WithField("file", p).Debug("loading name list")
		return l.LoadFile(p)
	})
}

// Percent returns the share of known hashes, rounded down
func (b Breakdown) Percent() int {
	if b.Total == 0 {
		return 0
	}
	return int(math.Floor(float64(b.Known) / float64(b.Total) * 100)) //nolint:mnd
}

func (b Breakdown) String() string {
	return fmt.Sprintf("%d/%d (%d%%)", b.Known, b.Total, b.Percent())
}
