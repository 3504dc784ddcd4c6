// Package extract resolves the entries of a decoded table to named
// output files and writes their (decompressed) content
package extract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/Luzifer/tab-extract/detect"
	"github.com/Luzifer/tab-extract/tab"
)

// UnknownDir is the directory unnamed entries are placed in, grouped
// by their detected extension
const UnknownDir = "unknown"

const sampleSize = detect.SampleSize

type (
	// NameLookup resolves a name hash to the resource name
	NameLookup interface {
		Lookup(hash uint32) (string, bool)
	}

	// Codec decompresses entry payloads. The returned buffer must have
	// exactly uncompressedSize bytes for the entry to be accepted.
	Codec interface {
		Decompress(compressed []byte, uncompressedSize int) ([]byte, error)
	}

	// Item is an entry together with the name it is extracted to
	Item struct {
		Entry tab.Entry
		// Relative output path using the separator of the host OS
		Name string
		// Known is false when the name was synthesized from the hash
		Known bool
	}

	// Result summarizes a Run
	Result struct {
		Total     int
		Extracted int
		Skipped   int
		Failed    int
	}

	// Pipeline extracts the entries of a table from its archive blob
	Pipeline struct {
		table       *tab.Table
		archive     io.ReaderAt
		archiveSize int64
		names       NameLookup
		codec       Codec

		filter       *regexp.Regexp
		skipUnknown  bool
		workers      int
		abortOnError bool
	}

	// Option configures a Pipeline
	Option func(*Pipeline)
)

// WithFilter only selects entries whose output name (using forward
// slashes) matches the given expression
func WithFilter(re *regexp.Regexp) Option {
	return func(p *Pipeline) { p.filter = re }
}

// WithUnknowns controls whether entries without a known name are
// selected. They are by default.
func WithUnknowns(extract bool) Option {
	return func(p *Pipeline) { p.skipUnknown = !extract }
}

// WithWorkers sets the number of entries processed in parallel. Values
// below 1 process entries one after another.
func WithWorkers(n int) Option {
	return func(p *Pipeline) { p.workers = n }
}

// WithAbortOnError stops the run at the first failing entry instead of
// collecting the failures
func WithAbortOnError(abort bool) Option {
	return func(p *Pipeline) { p.abortOnError = abort }
}

// New creates a Pipeline for the entries of t stored in archive. names
// may be nil in which case all entries are treated as unknown, codec
// may be nil if the table contains no compressed entries.
//
// When archive reports its size (Size() int64 like *bytes.Reader or
// Len() int like *mmap.ReaderAt) entry ranges are checked against it
// before reading.
func New(t *tab.Table, archive io.ReaderAt, names NameLookup, codec Codec, opts ...Option) *Pipeline {
	p := &Pipeline{
		table:       t,
		archive:     archive,
		archiveSize: readerSize(archive),
		names:       names,
		codec:       codec,
		workers:     1,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.workers < 1 {
		p.workers = 1
	}
	return p
}

// readerSize returns the size of r or -1 if it is unknown
func readerSize(r io.ReaderAt) int64 {
	switch s := r.(type) {
	case interface{ Size() int64 }:
		return s.Size()
	case interface{ Len() int }:
		return int64(s.Len())
	default:
		return -1
	}
}

// Resolve determines the output name of the entry. The boolean is false
// if the entry is not selected by the configured filters.
func (p *Pipeline) Resolve(e tab.Entry) (Item, bool, error) {
	item := Item{Entry: e}

	if p.names != nil {
		item.Name, item.Known = p.names.Lookup(e.NameHash)
	}

	if item.Known {
		name := filepath.FromSlash(strings.TrimPrefix(item.Name, "/"))
		if !filepath.IsLocal(name) {
			return item, false, fmt.Errorf("%w: %q", ErrUnsafeName, item.Name)
		}
		item.Name = name
	} else {
		if p.skipUnknown {
			return item, false, nil
		}

		sample, err := p.sample(e)
		if err != nil {
			return item, false, err
		}

		ext := detect.Extension(sample)
		item.Name = filepath.Join(UnknownDir, ext, fmt.Sprintf("%08X.%s", e.NameHash, ext))
	}

	if p.filter != nil && !p.filter.MatchString(filepath.ToSlash(item.Name)) {
		return item, false, nil
	}

	return item, true, nil
}

// Run extracts all selected entries into sink. Failing entries do not
// stop the run unless WithAbortOnError is set, their errors are joined
// into the returned error. Cancelling ctx stops the run before the next
// entry is started.
func (p *Pipeline) Run(ctx context.Context, sink Sink) (Result, error) {
	var (
		extracted, skipped, failed atomic.Int64

		errsLock sync.Mutex
		errs     []error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)

	for i := range p.table.Entries {
		if gctx.Err() != nil {
			break
		}

		e := p.table.Entries[i]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err //nolint:wrapcheck // context errors are passed as they are
			}

			written, name, err := p.extractEntry(e, sink)
			switch {
			case err != nil:
				failed.Add(1)
				entryErr := &EntryError{Hash: e.NameHash, Name: name, Err: err}
				if p.abortOnError {
					return entryErr
				}

				logrus.WithError(err).WithFields(logrus.Fields{
					"hash": fmt.Sprintf("%08X", e.NameHash),
					"name": name,
				}).Error("extracting entry")

				errsLock.Lock()
				errs = append(errs, entryErr)
				errsLock.Unlock()

			case written:
				extracted.Add(1)

			default:
				skipped.Add(1)
			}

			return nil
		})
	}

	waitErr := g.Wait()
	if waitErr == nil {
		// Cancelled before any worker noticed
		waitErr = ctx.Err()
	}

	res := Result{
		Total:     len(p.table.Entries),
		Extracted: int(extracted.Load()),
		Skipped:   int(skipped.Load()),
		Failed:    int(failed.Load()),
	}

	return res, errors.Join(append([]error{waitErr}, errs...)...)
}

func (p *Pipeline) extractEntry(e tab.Entry, sink Sink) (written bool, name string, err error) {
	item, selected, err := p.Resolve(e)
	if err != nil {
		return false, item.Name, fmt.Errorf("resolving name: %w", err)
	}

	logger := logrus.WithFields(logrus.Fields{
		"hash": fmt.Sprintf("%08X", e.NameHash),
		"name": item.Name,
	})

	if !selected {
		logger.Debug("entry not selected")
		return false, item.Name, nil
	}

	unlock := sink.Lock(item.Name)
	defer unlock()

	process, err := sink.ShouldProcess(item.Name)
	if err != nil {
		return false, item.Name, err //nolint:wrapcheck // sink errors are already descriptive
	}
	if !process {
		logger.Debug("output exists, skipping")
		return false, item.Name, nil
	}

	data, err := p.payload(e)
	if err != nil {
		return false, item.Name, err
	}

	if err = sink.Write(item.Name, data); err != nil {
		return false, item.Name, fmt.Errorf("writing output: %w", err)
	}

	logger.WithField("size", len(data)).Info("file extracted")
	return true, item.Name, nil
}
