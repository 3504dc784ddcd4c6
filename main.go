package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"regexp"
	"strings"
	"syscall"

	"github.com/Luzifer/go_helpers/v2/str"
	"github.com/Luzifer/rconfig/v2"
	"github.com/davecgh/go-spew/spew"
	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"golang.org/x/exp/mmap"

	"github.com/Luzifer/tab-extract/codec"
	"github.com/Luzifer/tab-extract/extract"
	"github.com/Luzifer/tab-extract/filelist"
	"github.com/Luzifer/tab-extract/tab"
)

const archiveExt = ".arc"

var (
	cfg = struct {
		AbortOnError   bool   `flag:"abort-on-error" default:"false" description:"Stop at the first entry failing to extract"`
		Dest           string `flag:"dest,d" default:"" description:"Path prefix to use to extract files to (default: <table>_unpack)"`
		DownloadOodle  bool   `flag:"download-oodle" default:"false" description:"Download the Oodle library to the temp directory if it is not found"`
		Extract        bool   `flag:"extract,x" default:"false" description:"Extract files (if not given files are just listed)"`
		Filter         string `flag:"filter,f" default:"" description:"Only handle files whose name matches this (case-insensitive) regular expression"`
		Layout         string `flag:"layout,l" default:"flat" description:"Table layout (flat, tagged, blocks)"`
		Lists          string `flag:"lists" default:"" description:"Directory containing .filelist files to resolve names from"`
		LogLevel       string `flag:"log-level" default:"info" description:"Log level (debug, info, warn, error, fatal)"`
		NoUnknowns     bool   `flag:"no-unknowns" default:"false" description:"Do not handle files without a known name"`
		Overwrite      bool   `flag:"overwrite,o" default:"false" description:"Overwrite existing files"`
		VersionAndExit bool   `flag:"version" default:"false" description:"Prints current version and exits"`
		Workers        int    `flag:"workers,w" default:"1" description:"Number of files to extract in parallel"`
	}{}

	version = "dev"
)

func initApp() (err error) {
	if err = rconfig.ParseAndValidate(&cfg); err != nil {
		return fmt.Errorf("parsing CLI options: %w", err)
	}

	l, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("parsing log-level: %w", err)
	}
	logrus.SetLevel(l)

	if !str.StringInSlice(strings.ToLower(cfg.Layout), tab.LayoutNames()) {
		return fmt.Errorf("unknown layout %q, expected one of %s", cfg.Layout, strings.Join(tab.LayoutNames(), ", "))
	}

	return nil
}

func main() {
	var err error
	if err = initApp(); err != nil {
		logrus.WithError(err).Fatal("initializing app")
	}

	if cfg.VersionAndExit {
		fmt.Printf("tab-extract %s\n", version) //nolint:forbidigo
		os.Exit(0)
	}

	if len(rconfig.Args()) != 2 { //nolint:mnd
		logrus.Fatal("usage: tab-extract [options] <table.tab>")
	}
	tablePath := rconfig.Args()[1]

	table, err := readTable(tablePath)
	if err != nil {
		logrus.WithError(err).Fatal("reading table")
	}

	logrus.WithFields(logrus.Fields{
		"blocks":  len(table.Blocks),
		"entries": len(table.Entries),
		"layout":  table.Layout,
		"order":   table.ByteOrder,
	}).Debug("opened table")
	if logrus.IsLevelEnabled(logrus.DebugLevel) {
		logrus.Debugf("table header:\n%s", spew.Sdump(table.Header))
	}

	names := filelist.New()
	if cfg.Lists != "" {
		if err = names.LoadDir(cfg.Lists); err != nil {
			logrus.WithError(err).Fatal("loading name lists")
		}
		logrus.WithField("names", names.Len()).Debug("loaded name lists")
	} else {
		logrus.Warn("no name lists given, all files are unknown")
	}

	archivePath := strings.TrimSuffix(tablePath, filepath.Ext(tablePath)) + archiveExt
	archive, err := mmap.Open(archivePath)
	if err != nil {
		logrus.WithError(err).Fatal("opening archive")
	}
	defer archive.Close() //nolint:errcheck // will be closed by program exit

	opts := []extract.Option{
		extract.WithUnknowns(!cfg.NoUnknowns),
		extract.WithWorkers(cfg.Workers),
		extract.WithAbortOnError(cfg.AbortOnError),
	}
	if cfg.Filter != "" {
		re, err := regexp.Compile("(?i)" + cfg.Filter)
		if err != nil {
			logrus.WithError(err).Fatal("compiling filter")
		}
		opts = append(opts, extract.WithFilter(re))
	}

	pipeline := extract.New(table, archive, names, codec.Oodle{}, opts...)

	if !cfg.Extract {
		if err = listFiles(table, names, pipeline); err != nil {
			logrus.WithError(err).Fatal("listing files")
		}
		return
	}

	dest := cfg.Dest
	if dest == "" {
		dest = strings.TrimSuffix(tablePath, filepath.Ext(tablePath)) + "_unpack"
	}

	if err = prepareDest(dest); err != nil {
		logrus.WithError(err).Fatal("preparing destination")
	}

	if err = codec.EnsureLibrary(cfg.DownloadOodle); err != nil {
		logrus.WithError(err).Warn("oodle library unavailable, compressed entries will fail")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	res, err := pipeline.Run(ctx, extract.NewFileSink(dest, extract.WithOverwrite(cfg.Overwrite)))
	logger := logrus.WithFields(logrus.Fields{
		"extracted": res.Extracted,
		"failed":    res.Failed,
		"skipped":   res.Skipped,
		"total":     res.Total,
	})
	if err != nil {
		logger.WithError(err).Error("extraction finished with errors")
		os.Exit(1) //nolint:gocritic // deferred closes are not required on exit
	}

	logger.Info("extraction finished")
}

func readTable(tablePath string) (*tab.Table, error) {
	layout, err := tab.ParseLayout(cfg.Layout)
	if err != nil {
		return nil, fmt.Errorf("parsing layout: %w", err)
	}

	f, err := os.Open(tablePath) //#nosec:G304 // Intended to open arbitrary files
	if err != nil {
		return nil, fmt.Errorf("opening table: %w", err)
	}
	defer f.Close() //nolint:errcheck // read-only

	table, err := tab.Decode(f, layout)
	if err != nil {
		return nil, fmt.Errorf("decoding table: %w", err)
	}

	return table, nil
}

func listFiles(table *tab.Table, names *filelist.List, pipeline *extract.Pipeline) error {
	var (
		breakdown filelist.Breakdown
		seen      = map[uint32]bool{}
	)

	for _, e := range table.Entries {
		if !seen[e.NameHash] {
			seen[e.NameHash] = true
			breakdown.Total++
			if _, ok := names.Lookup(e.NameHash); ok {
				breakdown.Known++
			}
		}

		item, selected, err := pipeline.Resolve(e)
		if err != nil {
			return fmt.Errorf("resolving %08X: %w", e.NameHash, err)
		}
		if !selected {
			continue
		}

		fmt.Println(filepath.ToSlash(item.Name)) //nolint:forbidigo // Intended to print file list
	}

	printBreakdown(breakdown)
	return nil
}

func printBreakdown(b filelist.Breakdown) {
	c := color.New(color.FgGreen)
	switch {
	case b.Percent() < 50: //nolint:mnd
		c = color.New(color.FgRed)
	case b.Percent() < 100: //nolint:mnd
		c = color.New(color.FgYellow)
	}

	_, _ = c.Fprintf(os.Stderr, "; %s\n", b) //nolint:errcheck // best-effort status line
}

func prepareDest(dest string) error {
	destInfo, err := os.Stat(dest)
	if err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("accessing destination: %w", err)
		}

		if err := os.MkdirAll(dest, 0o750); err != nil { //nolint:mnd
			return fmt.Errorf("creating destination directory: %w", err)
		}
		return nil
	}

	if !destInfo.IsDir() {
		return errors.New("destination exists and is no directory")
	}

	return nil
}
