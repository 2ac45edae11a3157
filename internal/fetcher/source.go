package fetcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Format identifies the layout of an export file.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatZIP  Format = "zip"
)

// ParseFormat resolves an explicit format name, or infers it from the file
// extension when name is empty.
func ParseFormat(name, path string) (Format, error) {
	if name == "" {
		if strings.EqualFold(filepath.Ext(path), ".zip") {
			return FormatZIP, nil
		}
		f, ok := exportFormat(path)
		if !ok {
			return "", eris.Errorf("fetcher: cannot infer format of %q", path)
		}
		return f, nil
	}
	switch f := Format(strings.ToLower(name)); f {
	case FormatCSV, FormatXLSX, FormatZIP:
		return f, nil
	default:
		return "", eris.Errorf("fetcher: unsupported format %q", name)
	}
}

func exportFormat(name string) (Format, bool) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv", ".txt":
		return FormatCSV, true
	case ".xlsx":
		return FormatXLSX, true
	}
	return "", false
}

// Source is an opened export yielding header-keyed records.
type Source struct {
	Records <-chan Record
	Errors  <-chan error

	cleanup func()
}

// Close releases the file handles and temporary files held by the source.
func (s *Source) Close() {
	if s.cleanup != nil {
		s.cleanup()
		s.cleanup = nil
	}
}

// SourceOptions carries the parser settings for each export format.
type SourceOptions struct {
	CSV  CSVOptions
	XLSX XLSXOptions
}

// OpenSource opens path in the given format and starts streaming its records.
// ZIP archives are unpacked into a temporary directory first.
func OpenSource(ctx context.Context, path string, format Format, opts SourceOptions) (*Source, error) {
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	if format == FormatZIP {
		dir, err := os.MkdirTemp("", "plates-export-*")
		if err != nil {
			return nil, eris.Wrap(err, "fetcher: create temp dir")
		}
		cleanups = append(cleanups, func() { _ = os.RemoveAll(dir) })

		extracted, err := ExtractExport(path, dir)
		if err != nil {
			cleanup()
			return nil, err
		}
		zap.L().Debug("extracted export from archive",
			zap.String("archive", path),
			zap.String("file", extracted),
		)
		path = extracted
		format, _ = exportFormat(extracted)
	}

	var rows <-chan []string
	var errs <-chan error
	switch format {
	case FormatCSV:
		f, err := os.Open(path) //nolint:gosec
		if err != nil {
			cleanup()
			return nil, eris.Wrapf(err, "fetcher: open %s", path)
		}
		cleanups = append(cleanups, func() { _ = f.Close() })
		rows, errs = StreamCSV(ctx, f, opts.CSV)
	case FormatXLSX:
		rows, errs = StreamXLSX(ctx, path, opts.XLSX)
	default:
		cleanup()
		return nil, eris.Errorf("fetcher: unsupported format %q", format)
	}

	recs, recErrs := StreamRecords(ctx, rows, errs)
	return &Source{Records: recs, Errors: recErrs, cleanup: cleanup}, nil
}
