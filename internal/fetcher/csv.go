// Package fetcher parses registration exports from CSV, XLSX, and ZIP sources.
package fetcher

import (
	"context"
	"encoding/csv"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/htmlindex"
)

// CSVOptions configures the streaming CSV parser. It replaces any notion of a
// globally registered dialect: every caller passes its own options.
type CSVOptions struct {
	Delimiter  rune // default ','
	Quote      rune // default '"'; other runes are stripped from each field
	LazyQuotes bool // accept bare and stray quotes inside fields
	TrimSpace  bool
	Encoding   string // IANA or WHATWG charset name, e.g. "windows-1252"; empty = UTF-8
}

// DecodeReader wraps r so that it yields UTF-8 text decoded from the named charset.
func DecodeReader(r io.Reader, charset string) (io.Reader, error) {
	if charset == "" {
		return r, nil
	}
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return nil, eris.Wrapf(err, "csv: unsupported encoding %q", charset)
	}
	return enc.NewDecoder().Reader(r), nil
}

// StreamCSV reads a CSV file and sends rows to a channel.
// Caller must consume the returned row channel. Errors are sent on the error channel.
// Both channels are closed when processing completes.
func StreamCSV(ctx context.Context, r io.Reader, opts CSVOptions) (<-chan []string, <-chan error) {
	rowCh := make(chan []string, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(rowCh)
		defer close(errCh)

		src, err := DecodeReader(r, opts.Encoding)
		if err != nil {
			errCh <- err
			return
		}

		reader := csv.NewReader(src)
		if opts.Delimiter != 0 {
			reader.Comma = opts.Delimiter
		}
		customQuote := opts.Quote != 0 && opts.Quote != '"'
		reader.LazyQuotes = opts.LazyQuotes || customQuote
		reader.FieldsPerRecord = -1 // allow variable fields

		for {
			if ctx.Err() != nil {
				errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled")
				return
			}

			record, err := reader.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				errCh <- eris.Wrap(err, "csv: read row")
				return
			}

			for i, field := range record {
				if customQuote {
					field = strings.Trim(field, string(opts.Quote))
				}
				if opts.TrimSpace {
					field = strings.TrimSpace(field)
				}
				record[i] = field
			}

			select {
			case rowCh <- record:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled")
				return
			}
		}
	}()

	return rowCh, errCh
}
