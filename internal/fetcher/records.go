package fetcher

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
)

// Record is one data row keyed by header name.
type Record map[string]string

// StreamRecords turns a row stream whose first row is the header into a stream
// of header-keyed records, preserving row order. Short rows leave missing
// columns out of the record; extra cells are dropped.
func StreamRecords(ctx context.Context, rows <-chan []string, errs <-chan error) (<-chan Record, <-chan error) {
	outCh := make(chan Record, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(outCh)
		defer close(errCh)

		var header []string
		for row := range rows {
			if header == nil {
				header = normalizeHeader(row)
				continue
			}

			rec := make(Record, len(header))
			for i, name := range header {
				if i < len(row) {
					rec[name] = row[i]
				}
			}

			select {
			case outCh <- rec:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "records: context cancelled")
				return
			}
		}

		for err := range errs {
			if err != nil {
				errCh <- err
				return
			}
		}
		if header == nil {
			errCh <- eris.New("records: missing header row")
		}
	}()

	return outCh, errCh
}

func normalizeHeader(row []string) []string {
	out := make([]string, len(row))
	for i, name := range row {
		name = strings.TrimPrefix(name, "\ufeff")
		out[i] = strings.TrimSpace(strings.Trim(name, `"`))
	}
	return out
}
