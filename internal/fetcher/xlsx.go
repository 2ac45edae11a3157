package fetcher

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// XLSXOptions selects the worksheet holding a registry export.
type XLSXOptions struct {
	Sheet     string // worksheet name; empty = first sheet
	TrimSpace bool
}

// StreamXLSX sends the rows of one worksheet to a channel, header first.
// Rows whose cells are all blank are dropped. Both channels are closed when
// processing completes.
func StreamXLSX(ctx context.Context, path string, opts XLSXOptions) (<-chan []string, <-chan error) {
	rowCh := make(chan []string, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(rowCh)
		defer close(errCh)

		sheet, err := openSheet(path, opts.Sheet)
		if err != nil {
			errCh <- err
			return
		}

		for _, row := range sheet.Rows {
			cells, blank := cellStrings(row, opts.TrimSpace)
			if blank {
				continue
			}
			select {
			case rowCh <- cells:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "xlsx: context cancelled")
				return
			}
		}
	}()

	return rowCh, errCh
}

func openSheet(path, name string) (*xlsx.Sheet, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: open file")
	}
	if name == "" {
		if len(f.Sheets) == 0 {
			return nil, eris.Errorf("xlsx: %s has no worksheets", path)
		}
		return f.Sheets[0], nil
	}
	sheet, ok := f.Sheet[name]
	if !ok {
		return nil, eris.Errorf("xlsx: sheet %q not found in %s", name, path)
	}
	return sheet, nil
}

// cellStrings renders a row as text and reports whether every cell is empty.
func cellStrings(row *xlsx.Row, trim bool) ([]string, bool) {
	out := make([]string, 0, len(row.Cells))
	blank := true
	for _, cell := range row.Cells {
		v := cell.String()
		if trim {
			v = strings.TrimSpace(v)
		}
		if strings.TrimSpace(v) != "" {
			blank = false
		}
		out = append(out, v)
	}
	return out, blank
}
