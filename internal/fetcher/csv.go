package fetcher

import (
	"bufio"
	"context"
	"encoding/csv"
	"io"
	"iter"
	"strings"

	"github.com/rotisserie/eris"
)

// CSVOptions configures CSVRows.
type CSVOptions struct {
	Comma     rune // default ','
	Comment   rune // 0 = none
	TrimSpace bool
	SkipBlank bool // drop rows whose cells are all empty
}

const utf8BOM = "\ufeff"

// CSVRows yields the records of r in order. A leading UTF-8 byte order mark
// is dropped and rows may vary in width. On a read error or cancellation
// the final pair carries a nil row and the error, and iteration stops.
func CSVRows(ctx context.Context, r io.Reader, opts CSVOptions) iter.Seq2[[]string, error] {
	return func(yield func([]string, error) bool) {
		br := bufio.NewReader(r)
		if head, err := br.Peek(len(utf8BOM)); err == nil && string(head) == utf8BOM {
			_, _ = br.Discard(len(utf8BOM))
		}

		reader := csv.NewReader(br)
		if opts.Comma != 0 {
			reader.Comma = opts.Comma
		}
		reader.Comment = opts.Comment
		reader.FieldsPerRecord = -1
		reader.ReuseRecord = false

		for line := 1; ; line++ {
			if err := ctx.Err(); err != nil {
				yield(nil, eris.Wrap(err, "csv: cancelled"))
				return
			}
			record, err := reader.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				yield(nil, eris.Wrapf(err, "csv: row %d", line))
				return
			}
			if opts.TrimSpace {
				for i := range record {
					record[i] = strings.TrimSpace(record[i])
				}
			}
			if opts.SkipBlank && blank(record) {
				continue
			}
			if !yield(record, nil) {
				return
			}
		}
	}
}

func blank(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
