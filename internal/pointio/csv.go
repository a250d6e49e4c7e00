package pointio

import (
	"context"
	"encoding/csv"
	"io"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/htmlindex"
)

// streamCSV reads delimited records and sends them to a channel. Both
// channels are closed when processing completes.
func streamCSV(ctx context.Context, r io.Reader, delim rune) (<-chan []string, <-chan error) {
	rowCh := make(chan []string, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(rowCh)
		defer close(errCh)

		reader := csv.NewReader(r)
		reader.Comma = delim
		reader.Comment = '#'
		reader.FieldsPerRecord = -1

		for {
			if ctx.Err() != nil {
				errCh <- ctx.Err()
				return
			}

			record, err := reader.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				errCh <- eris.Wrap(err, "pointio: csv read row")
				return
			}

			select {
			case rowCh <- record:
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			}
		}
	}()

	return rowCh, errCh
}

// decodeCharset wraps r with a decoder for the named charset.
func decodeCharset(r io.Reader, charset string) (io.Reader, error) {
	if charset == "" {
		return r, nil
	}
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return nil, eris.Wrapf(err, "pointio: unsupported charset %q", charset)
	}
	return enc.NewDecoder().Reader(r), nil
}

// ReadCSV reads comma-separated samples with a header row.
func ReadCSV(ctx context.Context, r io.Reader, cols Columns) (*Dataset, error) {
	return readDelimited(ctx, r, cols, ',')
}

func readDelimited(ctx context.Context, r io.Reader, cols Columns, delim rune) (*Dataset, error) {
	r, err := decodeCharset(r, cols.Encoding)
	if err != nil {
		return nil, err
	}

	// Cancelling on return releases the producer goroutine.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	rowCh, errCh := streamCSV(ctx, r, delim)

	var (
		l      layout
		b      *builder
		row    int
		header = true
	)
	for rec := range rowCh {
		row++
		if header {
			header = false
			if l, err = resolveLayout(rec, cols); err != nil {
				return nil, err
			}
			b = newBuilder(l.weight >= 0)
			continue
		}
		if err := b.addRecord(rec, l, row); err != nil {
			return nil, err
		}
	}
	if err := <-errCh; err != nil {
		return nil, err
	}
	if b == nil {
		return nil, eris.New("pointio: csv has no header row")
	}
	return b.dataset()
}
