// Package ingest turns uploaded tables into rows keyed by source column name.
// Cells are kept as text; numeric reading happens during normalization.
package ingest

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

const utf8BOM = "\ufeff"

// TableOption configures ReadTable.
type TableOption func(*tableOptions)

type tableOptions struct {
	delimiter rune
	maxRows   int
}

// WithDelimiter forces a delimiter instead of sniffing the header line.
func WithDelimiter(d rune) TableOption {
	return func(o *tableOptions) {
		if d != 0 {
			o.delimiter = d
		}
	}
}

// WithMaxRows rejects tables with more data rows than n.
func WithMaxRows(n int) TableOption {
	return func(o *tableOptions) {
		if n > 0 {
			o.maxRows = n
		}
	}
}

// ReadTable reads a delimited table with a header line. The delimiter is
// the most frequent of tab, semicolon and comma in the header unless set.
// Short rows leave trailing cells absent; blank cells are kept as "".
func ReadTable(r io.Reader, opts ...TableOption) ([]map[string]any, error) {
	var o tableOptions
	for _, opt := range opts {
		opt(&o)
	}

	br := bufio.NewReader(r)
	head, err := br.Peek(4096)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return nil, fmt.Errorf("read table: %w", err)
	}
	if bytes.HasPrefix(head, []byte(utf8BOM)) {
		_, _ = br.Discard(len(utf8BOM))
		head = head[len(utf8BOM):]
	}
	if len(bytes.TrimSpace(head)) == 0 {
		return nil, ErrEmptyInput
	}
	if o.delimiter == 0 {
		o.delimiter = SniffDelimiter(firstLine(head))
	}

	cr := csv.NewReader(br)
	cr.Comma = o.delimiter
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmptyInput
		}
		return nil, fmt.Errorf("%w: header: %w", ErrMalformed, err)
	}
	seen := make(map[string]bool, len(header))
	for i, h := range header {
		h = strings.TrimSpace(h)
		if h == "" {
			return nil, fmt.Errorf("%w: header column %d is blank", ErrMalformed, i+1)
		}
		if seen[h] {
			return nil, fmt.Errorf("%w: header column %q repeated", ErrMalformed, h)
		}
		seen[h] = true
		header[i] = h
	}

	var rows []map[string]any
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
		}
		if blank(rec) {
			continue
		}
		if len(rec) > len(header) {
			line, _ := cr.FieldPos(0)
			return nil, fmt.Errorf("%w: line %d has %d cells for %d columns", ErrMalformed, line, len(rec), len(header))
		}
		if o.maxRows > 0 && len(rows) == o.maxRows {
			return nil, fmt.Errorf("%w: more than %d rows", ErrMalformed, o.maxRows)
		}
		row := make(map[string]any, len(header))
		for i, cell := range rec {
			row[header[i]] = strings.TrimSpace(cell)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// SniffDelimiter picks the delimiter of a header line.
func SniffDelimiter(line string) rune {
	best, count := ',', 0
	for _, d := range []rune{'\t', ';', ','} {
		if n := strings.Count(line, string(d)); n > count {
			best, count = d, n
		}
	}
	return best
}

func firstLine(b []byte) string {
	if i := bytes.IndexAny(b, "\r\n"); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

func blank(rec []string) bool {
	for _, c := range rec {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
