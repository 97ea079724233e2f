package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// Payload is the JSON upload body.
type Payload struct {
	Rows []map[string]any `json:"rows"`
}

// DecodeJSON reads either {"rows":[...]} or a bare array of objects. Numbers
// are kept as json.Number so identifiers and decimals survive unchanged.
func DecodeJSON(r io.Reader) ([]map[string]any, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read json: %w", err)
	}
	data = bytes.TrimSpace(bytes.TrimPrefix(data, []byte(utf8BOM)))
	if len(data) == 0 {
		return nil, ErrEmptyInput
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if data[0] == '[' {
		var rows []map[string]any
		if err := dec.Decode(&rows); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
		}
		return rows, nil
	}
	var p Payload
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if p.Rows == nil {
		return nil, fmt.Errorf("%w: missing \"rows\"", ErrMalformed)
	}
	return p.Rows, nil
}
