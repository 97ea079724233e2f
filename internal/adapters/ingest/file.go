package ingest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ReadFile loads rows from a .json file or a delimited text file. A .tsv
// extension forces tab as the delimiter.
func ReadFile(path string, opts ...TableOption) ([]map[string]any, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return DecodeJSON(f)
	case ".tsv":
		opts = append(opts, WithDelimiter('\t'))
	}
	return ReadTable(f, opts...)
}
