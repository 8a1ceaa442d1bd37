package format

import (
	"fmt"

	"document-deidentifier/internal/deid"
)

// JSON handles arbitrary JSON documents, keeping key order and number
// literals.
type JSON struct{}

// Name implements Adapter.
func (JSON) Name() string { return "json" }

// Parse implements Adapter.
func (JSON) Parse(path string) (*Document, error) {
	data, err := readFile(path)
	if err != nil {
		return nil, err
	}
	v, err := deid.ParseJSON(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &Document{Value: v}, nil
}

// Save implements Adapter. Output is always JSON.
func (JSON) Save(doc *Document, path string) (string, error) {
	return writeJSON(path, doc.Value)
}
