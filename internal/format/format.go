// Package format converts files to and from deid.Value trees. Each adapter
// parses one family of file types into a structured value and saves a
// processed value back out.
package format

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"document-deidentifier/internal/deid"
)

// ErrUnsupportedFormat is returned by ForPath for unknown file extensions.
var ErrUnsupportedFormat = errors.New("unsupported file format")

// Document is a parsed file. Value is what the engine walks; adapters may
// keep private state needed to write the file back.
type Document struct {
	Value deid.Value
	state any
}

// Adapter parses and saves one family of file types.
type Adapter interface {
	Name() string
	Parse(path string) (*Document, error)
	// Save writes doc to path, or to a sibling path when the adapter cannot
	// produce the requested extension, and returns the path written.
	Save(doc *Document, path string) (string, error)
}

var adapters = map[string]Adapter{
	".txt":  Text{},
	".md":   Text{},
	".xml":  Text{},
	".json": JSON{},
	".csv":  CSV{},
	".html": HTML{},
	".htm":  HTML{},
	".pdf":  PDF{},
}

// ForPath returns the adapter for path's extension.
func ForPath(path string) (Adapter, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if a, ok := adapters[ext]; ok {
		return a, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
}

// Extensions lists the supported extensions.
func Extensions() []string {
	out := make([]string, 0, len(adapters))
	for ext := range adapters {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

func readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- operator-supplied input path
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

func writeFile(path string, data []byte) (string, error) {
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}

// EncodeJSON renders v as indented JSON without HTML escaping.
func EncodeJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeJSON(path string, v deid.Value) (string, error) {
	data, err := EncodeJSON(v)
	if err != nil {
		return "", fmt.Errorf("encode %s: %w", path, err)
	}
	return writeFile(path, data)
}

// fileInfo returns the filename and path fields every adapter starts with.
func fileInfo(path string) []deid.Field {
	return []deid.Field{
		deid.KV("filename", deid.Text(filepath.Base(path))),
		deid.KV("path", deid.Text(path)),
	}
}

func textField(v deid.Value, key string) (string, error) {
	f, ok := v.Get(key)
	if !ok || f.Kind() != deid.KindText {
		return "", fmt.Errorf("document has no %q text field", key)
	}
	return f.Str(), nil
}

func withExt(path, ext string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ext
}
