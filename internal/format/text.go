package format

import (
	"path/filepath"
	"strings"

	"document-deidentifier/internal/deid"
)

// Text handles plain text, Markdown and XML as one content string.
type Text struct{}

// Name implements Adapter.
func (Text) Name() string { return "text" }

// Parse implements Adapter.
func (Text) Parse(path string) (*Document, error) {
	data, err := readFile(path)
	if err != nil {
		return nil, err
	}
	content := strings.ToValidUTF8(string(data), "�")
	fields := append(fileInfo(path),
		deid.KV("content", deid.Text(content)),
		deid.KV("line_count", deid.Scalar(lineCount(content))),
	)
	return &Document{Value: deid.Mapping(fields...)}, nil
}

// Save writes the content field, or the whole value for .json paths.
func (Text) Save(doc *Document, path string) (string, error) {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return writeJSON(path, doc.Value)
	}
	content, err := textField(doc.Value, "content")
	if err != nil {
		return "", err
	}
	return writeFile(path, []byte(content))
}

// lineCount counts lines the way a line splitter would: a trailing newline
// does not start a new line and "\r\n" is one break.
func lineCount(s string) int {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	if s == "" {
		return 0
	}
	n := strings.Count(s, "\n")
	if !strings.HasSuffix(s, "\n") {
		n++
	}
	return n
}
