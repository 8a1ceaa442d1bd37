package format

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"document-deidentifier/internal/deid"
)

// HTML exposes the visible text nodes of an HTML page. Markup, attributes,
// scripts and styles are written back untouched.
type HTML struct{}

type htmlState struct {
	root  *html.Node
	nodes []*html.Node
}

// Name implements Adapter.
func (HTML) Name() string { return "html" }

// Parse implements Adapter.
func (HTML) Parse(path string) (*Document, error) {
	data, err := readFile(path)
	if err != nil {
		return nil, err
	}
	root, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	st := &htmlState{root: root}
	collectText(root, &st.nodes)
	texts := make([]deid.Value, len(st.nodes))
	for i, n := range st.nodes {
		texts[i] = deid.Text(n.Data)
	}
	v := deid.Mapping(append(fileInfo(path),
		deid.KV("text_nodes", deid.Sequence(texts...)),
	)...)
	return &Document{Value: v, state: st}, nil
}

// Save renders the page with its text nodes replaced by the document's
// text_nodes, or writes the value for .json paths.
func (HTML) Save(doc *Document, path string) (string, error) {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return writeJSON(path, doc.Value)
	}
	st, ok := doc.state.(*htmlState)
	if !ok {
		return "", fmt.Errorf("save %s: document was not parsed as HTML", path)
	}
	texts, _ := doc.Value.Get("text_nodes")
	if texts.Len() != len(st.nodes) {
		return "", fmt.Errorf("save %s: %d text nodes, document has %d", path, texts.Len(), len(st.nodes))
	}
	for i, t := range texts.Items() {
		st.nodes[i].Data = t.Str()
	}

	var buf bytes.Buffer
	if err := html.Render(&buf, st.root); err != nil {
		return "", fmt.Errorf("render %s: %w", path, err)
	}
	return writeFile(path, buf.Bytes())
}

func collectText(n *html.Node, out *[]*html.Node) {
	if n.Type == html.ElementNode {
		switch n.DataAtom {
		case atom.Script, atom.Style, atom.Noscript, atom.Template:
			return
		}
	}
	if n.Type == html.TextNode && strings.TrimSpace(n.Data) != "" {
		*out = append(*out, n)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, out)
	}
}
