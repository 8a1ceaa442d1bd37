// Package layouttest builds small PDF files for tests.
package layouttest

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// Baseline is the Y coordinate of the first line on every page; each
// further line sits LineGap points lower. Text is set in 12pt Helvetica
// starting at X = 72.
const (
	Baseline = 700
	LineGap  = 20
	FontSize = 12
)

// UniformWidth is the advance, in 1/1000 em, given to every character when
// a PDF is built with a /Widths array.
const UniformWidth = 500

// PDF is a document description for WritePDF.
type PDF struct {
	// Pages holds the lines of each page.
	Pages [][]string
	// Widths embeds a /Widths array of UniformWidth for the printable ASCII
	// range. Without it the font relies on standard 14 metrics.
	Widths bool
}

// WritePDF writes a Letter-sized PDF to dir/name and returns its path.
func WritePDF(t testing.TB, dir, name string, doc PDF) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, Build(doc), 0o600))
	return path
}

// Build returns the bytes of a PDF with one content stream per page. Object
// 1 is the catalog, 2 the page tree, 3 the font, and each page i uses
// objects 4+2i (page) and 5+2i (contents).
func Build(doc PDF) []byte {
	n := len(doc.Pages)
	objects := make([]string, 3+2*n)

	kids := make([]string, n)
	for i := range doc.Pages {
		kids[i] = fmt.Sprintf("%d 0 R", 4+2*i)
	}
	objects[0] = "<< /Type /Catalog /Pages 2 0 R >>"
	objects[1] = fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), n)

	font := "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica"
	if doc.Widths {
		widths := strings.TrimSpace(strings.Repeat(fmt.Sprintf("%d ", UniformWidth), 126-32+1))
		font += fmt.Sprintf(" /FirstChar 32 /LastChar 126 /Widths [%s]", widths)
	}
	objects[2] = font + " >>"

	for i, lines := range doc.Pages {
		var stream strings.Builder
		for j, line := range lines {
			fmt.Fprintf(&stream, "BT /F1 %d Tf 72 %d Td (%s) Tj ET\n", FontSize, Baseline-LineGap*j, escape(line))
		}
		objects[3+2*i] = fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents %d 0 R /Resources << /Font << /F1 3 0 R >> >> >>", 5+2*i)
		objects[4+2*i] = fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", stream.Len(), stream.String())
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objects)+1)
	buf.WriteString("0000000000 65535 f \r\n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \r\n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

func escape(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "(", `\(`)
	return strings.ReplaceAll(s, ")", `\)`)
}
