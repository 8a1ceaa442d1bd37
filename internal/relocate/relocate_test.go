package relocate

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"document-deidentifier/internal/deid"
	"document-deidentifier/internal/layout"
	"document-deidentifier/internal/layout/layouttest"
	"document-deidentifier/internal/metrics"
)

func twoPageDoc() *layout.Document {
	return layout.New(
		layout.NewTextPage(1, "Patient: Jane Doe", "Email jane@example.com for records."),
		layout.NewTextPage(2, "cc: jane@example.com", "jane@example.com (backup)"),
	)
}

func TestLocate_KeepsEveryOccurrence(t *testing.T) {
	occs, err := Locate(context.Background(), twoPageDoc(), []string{"jane@example.com"})
	require.NoError(t, err)
	require.Len(t, occs, 3)

	pages := []int{occs[0].PageIndex, occs[1].PageIndex, occs[2].PageIndex}
	assert.Equal(t, []int{0, 1, 1}, pages)
	for _, o := range occs {
		assert.Equal(t, "jane@example.com", o.MatchedText)
		assert.False(t, o.Box.Empty())
	}
}

func TestLocate_MissingAndDuplicateValues(t *testing.T) {
	occs, err := Locate(context.Background(), twoPageDoc(), []string{
		"Jane Doe", "", "Jane Doe", "Jane\nDoe", "not present",
	})
	require.NoError(t, err)
	require.Len(t, occs, 1)
	assert.Equal(t, 0, occs[0].PageIndex)
}

func TestLocate_PageMajorOrder(t *testing.T) {
	occs, err := Locate(context.Background(), twoPageDoc(), []string{"jane@example.com", "Jane Doe"})
	require.NoError(t, err)
	require.Len(t, occs, 4)
	assert.Equal(t, "jane@example.com", occs[0].MatchedText)
	assert.Equal(t, "Jane Doe", occs[1].MatchedText)
	assert.Equal(t, 1, occs[2].PageIndex)
}

func TestLocate_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Locate(ctx, twoPageDoc(), []string{"x"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLocateMap_TagsEntityType(t *testing.T) {
	m := deid.NewReplacementMap()
	m.Set("EMAIL_ADDRESS", "jane@example.com", "kim@mail.test")
	m.Set("PERSON", "Jane Doe", "Kim Park")

	occs, err := LocateMap(context.Background(), twoPageDoc(), m)
	require.NoError(t, err)
	require.Len(t, occs, 4)
	for _, o := range occs {
		switch o.MatchedText {
		case "jane@example.com":
			assert.Equal(t, "EMAIL_ADDRESS", o.EntityType)
		case "Jane Doe":
			assert.Equal(t, "PERSON", o.EntityType)
		}
	}
}

func TestColorTable_Match(t *testing.T) {
	table := DefaultColorTable()
	email := table[1].Color
	require.Equal(t, "EMAIL", table[1].Key)

	assert.Equal(t, email, table.Match("EMAIL_ADDRESS", "jane@example.com"))
	assert.Equal(t, email, table.Match("", "Email: jane@example.com"))
	assert.Equal(t, DefaultColor, table.Match("", "jane@example.com"))
	assert.Equal(t, table[0].Color, table.Match("PERSON", "Dated Smith"), "first matching key wins")
	assert.Equal(t, table[6].Color, table.Match("", "DATE of birth"))
	assert.Equal(t, DefaultColor, ColorTable{}.Match("PERSON", "x"))
}

func TestParseColorTable(t *testing.T) {
	table, err := ParseColorTable([][2]string{{"ssn", "#ff00ff"}, {"PERSON", "#00ff00"}})
	require.NoError(t, err)
	assert.Equal(t, "#ff00ff", table.Match("US_SSN", "").Hex())

	_, err = ParseColorTable([][2]string{{"bad", "blue"}})
	assert.Error(t, err)
}

func TestLocate_PDFFile(t *testing.T) {
	path := layouttest.WritePDF(t, t.TempDir(), "scan.pdf", layouttest.PDF{Pages: [][]string{
		{"Email jane@example.com today"},
		{"cc jane@example.com", "jane@example.com (backup)"},
	}})
	doc, err := layout.Open(path)
	require.NoError(t, err)

	occs, err := Locate(context.Background(), doc, []string{"jane@example.com", "Jane Doe"})
	require.NoError(t, err)
	require.Len(t, occs, 3)
	assert.Equal(t, []int{0, 1, 1}, []int{occs[0].PageIndex, occs[1].PageIndex, occs[2].PageIndex})
	for _, o := range occs {
		assert.False(t, o.Box.Empty(), "box %s", o.Box)
		assert.Equal(t, "jane@example.com", o.MatchedText)
	}
	assert.Less(t, occs[1].Box.Y0, occs[2].Box.Y0)
}

func TestVisualize_PDFFile(t *testing.T) {
	dir := t.TempDir()
	src := layouttest.WritePDF(t, dir, "scan.pdf", layouttest.PDF{Pages: [][]string{
		{"Email jane@example.com today"},
		{"cc jane@example.com"},
	}, Widths: true})
	dst := filepath.Join(dir, "scan_visualized.pdf")

	m := deid.NewReplacementMap()
	m.Set("EMAIL_ADDRESS", "jane@example.com", "kim@mail.test")
	n, err := NewAnnotator(nil, nil).Visualize(context.Background(), src, dst, m)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	out, err := layout.Open(dst)
	require.NoError(t, err)
	assert.Equal(t, 2, out.PageCount())

	_, err = NewAnnotator(nil, nil).Visualize(context.Background(), src, filepath.Join(dir, "scan.png"), m)
	assert.ErrorIs(t, err, layout.ErrUnsupportedOutput)
}

func TestVisualize_WritesAnnotatedCopy(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "report.json")
	dst := filepath.Join(dir, "report_visualized.json")
	require.NoError(t, twoPageDoc().Save(src))

	m := deid.NewReplacementMap()
	m.Set("EMAIL_ADDRESS", "jane@example.com", "kim@mail.test")
	met := metrics.New()

	a := NewAnnotator(nil, met)
	n, err := a.Visualize(context.Background(), src, dst, m)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	out, err := layout.Open(dst)
	require.NoError(t, err)
	require.Len(t, out.Annotations, 6)
	hl, cm := out.Annotations[0], out.Annotations[1]
	assert.Equal(t, layout.Highlight, hl.Kind)
	assert.InDelta(t, DefaultOpacity, hl.Opacity, 1e-9)
	assert.Equal(t, DefaultColorTable()[1].Color.Hex(), hl.Color.Hex())
	assert.Equal(t, "De-identified jane@example.com", cm.Text)
	assert.Equal(t, hl.Box.BottomRight(), cm.At)

	in, err := layout.Open(src)
	require.NoError(t, err)
	assert.Empty(t, in.Annotations, "input must not be modified")

	s := met.Snapshot()
	assert.Equal(t, int64(3), s.Relocator.Occurrences)
	assert.Equal(t, int64(1), s.Documents.Visualized)
}

func TestVisualize_RejectsInPlaceAndNilMap(t *testing.T) {
	a := NewAnnotator(nil, nil)
	_, err := a.Visualize(context.Background(), "a.json", "./a.json", deid.ReplacementMap{})
	assert.ErrorIs(t, err, ErrDocumentHandle)

	_, err = a.Visualize(context.Background(), "a.json", "b.json", nil)
	assert.ErrorIs(t, err, deid.ErrMissingReplacementMap)
}

// fakeDoc records calls and fails on demand.
type fakeDoc struct {
	*layout.Document
	failSave bool
	failMark bool
	closed   int
}

func (f *fakeDoc) AddHighlight(page int, box layout.Rect, c colorful.Color, opacity float64) error {
	if f.failMark {
		return errors.New("annotation rejected")
	}
	return f.Document.AddHighlight(page, box, c, opacity)
}

func (f *fakeDoc) Save(string) error {
	if f.failSave {
		return errors.New("disk full")
	}
	return nil
}

func (f *fakeDoc) Close() error {
	f.closed++
	return nil
}

func TestAnnotate_ClosesHandleOnEveryPath(t *testing.T) {
	occs := []Occurrence{{PageIndex: 0, Box: layout.Rect{X1: 1, Y1: 1}, MatchedText: "x"}}

	cases := map[string]*fakeDoc{
		"success":    {Document: twoPageDoc()},
		"save fails": {Document: twoPageDoc(), failSave: true},
		"mark fails": {Document: twoPageDoc(), failMark: true},
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			a := &Annotator{Renderer: RendererFunc(func(string) (Document, error) { return doc, nil })}
			err := a.Annotate("in.pdf", "out.json", occs)
			if doc.failSave || doc.failMark {
				assert.ErrorIs(t, err, ErrDocumentHandle)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, 1, doc.closed)
		})
	}
}

func TestAnnotate_OpenFailure(t *testing.T) {
	a := &Annotator{Renderer: LayoutRenderer()}
	err := a.Annotate(filepath.Join(t.TempDir(), "missing.pdf"), "out.json", nil)
	assert.ErrorIs(t, err, ErrDocumentHandle)
}

func TestAnnotate_CustomColorsAndOpacity(t *testing.T) {
	doc := &fakeDoc{Document: twoPageDoc()}
	green := colorful.Color{G: 1}
	a := &Annotator{
		Renderer: RendererFunc(func(string) (Document, error) { return doc, nil }),
		Colors:   ColorTable{{Key: "widget", Color: green}},
		Opacity:  0.5,
	}
	occs := []Occurrence{{PageIndex: 1, Box: layout.Rect{X1: 2, Y1: 2}, MatchedText: "W-1", EntityType: "WIDGET_ID"}}
	require.NoError(t, a.Annotate("in.json", "out.json", occs))
	require.Len(t, doc.Annotations, 2)
	assert.Equal(t, green, doc.Annotations[0].Color)
	assert.InDelta(t, 0.5, doc.Annotations[0].Opacity, 1e-9)
	assert.Equal(t, layout.Point{X: 2, Y: 2}, doc.Annotations[1].At)
}
