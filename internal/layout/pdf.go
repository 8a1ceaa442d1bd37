package layout

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"
)

// OpenPDF reads the positioned text of every page of a PDF file. PDF
// coordinates (bottom-left origin, baseline Y) are converted to top-left
// boxes.
func OpenPDF(path string) (doc *Document, err error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck // read-only file

	// The pdf package panics on some malformed content streams.
	defer func() {
		if rec := recover(); rec != nil {
			doc, err = nil, fmt.Errorf("read pdf %s: %v", path, rec)
		}
	}()

	doc = &Document{Source: path}
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		width, height := mediaBox(p)
		page := &Page{Number: i, Width: width, Height: height}
		if !p.V.IsNull() {
			page.Lines = buildLines(p.Content().Text, height)
		}
		doc.Pages = append(doc.Pages, page)
	}
	return doc, nil
}

// mediaBox returns the page size, looking through the parent page tree
// node and falling back to US Letter.
func mediaBox(p pdf.Page) (width, height float64) {
	box := p.V.Key("MediaBox")
	if box.IsNull() {
		box = p.V.Key("Parent").Key("MediaBox")
	}
	if box.Len() != 4 {
		return DefaultPageWidth, DefaultPageHeight
	}
	w := box.Index(2).Float64() - box.Index(0).Float64()
	h := box.Index(3).Float64() - box.Index(1).Float64()
	if w <= 0 || h <= 0 {
		return DefaultPageWidth, DefaultPageHeight
	}
	return w, h
}

// run is a text run with its resolved pen position.
type run struct {
	s        string
	x, y, w  float64
	fontSize float64
}

// resolveRuns fills in advances the content stream left at zero. Without
// /Widths every glyph of a show-text operator reports the operator's
// origin, so consecutive zero-width runs sharing an origin are laid out
// one after another from that origin.
func resolveRuns(texts []pdf.Text) []run {
	runs := make([]run, 0, len(texts))
	var (
		penX     float64
		origin   [2]float64
		chaining bool
	)
	for _, t := range texts {
		if t.S == "" || strings.Trim(t.S, "\r\n") == "" {
			chaining = false
			continue
		}
		fs := t.FontSize
		if fs <= 0 {
			fs = textFontSize
		}
		r := run{s: t.S, x: t.X, y: t.Y, w: t.W, fontSize: fs}
		if t.W > 0 {
			chaining = false
			runs = append(runs, r)
			continue
		}
		if chaining && origin == [2]float64{t.X, t.Y} {
			r.x = penX
		}
		r.w = estimateAdvance(t.S, t.Font, fs)
		origin, penX, chaining = [2]float64{t.X, t.Y}, r.x+r.w, true
		runs = append(runs, r)
	}
	return runs
}

// groupRows buckets runs by baseline, orders the rows top to bottom and
// each row left to right.
func groupRows(runs []run) [][]run {
	type bucket struct {
		yMin, yMax float64
		runs       []run
	}
	var buckets []bucket
	for _, r := range runs {
		tol := r.fontSize / 2
		found := false
		for i := range buckets {
			if r.y >= buckets[i].yMin-tol && r.y <= buckets[i].yMax+tol {
				buckets[i].runs = append(buckets[i].runs, r)
				buckets[i].yMin = min(buckets[i].yMin, r.y)
				buckets[i].yMax = max(buckets[i].yMax, r.y)
				found = true
				break
			}
		}
		if !found {
			buckets = append(buckets, bucket{yMin: r.y, yMax: r.y, runs: []run{r}})
		}
	}

	// PDF Y grows upwards.
	sort.SliceStable(buckets, func(i, j int) bool {
		return buckets[i].yMax > buckets[j].yMax
	})
	rows := make([][]run, len(buckets))
	for i, b := range buckets {
		sort.SliceStable(b.runs, func(i, j int) bool { return b.runs[i].x < b.runs[j].x })
		rows[i] = b.runs
	}
	return rows
}

// buildLines groups text runs into lines by baseline and inserts a space
// glyph where the horizontal gap between runs suggests a word break.
func buildLines(texts []pdf.Text, pageHeight float64) []Line {
	rows := groupRows(resolveRuns(texts))
	lines := make([]Line, 0, len(rows))
	for _, row := range rows {
		var line Line
		for i, r := range row {
			top := pageHeight - r.y - r.fontSize
			if i > 0 {
				prev := row[i-1]
				end := prev.x + prev.w
				if r.x-end > r.fontSize*0.25 && !strings.HasSuffix(prev.s, " ") && !strings.HasPrefix(r.s, " ") {
					line.Glyphs = append(line.Glyphs, Glyph{
						Text: " ",
						Box:  Rect{X0: end, Y0: top, X1: r.x, Y1: top + r.fontSize*1.2},
					})
				}
			}
			line.Glyphs = append(line.Glyphs, Glyph{
				Text: r.s,
				Box:  Rect{X0: r.x, Y0: top, X1: r.x + r.w, Y1: top + r.fontSize*1.2},
			})
		}
		lines = append(lines, line)
	}
	return lines
}
