package deid

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// literalDetector reports every occurrence of each key as a span of the
// mapped entity type.
type literalDetector map[string]string

func (d literalDetector) Detect(_ context.Context, text string, _ []string) ([]Span, error) {
	literals := make([]string, 0, len(d))
	for lit := range d {
		literals = append(literals, lit)
	}
	sort.Strings(literals)

	var spans []Span
	for _, lit := range literals {
		for off := 0; off < len(text); {
			i := strings.Index(text[off:], lit)
			if i < 0 {
				break
			}
			spans = append(spans, Span{Start: off + i, End: off + i + len(lit), EntityType: d[lit]})
			off += i + len(lit)
		}
	}
	return spans, nil
}

// countingTable returns a table whose generators yield "<TYPE-n>" and a
// pointer to the number of generator calls.
func countingTable(types ...string) (GeneratorTable, *int) {
	calls := new(int)
	table := GeneratorTable{}
	for _, t := range types {
		t := t
		table[t] = func(string) string {
			*calls++
			return fmt.Sprintf("<%s-%d>", t, *calls)
		}
	}
	return table, calls
}

// shape renders the structure of v with every leaf reduced to its kind.
func shape(v Value) string {
	switch v.Kind() {
	case KindSequence:
		parts := make([]string, len(v.Items()))
		for i, item := range v.Items() {
			parts[i] = shape(item)
		}
		return "[" + strings.Join(parts, ",") + "]"
	case KindMapping:
		parts := make([]string, len(v.Fields()))
		for i, f := range v.Fields() {
			parts[i] = f.Key + ":" + shape(f.Value)
		}
		return "{" + strings.Join(parts, ",") + "}"
	default:
		return v.Kind().String()
	}
}
