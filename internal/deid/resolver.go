package deid

import (
	"sort"
	"strings"
)

// Collision records two distinct originals that share a replacement string.
// Only Kept can be restored; occurrences of Dropped come back as Kept.Original.
type Collision struct {
	Replacement string
	Kept        Entry
	Dropped     Entry
}

// Resolver restores original text from de-identified text.
//
// It builds a flat replacement -> original index from the map and applies it
// in a single left-to-right pass, trying longer replacements first at each
// position. Text produced by one substitution is never matched again, and a
// short replacement that is a prefix of a longer one cannot shadow it.
// When two replacements overlap but start at different offsets, the one
// starting first wins, even if it is shorter.
//
// The map stores values, not offsets, so a replacement string that also
// occurs naturally in surrounding text is restored there too.
type Resolver struct {
	index      map[string]Entry
	collisions []Collision
	replacer   *strings.Replacer
}

// NewResolver builds the reverse index for m. Pairs are indexed in Entries
// order (entity type, then original); when two originals share a
// replacement, the later pair wins and the conflict is kept in Collisions.
func NewResolver(m ReplacementMap) *Resolver {
	r := &Resolver{index: make(map[string]Entry)}
	for _, e := range m.Entries() {
		if e.Replacement == "" {
			continue
		}
		if prev, ok := r.index[e.Replacement]; ok && prev.Original != e.Original {
			r.collisions = append(r.collisions, Collision{Replacement: e.Replacement, Kept: e, Dropped: prev})
		}
		r.index[e.Replacement] = e
	}

	replacements := make([]string, 0, len(r.index))
	for repl := range r.index {
		replacements = append(replacements, repl)
	}
	sort.Slice(replacements, func(i, j int) bool {
		if len(replacements[i]) != len(replacements[j]) {
			return len(replacements[i]) > len(replacements[j])
		}
		return replacements[i] < replacements[j]
	})

	// strings.Replacer prefers earlier pairs when several match at the same
	// position, which gives longest-match-first.
	oldnew := make([]string, 0, 2*len(replacements))
	for _, repl := range replacements {
		oldnew = append(oldnew, repl, r.index[repl].Original)
	}
	r.replacer = strings.NewReplacer(oldnew...)
	return r
}

// Resolve returns text with every known replacement turned back into its
// original.
func (r *Resolver) Resolve(text string) string {
	if len(r.index) == 0 {
		return text
	}
	return r.replacer.Replace(text)
}

// Collisions lists replacements that could not be restored unambiguously.
func (r *Resolver) Collisions() []Collision {
	return r.collisions
}

// Resolve is shorthand for NewResolver(m).Resolve(text).
func Resolve(text string, m ReplacementMap) string {
	return NewResolver(m).Resolve(text)
}
