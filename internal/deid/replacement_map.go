package deid

import "sort"

// ReplacementMap records, per entity type, which replacement was used for
// each original substring. Its JSON encoding is the persisted form shared by
// re-identification and the re-locator:
//
//	{"PERSON": {"Jane Doe": "Maria Lopez"}, "US_SSN": {"123-45-6789": "XXX-XX-4821"}}
//
// Within one run a (type, original) pair always maps to the same replacement.
type ReplacementMap map[string]map[string]string

// Entry is one (entity type, original, replacement) triple.
type Entry struct {
	EntityType  string `json:"entity_type"`
	Original    string `json:"original"`
	Replacement string `json:"replacement"`
}

// NewReplacementMap returns an empty, writable map.
func NewReplacementMap() ReplacementMap {
	return make(ReplacementMap)
}

// Lookup returns the replacement recorded for the pair, if any.
func (m ReplacementMap) Lookup(entityType, original string) (string, bool) {
	byOriginal, ok := m[entityType]
	if !ok {
		return "", false
	}
	r, ok := byOriginal[original]
	return r, ok
}

// Set records original -> replacement under entityType, overwriting any
// previous replacement for the pair.
func (m ReplacementMap) Set(entityType, original, replacement string) {
	byOriginal, ok := m[entityType]
	if !ok {
		byOriginal = make(map[string]string)
		m[entityType] = byOriginal
	}
	byOriginal[original] = replacement
}

// Merge copies every pair of other into m. On conflict other wins.
func (m ReplacementMap) Merge(other ReplacementMap) {
	for entityType, byOriginal := range other {
		for original, replacement := range byOriginal {
			m.Set(entityType, original, replacement)
		}
	}
}

// Len returns the number of recorded pairs.
func (m ReplacementMap) Len() int {
	n := 0
	for _, byOriginal := range m {
		n += len(byOriginal)
	}
	return n
}

// Clone returns a deep copy.
func (m ReplacementMap) Clone() ReplacementMap {
	out := make(ReplacementMap, len(m))
	out.Merge(m)
	return out
}

// EntityTypes returns the entity types present, sorted.
func (m ReplacementMap) EntityTypes() []string {
	out := make([]string, 0, len(m))
	for t := range m {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Entries returns every pair ordered by entity type, then original.
func (m ReplacementMap) Entries() []Entry {
	out := make([]Entry, 0, m.Len())
	for _, t := range m.EntityTypes() {
		originals := make([]string, 0, len(m[t]))
		for o := range m[t] {
			originals = append(originals, o)
		}
		sort.Strings(originals)
		for _, o := range originals {
			out = append(out, Entry{EntityType: t, Original: o, Replacement: m[t][o]})
		}
	}
	return out
}

// Originals returns the distinct original values in Entries order.
func (m ReplacementMap) Originals() []string {
	seen := make(map[string]bool)
	var out []string
	for _, e := range m.Entries() {
		if seen[e.Original] {
			continue
		}
		seen[e.Original] = true
		out = append(out, e.Original)
	}
	return out
}
