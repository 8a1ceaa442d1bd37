// Package metrics provides lightweight, lock-minimal counters for the
// de-identification engine, the re-locator, and the HTTP API.
//
// Counters use sync/atomic so hot paths (span replacement, text search)
// incur no mutex contention. Latency statistics use a single mutex per
// dimension; they are updated at most once per operation.
//
// All Record* methods are safe to call on a nil *Metrics, so components can
// treat metrics as optional.
package metrics

import (
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics holds all runtime counters for a running instance.
type Metrics struct {
	// Document-level counters
	Deidentified atomic.Int64
	Reidentified atomic.Int64
	Visualized   atomic.Int64

	// Text-level counters
	TextsScanned      atomic.Int64
	SpansDetected     atomic.Int64
	SpansReplaced     atomic.Int64 // replacements newly generated
	SpansReused       atomic.Int64 // replacements reused for a repeated (type, original) pair
	UnsupportedValues atomic.Int64
	RestoreCollisions atomic.Int64

	// Re-locator counters
	OccurrencesFound   atomic.Int64
	AnnotationsWritten atomic.Int64

	// Detection cache counters
	CacheHits   atomic.Int64
	CacheMisses atomic.Int64

	// Error counters
	ErrorsDetector atomic.Int64
	ErrorsDocument atomic.Int64

	// Per-entity-type replacement counts. Entity types are an open set, so
	// the map grows lazily under typesMu; the counters themselves are atomic.
	typesMu sync.RWMutex
	byType  map[string]*atomic.Int64

	deidMu   sync.Mutex
	deidStat latencyStats

	reidMu   sync.Mutex
	reidStat latencyStats

	visMu   sync.Mutex
	visStat latencyStats

	startTime time.Time
}

// New returns a new Metrics with the start time recorded.
func New() *Metrics {
	return &Metrics{
		startTime: time.Now(),
		byType:    make(map[string]*atomic.Int64),
	}
}

// RecordReplacement counts one replacement of the given entity type.
// reused marks a replacement taken from the run's existing map.
func (m *Metrics) RecordReplacement(entityType string, reused bool) {
	if m == nil {
		return
	}
	if reused {
		m.SpansReused.Add(1)
	} else {
		m.SpansReplaced.Add(1)
	}
	m.counterFor(entityType).Add(1)
}

// RecordScan counts one scanned text value and the spans detected in it.
func (m *Metrics) RecordScan(spans int) {
	if m == nil {
		return
	}
	m.TextsScanned.Add(1)
	m.SpansDetected.Add(int64(spans))
}

// RecordUnsupported counts a value passed through because its type is unsupported.
func (m *Metrics) RecordUnsupported() {
	if m == nil {
		return
	}
	m.UnsupportedValues.Add(1)
}

// RecordCollisions counts replacement values shared by distinct originals.
func (m *Metrics) RecordCollisions(n int) {
	if m == nil || n == 0 {
		return
	}
	m.RestoreCollisions.Add(int64(n))
}

// RecordCacheLookup counts one detection cache lookup.
func (m *Metrics) RecordCacheLookup(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheHits.Add(1)
	} else {
		m.CacheMisses.Add(1)
	}
}

// RecordDetectorError counts a failed detector call.
func (m *Metrics) RecordDetectorError() {
	if m == nil {
		return
	}
	m.ErrorsDetector.Add(1)
}

// RecordDocumentError counts a failed document open/save.
func (m *Metrics) RecordDocumentError() {
	if m == nil {
		return
	}
	m.ErrorsDocument.Add(1)
}

// RecordOccurrences counts on-page matches found by the re-locator.
func (m *Metrics) RecordOccurrences(n int) {
	if m == nil {
		return
	}
	m.OccurrencesFound.Add(int64(n))
}

// RecordAnnotations counts highlight/comment pairs written.
func (m *Metrics) RecordAnnotations(n int) {
	if m == nil {
		return
	}
	m.AnnotationsWritten.Add(int64(n))
}

// RecordDeidentify records one completed forward pass.
func (m *Metrics) RecordDeidentify(d time.Duration) {
	if m == nil {
		return
	}
	m.Deidentified.Add(1)
	m.deidMu.Lock()
	m.deidStat.record(ms(d))
	m.deidMu.Unlock()
}

// RecordReidentify records one completed reverse pass.
func (m *Metrics) RecordReidentify(d time.Duration) {
	if m == nil {
		return
	}
	m.Reidentified.Add(1)
	m.reidMu.Lock()
	m.reidStat.record(ms(d))
	m.reidMu.Unlock()
}

// RecordVisualize records one completed locate+annotate pass.
func (m *Metrics) RecordVisualize(d time.Duration) {
	if m == nil {
		return
	}
	m.Visualized.Add(1)
	m.visMu.Lock()
	m.visStat.record(ms(d))
	m.visMu.Unlock()
}

func (m *Metrics) counterFor(entityType string) *atomic.Int64 {
	m.typesMu.RLock()
	c, ok := m.byType[entityType]
	m.typesMu.RUnlock()
	if ok {
		return c
	}
	m.typesMu.Lock()
	defer m.typesMu.Unlock()
	if m.byType == nil {
		m.byType = make(map[string]*atomic.Int64)
	}
	if c, ok = m.byType[entityType]; !ok {
		c = new(atomic.Int64)
		m.byType[entityType] = c
	}
	return c
}

func ms(d time.Duration) float64 { return float64(d.Microseconds()) / 1000.0 }

// Snapshot returns a point-in-time copy of all metrics, safe for JSON encoding.
func (m *Metrics) Snapshot() Snapshot {
	m.deidMu.Lock()
	deid := m.deidStat.snapshot()
	m.deidMu.Unlock()

	m.reidMu.Lock()
	reid := m.reidStat.snapshot()
	m.reidMu.Unlock()

	m.visMu.Lock()
	vis := m.visStat.snapshot()
	m.visMu.Unlock()

	m.typesMu.RLock()
	byType := make(map[string]int64, len(m.byType))
	for t, c := range m.byType {
		if n := c.Load(); n > 0 {
			byType[t] = n
		}
	}
	m.typesMu.RUnlock()

	var uptime float64
	if !m.startTime.IsZero() {
		uptime = time.Since(m.startTime).Seconds()
	}

	return Snapshot{
		Documents: DocumentSnapshot{
			Deidentified: m.Deidentified.Load(),
			Reidentified: m.Reidentified.Load(),
			Visualized:   m.Visualized.Load(),
		},
		Spans: SpanSnapshot{
			TextsScanned: m.TextsScanned.Load(),
			Detected:     m.SpansDetected.Load(),
			Replaced:     m.SpansReplaced.Load(),
			Reused:       m.SpansReused.Load(),
			Unsupported:  m.UnsupportedValues.Load(),
			Collisions:   m.RestoreCollisions.Load(),
			ByType:       byType,
		},
		Detector: DetectorSnapshot{
			CacheHits:   m.CacheHits.Load(),
			CacheMisses: m.CacheMisses.Load(),
		},
		Relocator: RelocatorSnapshot{
			Occurrences: m.OccurrencesFound.Load(),
			Annotations: m.AnnotationsWritten.Load(),
		},
		Errors: ErrorSnapshot{
			Detector: m.ErrorsDetector.Load(),
			Document: m.ErrorsDocument.Load(),
		},
		Latency: LatencyGroup{
			DeidentifyMs: deid,
			ReidentifyMs: reid,
			VisualizeMs:  vis,
		},
		UptimeSecs: uptime,
	}
}

// EntityTypes returns the entity types seen so far, sorted.
func (s SpanSnapshot) EntityTypes() []string {
	out := make([]string, 0, len(s.ByType))
	for t := range s.ByType {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// --- JSON-serialisable snapshot types ---

// Snapshot is a point-in-time view of all metrics.
type Snapshot struct {
	Documents  DocumentSnapshot  `json:"documents"`
	Spans      SpanSnapshot      `json:"spans"`
	Detector   DetectorSnapshot  `json:"detector"`
	Relocator  RelocatorSnapshot `json:"relocator"`
	Errors     ErrorSnapshot     `json:"errors"`
	Latency    LatencyGroup      `json:"latency"`
	UptimeSecs float64           `json:"uptimeSecs"`
}

// DocumentSnapshot holds per-document operation counters.
type DocumentSnapshot struct {
	Deidentified int64 `json:"deidentified"`
	Reidentified int64 `json:"reidentified"`
	Visualized   int64 `json:"visualized"`
}

// SpanSnapshot holds span volume counters.
type SpanSnapshot struct {
	TextsScanned int64 `json:"textsScanned"`
	Detected     int64 `json:"detected"`
	Replaced     int64 `json:"replaced"`
	Reused       int64 `json:"reused"`
	Unsupported  int64 `json:"unsupportedValues"`
	Collisions   int64 `json:"restoreCollisions"`

	// Only types with non-zero counts appear.
	ByType map[string]int64 `json:"byType,omitempty"`
}

// DetectorSnapshot holds detection cache counters.
type DetectorSnapshot struct {
	CacheHits   int64 `json:"cacheHits"`
	CacheMisses int64 `json:"cacheMisses"`
}

// RelocatorSnapshot holds re-locator counters.
type RelocatorSnapshot struct {
	Occurrences int64 `json:"occurrences"`
	Annotations int64 `json:"annotations"`
}

// ErrorSnapshot holds error counters.
type ErrorSnapshot struct {
	Detector int64 `json:"detector"`
	Document int64 `json:"document"`
}

// LatencyGroup groups the latency dimensions.
type LatencyGroup struct {
	DeidentifyMs LatencySnapshot `json:"deidentifyMs"`
	ReidentifyMs LatencySnapshot `json:"reidentifyMs"`
	VisualizeMs  LatencySnapshot `json:"visualizeMs"`
}

// LatencySnapshot is a min/mean/max summary for one latency dimension.
type LatencySnapshot struct {
	Count  int64   `json:"count"`
	MinMs  float64 `json:"minMs"`
	MeanMs float64 `json:"meanMs"`
	MaxMs  float64 `json:"maxMs"`
}

// --- internal accumulator ---

type latencyStats struct {
	count int64
	sum   float64
	min   float64
	max   float64
}

func (s *latencyStats) record(ms float64) {
	s.count++
	s.sum += ms
	if s.count == 1 || ms < s.min {
		s.min = ms
	}
	if ms > s.max {
		s.max = ms
	}
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

func (s *latencyStats) snapshot() LatencySnapshot {
	if s.count == 0 {
		return LatencySnapshot{}
	}
	return LatencySnapshot{
		Count:  s.count,
		MinMs:  round2(s.min),
		MeanMs: round2(s.sum / float64(s.count)),
		MaxMs:  round2(s.max),
	}
}
