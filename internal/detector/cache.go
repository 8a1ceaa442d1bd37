package detector

import (
	"container/list"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"

	"document-deidentifier/internal/deid"
	"document-deidentifier/internal/logger"
	"document-deidentifier/internal/metrics"
)

// DefaultCacheSize is the number of detection results kept by NewCached
// when no capacity is given.
const DefaultCacheSize = 1024

// Cached memoizes another detector's results by (entity list, text).
// Documents often repeat the same cell, header, or boilerplate line, and a
// remote analyzer call per repeat is wasted work.
//
// Keys are SHA-256 digests, and the cached spans hold offsets and types only,
// so no PII is held in the cache. Errors are never cached.
type Cached struct {
	inner   deid.Detector
	cache   *spanCache
	log     *logger.Logger
	metrics *metrics.Metrics
}

// NewCached wraps inner with an S3-FIFO cache of the given capacity. Hits
// and misses are counted in m, which may be nil.
func NewCached(inner deid.Detector, capacity int, log *logger.Logger, m *metrics.Metrics) *Cached {
	if log == nil {
		log = logger.Discard()
	}
	if capacity <= 0 {
		capacity = DefaultCacheSize
	}
	c := &Cached{inner: inner, cache: newSpanCache(capacity), log: log, metrics: m}
	log.Debugf("cache", "detection cache capacity=%d sTarget=%d ghostCap=%d", c.cache.capacity, c.cache.sTarget, c.cache.ghostCap)
	return c
}

// Detect implements deid.Detector.
func (c *Cached) Detect(ctx context.Context, text string, entities []string) ([]deid.Span, error) {
	key := cacheKey(text, entities)
	if spans, ok := c.cache.get(key); ok {
		c.metrics.RecordCacheLookup(true)
		return spans, nil
	}
	c.metrics.RecordCacheLookup(false)
	spans, err := c.inner.Detect(ctx, text, entities)
	if err != nil {
		return nil, err
	}
	c.cache.set(key, spans)
	return clone(spans), nil
}

// Len returns the number of cached results.
func (c *Cached) Len() int {
	c.cache.mu.Lock()
	defer c.cache.mu.Unlock()
	return len(c.cache.entries)
}

func cacheKey(text string, entities []string) string {
	h := sha256.New()
	h.Write([]byte(strings.Join(entities, ",")))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

func clone(spans []deid.Span) []deid.Span {
	if spans == nil {
		return nil
	}
	return append([]deid.Span(nil), spans...)
}

// spanCache is an in-memory S3-FIFO cache.
//
// New keys enter the small queue S (~10% of capacity). When S overflows its
// head is promoted to the main queue M if it was read since insertion, and
// otherwise dropped and remembered in a bounded ghost set. A key found in
// the ghost set on insert goes straight to M. M evicts FIFO.
//
//	sTarget  = max(1, capacity/10)
//	ghostCap = max(4, 2*sTarget)
type spanCache struct {
	mu sync.Mutex

	capacity int
	sTarget  int
	ghostCap int

	entries map[string]*cacheEntry
	sQueue  *list.List
	mQueue  *list.List

	ghostBuf   []string
	ghostSet   map[string]struct{}
	ghostHead  int
	ghostCount int
}

type cacheEntry struct {
	spans []deid.Span
	freq  uint8 // saturates at 3
	elem  *list.Element
	inM   bool
}

func newSpanCache(capacity int) *spanCache {
	if capacity < 2 {
		capacity = 2
	}
	sTarget := max(1, capacity/10)
	ghostCap := max(4, 2*sTarget)
	return &spanCache{
		capacity: capacity,
		sTarget:  sTarget,
		ghostCap: ghostCap,
		entries:  make(map[string]*cacheEntry, capacity),
		sQueue:   list.New(),
		mQueue:   list.New(),
		ghostBuf: make([]string, ghostCap),
		ghostSet: make(map[string]struct{}, ghostCap),
	}
}

func (c *spanCache) get(key string) ([]deid.Span, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if e.freq < 3 {
		e.freq++
	}
	return clone(e.spans), true
}

func (c *spanCache) set(key string, spans []deid.Span) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.spans = clone(spans)
		return
	}

	_, inM := c.ghostSet[key]
	var elem *list.Element
	if inM {
		elem = c.mQueue.PushBack(key)
	} else {
		elem = c.sQueue.PushBack(key)
	}
	c.entries[key] = &cacheEntry{spans: clone(spans), elem: elem, inM: inM}

	for c.sQueue.Len()+c.mQueue.Len() > c.capacity {
		if c.sQueue.Len() > 0 {
			c.evictFromS()
		} else {
			c.evictFromM()
		}
	}
}

// evictFromS must be called with c.mu held.
func (c *spanCache) evictFromS() {
	front := c.sQueue.Front()
	key, _ := c.sQueue.Remove(front).(string)
	e, ok := c.entries[key]
	if !ok {
		return
	}
	if e.freq > 0 {
		e.freq = 0
		e.inM = true
		e.elem = c.mQueue.PushBack(key)
		if c.mQueue.Len() > c.capacity-c.sTarget {
			c.evictFromM()
		}
		return
	}
	delete(c.entries, key)
	c.ghostAdd(key)
}

// evictFromM must be called with c.mu held.
func (c *spanCache) evictFromM() {
	front := c.mQueue.Front()
	if front == nil {
		return
	}
	key, _ := c.mQueue.Remove(front).(string)
	delete(c.entries, key)
}

// ghostAdd must be called with c.mu held.
func (c *spanCache) ghostAdd(key string) {
	if _, ok := c.ghostSet[key]; ok {
		return
	}
	if c.ghostCount == c.ghostCap {
		delete(c.ghostSet, c.ghostBuf[c.ghostHead])
		c.ghostHead = (c.ghostHead + 1) % c.ghostCap
		c.ghostCount--
	}
	c.ghostBuf[(c.ghostHead+c.ghostCount)%c.ghostCap] = key
	c.ghostSet[key] = struct{}{}
	c.ghostCount++
}
