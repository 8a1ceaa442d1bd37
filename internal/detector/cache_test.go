package detector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"document-deidentifier/internal/deid"
	"document-deidentifier/internal/metrics"
)

// countingDetector reports one PERSON span over the whole text and counts
// calls.
type countingDetector struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (d *countingDetector) Detect(_ context.Context, text string, _ []string) ([]deid.Span, error) {
	d.mu.Lock()
	d.calls++
	d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	return []deid.Span{{Start: 0, End: len(text), EntityType: "PERSON", Score: 0.9}}, nil
}

func TestCached_HitsSkipInner(t *testing.T) {
	inner := &countingDetector{}
	m := metrics.New()
	c := NewCached(inner, 16, nil, m)
	ctx := context.Background()

	first, err := c.Detect(ctx, "Jane Doe", []string{"PERSON"})
	require.NoError(t, err)
	second, err := c.Detect(ctx, "Jane Doe", []string{"PERSON"})
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, inner.calls)
	snap := m.Snapshot().Detector
	assert.Equal(t, int64(1), snap.CacheHits)
	assert.Equal(t, int64(1), snap.CacheMisses)

	_, err = c.Detect(ctx, "Jane Doe", []string{"PERSON", "LOCATION"})
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls, "a different entity list is a different key")
}

func TestCached_ReturnsCopies(t *testing.T) {
	c := NewCached(&countingDetector{}, 16, nil, nil)
	spans, err := c.Detect(context.Background(), "Jane", nil)
	require.NoError(t, err)
	spans[0].EntityType = "MUTATED"

	again, err := c.Detect(context.Background(), "Jane", nil)
	require.NoError(t, err)
	assert.Equal(t, "PERSON", again[0].EntityType)
}

func TestCached_ErrorsNotCached(t *testing.T) {
	inner := &countingDetector{err: errors.New("analyzer down")}
	c := NewCached(inner, 16, nil, nil)

	_, err := c.Detect(context.Background(), "x", nil)
	require.Error(t, err)
	inner.err = nil
	_, err = c.Detect(context.Background(), "x", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
	assert.Equal(t, 1, c.Len())
}

func TestCached_KeyHoldsNoText(t *testing.T) {
	key := cacheKey("alice@example.com", []string{"EMAIL_ADDRESS"})
	assert.Len(t, key, 64)
	assert.NotContains(t, key, "alice")
}

func TestSpanCache_CapacityEnforced(t *testing.T) {
	c := newSpanCache(10)
	for i := 0; i < 15; i++ {
		c.set(fmt.Sprintf("key-%d", i), nil)
	}
	assert.LessOrEqual(t, c.sQueue.Len()+c.mQueue.Len(), 10)
	assert.Equal(t, c.sQueue.Len()+c.mQueue.Len(), len(c.entries))
}

func TestSpanCache_PromotionToM(t *testing.T) {
	c := newSpanCache(2)
	c.set("hot", nil)
	_, ok := c.get("hot")
	require.True(t, ok)
	c.set("cold", nil)
	c.set("extra", nil)

	e, ok := c.entries["hot"]
	require.True(t, ok, "read entries survive S eviction")
	assert.True(t, e.inM)
}

func TestSpanCache_GhostBypassesS(t *testing.T) {
	c := newSpanCache(2)
	c.set("victim", nil)
	c.set("displacer", nil)
	c.set("trigger", nil)

	_, resident := c.entries["victim"]
	assert.False(t, resident)
	_, inGhost := c.ghostSet["victim"]
	assert.True(t, inGhost)

	c.set("victim", nil)
	e, ok := c.entries["victim"]
	require.True(t, ok)
	assert.True(t, e.inM)
}

func TestSpanCache_GhostBounded(t *testing.T) {
	c := newSpanCache(20)
	for i := 0; i < c.ghostCap+10; i++ {
		c.set(fmt.Sprintf("evict-%d", i), nil)
		c.set(fmt.Sprintf("filler-%d", i), nil)
	}
	assert.LessOrEqual(t, c.ghostCount, c.ghostCap)
	assert.Len(t, c.ghostSet, c.ghostCount)
}

func TestSpanCache_FrequencySaturates(t *testing.T) {
	c := newSpanCache(10)
	c.set("k", nil)
	for i := 0; i < 100; i++ {
		c.get("k")
	}
	assert.Equal(t, uint8(3), c.entries["k"].freq)
}

func TestSpanCache_ConcurrentAccess(t *testing.T) {
	c := NewCached(&countingDetector{}, 100, nil, nil)
	var wg sync.WaitGroup
	for g := 0; g < 20; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				_, err := c.Detect(context.Background(), fmt.Sprintf("text-%d-%d", g, i%50), nil)
				assert.NoError(t, err)
			}
		}(g)
	}
	wg.Wait()

	c.cache.mu.Lock()
	defer c.cache.mu.Unlock()
	total := c.cache.sQueue.Len() + c.cache.mQueue.Len()
	assert.LessOrEqual(t, total, c.cache.capacity)
	assert.Equal(t, total, len(c.cache.entries))
	assert.LessOrEqual(t, c.cache.ghostCount, c.cache.ghostCap)
}
