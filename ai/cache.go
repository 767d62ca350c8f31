package ai

import (
	"container/list"
	"context"
	"sync"

	"github.com/minio/highwayhash"
)

// cacheKey is the fixed HighwayHash key. Cache keys only need to be stable
// within one process.
var cacheKey = []byte("kbase-embedding-cache-key-000001")

// CachingEmbedder keeps the most recently used embeddings of one model in
// memory. Identical chunk text is embedded once across reprocessing runs.
type CachingEmbedder struct {
	inner Embedder
	model string

	mu    sync.Mutex
	cap   int
	ll    *list.List
	items map[uint64]*list.Element

	hits   uint64
	misses uint64
}

type cacheEntry struct {
	key uint64
	vec []float32
}

var _ Embedder = (*CachingEmbedder)(nil)

// NewCachingEmbedder wraps inner with an LRU of capacity entries for model.
func NewCachingEmbedder(inner Embedder, model string, capacity int) *CachingEmbedder {
	if capacity < 1 {
		capacity = 1
	}
	return &CachingEmbedder{
		inner: inner,
		model: model,
		cap:   capacity,
		ll:    list.New(),
		items: make(map[uint64]*list.Element, capacity),
	}
}

func (c *CachingEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	key := c.key(text)
	if vec, ok := c.get(key); ok {
		return vec, nil
	}
	vec, err := c.inner.EmbedText(ctx, text)
	if err != nil {
		return nil, err
	}
	c.add(key, vec)
	return cloneVec(vec), nil
}

func (c *CachingEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	result := make([][]float32, len(texts))
	keys := make([]uint64, len(texts))
	var missing []string
	var missingIdx []int
	for i, text := range texts {
		keys[i] = c.key(text)
		if vec, ok := c.get(keys[i]); ok {
			result[i] = vec
			continue
		}
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
	}
	if len(missing) == 0 {
		return result, nil
	}

	vecs, err := c.inner.EmbedTexts(ctx, missing)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missing) {
		return nil, ErrEmptyEmbedding
	}
	for j, i := range missingIdx {
		c.add(keys[i], vecs[j])
		result[i] = cloneVec(vecs[j])
	}
	return result, nil
}

// Stats returns cache hits and misses.
func (c *CachingEmbedder) Stats() (hits, misses uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

func (c *CachingEmbedder) key(text string) uint64 {
	h, err := highwayhash.New64(cacheKey)
	if err != nil {
		// only fails for a key that is not 32 bytes
		panic(err)
	}
	h.Write([]byte(c.model))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return h.Sum64()
}

func (c *CachingEmbedder) get(key uint64) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		c.ll.MoveToFront(el)
		c.hits++
		return cloneVec(el.Value.(*cacheEntry).vec), true
	}
	c.misses++
	return nil, false
}

func (c *CachingEmbedder) add(key uint64, vec []float32) {
	if len(vec) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		el.Value.(*cacheEntry).vec = cloneVec(vec)
		c.ll.MoveToFront(el)
		return
	}
	c.items[key] = c.ll.PushFront(&cacheEntry{key: key, vec: cloneVec(vec)})
	if c.ll.Len() > c.cap {
		if back := c.ll.Back(); back != nil {
			c.ll.Remove(back)
			delete(c.items, back.Value.(*cacheEntry).key)
		}
	}
}

func cloneVec(vec []float32) []float32 {
	if len(vec) == 0 {
		return nil
	}
	out := make([]float32, len(vec))
	copy(out, vec)
	return out
}
