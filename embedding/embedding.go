// Package embedding implements the embedding capability: turning text into
// a fixed-dimension vector, with a content-hash cache in front of the
// concrete backend so repeated embedding of identical content is free.
// Embedder is a contract, not a specific model integration, with
// BedrockEmbedder as one optional backend.
package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"math"
	"sync"

	"github.com/fugue-ai/rhema-sub012/rherr"
)

// Embedder turns text into a vector. Implementations must be safe for
// concurrent use.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// CachingEmbedder wraps an Embedder with a content-hash cache: identical
// text (byte-for-byte) is embedded once, regardless of which scope or agent
// requested it.
type CachingEmbedder struct {
	inner Embedder

	mu    sync.RWMutex
	cache map[string][]float32

	maxEntries int
	order      []string // simple FIFO eviction once maxEntries is exceeded
}

// NewCachingEmbedder wraps inner with a bounded content-hash cache holding at
// most maxEntries distinct texts.
func NewCachingEmbedder(inner Embedder, maxEntries int) *CachingEmbedder {
	if maxEntries <= 0 {
		maxEntries = 10000
	}
	return &CachingEmbedder{
		inner:      inner,
		cache:      make(map[string][]float32),
		maxEntries: maxEntries,
	}
}

func (c *CachingEmbedder) Dimension() int { return c.inner.Dimension() }

func hashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Embed returns the cached vector for text if present, otherwise computes it
// via the wrapped Embedder and caches the result.
func (c *CachingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := hashText(text)

	c.mu.RLock()
	if v, ok := c.cache[key]; ok {
		c.mu.RUnlock()
		return v, nil
	}
	c.mu.RUnlock()

	v, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.cache[key]; !ok {
		if len(c.order) >= c.maxEntries {
			oldest := c.order[0]
			c.order = c.order[1:]
			delete(c.cache, oldest)
		}
		c.cache[key] = v
		c.order = append(c.order, key)
	}
	return v, nil
}

// Deterministic is a dependency-free Embedder used as the default and in
// tests: it projects text into a fixed dimension via a seeded hash, so equal
// text always yields an equal vector and similar text tends to land nearby
// in a handful of shared dimensions (adequate for exercising the cache and
// search packages without a real model).
type Deterministic struct {
	dim int
}

// NewDeterministic returns a Deterministic embedder producing vectors of the
// given dimension.
func NewDeterministic(dim int) *Deterministic {
	if dim <= 0 {
		dim = 128
	}
	return &Deterministic{dim: dim}
}

func (d *Deterministic) Dimension() int { return d.dim }

func (d *Deterministic) Embed(_ context.Context, text string) ([]float32, error) {
	out := make([]float32, d.dim)
	if text == "" {
		return out, nil
	}
	// Slide a rolling hash of each word across the vector so shared
	// vocabulary between two texts nudges their vectors toward each other.
	words := splitWords(text)
	for _, w := range words {
		h := fnv1a(w)
		for i := 0; i < d.dim; i++ {
			shift := uint(i % 32)
			bit := float32((h>>shift)&1)*2 - 1 // -1 or +1
			out[i] += bit
		}
	}
	normalize(out)
	return out, nil
}

func splitWords(s string) []string {
	var words []string
	start := -1
	for i, r := range s {
		isSep := r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '.' || r == ','
		if isSep {
			if start >= 0 {
				words = append(words, s[start:i])
				start = -1
			}
		} else if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		words = append(words, s[start:])
	}
	return words
}

func fnv1a(s string) uint64 {
	var h uint64 = 14695981039346656037
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= 1099511628211
	}
	return h
}

func normalize(v []float32) {
	var sumSquares float32
	for _, x := range v {
		sumSquares += x * x
	}
	if sumSquares == 0 {
		return
	}
	norm := float32(math.Sqrt(float64(sumSquares)))
	for i := range v {
		v[i] /= norm
	}
}

// ErrUnsupportedBackend is returned by backend constructors when required
// configuration is missing.
var ErrUnsupportedBackend = rherr.New("embedding.New", "embedding", rherr.ErrValidationFailed, "unsupported or misconfigured embedding backend")
