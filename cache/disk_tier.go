package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/fugue-ai/rhema-sub012/objectstore"
	"github.com/fugue-ai/rhema-sub012/rherr"
)

func unixToTime(sec int64) time.Time { return time.Unix(sec, 0) }

// diskEntry is the wire shape persisted to the objectstore - Entry minus its
// in-memory-only access-time ring, which isn't worth persisting.
type diskEntry struct {
	Key           string    `json:"key"`
	Scope         string    `json:"scope"`
	Value         []byte    `json:"value"`
	Embedding     []float32 `json:"embedding,omitempty"`
	Checksum      uint32    `json:"checksum"`
	ExpiresAtUnix int64     `json:"expires_at_unix,omitempty"`
	AccessCount   int64     `json:"access_count"`
}

// diskTier is the cold tier: persistence through an objectstore.Store,
// using namespaced keys and JSON marshaling, generalized to any Store
// backend rather than Redis specifically.
type diskTier struct {
	store objectstore.Store
}

func newDiskTier(store objectstore.Store) *diskTier {
	return &diskTier{store: store}
}

func (t *diskTier) get(ctx context.Context, key string) (*Entry, bool, error) {
	raw, err := t.store.Read(ctx, key)
	if err != nil {
		if rherr.IsTransport(err) {
			return nil, false, err
		}
		return nil, false, nil // not found, or any other miss - treated as a cache miss
	}

	var de diskEntry
	if err := json.Unmarshal(raw, &de); err != nil {
		return nil, false, rherr.Wrap("cache.diskTier.get", "cache", rherr.ErrMalformedEntry, err)
	}

	e := &Entry{
		Key:         de.Key,
		Scope:       de.Scope,
		Value:       de.Value,
		Embedding:   de.Embedding,
		Checksum:    de.Checksum,
		AccessCount: de.AccessCount,
	}
	if de.ExpiresAtUnix > 0 {
		e.ExpiresAt = unixToTime(de.ExpiresAtUnix)
	}
	if !e.verifyChecksum() {
		return nil, false, rherr.New("cache.diskTier.get", "cache", rherr.ErrChecksumMismatch, key)
	}
	if e.expired(time.Now()) {
		return nil, false, nil
	}
	return e, true, nil
}

func (t *diskTier) put(ctx context.Context, e *Entry) error {
	de := diskEntry{
		Key:         e.Key,
		Scope:       e.Scope,
		Value:       e.Value,
		Embedding:   e.Embedding,
		Checksum:    e.Checksum,
		AccessCount: e.AccessCount,
	}
	if !e.ExpiresAt.IsZero() {
		de.ExpiresAtUnix = e.ExpiresAt.Unix()
	}
	raw, err := json.Marshal(de)
	if err != nil {
		return rherr.Wrap("cache.diskTier.put", "cache", rherr.ErrMalformedEntry, err)
	}
	return t.store.Write(ctx, e.Key, raw)
}

func (t *diskTier) delete(ctx context.Context, key string) error {
	return t.store.Delete(ctx, key)
}
