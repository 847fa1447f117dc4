package vectorstore

import (
	"context"
	"sync/atomic"

	"github.com/fugue-ai/rhema-sub012/rherr"
)

// RemoteHarness wraps a Store to emulate a remote vector database: every
// call can be made to fail with a transport error, exercising the
// miss-downgrade semantics callers must apply (a transport failure during
// search degrades to an empty result set, never a hard failure, unless the
// caller explicitly requires a fresh read).
//
// This exists because the in-process MemoryStore can never itself produce a
// transport error - something in the kernel must be able to simulate one for
// tests and for local development against a not-yet-provisioned remote
// vector database.
type RemoteHarness struct {
	inner Store

	failNext int32 // atomic: >0 means the next N calls fail
}

// NewRemoteHarness wraps inner.
func NewRemoteHarness(inner Store) *RemoteHarness {
	return &RemoteHarness{inner: inner}
}

// InjectFailures arranges for the next n calls across Store/Search/Delete to
// return a transport error instead of reaching inner.
func (h *RemoteHarness) InjectFailures(n int) {
	atomic.StoreInt32(&h.failNext, int32(n))
}

func (h *RemoteHarness) shouldFail() bool {
	for {
		cur := atomic.LoadInt32(&h.failNext)
		if cur <= 0 {
			return false
		}
		if atomic.CompareAndSwapInt32(&h.failNext, cur, cur-1) {
			return true
		}
	}
}

func (h *RemoteHarness) Store(ctx context.Context, rec Record) error {
	if h.shouldFail() {
		return rherr.New("vectorstore.Store", "vectorstore", rherr.ErrTransport, "simulated transport failure")
	}
	return h.inner.Store(ctx, rec)
}

// Search downgrades a simulated transport failure to an empty result set
// rather than propagating the error: non-essential reads degrade
// gracefully instead of failing outright.
func (h *RemoteHarness) Search(ctx context.Context, vector []float32, k int, scope string) ([]Match, error) {
	if h.shouldFail() {
		return nil, nil
	}
	return h.inner.Search(ctx, vector, k, scope)
}

func (h *RemoteHarness) Delete(ctx context.Context, id string) error {
	if h.shouldFail() {
		return rherr.New("vectorstore.Delete", "vectorstore", rherr.ErrTransport, "simulated transport failure")
	}
	return h.inner.Delete(ctx, id)
}
