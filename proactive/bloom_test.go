package proactive

import "testing"

func TestDedupFilter_MarkThenSeen(t *testing.T) {
	f := newDedupFilter(256, 3, 100)
	if f.seen("k1") {
		t.Fatal("expected unmarked key to be unseen")
	}
	f.mark("k1")
	if !f.seen("k1") {
		t.Fatal("expected marked key to be seen")
	}
	if f.seen("k2") {
		t.Fatal("expected different key to be unseen")
	}
}

func TestDedupFilter_TickDecaysCounters(t *testing.T) {
	f := newDedupFilter(256, 3, 2)
	f.mark("k1")

	f.tick() // ticks=1, below decayEvery
	if !f.seen("k1") {
		t.Fatal("expected key still seen before decay threshold")
	}

	f.tick() // ticks reaches decayEvery=2, halves counters
	for _, p := range f.positions("k1") {
		if f.counters[p] != 0 {
			t.Fatalf("expected counter at %d to decay to zero from 1, got %d", p, f.counters[p])
		}
	}
	if f.seen("k1") {
		t.Fatal("expected key to no longer be seen after full decay")
	}
}

func TestDedupFilter_MarkSaturatesAt255(t *testing.T) {
	f := newDedupFilter(64, 2, 1000)
	for i := 0; i < 300; i++ {
		f.mark("hot")
	}
	for _, p := range f.positions("hot") {
		if f.counters[p] != 255 {
			t.Fatalf("expected counter capped at 255, got %d", f.counters[p])
		}
	}
}

func TestDedupFilter_DefaultsAppliedForNonPositiveArgs(t *testing.T) {
	f := newDedupFilter(0, 0, 0)
	if len(f.counters) != 1024 {
		t.Fatalf("expected default size 1024, got %d", len(f.counters))
	}
	if f.hashFns != 3 {
		t.Fatalf("expected default hashFns 3, got %d", f.hashFns)
	}
	if f.decayEvery != 100 {
		t.Fatalf("expected default decayEvery 100, got %d", f.decayEvery)
	}
}
