package vm

import "testing"

func internedFor(t *testing.T, v *VM, s string) *ObjStringVal {
	t.Helper()
	return v.InternString(s)
}

func TestTableSetGetDelete(t *testing.T) {
	v := New(Options{})
	tbl := NewTable(v)
	key := internedFor(t, v, "answer")

	if _, ok := tbl.Get(key); ok {
		t.Fatal("expected miss on empty table")
	}
	if !tbl.Set(key, NumberVal(42)) {
		t.Fatal("expected Set to report a new key")
	}
	if got, ok := tbl.Get(key); !ok || got.AsNumber() != 42 {
		t.Fatalf("got %v, %v", got, ok)
	}
	if tbl.Set(key, NumberVal(43)) {
		t.Fatal("expected overwrite to report an existing key")
	}
	if !tbl.Delete(key) {
		t.Fatal("expected delete to succeed")
	}
	if _, ok := tbl.Get(key); ok {
		t.Fatal("expected miss after delete")
	}
}

func TestTableGrowsAndRetainsEntries(t *testing.T) {
	v := New(Options{})
	tbl := NewTable(v)
	keys := make([]*ObjStringVal, 0, 64)
	for i := 0; i < 64; i++ {
		k := internedFor(t, v, string(rune('a'))+string(rune(i)))
		keys = append(keys, k)
		tbl.Set(k, NumberVal(float64(i)))
	}
	for i, k := range keys {
		got, ok := tbl.Get(k)
		if !ok || got.AsNumber() != float64(i) {
			t.Fatalf("entry %d missing or wrong after growth: %v %v", i, got, ok)
		}
	}
}

func TestTombstoneDoesNotBreakLaterProbe(t *testing.T) {
	v := New(Options{})
	tbl := NewTable(v)
	a := internedFor(t, v, "a")
	b := internedFor(t, v, "b")
	tbl.Set(a, BoolVal(true))
	tbl.Set(b, BoolVal(false))
	tbl.Delete(a)
	if got, ok := tbl.Get(b); !ok || got.AsBool() != false {
		t.Fatalf("lookup past a tombstone failed: %v %v", got, ok)
	}
}

func TestFindStringDedupesWithoutAllocatingTwice(t *testing.T) {
	v := New(Options{})
	a := v.InternString("hello")
	b := v.InternString("hel" + "lo")
	if a != b {
		t.Fatal("expected interning to return the identical object")
	}
}

func TestWeakInterningDropsUnreachableStringsUnderGC(t *testing.T) {
	v := New(Options{})
	first := v.InternString("ephemeral")
	// first is now unreachable from any VM root (nothing but this local Go
	// variable references it); a collection should let the intern table's
	// weak reference to it be swept away, so re-interning produces a fresh
	// object rather than finding the old one still cached.
	v.collectGarbage()
	second := v.InternString("ephemeral")
	if first == second {
		t.Fatal("expected re-interning after GC to produce a fresh object once the old one was collected")
	}
}
