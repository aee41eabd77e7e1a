package vm

// Table is an open-addressed hash table keyed by interned strings, used for
// globals, class method tables and instance field tables. It follows
// table.c directly: linear probing, tombstones left behind by delete so
// probe sequences through a deleted slot still find later entries, and a
// rehash once the table is more than 75% full (including tombstones, since
// a tombstone still occupies a probe slot).
type Table struct {
	count   int // live entries + tombstones
	entries []tableEntry
	// owner charges this table's backing-array growth against the VM's
	// tracked heap size, the same way object.go's alloc does for every
	// other heap value. Nil skips the charge; every caller in this
	// repository, tests included, passes a VM.
	owner *VM
}

type tableEntry struct {
	key   *ObjStringVal // nil means empty or tombstone
	value Value
	used  bool // true for a tombstone, distinguishes it from a never-used slot
}

const tableMaxLoad = 0.75

// tableEntrySize is a rough stand-in for sizeof(Entry) in the C original,
// good enough to drive the same amortized-growth GC trigger behavior; see
// object.go's alloc for the same estimate applied to other heap values.
const tableEntrySize = 24

// NewTable returns an empty table with no backing array yet, matching
// initTable() — the first Set allocates. owner is the VM whose GC budget
// this table's growth is charged against; nil leaves its growth
// uncharged.
func NewTable(owner *VM) *Table {
	return &Table{owner: owner}
}

func (t *Table) findEntry(entries []tableEntry, key *ObjStringVal) int {
	capacity := len(entries)
	index := int(key.Hash) % capacity
	var tombstone = -1
	for {
		e := &entries[index]
		if e.key == nil {
			if !e.used {
				if tombstone != -1 {
					return tombstone
				}
				return index
			}
			if tombstone == -1 {
				tombstone = index
			}
		} else if e.key == key {
			return index
		}
		index = (index + 1) % capacity
	}
}

func (t *Table) adjustCapacity(capacity int) {
	if t.owner != nil {
		// Charge the delta before swapping in the new array: if this
		// pushes bytesAllocated over the threshold it may trigger a
		// synchronous collection, and that collection's markRoots walk
		// must still see t.entries pointing at the old (still valid)
		// backing array.
		t.owner.trackAlloc(tableEntrySize * (capacity - len(t.entries)))
	}
	entries := make([]tableEntry, capacity)
	t.count = 0
	for _, e := range t.entries {
		if e.key == nil {
			continue
		}
		dst := t.findEntry(entries, e.key)
		entries[dst].key = e.key
		entries[dst].value = e.value
		t.count++
	}
	t.entries = entries
}

// Get looks up key, reporting whether it was present.
func (t *Table) Get(key *ObjStringVal) (Value, bool) {
	if len(t.entries) == 0 {
		return Value{}, false
	}
	idx := t.findEntry(t.entries, key)
	e := &t.entries[idx]
	if e.key == nil {
		return Value{}, false
	}
	return e.value, true
}

// Set inserts or overwrites key->value, returning true if this created a
// brand new key (used by OP_SET_GLOBAL to reject assignment to an undefined
// global, per the C original's tableSet return value).
func (t *Table) Set(key *ObjStringVal, value Value) bool {
	if float64(t.count+1) > float64(len(t.entries))*tableMaxLoad {
		capacity := 8
		if len(t.entries) > 0 {
			capacity = len(t.entries) * 2
		}
		t.adjustCapacity(capacity)
	}
	idx := t.findEntry(t.entries, key)
	e := &t.entries[idx]
	isNewKey := e.key == nil
	if isNewKey && !e.used {
		t.count++
	}
	e.key = key
	e.value = value
	e.used = true
	return isNewKey
}

// Delete removes key, leaving a tombstone behind so later probes that
// stepped over this slot still terminate correctly.
func (t *Table) Delete(key *ObjStringVal) bool {
	if len(t.entries) == 0 {
		return false
	}
	idx := t.findEntry(t.entries, key)
	e := &t.entries[idx]
	if e.key == nil {
		return false
	}
	e.key = nil
	e.value = BoolVal(true)
	e.used = true
	return true
}

// AddAll copies every live entry of t into dst, used by OP_INHERIT to copy
// a superclass's methods into the subclass before its own OP_METHODs run.
func (t *Table) AddAll(dst *Table) {
	for _, e := range t.entries {
		if e.key != nil {
			dst.Set(e.key, e.value)
		}
	}
}

// FindString looks up an interned string by its raw characters and hash,
// without needing an *ObjStringVal to compare pointers against. This is
// what lets string interning dedupe without first allocating the candidate.
func (t *Table) FindString(chars string, hash uint32) *ObjStringVal {
	if len(t.entries) == 0 {
		return nil
	}
	capacity := len(t.entries)
	index := int(hash) % capacity
	for {
		e := &t.entries[index]
		if e.key == nil {
			if !e.used {
				return nil
			}
		} else if e.key.Hash == hash && e.key.Chars == chars {
			return e.key
		}
		index = (index + 1) % capacity
	}
}

// removeWhite drops every entry whose key string wasn't marked during the
// last trace, the weak-table step collectGarbage runs between tracing and
// sweeping so the string table doesn't keep otherwise-dead strings alive.
func (t *Table) removeWhite() {
	for i := range t.entries {
		e := &t.entries[i]
		if e.key != nil && !e.key.isMarked() {
			e.key = nil
			e.value = BoolVal(true)
			e.used = true
		}
	}
}

// Each calls fn for every live entry, in table-slot order. Used by the
// root package's instance marshaling to walk an object's fields without
// needing to know every field name in advance.
func (t *Table) Each(fn func(key *ObjStringVal, value Value)) {
	for _, e := range t.entries {
		if e.key != nil {
			fn(e.key, e.value)
		}
	}
}

// mark grays every key and value this table reaches.
func (t *Table) mark(vm *VM) {
	for _, e := range t.entries {
		if e.key != nil {
			vm.markObject(e.key)
			vm.markValue(e.value)
		}
	}
}
