package value

// Table is the open-addressed hash table described in spec.md §4.2. It
// backs globals, instance fields, class method/field tables, and the
// string intern table — the same structure serves all four uses, keyed
// by Value (in practice almost always an interned string).
//
// Linear probing with tombstones; grows to the next power of two once the
// load factor would exceed tableMaxLoadNumerator/tableMaxLoadDenominator
// (6/7). Lookup of a missing key
// returns (Empty(), false) so callers can distinguish "absent" from a
// stored nil.
type Table struct {
	count   int // live entries + tombstones
	entries []entry
}

type entry struct {
	key      Value
	value    Value
	occupied bool
	deleted  bool // tombstone
}

const tableMaxLoadNumerator = 6
const tableMaxLoadDenominator = 7

// NewTable builds an empty table. Storage is allocated lazily on first
// insert.
func NewTable() *Table {
	return &Table{}
}

// Get looks up key, returning (Empty(), false) on a miss.
func (t *Table) Get(key Value) (Value, bool) {
	if len(t.entries) == 0 {
		return Empty(), false
	}
	e := t.find(key)
	if !e.occupied {
		return Empty(), false
	}
	return e.value, true
}

// Set inserts or replaces key -> val. Returns true if this added a new
// key (as opposed to replacing an existing one), matching spec.md §4.2's
// requirement that insertion distinguish "added" from "replaced" so the
// compiler can reject duplicate definitions.
func (t *Table) Set(key Value, val Value) bool {
	if len(t.entries) == 0 || t.count+1 > len(t.entries)*tableMaxLoadNumerator/tableMaxLoadDenominator {
		t.grow()
	}
	e := t.findSlot(t.entries, key)
	isNew := !e.occupied
	if isNew && !e.deleted {
		t.count++
	}
	e.key = key
	e.value = val
	e.occupied = true
	e.deleted = false
	return isNew
}

// Delete removes key, leaving a tombstone behind so later linear probes
// still find entries that were inserted after a collision.
func (t *Table) Delete(key Value) bool {
	if len(t.entries) == 0 {
		return false
	}
	e := t.find(key)
	if !e.occupied {
		return false
	}
	e.occupied = false
	e.deleted = true
	e.value = Nil()
	return true
}

// Has reports whether key is present.
func (t *Table) Has(key Value) bool {
	_, ok := t.Get(key)
	return ok
}

// Len returns the number of live (non-tombstone) entries.
func (t *Table) Len() int {
	n := 0
	for i := range t.entries {
		if t.entries[i].occupied {
			n++
		}
	}
	return n
}

// Keys returns the live keys in bucket order (not insertion order — for
// dicts, insertion order is tracked separately by Object.Keys).
func (t *Table) Keys() []Value {
	var out []Value
	for i := range t.entries {
		if t.entries[i].occupied {
			out = append(out, t.entries[i].key)
		}
	}
	return out
}

// AddAllInto copies every live entry of t into dst, used both for class
// inheritance (copy parent methods/fields into the child before its own
// definitions override them, spec.md §4.5) and for seeding a fresh
// instance's field table from its class's defaults (spec.md §3).
func (t *Table) AddAllInto(dst *Table) {
	for i := range t.entries {
		if t.entries[i].occupied {
			dst.Set(t.entries[i].key, t.entries[i].value)
		}
	}
}

func (t *Table) grow() {
	newCap := 8
	if len(t.entries) > 0 {
		newCap = len(t.entries) * 2
	}
	newEntries := make([]entry, newCap)
	// Rehash every live entry; tombstones are discarded (spec.md §4.2).
	t.count = 0
	for i := range t.entries {
		if !t.entries[i].occupied {
			continue
		}
		e := t.findSlot(newEntries, t.entries[i].key)
		*e = t.entries[i]
		e.deleted = false
		t.count++
	}
	t.entries = newEntries
}

// find locates the slot for key in the live table (read path): may return
// a non-occupied slot if the key is absent.
func (t *Table) find(key Value) *entry {
	return t.findSlot(t.entries, key)
}

// findSlot implements linear probing with tombstone reuse: it walks
// forward from the key's hash bucket, remembering the first tombstone
// seen, and returns either the matching live entry or the first reusable
// slot (tombstone, else empty) if the key isn't present.
func (t *Table) findSlot(entries []entry, key Value) *entry {
	mask := uint32(len(entries) - 1)
	idx := HashValue(key) & mask
	var tombstone *entry
	for {
		e := &entries[idx]
		if !e.occupied {
			if !e.deleted {
				if tombstone != nil {
					return tombstone
				}
				return e
			}
			if tombstone == nil {
				tombstone = e
			}
		} else if ValuesIdentical(e.key, key) {
			return e
		}
		idx = (idx + 1) & mask
	}
}

// ValuesIdentical compares two Values the way string-keyed table lookups
// need: strings compare by content (which, for interned strings, is
// equivalent to pointer identity, spec.md §3 invariant), and every other
// kind compares per Equal.
func ValuesIdentical(a, b Value) bool {
	if IsObjKind(a, ObjString) && IsObjKind(b, ObjString) {
		x, y := a.AsObject(), b.AsObject()
		return x == y || (x.Hash == y.Hash && x.Chars == y.Chars)
	}
	return Equal(a, b)
}

// RemoveWhiteStrings implements the GC's string-table sweep (spec.md
// §4.2/§4.3): entries whose key is an unmarked (white) string object are
// removed so the intern table cannot resurrect dead strings. isWhite
// reports whether an object is unmarked.
func (t *Table) RemoveWhiteStrings(isWhite func(*Object) bool) {
	for i := range t.entries {
		e := &t.entries[i]
		if !e.occupied {
			continue
		}
		if e.key.Kind() != KindObject {
			continue
		}
		obj := e.key.AsObject()
		if obj == nil || obj.Kind != ObjString {
			continue
		}
		if isWhite(obj) {
			e.occupied = false
			e.deleted = true
			e.value = Nil()
		}
	}
}

// FindInternedString looks up a string by raw content without first
// allocating an Object for it — the fast path string interning needs
// (spec.md §3: "construction returns the pre-existing entry if
// contents+length+hash match").
func (t *Table) FindInternedString(chars string, hash uint32) *Object {
	if len(t.entries) == 0 {
		return nil
	}
	mask := uint32(len(t.entries) - 1)
	idx := hash & mask
	for {
		e := &t.entries[idx]
		if !e.occupied && !e.deleted {
			return nil
		}
		if e.occupied {
			if obj := e.key.AsObject(); obj != nil && obj.Kind == ObjString &&
				obj.Hash == hash && obj.Chars == chars {
				return obj
			}
		}
		idx = (idx + 1) & mask
	}
}
