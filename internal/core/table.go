package core

import "fmt"

// Table maps composite keys to their Records.
//
// The table exclusively owns every Record stored in it. Iteration follows
// insertion order, so unsorted output lists keys in the order they were first
// seen in the input and is stable from run to run.
type Table struct {
	records map[string]*Record
	order   []string
	limit   int // maximum number of keys; 0 means unlimited
}

// NewTable creates an empty table. A positive limit caps the number of keys;
// inserts beyond it fail with ErrTableFull.
func NewTable(limit int) *Table {
	return &Table{
		records: make(map[string]*Record),
		limit:   limit,
	}
}

// Lookup returns the Record stored under key.
func (t *Table) Lookup(key string) (*Record, bool) {
	rec, ok := t.records[key]
	return rec, ok
}

// Insert stores rec under key. Inserting an existing key replaces its Record
// without changing its position.
func (t *Table) Insert(key string, rec *Record) error {
	if _, exists := t.records[key]; exists {
		t.records[key] = rec
		return nil
	}
	if t.limit > 0 && len(t.order) >= t.limit {
		return fmt.Errorf("%w: %d keys stored", ErrTableFull, len(t.order))
	}
	t.records[key] = rec
	t.order = append(t.order, key)
	return nil
}

// Len returns the number of keys stored.
func (t *Table) Len() int {
	return len(t.order)
}

// Keys returns a copy of all keys in insertion order.
func (t *Table) Keys() []string {
	keys := make([]string, len(t.order))
	copy(keys, t.order)
	return keys
}

// Each calls fn for every key in insertion order until fn returns false.
func (t *Table) Each(fn func(key string, rec *Record) bool) {
	for _, key := range t.order {
		if !fn(key, t.records[key]) {
			return
		}
	}
}

// Reset releases every Record and empties the table.
func (t *Table) Reset() {
	t.records = make(map[string]*Record)
	t.order = nil
}
