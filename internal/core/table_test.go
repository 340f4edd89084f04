package core

import (
	"errors"
	"testing"
)

func TestTable_InsertLookup(t *testing.T) {
	fields := FieldSet{Keys: []int{0}, Sums: []int{1}}
	table := NewTable(0)

	if _, ok := table.Lookup("a"); ok {
		t.Fatal("empty table should not contain a")
	}

	rec := NewRecord(fields)
	rec.Sums[0] = 5
	if err := table.Insert("a", rec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, ok := table.Lookup("a")
	if !ok {
		t.Fatal("expected a to be stored")
	}
	if got != rec {
		t.Error("Lookup should return the stored record")
	}
	if table.Len() != 1 {
		t.Errorf("Len = %d, want 1", table.Len())
	}
}

func TestTable_InsertionOrder(t *testing.T) {
	fields := FieldSet{Keys: []int{0}}
	table := NewTable(0)
	for _, key := range []string{"c", "a", "b"} {
		if err := table.Insert(key, NewRecord(fields)); err != nil {
			t.Fatal(err)
		}
	}

	// Re-inserting keeps the original position.
	if err := table.Insert("c", NewRecord(fields)); err != nil {
		t.Fatal(err)
	}

	var seen []string
	table.Each(func(key string, _ *Record) bool {
		seen = append(seen, key)
		return true
	})
	want := []string{"c", "a", "b"}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("Each order = %q, want %q", seen, want)
		}
	}

	keys := table.Keys()
	keys[0] = "mutated"
	if table.Keys()[0] != "c" {
		t.Error("Keys should return a copy")
	}
}

func TestTable_EachStops(t *testing.T) {
	table := NewTable(0)
	for _, key := range []string{"a", "b", "c"} {
		_ = table.Insert(key, &Record{})
	}

	calls := 0
	table.Each(func(string, *Record) bool {
		calls++
		return calls < 2
	})
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestTable_Limit(t *testing.T) {
	table := NewTable(2)
	_ = table.Insert("a", &Record{})
	_ = table.Insert("b", &Record{})

	err := table.Insert("c", &Record{})
	if !errors.Is(err, ErrTableFull) {
		t.Fatalf("got %v, want ErrTableFull", err)
	}
	if !errors.Is(err, ErrAllocation) {
		t.Error("table full should be an allocation error")
	}

	// Existing keys can still be replaced.
	if err := table.Insert("a", &Record{}); err != nil {
		t.Errorf("replacing an existing key failed: %v", err)
	}
}

func TestTable_Reset(t *testing.T) {
	table := NewTable(0)
	_ = table.Insert("a", &Record{})
	table.Reset()

	if table.Len() != 0 {
		t.Errorf("Len after Reset = %d, want 0", table.Len())
	}
	if _, ok := table.Lookup("a"); ok {
		t.Error("Reset should drop every record")
	}
}

func TestRecord_Average(t *testing.T) {
	rec := NewRecord(FieldSet{Keys: []int{0}, Averages: []int{1, 2}})
	rec.AverageSums[0] = 10
	rec.AverageCounts[0] = 4

	if avg, ok := rec.Average(0); !ok || avg != 2.5 {
		t.Errorf("Average(0) = %v, %v; want 2.5, true", avg, ok)
	}
	if _, ok := rec.Average(1); ok {
		t.Error("Average with no contributions should not be ok")
	}
}
