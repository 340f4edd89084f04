package core

import (
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Collator compares two strings under some collation order, returning a
// negative number, zero, or a positive number.
//
// *collate.Collator satisfies this interface. Implementations need not be safe
// for concurrent use; each Aggregator holds its own.
type Collator interface {
	CompareString(a, b string) int
}

// ByteCollator orders strings by raw bytes, like the C/POSIX locale.
type ByteCollator struct{}

// CompareString implements Collator.
func (ByteCollator) CompareString(a, b string) int {
	return strings.Compare(a, b)
}

// CollatorForLocale builds a Collator for a POSIX locale name such as
// "en_US.UTF-8" or "de_DE@euro". The names "", "C" and "POSIX", and names that
// do not parse as a language tag, give a ByteCollator. ok reports whether a
// locale-aware collator was built.
func CollatorForLocale(locale string) (c Collator, ok bool) {
	tag, ok := localeTag(locale)
	if !ok {
		return ByteCollator{}, false
	}
	return collate.New(tag), true
}

// localeTag converts a POSIX locale name to a BCP 47 language tag.
func localeTag(locale string) (language.Tag, bool) {
	name := locale
	if i := strings.IndexAny(name, ".@"); i >= 0 {
		name = name[:i]
	}
	switch name {
	case "", "C", "POSIX":
		return language.Und, false
	}

	tag, err := language.Parse(strings.ReplaceAll(name, "_", "-"))
	if err != nil {
		return language.Und, false
	}
	return tag, true
}

// KeyComparator orders composite keys field by field.
//
// Each key is split on Delimiter and fields are compared pairwise with
// Collator, the first field being most significant. When every shared field
// ties, the key with fewer fields sorts first.
type KeyComparator struct {
	Delimiter string
	Collator  Collator
}

// Compare returns a negative number when a sorts before b, zero when they are
// equivalent, and a positive number otherwise.
func (k KeyComparator) Compare(a, b string) int {
	if a == b {
		return 0
	}

	coll := k.Collator
	if coll == nil {
		coll = ByteCollator{}
	}

	af := SplitFields(a, k.Delimiter)
	bf := SplitFields(b, k.Delimiter)

	n := min(len(af), len(bf))
	for i := 0; i < n; i++ {
		if c := coll.CompareString(af[i], bf[i]); c != 0 {
			return c
		}
	}
	return len(af) - len(bf)
}
