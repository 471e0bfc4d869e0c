package base

// Comparer is the dynamic-dispatch capability §9 describes for key
// ordering: the core never assumes byte-lexicographic order, only this
// interface, injected via Options.Comparer.
type Comparer struct {
	Compare   Compare
	Name      string
	Separator func(dst, a, b []byte) []byte
	Successor func(dst, a []byte) []byte
}

// DefaultComparer compares user keys byte-lexicographically, as §9 states
// the default comparator does.
var DefaultComparer = &Comparer{
	Compare:   DefaultCompare,
	Name:      "leveldb.BytewiseComparator",
	Separator: func(dst, a, b []byte) []byte { return Separator(DefaultCompare, dst, a, b) },
	Successor: func(dst, a []byte) []byte { return Successor(DefaultCompare, dst, a) },
}

// Merge resolves a chain of Merge-kind records for a single key into a
// final value; it is the other dynamic-dispatch capability §9 names.
// Merge is applied left-to-right over the stored operands, oldest
// first, terminating at (and including) a Set or Delete.
type Merger struct {
	Name  string
	Merge func(key []byte, operands [][]byte) []byte
}
