package ldb

import "github.com/mkrump/ldb/internal/base"

// internalIterator is the common shape of every iterator the engine
// composes: memtable iterators, batch iterators, sstable.Iterator and the
// merging/level iterators built on top of them. It matches
// sstable.Iterator's method set exactly so table iterators need no adapter.
type internalIterator interface {
	SeekGE(key []byte)
	SeekLT(key []byte)
	First()
	Last()
	Next() bool
	Prev() bool
	Key() base.InternalKey
	Value() []byte
	Valid() bool
	Error() error
	Close() error
}
