// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package ldb

import (
	"sync/atomic"

	"github.com/mkrump/ldb/internal/arenaskl"
	"github.com/mkrump/ldb/internal/base"
)

// memTable is the sorted in-memory buffer of recent writes (§4.E): a skip
// list keyed by internal key, backed by an arena sized to write_buffer_size.
// Conceptually each entry is the packed
// <key_size:varint><internal_key><value_size:varint><value> record §4.E
// describes; arenaskl.Skiplist stores the internal key and value as two
// separate byte slices rather than one packed blob, which carries the same
// information without requiring unsafe arena-offset arithmetic.
type memTable struct {
	cmp   base.Compare
	arena *arenaskl.Arena
	skl   *arenaskl.Skiplist

	refs int32
	// flushed is closed once this (now immutable) memtable has been written
	// out as an L0 table, letting DB.Flush block until that happens.
	flushed chan struct{}
}

func newMemTable(o *Options) *memTable {
	arena := arenaskl.NewArena(uint32(o.WriteBufferSize))
	cmp := o.Comparer.Compare
	m := &memTable{
		cmp:     cmp,
		arena:   arena,
		flushed: make(chan struct{}),
		refs:    1,
	}
	m.skl = arenaskl.NewSkiplist(arena, func(a, b []byte) int {
		return base.InternalCompare(cmp, base.DecodeInternalKey(a), base.DecodeInternalKey(b))
	})
	return m
}

func (m *memTable) ref() {
	atomic.AddInt32(&m.refs, 1)
}

// readyForFlush reports whether every writer that had reserved room in this
// (now immutable) memtable has finished applying its batch, i.e. its
// reference count has dropped to zero (§4.F).
func (m *memTable) readyForFlush() bool {
	return atomic.LoadInt32(&m.refs) == 0
}

// unref drops a reference, returning true exactly once (on the last
// release), at which point the caller is responsible for scheduling a
// flush.
func (m *memTable) unref() bool {
	switch v := atomic.AddInt32(&m.refs, -1); {
	case v < 0:
		panic("ldb: memtable reference count went negative")
	case v == 0:
		return true
	default:
		return false
	}
}

// estimatedEntrySize bounds how much arena budget a batch entry needs:
// encoded internal key + value + two varint length prefixes, generously
// rounded.
func estimatedEntrySize(key, value []byte) uint32 {
	return uint32(len(key) + 8 + len(value) + 20)
}

// prepare reserves enough arena space for every entry in b, returning
// arenaskl.ErrArenaFull if the memtable has no room, matching
// DB.makeRoomForWrite's contract: a full error means "rotate the memtable",
// not "fail the write". On success it takes a reference on m, which the
// writer drops with unref once it has applied b.
func (m *memTable) prepare(b *Batch) error {
	var need uint32
	for r := b.iter(); ; {
		kind, key, value, ok := r.next()
		if !ok {
			break
		}
		need += estimatedEntrySize(key, value)
		_ = kind
	}
	if err := m.arena.Reserve(need); err != nil {
		return err
	}
	m.ref()
	return nil
}

// apply inserts every entry of b into the skip list, assigning sequence
// numbers seqNum, seqNum+1, ... in order (§3, §4.E).
func (m *memTable) apply(b *Batch, seqNum uint64) error {
	seq := seqNum
	for r := b.iter(); ; {
		kind, key, value, ok := r.next()
		if !ok {
			break
		}
		ikey := base.MakeInternalKey(key, seq, kind)
		encoded := make([]byte, ikey.Size())
		ikey.Encode(encoded)
		m.skl.Add(encoded, value)
		seq++
	}
	return nil
}

// empty reports whether the memtable holds no entries at all, used by WAL
// replay to skip writing an L0 table for a log file with no records.
func (m *memTable) empty() bool {
	it := m.skl.NewIter()
	it.First()
	return !it.Valid()
}

// get implements the MemTable.get operation (§4.E): Found/Deleted/NotFound
// based on the first entry whose user key matches lookupKey.
func (m *memTable) get(lookupKey base.InternalKey) (value []byte, deleted bool, found bool) {
	it := m.NewIter(nil)
	it.SeekGE(lookupKey.UserKey)
	if !it.Valid() {
		return nil, false, false
	}
	k := it.Key()
	if m.cmp(k.UserKey, lookupKey.UserKey) != 0 {
		return nil, false, false
	}
	if k.Kind() == base.InternalKeyKindDelete {
		return nil, true, true
	}
	return it.Value(), false, true
}

// memTableIter adapts arenaskl.Iterator to internalIterator.
type memTableIter struct {
	it  *arenaskl.Iterator
	key base.InternalKey
}

func (m *memTable) NewIter(o *ReadOptions) internalIterator {
	return &memTableIter{it: m.skl.NewIter()}
}

func (i *memTableIter) sync() {
	if i.it.Valid() {
		i.key = base.DecodeInternalKey(i.it.Key())
	}
}

func (i *memTableIter) SeekGE(key []byte) {
	// arenaskl orders by the raw encoded internal key, so seeking must use a
	// fully encoded search key (max seqnum/kind), not the bare user key.
	ikey := base.MakeSearchKey(key)
	buf := make([]byte, ikey.Size())
	ikey.Encode(buf)
	i.it.SeekGE(buf)
	i.sync()
}

func (i *memTableIter) SeekLT(key []byte) {
	// Reverse iteration over a memtable is not supported: arenaskl.Iterator
	// is forward-only, so this does not position the iterator at the last
	// entry < key.
	i.it.SeekGE(key)
}

func (i *memTableIter) First() {
	i.it.First()
	i.sync()
}

func (i *memTableIter) Last() {
	// Not supported by the forward-only arena skiplist iterator: Last leaves
	// the iterator where it was, and Prev always returns false.
}

func (i *memTableIter) Next() bool {
	ok := i.it.Next()
	if ok {
		i.sync()
	}
	return ok
}

func (i *memTableIter) Prev() bool {
	return false
}

func (i *memTableIter) Key() base.InternalKey { return i.key }
func (i *memTableIter) Value() []byte         { return i.it.Value() }
func (i *memTableIter) Valid() bool           { return i.it.Valid() }
func (i *memTableIter) Error() error          { return nil }
func (i *memTableIter) Close() error          { return nil }
