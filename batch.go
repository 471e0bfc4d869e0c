// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package ldb

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/mkrump/ldb/internal/arenaskl"
	"github.com/mkrump/ldb/internal/base"
)

// batchHeaderLen is the size of a Batch's header: seqNum:u64 || count:u32,
// the wire format SPEC_FULL.md's Batch section describes.
const batchHeaderLen = 12

// Batch is a sequence of Set/Delete/Merge operations applied atomically by
// DB.Apply (§1 "atomic multi-write batches"). Its wire format is exactly
// what gets appended to the WAL as a single record (§4.F, §4.I).
type Batch struct {
	db  *DB
	cmp base.Compare
	data []byte

	// index, if non-nil, lets NewIndexedBatch callers read their own
	// uncommitted writes before Apply.
	index *arenaskl.Skiplist
}

func newBatch(db *DB) *Batch {
	b := &Batch{db: db}
	if db != nil {
		b.cmp = db.cmp
	}
	b.data = make([]byte, batchHeaderLen)
	return b
}

func newIndexedBatch(db *DB, comparer *base.Comparer) *Batch {
	b := newBatch(db)
	cmp := comparer.Compare
	b.index = arenaskl.NewSkiplist(arenaskl.NewArena(1<<30), func(a, c []byte) int {
		return base.InternalCompare(cmp, base.DecodeInternalKey(a), base.DecodeInternalKey(c))
	})
	return b
}

// release returns the batch to its zero-ish state; the teacher recycles
// these in a sync.Pool, which this module skips for clarity.
func (b *Batch) release() {}

func (b *Batch) seqNum() uint64 {
	return binary.LittleEndian.Uint64(b.data[0:8])
}

func (b *Batch) setSeqNum(seq uint64) {
	binary.LittleEndian.PutUint64(b.data[0:8], seq)
}

// count returns the number of records in the batch.
func (b *Batch) count() uint32 {
	return binary.LittleEndian.Uint32(b.data[8:12])
}

func (b *Batch) setCount(n uint32) {
	binary.LittleEndian.PutUint32(b.data[8:12], n)
}

func appendVarstring(buf, s []byte) []byte {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], uint64(len(s)))
	buf = append(buf, tmp[:n]...)
	buf = append(buf, s...)
	return buf
}

func decodeVarstring(b []byte) (s, rest []byte) {
	n, m := binary.Uvarint(b)
	return b[m : m+int(n)], b[m+int(n):]
}

func (b *Batch) appendRecord(kind base.InternalKeyKind, key, value []byte) {
	b.data = append(b.data, byte(kind))
	b.data = appendVarstring(b.data, key)
	if kind == base.InternalKeyKindSet || kind == base.InternalKeyKindMerge {
		b.data = appendVarstring(b.data, value)
	}
	b.setCount(b.count() + 1)

	if b.index != nil {
		ikey := base.MakeInternalKey(key, 0, kind)
		encoded := make([]byte, ikey.Size())
		ikey.Encode(encoded)
		b.index.Add(encoded, value)
	}
}

// Set appends a Set record.
func (b *Batch) Set(key, value []byte, _ *WriteOptions) error {
	b.appendRecord(base.InternalKeyKindSet, key, value)
	return nil
}

// Delete appends a Delete record.
func (b *Batch) Delete(key []byte, _ *WriteOptions) error {
	b.appendRecord(base.InternalKeyKindDelete, key, nil)
	return nil
}

// Merge appends a Merge record, to be resolved by Options.Merger at read
// time.
func (b *Batch) Merge(key, value []byte, _ *WriteOptions) error {
	b.appendRecord(base.InternalKeyKindMerge, key, value)
	return nil
}

// DeleteRange is part of the Writer interface the teacher's DB exposes, but
// range tombstones are outside this engine's CORE (§1 names only point
// writes, MemTable/WAL and compaction) so it reports NotSupported rather
// than silently doing a partial job.
func (b *Batch) DeleteRange(start, end []byte, _ *WriteOptions) error {
	return errors.Mark(errors.New("ldb: DeleteRange is not supported by this engine"), base.ErrNotSupported)
}

// DumpBatch writes one line per record in the wire-format batch data (a WAL
// record's payload) to w: its kind, key and value length (§4.K's `ldbtool
// wal dump`). data must include the 12-byte header.
func DumpBatch(data []byte, w io.Writer) error {
	if len(data) < batchHeaderLen {
		return base.CorruptionErrorf("ldb: batch shorter than its header")
	}
	seqNum := binary.LittleEndian.Uint64(data[0:8])
	count := binary.LittleEndian.Uint32(data[8:12])
	fmt.Fprintf(w, "seq=%d count=%d\n", seqNum, count)

	r := batchReader{data: data[batchHeaderLen:]}
	for {
		kind, key, value, ok := r.next()
		if !ok {
			break
		}
		fmt.Fprintf(w, "  %s(%s", kind, key)
		if kind == base.InternalKeyKindSet || kind == base.InternalKeyKindMerge {
			fmt.Fprintf(w, ",%d bytes", len(value))
		}
		fmt.Fprintf(w, ")\n")
	}
	return nil
}

// batchReader decodes the records appended after the header.
type batchReader struct {
	data []byte
}

func (b *Batch) iter() batchReader {
	return batchReader{data: b.data[batchHeaderLen:]}
}

func (r *batchReader) next() (kind base.InternalKeyKind, key, value []byte, ok bool) {
	if len(r.data) == 0 {
		return 0, nil, nil, false
	}
	kind = base.InternalKeyKind(r.data[0])
	r.data = r.data[1:]
	key, r.data = decodeVarstring(r.data)
	if kind == base.InternalKeyKindSet || kind == base.InternalKeyKindMerge {
		value, r.data = decodeVarstring(r.data)
	}
	return kind, key, value, true
}

// batchIter lets an indexed batch's pending writes participate in
// DB.newIterInternal as an extra, newest level (teacher's batchIter
// parameter).
type batchIter struct {
	it  *arenaskl.Iterator
	key base.InternalKey
}

// NewIter returns an iterator over this batch's own pending writes. It is
// only meaningful for indexed batches (see NewIndexedBatch); a plain batch
// returns an always-invalid iterator.
func (b *Batch) NewIter() internalIterator {
	if b.index == nil {
		return &batchIter{}
	}
	return &batchIter{it: b.index.NewIter()}
}

func (i *batchIter) sync() {
	if i.it != nil && i.it.Valid() {
		i.key = base.DecodeInternalKey(i.it.Key())
	}
}

func (i *batchIter) SeekGE(key []byte) {
	if i.it == nil {
		return
	}
	ikey := base.MakeInternalKey(key, 0, base.InternalKeyKindMax)
	buf := make([]byte, ikey.Size())
	ikey.Encode(buf)
	i.it.SeekGE(buf)
	i.sync()
}

func (i *batchIter) SeekLT(key []byte) {}

func (i *batchIter) First() {
	if i.it == nil {
		return
	}
	i.it.First()
	i.sync()
}

func (i *batchIter) Last() {}

func (i *batchIter) Next() bool {
	if i.it == nil {
		return false
	}
	ok := i.it.Next()
	if ok {
		i.sync()
	}
	return ok
}

func (i *batchIter) Prev() bool { return false }

func (i *batchIter) Key() base.InternalKey { return i.key }
func (i *batchIter) Value() []byte {
	if i.it == nil {
		return nil
	}
	return i.it.Value()
}
func (i *batchIter) Valid() bool { return i.it != nil && i.it.Valid() }
func (i *batchIter) Error() error { return nil }
func (i *batchIter) Close() error { return nil }
