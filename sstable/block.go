// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package sstable

import (
	"encoding/binary"
	"sort"
	"unsafe"

	"github.com/mkrump/ldb/internal/base"
)

// block is the decoded, decompressed byte region of a single data, index or
// filter block (§3): <entry>* <restarts[]> <restarts_count>.
type block []byte

func uvarintLen(v uint32) int {
	i := 0
	for v >= 0x80 {
		v >>= 7
		i++
	}
	return i + 1
}

// blockWriter accumulates (key, value) pairs in non-decreasing key order,
// emitting a restart point every restartInterval entries (§4.A).
type blockWriter struct {
	restartInterval int
	nEntries        int
	buf             []byte
	restarts        []uint32
	curKey          []byte
	prevKey         []byte
	tmp             [50]byte
}

func (w *blockWriter) store(keySize int, value []byte) {
	shared := 0
	if w.nEntries%w.restartInterval == 0 {
		w.restarts = append(w.restarts, uint32(len(w.buf)))
	} else {
		shared = base.SharedPrefixLen(w.curKey, w.prevKey)
	}

	n := binary.PutUvarint(w.tmp[0:], uint64(shared))
	n += binary.PutUvarint(w.tmp[n:], uint64(keySize-shared))
	n += binary.PutUvarint(w.tmp[n:], uint64(len(value)))
	w.buf = append(w.buf, w.tmp[:n]...)
	w.buf = append(w.buf, w.curKey[shared:]...)
	w.buf = append(w.buf, value...)

	w.nEntries++
}

func (w *blockWriter) add(key base.InternalKey, value []byte) {
	w.curKey, w.prevKey = w.prevKey, w.curKey

	size := key.Size()
	if cap(w.curKey) < size {
		w.curKey = make([]byte, 0, size*2)
	}
	w.curKey = w.curKey[:size]
	key.Encode(w.curKey)

	w.store(size, value)
}

// finish appends the restart point array and count and returns the block's
// byte buffer. Every block must have at least one restart point (§3).
func (w *blockWriter) finish() []byte {
	if w.nEntries == 0 {
		if cap(w.restarts) > 0 {
			w.restarts = w.restarts[:1]
			w.restarts[0] = 0
		} else {
			w.restarts = append(w.restarts, 0)
		}
	}
	tmp4 := w.tmp[:4]
	for _, x := range w.restarts {
		binary.LittleEndian.PutUint32(tmp4, x)
		w.buf = append(w.buf, tmp4...)
	}
	binary.LittleEndian.PutUint32(tmp4, uint32(len(w.restarts)))
	w.buf = append(w.buf, tmp4...)
	return w.buf
}

func (w *blockWriter) reset() {
	w.nEntries = 0
	w.buf = w.buf[:0]
	w.restarts = w.restarts[:0]
}

// estimatedSize lets the table writer decide when to cut a block (§4.C).
func (w *blockWriter) estimatedSize() int {
	return len(w.buf) + 4*(len(w.restarts)+1)
}

type blockEntry struct {
	offset int
	key    []byte
	val    []byte
}

// blockIter is a bidirectional, zero-copy iterator over a single decoded
// block (§4.A). Reverse iteration caches the forward-scanned entries of the
// current restart run so Prev doesn't re-decode from the block start.
type blockIter struct {
	cmp          base.Compare
	offset       int
	nextOffset   int
	restarts     int
	numRestarts  int
	globalSeqNum uint64
	ptr          unsafe.Pointer
	data         []byte
	key, val     []byte
	ikey         base.InternalKey
	cached       []blockEntry
	cachedBuf    []byte
	err          error
}

func newBlockIter(cmp base.Compare, b block) (*blockIter, error) {
	i := &blockIter{}
	return i, i.init(cmp, b, 0)
}

func (i *blockIter) init(cmp base.Compare, b block, globalSeqNum uint64) error {
	if len(b) < 4 {
		return base.CorruptionErrorf("sstable: truncated block")
	}
	numRestarts := int(binary.LittleEndian.Uint32(b[len(b)-4:]))
	if numRestarts == 0 {
		return base.CorruptionErrorf("sstable: invalid table (block has no restart points)")
	}
	i.cmp = cmp
	i.restarts = len(b) - 4*(1+numRestarts)
	if i.restarts < 0 {
		return base.CorruptionErrorf("sstable: invalid table (restart offset past end)")
	}
	i.numRestarts = numRestarts
	i.globalSeqNum = globalSeqNum
	i.ptr = unsafe.Pointer(&b[0])
	i.data = b
	if i.key == nil {
		i.key = make([]byte, 0, 256)
	} else {
		i.key = i.key[:0]
	}
	i.val = nil
	i.clearCache()
	return nil
}

func (i *blockIter) readEntry() {
	ptr := unsafe.Pointer(uintptr(i.ptr) + uintptr(i.offset))
	shared, ptr := decodeVarint(ptr)
	unshared, ptr := decodeVarint(ptr)
	value, ptr := decodeVarint(ptr)
	i.key = append(i.key[:shared], getBytes(ptr, int(unshared))...)
	i.key = i.key[:len(i.key):len(i.key)]
	ptr = unsafe.Pointer(uintptr(ptr) + uintptr(unshared))
	i.val = getBytes(ptr, int(value))
	i.nextOffset = int(uintptr(ptr)-uintptr(i.ptr)) + int(value)
}

func (i *blockIter) decodeInternalKey() {
	i.ikey = base.DecodeInternalKey(i.key)
	if i.globalSeqNum != 0 {
		i.ikey.SetSeqNum(i.globalSeqNum)
	}
}

func (i *blockIter) loadEntry() {
	i.readEntry()
	i.decodeInternalKey()
}

func (i *blockIter) clearCache() {
	i.cached = i.cached[:0]
	i.cachedBuf = i.cachedBuf[:0]
}

func (i *blockIter) cacheEntry() {
	i.cachedBuf = append(i.cachedBuf, i.key...)
	i.cached = append(i.cached, blockEntry{
		offset: i.offset,
		key:    i.cachedBuf[len(i.cachedBuf)-len(i.key) : len(i.cachedBuf) : len(i.cachedBuf)],
		val:    i.val,
	})
}

// SeekGE positions the iterator at the first key >= key.
func (i *blockIter) SeekGE(key []byte) {
	ikey := base.MakeSearchKey(key)

	i.offset = 0
	index := sort.Search(i.numRestarts, func(j int) bool {
		offset := int(binary.LittleEndian.Uint32(i.data[i.restarts+4*j:]))
		ptr := unsafe.Pointer(uintptr(i.ptr) + uintptr(offset+1))
		v1, ptr := decodeVarint(ptr)
		_, ptr = decodeVarint(ptr)
		s := getBytes(ptr, int(v1))
		return base.InternalCompare(i.cmp, ikey, base.DecodeInternalKey(s)) < 0
	})

	if index > 0 {
		i.offset = int(binary.LittleEndian.Uint32(i.data[i.restarts+4*(index-1):]))
	}
	i.loadEntry()

	for ; i.Valid(); i.Next() {
		if base.InternalCompare(i.cmp, i.ikey, ikey) >= 0 {
			break
		}
	}
}

// SeekLT positions the iterator at the last key < key.
func (i *blockIter) SeekLT(key []byte) {
	ikey := base.MakeSearchKey(key)

	i.offset = 0
	index := sort.Search(i.numRestarts, func(j int) bool {
		offset := int(binary.LittleEndian.Uint32(i.data[i.restarts+4*j:]))
		ptr := unsafe.Pointer(uintptr(i.ptr) + uintptr(offset+1))
		v1, ptr := decodeVarint(ptr)
		_, ptr = decodeVarint(ptr)
		s := getBytes(ptr, int(v1))
		return base.InternalCompare(i.cmp, ikey, base.DecodeInternalKey(s)) <= 0
	})

	if index > 0 {
		i.offset = int(binary.LittleEndian.Uint32(i.data[i.restarts+4*(index-1):]))
	} else {
		i.offset = -1
		i.nextOffset = 0
		return
	}

	i.clearCache()
	i.nextOffset = i.offset

	for {
		i.offset = i.nextOffset
		i.readEntry()
		i.decodeInternalKey()

		if base.InternalCompare(i.cmp, i.ikey, ikey) >= 0 {
			i.Prev()
			return
		}

		i.cacheEntry()
		if i.nextOffset >= i.restarts {
			break
		}
	}
}

// First positions the iterator at the first key in the block.
func (i *blockIter) First() {
	i.offset = 0
	i.loadEntry()
}

// Last positions the iterator at the last key in the block.
func (i *blockIter) Last() {
	i.offset = int(binary.LittleEndian.Uint32(i.data[i.restarts+4*(i.numRestarts-1):]))

	i.readEntry()
	i.clearCache()
	i.cacheEntry()

	for i.nextOffset < i.restarts {
		i.offset = i.nextOffset
		i.readEntry()
		i.cacheEntry()
	}

	i.decodeInternalKey()
}

// Next advances to the following entry, returning false at the block's end.
func (i *blockIter) Next() bool {
	i.offset = i.nextOffset
	if !i.Valid() {
		return false
	}
	i.loadEntry()
	return true
}

// Prev moves to the preceding entry, returning false if already at the
// first entry.
func (i *blockIter) Prev() bool {
	if n := len(i.cached) - 1; n > 0 && i.cached[n].offset == i.offset {
		i.nextOffset = i.offset
		e := &i.cached[n-1]
		i.offset = e.offset
		i.key = e.key
		i.val = e.val
		i.decodeInternalKey()
		i.cached = i.cached[:n]
		return true
	}

	if i.offset == 0 {
		i.offset = -1
		i.nextOffset = 0
		return false
	}

	targetOffset := i.offset
	index := sort.Search(i.numRestarts, func(j int) bool {
		offset := int(binary.LittleEndian.Uint32(i.data[i.restarts+4*j:]))
		return offset >= targetOffset
	})
	i.offset = 0
	if index > 0 {
		i.offset = int(binary.LittleEndian.Uint32(i.data[i.restarts+4*(index-1):]))
	}

	i.readEntry()
	i.clearCache()
	i.cacheEntry()

	for i.nextOffset < targetOffset {
		i.offset = i.nextOffset
		i.readEntry()
		i.cacheEntry()
	}

	i.decodeInternalKey()
	return true
}

// Key returns the current internal key. Valid only when Valid() is true.
func (i *blockIter) Key() base.InternalKey {
	return i.ikey
}

// Value returns the current value.
func (i *blockIter) Value() []byte {
	return i.val
}

// Valid reports whether the iterator is positioned at an entry.
func (i *blockIter) Valid() bool {
	return i.offset >= 0 && i.offset < i.restarts
}

// Error returns any error encountered during iteration.
func (i *blockIter) Error() error {
	return i.err
}

// Close releases the iterator's resources.
func (i *blockIter) Close() error {
	i.val = nil
	return i.err
}
