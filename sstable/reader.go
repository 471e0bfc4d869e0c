// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package sstable

import (
	"fmt"
	"hash/crc32"
	"io"

	"github.com/golang/snappy"
	"github.com/mkrump/ldb/internal/base"
)

// ReaderOptions configures a table Reader.
type ReaderOptions struct {
	Compare         base.Compare
	FilterPolicy    FilterPolicy
	VerifyChecksums bool
}

func (o *ReaderOptions) ensureDefaults() {
	if o.Compare == nil {
		o.Compare = base.DefaultCompare
	}
}

// Reader opens a table for point lookups and iteration (§4.C).
type Reader struct {
	file   io.ReaderAt
	size   int64
	opts   ReaderOptions
	index  block
	filter *filterReader
}

// NewReader opens a table occupying size bytes of file.
func NewReader(file io.ReaderAt, size int64, opts ReaderOptions) (*Reader, error) {
	opts.ensureDefaults()
	if size < footerLen {
		return nil, base.CorruptionErrorf("sstable: file too small to be a table")
	}
	footerBuf := make([]byte, footerLen)
	if _, err := file.ReadAt(footerBuf, size-footerLen); err != nil {
		return nil, base.IOErrorf("sstable: reading footer: %w", err)
	}
	f, err := decodeFooter(footerBuf)
	if err != nil {
		return nil, err
	}

	r := &Reader{file: file, size: size, opts: opts}

	indexBlock, err := r.readBlock(f.indexHandle)
	if err != nil {
		return nil, base.CorruptionErrorf("sstable: reading index block: %w", err)
	}
	r.index = indexBlock

	metaIndexBlock, err := r.readBlock(f.metaIndexHandle)
	if err != nil {
		return nil, base.CorruptionErrorf("sstable: reading metaindex block: %w", err)
	}
	if opts.FilterPolicy != nil {
		if h, ok := findMetaBlock(r.opts.Compare, metaIndexBlock, "filter."+opts.FilterPolicy.Name()); ok {
			filterBlock, err := r.readBlock(h)
			if err != nil {
				return nil, base.CorruptionErrorf("sstable: reading filter block: %w", err)
			}
			fr, err := newFilterReader(opts.FilterPolicy, filterBlock)
			if err != nil {
				return nil, err
			}
			r.filter = fr
		}
	}
	return r, nil
}

// findMetaBlock looks up name ("filter.<policy name>") in the decoded
// metaindex block.
func findMetaBlock(cmp base.Compare, metaIndex block, name string) (blockHandle, bool) {
	it, err := newBlockIter(cmp, metaIndex)
	if err != nil {
		return blockHandle{}, false
	}
	it.SeekGE([]byte(name))
	if !it.Valid() || string(it.Key().UserKey) != name {
		return blockHandle{}, false
	}
	h, _, err := decodeBlockHandle(it.Value())
	if err != nil {
		return blockHandle{}, false
	}
	return h, true
}

// readBlock reads, checksums and decompresses the block at h (§4.C): a CRC
// mismatch is Corruption, a short read is IOError (a bad footer magic is
// reported by decodeFooter, not here), and
// corruption of one block never prevents decoding its neighbours.
func (r *Reader) readBlock(h blockHandle) (block, error) {
	buf := make([]byte, h.length+trailerLen)
	if _, err := r.file.ReadAt(buf, int64(h.offset)); err != nil {
		return nil, base.IOErrorf("sstable: short read of block at offset %d: %w", h.offset, err)
	}
	data := buf[:h.length]
	trailer := buf[h.length:]

	if r.opts.VerifyChecksums {
		gotCRC := crc32.Checksum(data, crc32.MakeTable(crc32.Castagnoli))
		gotCRC = crc32.Update(gotCRC, crc32.MakeTable(crc32.Castagnoli), trailer[:1])
		wantCRC := unmaskBlockCRC(leUint32(trailer[1:5]))
		if gotCRC != wantCRC {
			return nil, base.CorruptionErrorf("sstable: checksum mismatch")
		}
	}

	switch CompressionType(trailer[0]) {
	case NoCompression:
		return block(data), nil
	case SnappyCompression:
		decoded, err := snappy.Decode(nil, data)
		if err != nil {
			return nil, base.CorruptionErrorf("sstable: corrupt snappy block: %w", err)
		}
		return block(decoded), nil
	default:
		return nil, base.CorruptionErrorf("sstable: unknown block compression type %d", trailer[0])
	}
}

func unmaskBlockCRC(masked uint32) uint32 {
	rot := masked - 0xa282ead8
	return (rot << 15) | (rot >> 17)
}

func leUint32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

// Get returns the value for the first entry whose user key equals key and
// whose kind is Set; a Delete entry for the same key reports NotFound
// (§4.C).
func (r *Reader) Get(key []byte) ([]byte, error) {
	if r.filter != nil {
		indexIter, err := newBlockIter(r.opts.Compare, r.index)
		if err != nil {
			return nil, err
		}
		indexIter.SeekGE(key)
		if !indexIter.Valid() {
			return nil, base.ErrNotFound
		}
		h, _, err := decodeBlockHandle(indexIter.Value())
		if err != nil {
			return nil, base.CorruptionErrorf("sstable: invalid index entry: %w", err)
		}
		if !r.filter.mayContain(h.offset, key) {
			return nil, base.ErrNotFound
		}
	}

	it, err := r.NewIter()
	if err != nil {
		return nil, err
	}
	defer it.Close()
	it.SeekGE(key)
	if !it.Valid() || r.opts.Compare(it.Key().UserKey, key) != 0 {
		if err := it.Error(); err != nil {
			return nil, err
		}
		return nil, base.ErrNotFound
	}
	if it.Key().Kind() == base.InternalKeyKindDelete {
		return nil, base.ErrNotFound
	}
	val := it.Value()
	out := make([]byte, len(val))
	copy(out, val)
	return out, nil
}

// Dump writes one line per entry in the table to w: its internal key kind,
// sequence number, and the length of its value (§4.K's `ldbtool sstable
// dump`). It is a debugging aid, not part of the read path.
func (r *Reader) Dump(w io.Writer) error {
	it, err := r.NewIter()
	if err != nil {
		return err
	}
	defer it.Close()

	fmt.Fprintf(w, "table: %d bytes, has-filter=%t\n", r.size, r.filter != nil)
	count := 0
	for it.First(); it.Valid(); it.Next() {
		k := it.Key()
		fmt.Fprintf(w, "  %s#%d,%s: %d byte value\n", k.UserKey, k.SeqNum(), k.Kind(), len(it.Value()))
		count++
	}
	fmt.Fprintf(w, "%d entries\n", count)
	return it.Error()
}

// Iterator is a two-level iterator composed of the index block iterator and
// a lazily created data block iterator (§4.C). Its method set mirrors
// blockIter's so it can be composed directly into the root package's
// merging iterator alongside memtable and batch iterators.
type Iterator struct {
	r         *Reader
	indexIter *blockIter
	dataIter  *blockIter
	err       error
}

// NewIter returns an unpositioned Iterator.
func (r *Reader) NewIter() (*Iterator, error) {
	indexIter, err := newBlockIter(r.opts.Compare, r.index)
	if err != nil {
		return nil, err
	}
	return &Iterator{r: r, indexIter: indexIter}, nil
}

func (i *Iterator) loadDataBlock() bool {
	if !i.indexIter.Valid() {
		i.dataIter = nil
		return false
	}
	h, _, err := decodeBlockHandle(i.indexIter.Value())
	if err != nil {
		i.err = base.CorruptionErrorf("sstable: invalid index entry: %w", err)
		i.dataIter = nil
		return false
	}
	data, err := i.r.readBlock(h)
	if err != nil {
		i.err = err
		i.dataIter = nil
		return false
	}
	di, err := newBlockIter(i.r.opts.Compare, data)
	if err != nil {
		i.err = err
		i.dataIter = nil
		return false
	}
	i.dataIter = di
	return true
}

// skipForward advances to the next non-empty data block once the current
// one is exhausted, used after SeekGE/First/Next run off the end of a
// block.
func (i *Iterator) skipForward() {
	for !i.dataIter.Valid() {
		if i.err != nil || !i.indexIter.Next() || !i.loadDataBlock() {
			i.dataIter = nil
			return
		}
		i.dataIter.First()
	}
}

// SeekGE positions at the first key >= key.
func (i *Iterator) SeekGE(key []byte) {
	i.indexIter.SeekGE(key)
	if !i.loadDataBlock() {
		return
	}
	i.dataIter.SeekGE(key)
	i.skipForward()
}

// First positions at the first key in the table.
func (i *Iterator) First() {
	i.indexIter.First()
	if !i.loadDataBlock() {
		return
	}
	i.dataIter.First()
	i.skipForward()
}

// Next advances the iterator, crossing into the next data block as needed.
// It returns false once the table is exhausted.
func (i *Iterator) Next() bool {
	if i.dataIter == nil {
		return false
	}
	if i.dataIter.Next() {
		return true
	}
	i.skipForward()
	return i.dataIter != nil
}

func (i *Iterator) skipBackward() {
	for !i.dataIter.Valid() {
		if i.err != nil || !i.indexIter.Prev() || !i.loadDataBlock() {
			i.dataIter = nil
			return
		}
		i.dataIter.Last()
	}
}

// SeekLT positions at the last key < key.
func (i *Iterator) SeekLT(key []byte) {
	i.indexIter.SeekGE(key)
	if !i.indexIter.Valid() {
		i.indexIter.Last()
	}
	if !i.loadDataBlock() {
		return
	}
	i.dataIter.SeekLT(key)
	i.skipBackward()
}

// Last positions at the last key in the table.
func (i *Iterator) Last() {
	i.indexIter.Last()
	if !i.loadDataBlock() {
		return
	}
	i.dataIter.Last()
	i.skipBackward()
}

// Prev moves to the preceding entry.
func (i *Iterator) Prev() bool {
	if i.dataIter == nil {
		return false
	}
	if i.dataIter.Prev() {
		return true
	}
	i.skipBackward()
	return i.dataIter != nil
}

// Key returns the current internal key. Valid only when Valid() is true.
func (i *Iterator) Key() base.InternalKey {
	return i.dataIter.Key()
}

// Value returns the current value.
func (i *Iterator) Value() []byte {
	return i.dataIter.Value()
}

// Valid reports whether the iterator is positioned at an entry.
func (i *Iterator) Valid() bool {
	return i.dataIter != nil && i.dataIter.Valid()
}

// Error returns any error encountered during iteration.
func (i *Iterator) Error() error {
	if i.err != nil {
		return i.err
	}
	if i.dataIter != nil {
		return i.dataIter.Error()
	}
	return nil
}

// Close releases the iterator's resources.
func (i *Iterator) Close() error {
	if i.dataIter != nil {
		return i.dataIter.Close()
	}
	return nil
}
