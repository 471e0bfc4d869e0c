// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package sstable

import (
	"hash/crc32"
	"io"

	"github.com/golang/snappy"
	"github.com/mkrump/ldb/internal/base"
)

// CompressionType selects the block compression codec (§3's block trailer
// tag); Snappy is the default per Options.Compression.
type CompressionType uint8

const (
	NoCompression CompressionType = 0
	SnappyCompression CompressionType = 1
)

const trailerLen = 5 // 1-byte compression tag + 4-byte masked CRC-32C

func maskBlockCRC(crc uint32) uint32 {
	return ((crc >> 15) | (crc << 17)) + 0xa282ead8
}

// WriterOptions configures a table Writer; Options.blockSize etc. in the
// root package are translated into this smaller struct so sstable has no
// dependency on the root package's Options type.
type WriterOptions struct {
	Compare            base.Compare
	BlockSize          int
	BlockRestartInterval int
	Compression        CompressionType
	FilterPolicy       FilterPolicy
}

func (o *WriterOptions) ensureDefaults() {
	if o.Compare == nil {
		o.Compare = base.DefaultCompare
	}
	if o.BlockSize <= 0 {
		o.BlockSize = 4096
	}
	if o.BlockRestartInterval <= 0 {
		o.BlockRestartInterval = 16
	}
}

type indexEntry struct {
	sep    []byte
	handle blockHandle
}

// Writer assembles data blocks, an optional filter block, the metaindex
// block, the index block and the footer into a single table (§4.C).
type Writer struct {
	writer  countingWriter
	opts    WriterOptions
	cmp     base.Compare
	dataBW  blockWriter
	indexBW blockWriter
	filter  *filterWriter

	pending    indexEntry
	hasPending bool

	lastKey base.InternalKey
	closed  bool
	err     error

	tmp [50]byte
}

type countingWriter struct {
	w      io.Writer
	offset uint64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.offset += uint64(n)
	return n, err
}

// NewWriter returns a Writer appending a new table to w.
func NewWriter(w io.Writer, opts WriterOptions) *Writer {
	opts.ensureDefaults()
	tw := &Writer{
		writer: countingWriter{w: w},
		opts:   opts,
		cmp:    opts.Compare,
	}
	tw.dataBW.restartInterval = opts.BlockRestartInterval
	tw.indexBW.restartInterval = 1
	if opts.FilterPolicy != nil {
		tw.filter = newFilterWriter(opts.FilterPolicy)
	}
	return tw
}

// Add appends a (key, value) pair. Keys must be added in non-decreasing
// internal-key order.
func (w *Writer) Add(key base.InternalKey, value []byte) error {
	if w.err != nil {
		return w.err
	}
	if w.filter != nil {
		w.filter.addKey(key.UserKey)
	}
	if err := w.flushPendingIndexEntry(key.UserKey); err != nil {
		return err
	}

	w.dataBW.add(key, value)
	w.lastKey = key.Clone()

	if w.dataBW.estimatedSize() >= w.opts.BlockSize {
		if err := w.finishDataBlock(); err != nil {
			return err
		}
	}
	return nil
}

// flushPendingIndexEntry emits the deferred index entry for the previous
// block, now that nextKey (the first key of the following block) is known,
// using the shortest separator between the two (§4.C).
func (w *Writer) flushPendingIndexEntry(nextKey []byte) error {
	if !w.hasPending {
		return nil
	}
	sep := base.Separator(w.cmp, nil, w.pending.sep, nextKey)
	w.addIndexEntry(sep, w.pending.handle)
	w.hasPending = false
	return nil
}

func (w *Writer) addIndexEntry(sep []byte, h blockHandle) {
	var buf [2 * maxVarintLenU64]byte
	n := h.encode(buf[:])
	ikey := base.MakeSearchKey(sep)
	w.indexBW.add(ikey, buf[:n])
}

func (w *Writer) finishDataBlock() error {
	h, err := w.writeBlock(w.dataBW.finish())
	if err != nil {
		return err
	}
	w.dataBW.reset()
	if w.filter != nil {
		w.filter.finishBlock(w.writer.offset)
	}
	w.pending = indexEntry{sep: append([]byte(nil), w.lastKey.UserKey...), handle: h}
	w.hasPending = true
	return nil
}

// writeBlock compresses contents (if snappy would shrink it by at least
// 1/8), appends the 5-byte trailer, and writes both to the file (§3, §4.C).
func (w *Writer) writeBlock(contents []byte) (blockHandle, error) {
	compression := w.opts.Compression
	blockType := byte(NoCompression)
	if compression == SnappyCompression {
		compressed := snappy.Encode(nil, contents)
		if len(compressed) < len(contents)-len(contents)/8 {
			contents = compressed
			blockType = byte(SnappyCompression)
		}
	}

	handle := blockHandle{offset: w.writer.offset, length: uint64(len(contents))}

	var trailer [trailerLen]byte
	trailer[0] = blockType
	crc := crc32.Checksum(contents, crc32.MakeTable(crc32.Castagnoli))
	crc = crc32.Update(crc, crc32.MakeTable(crc32.Castagnoli), trailer[:1])
	putUint32LE(trailer[1:5], maskBlockCRC(crc))

	if _, err := w.writer.Write(contents); err != nil {
		return blockHandle{}, err
	}
	if _, err := w.writer.Write(trailer[:]); err != nil {
		return blockHandle{}, err
	}
	return handle, nil
}

func putUint32LE(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

// Finish flushes the final data block, the filter block, the metaindex
// block, the index block and the footer (§4.C).
func (w *Writer) Finish() error {
	if w.err != nil {
		return w.err
	}
	if w.closed {
		return base.InvalidArgumentf("sstable: writer already closed")
	}
	w.closed = true

	if w.dataBW.nEntries > 0 {
		if err := w.finishDataBlock(); err != nil {
			return err
		}
	}
	if w.hasPending {
		succ := base.Successor(w.cmp, nil, w.pending.sep)
		w.addIndexEntry(succ, w.pending.handle)
		w.hasPending = false
	}

	var metaIndexBW blockWriter
	metaIndexBW.restartInterval = 1
	var filterHandle blockHandle
	haveFilter := false
	if w.filter != nil {
		data := w.filter.finish()
		h, err := w.writeBlock(data)
		if err != nil {
			return err
		}
		filterHandle = h
		haveFilter = true
	}
	if haveFilter {
		var buf [2 * maxVarintLenU64]byte
		n := filterHandle.encode(buf[:])
		name := "filter." + w.opts.FilterPolicy.Name()
		metaIndexBW.add(base.MakeSearchKey([]byte(name)), buf[:n])
	}
	metaIndexHandle, err := w.writeBlock(metaIndexBW.finish())
	if err != nil {
		return err
	}

	indexHandle, err := w.writeBlock(w.indexBW.finish())
	if err != nil {
		return err
	}

	f := footer{metaIndexHandle: metaIndexHandle, indexHandle: indexHandle}
	if _, err := w.writer.Write(f.encode()); err != nil {
		return err
	}
	return nil
}

// Close finishes the table if it has not been finished already, and closes
// the underlying file if it implements io.Closer.
func (w *Writer) Close() error {
	var err error
	if !w.closed {
		err = w.Finish()
	}
	if c, ok := w.writer.w.(io.Closer); ok {
		if cerr := c.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// Size returns the number of bytes written to the table so far.
func (w *Writer) Size() (int64, error) {
	return int64(w.writer.offset), nil
}
