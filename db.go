// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package ldb provides an embedded, ordered key/value store built as an
// LSM-tree: a sorted in-memory memtable backed by a write-ahead log, and a
// set of leveled, periodically compacted sstables on disk (§1, §2).
package ldb

import (
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mkrump/ldb/internal/arenaskl"
	"github.com/mkrump/ldb/internal/base"
	"github.com/mkrump/ldb/internal/record"
	"github.com/mkrump/ldb/internal/storage"
	"github.com/mkrump/ldb/sstable"
)

// Reader is a readable key/value store.
//
// It is safe to call Get and NewIter from concurrent goroutines.
type Reader interface {
	Get(key []byte) (value []byte, err error)
	NewIter(o *ReadOptions) *Iterator
	Close() error
}

// Writer is a writable key/value store. Goroutine safety is dependent on
// the specific implementation; *DB's methods are all safe for concurrent
// use.
type Writer interface {
	Apply(batch *Batch, o *WriteOptions) error
	Delete(key []byte, o *WriteOptions) error
	DeleteRange(start, end []byte, o *WriteOptions) error
	Merge(key, value []byte, o *WriteOptions) error
	Set(key, value []byte, o *WriteOptions) error
}

// DB provides a concurrent, persistent ordered key/value store (§1, §2).
type DB struct {
	dirname string
	opts    *Options
	cmp     base.Compare
	merger  *base.Merger

	tableCache *tableCache
	newIter    tableNewIter

	commit   *commitPipeline
	fileLock io.Closer
	eventLog *eventLogger

	commitController  *controller
	compactController *controller
	flushController   *controller

	metrics    dbMetrics
	prometheus *prometheusMetrics

	mu struct {
		sync.Mutex

		closed bool

		versions versionSet

		log struct {
			number uint64
			*record.LogWriter
		}

		mem struct {
			cond      sync.Cond
			mutable   *memTable
			queue     []*memTable
			switching bool
		}

		compact struct {
			cond           sync.Cond
			flushing       bool
			compacting     bool
			pendingOutputs map[uint64]struct{}
		}
	}
}

var _ Reader = (*DB)(nil)
var _ Writer = (*DB)(nil)

// internalGet scans a single internalIterator, already positioned via
// SeekGE, for lookupKey's user key, reporting whether the search is
// conclusive (found Set/Delete at or below lookupKey's seqNum) so the
// caller can stop checking older memtables/levels (§4.C, §4.E).
func internalGet(iter internalIterator, cmp base.Compare, lookupKey base.InternalKey) (value []byte, conclusive bool, err error) {
	for iter.Valid() {
		k := iter.Key()
		if cmp(k.UserKey, lookupKey.UserKey) != 0 {
			return nil, false, nil
		}
		if k.SeqNum() <= lookupKey.SeqNum() {
			if k.Kind() == base.InternalKeyKindDelete {
				return nil, true, base.ErrNotFound
			}
			val := append([]byte(nil), iter.Value()...)
			return val, true, nil
		}
		iter.Next()
	}
	return nil, false, iter.Error()
}

// Get gets the value for the given key. It returns ErrNotFound if the DB
// does not contain the key (§4.C).
//
// The caller should not modify the contents of the returned slice, but it
// is safe to modify the contents of the argument after Get returns.
func (d *DB) Get(key []byte) ([]byte, error) {
	d.mu.Lock()
	snapshot := atomic.LoadUint64(&d.mu.versions.visibleSeqNum)
	current := d.mu.versions.currentVersion()
	current.ref()
	defer current.unref()
	memtables := d.mu.mem.queue
	d.mu.Unlock()

	ikey := base.MakeSearchKey(key)
	ikey.SetSeqNum(snapshot)

	for i := len(memtables) - 1; i >= 0; i-- {
		iter := memtables[i].NewIter(nil)
		iter.SeekGE(key)
		value, conclusive, err := internalGet(iter, d.cmp, ikey)
		if conclusive {
			return value, err
		}
	}

	return current.get(ikey, d.newIter, d.cmp, nil)
}

// Set sets the value for the given key, overwriting any previous value.
func (d *DB) Set(key, value []byte, opts *WriteOptions) error {
	b := newBatch(d)
	defer b.release()
	_ = b.Set(key, value, opts)
	return d.Apply(b, opts)
}

// Delete deletes the value for the given key. Deletes are blind and succeed
// even if the key does not exist.
func (d *DB) Delete(key []byte, opts *WriteOptions) error {
	b := newBatch(d)
	defer b.release()
	_ = b.Delete(key, opts)
	return d.Apply(b, opts)
}

// DeleteRange deletes the keys in [start, end). This engine does not
// implement range tombstones (see batch.go); it always returns an error.
func (d *DB) DeleteRange(start, end []byte, opts *WriteOptions) error {
	b := newBatch(d)
	defer b.release()
	if err := b.DeleteRange(start, end, opts); err != nil {
		return err
	}
	return d.Apply(b, opts)
}

// Merge adds an action to the DB that merges value into key via
// Options.Merger.
func (d *DB) Merge(key, value []byte, opts *WriteOptions) error {
	b := newBatch(d)
	defer b.release()
	_ = b.Merge(key, value, opts)
	return d.Apply(b, opts)
}

// Apply applies the operations in batch to the DB atomically (§1, §4.I).
func (d *DB) Apply(batch *Batch, opts *WriteOptions) error {
	return d.commit.Commit(batch, opts.GetSync())
}

func (d *DB) commitApply(b *Batch, mem *memTable) error {
	if err := mem.apply(b, b.seqNum()); err != nil {
		return err
	}
	if mem.unref() {
		d.mu.Lock()
		d.maybeScheduleFlush()
		d.mu.Unlock()
	}
	return nil
}

func (d *DB) commitSync() error {
	d.mu.Lock()
	log := d.mu.log.LogWriter
	d.mu.Unlock()
	return log.Sync()
}

func (d *DB) commitWrite(b *Batch) (*memTable, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.throttleWrite()

	if err := d.makeRoomForWrite(b); err != nil {
		return nil, err
	}

	if _, err := d.mu.log.WriteRecord(b.data); err != nil {
		return nil, err
	}
	return d.mu.mem.mutable, nil
}

// NewBatch returns a new empty write-only batch.
func (d *DB) NewBatch() *Batch {
	return newBatch(d)
}

// NewIndexedBatch returns a new empty read-write batch: reads against it
// see both the batch's own pending writes and the DB.
func (d *DB) NewIndexedBatch() *Batch {
	return newIndexedBatch(d, d.opts.Comparer)
}

// Close closes the DB. It is not safe to close a DB until all outstanding
// iterators are closed.
func (d *DB) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.mu.closed {
		return nil
	}
	for d.mu.compact.compacting || d.mu.compact.flushing {
		d.mu.compact.cond.Wait()
	}
	d.eventLog.Printf("DB closed")
	err := d.tableCache.close()
	err = firstError(err, d.mu.log.Close())
	if d.fileLock != nil {
		err = firstError(err, d.fileLock.Close())
	}
	err = firstError(err, d.eventLog.Close())
	d.commit.Close()
	d.mu.closed = true
	return err
}

// Flush writes the current mutable memtable to a level-0 table and blocks
// until the flush has completed (§4.F).
func (d *DB) Flush() error {
	d.mu.Lock()
	mem := d.mu.mem.mutable
	err := d.makeRoomForWrite(nil)
	d.mu.Unlock()
	if err != nil {
		return err
	}
	<-mem.flushed
	return nil
}

func firstError(err0, err1 error) error {
	if err0 != nil {
		return err0
	}
	return err1
}

// writeLevel0Table flushes iter (a memtable iterator, or a merge of
// several) to a new level-0 sstable (§4.F).
//
// d.mu must be held when calling this; it is dropped and re-acquired
// during the I/O.
func (d *DB) writeLevel0Table(fs storage.Storage, iter internalIterator) (meta fileMetadata, err error) {
	meta.fileNum = d.mu.versions.nextFileNum()
	filename := dbFilename(d.dirname, fileTypeTable, meta.fileNum)
	d.mu.compact.pendingOutputs[meta.fileNum] = struct{}{}
	defer func(fileNum uint64) {
		if err != nil {
			delete(d.mu.compact.pendingOutputs, fileNum)
		}
	}(meta.fileNum)

	d.mu.Unlock()
	defer d.mu.Lock()

	var (
		file storage.File
		tw   *sstable.Writer
	)
	defer func() {
		if iter != nil {
			err = firstError(err, iter.Close())
		}
		if tw != nil {
			err = firstError(err, tw.Close())
		}
		if err != nil {
			fs.Remove(filename)
			meta = fileMetadata{}
		}
	}()

	iter.First()
	if !iter.Valid() {
		return fileMetadata{}, base.InvalidArgumentf("ldb: memtable empty")
	}

	file, err = fs.Create(filename)
	if err != nil {
		return fileMetadata{}, err
	}
	file = newRateLimitedFile(file, d.flushController)
	tw = sstable.NewWriter(file, sstable.WriterOptions{
		Compare:              d.cmp,
		BlockSize:            d.opts.BlockSize,
		BlockRestartInterval: d.opts.BlockRestartInterval,
		Compression:          d.opts.Compression,
		FilterPolicy:         d.opts.FilterPolicy,
	})

	meta.smallest = iter.Key().Clone()
	for {
		meta.largest = iter.Key()
		if err1 := tw.Add(meta.largest, iter.Value()); err1 != nil {
			return fileMetadata{}, err1
		}
		if !iter.Next() {
			break
		}
	}
	meta.largest = meta.largest.Clone()

	if err1 := iter.Close(); err1 != nil {
		iter = nil
		return fileMetadata{}, err1
	}
	iter = nil

	if err1 := tw.Close(); err1 != nil {
		tw = nil
		return fileMetadata{}, err1
	}
	size, err := tw.Size()
	if err != nil {
		return fileMetadata{}, err
	}
	meta.size = uint64(size)
	tw = nil
	return meta, nil
}

func (d *DB) throttleWrite() {
	if len(d.mu.versions.currentVersion().files[0]) <= d.opts.L0SlowdownWritesThreshold {
		return
	}
	d.mu.Unlock()
	time.Sleep(d.opts.WriteStallDuration)
	d.mu.Lock()
}

// makeRoomForWrite ensures the mutable memtable has room for b (or, if b is
// nil, forces a memtable rotation for an explicit Flush), switching in a
// new memtable and WAL as needed (§4.F, §4.I).
func (d *DB) makeRoomForWrite(b *Batch) error {
	for force := b == nil; ; {
		if d.mu.mem.switching {
			d.mu.mem.cond.Wait()
			continue
		}
		if b != nil {
			err := d.mu.mem.mutable.prepare(b)
			if err == nil {
				return nil
			}
			if err != arenaskl.ErrArenaFull {
				return err
			}
		} else if !force {
			return nil
		}
		if len(d.mu.mem.queue) >= d.opts.MemTableStopWritesThreshold {
			d.mu.compact.cond.Wait()
			continue
		}
		if len(d.mu.versions.currentVersion().files[0]) > d.opts.L0StopWritesThreshold {
			d.mu.compact.cond.Wait()
			continue
		}

		newLogNumber := d.mu.versions.nextFileNum()
		d.mu.mem.switching = true
		d.mu.Unlock()

		newLogFile, err := d.opts.Storage.Create(dbFilename(d.dirname, fileTypeLog, newLogNumber))
		if err == nil {
			newLogFile = newRateLimitedFile(newLogFile, d.commitController)
			err = d.mu.log.Close()
			if err != nil {
				newLogFile.Close()
			}
		}

		d.mu.Lock()
		d.mu.mem.switching = false
		d.mu.mem.cond.Broadcast()

		if err != nil {
			panic(err)
		}

		d.mu.log.number = newLogNumber
		d.mu.log.LogWriter = record.NewLogWriter(newLogFile)
		imm := d.mu.mem.mutable
		d.mu.mem.mutable = newMemTable(d.opts)
		d.mu.mem.queue = append(d.mu.mem.queue, d.mu.mem.mutable)
		if imm.unref() {
			d.maybeScheduleFlush()
		}
		force = false
	}
}
