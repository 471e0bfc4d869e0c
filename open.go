// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package ldb

import (
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"

	"github.com/mkrump/ldb/internal/arenaskl"
	"github.com/mkrump/ldb/internal/base"
	"github.com/mkrump/ldb/internal/record"
	"github.com/mkrump/ldb/internal/storage"
)

// createDB writes a fresh manifest describing an empty database and points
// CURRENT at it (§6 "creating a new database").
func createDB(dirname string, opts *Options) (retErr error) {
	const manifestFileNum = 1
	ve := versionEdit{
		comparatorName: opts.Comparer.Name,
		nextFileNumber: manifestFileNum + 1,
	}
	manifestFilename := dbFilename(dirname, fileTypeManifest, manifestFileNum)
	f, err := opts.Storage.Create(manifestFilename)
	if err != nil {
		return base.IOErrorf("ldb: could not create %q: %w", manifestFilename, err)
	}
	defer func() {
		if retErr != nil {
			opts.Storage.Remove(manifestFilename)
		}
	}()
	defer f.Close()

	w := record.NewWriter(f)
	rw, err := w.Next()
	if err != nil {
		return err
	}
	if err := ve.encode(rw); err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return setCurrentFile(dirname, opts.Storage, manifestFileNum)
}

// Open opens (or creates) the database whose files live under dirname
// (§1, §6).
func Open(dirname string, opts *Options) (*DB, error) {
	opts = opts.EnsureDefaults()

	d := &DB{
		dirname: dirname,
		opts:    opts,
		cmp:     opts.Comparer.Compare,
		merger:  opts.Merger,

		commitController:  newController(opts.CommitRateBytesPerSec),
		compactController: newController(opts.CompactionRateBytesPerSec),
		flushController:   newController(opts.FlushRateBytesPerSec),
	}
	d.tableCache = newTableCache(dirname, opts.Storage, opts)
	d.newIter = d.tableCache.newIter
	d.prometheus = newPrometheusMetrics(opts.MetricsRegisterer)

	d.mu.mem.cond.L = &d.mu.Mutex
	d.mu.compact.cond.L = &d.mu.Mutex
	d.mu.compact.pendingOutputs = make(map[uint64]struct{})

	d.commit = newCommitPipeline(commitEnv{
		write: d.commitWrite,
		apply: d.commitApply,
		sync:  d.commitSync,
	}, func(n uint64) uint64 {
		return atomic.AddUint64(&d.mu.versions.logSeqNum, n) - n
	}, func(seqNum uint64) {
		atomic.StoreUint64(&d.mu.versions.visibleSeqNum, seqNum)
	})

	d.mu.Lock()
	defer d.mu.Unlock()

	fs := opts.Storage
	if err := fs.MkdirAll(dirname); err != nil {
		return nil, err
	}
	fileLock, err := fs.Lock(dbFilename(dirname, fileTypeLock, 0))
	if err != nil {
		return nil, err
	}
	defer func() {
		if fileLock != nil {
			fileLock.Close()
		}
	}()

	eventLog, err := openEventLog(dirname, fs)
	if err != nil {
		return nil, err
	}
	defer func() {
		if eventLog != nil {
			eventLog.Close()
		}
	}()
	d.eventLog = eventLog
	d.eventLog.Printf("opening database %q", dirname)

	if cur, err := fs.Open(dbFilename(dirname, fileTypeCurrent, 0)); err != nil {
		if !os.IsNotExist(err) {
			return nil, base.IOErrorf("ldb: database %q: %w", dirname, err)
		}
		if !opts.CreateIfMissing {
			return nil, base.NotFoundErrorf("ldb: database %q does not exist and CreateIfMissing is false", dirname)
		}
		if err := createDB(dirname, opts); err != nil {
			return nil, err
		}
	} else {
		cur.Close()
		if opts.ErrorIfExists {
			return nil, base.InvalidArgumentf("ldb: database %q already exists", dirname)
		}
	}

	if err := d.mu.versions.load(dirname, opts); err != nil {
		return nil, err
	}

	var ve versionEdit
	ls, err := fs.List(dirname)
	if err != nil {
		return nil, err
	}
	type fileNumAndName struct {
		num  uint64
		name string
	}
	var logFiles []fileNumAndName
	for _, filename := range ls {
		ft, fn, ok := parseDBFilename(filename)
		if ok && ft == fileTypeLog && (fn >= d.mu.versions.logNumber || fn == d.mu.versions.prevLogNumber) {
			logFiles = append(logFiles, fileNumAndName{fn, filename})
		}
	}
	sort.Slice(logFiles, func(i, j int) bool { return logFiles[i].num < logFiles[j].num })

	for _, lf := range logFiles {
		maxSeqNum, err := d.replayWAL(&ve, fs, filepath.Join(dirname, lf.name))
		if err != nil {
			return nil, err
		}
		d.mu.versions.markFileNumUsed(lf.num)
		if d.mu.versions.logSeqNum < maxSeqNum {
			d.mu.versions.logSeqNum = maxSeqNum
		}
	}
	d.mu.versions.visibleSeqNum = d.mu.versions.logSeqNum

	ve.logNumber = d.mu.versions.nextFileNum()
	d.mu.log.number = ve.logNumber
	logFile, err := fs.Create(dbFilename(dirname, fileTypeLog, ve.logNumber))
	if err != nil {
		return nil, err
	}
	d.mu.log.LogWriter = record.NewLogWriter(newRateLimitedFile(logFile, d.commitController))
	d.mu.mem.mutable = newMemTable(opts)
	d.mu.mem.queue = append(d.mu.mem.queue, d.mu.mem.mutable)

	if err := d.mu.versions.logAndApply(&ve); err != nil {
		return nil, err
	}

	d.deleteObsoleteFiles()
	d.maybeScheduleFlush()
	d.maybeScheduleCompaction()

	d.fileLock, fileLock = fileLock, nil
	eventLog = nil
	d.eventLog.Printf("database %q opened", dirname)
	return d, nil
}

// replayWAL replays the batches recorded in filename into a fresh memtable,
// flushing it to an L0 table if it ends up non-empty (§4.F, §6 "recovery").
//
// d.mu must be held when calling this; it is dropped and re-acquired during
// the flush I/O (via writeLevel0Table).
func (d *DB) replayWAL(ve *versionEdit, fs storage.Storage, filename string) (maxSeqNum uint64, err error) {
	file, err := fs.Open(filename)
	if err != nil {
		return 0, err
	}
	defer file.Close()

	var (
		mem *memTable
		rr  = record.NewReader(file)
	)
	for {
		r, err := rr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			// §7: corruption mid-WAL fails Open unless paranoid_checks is
			// disabled, in which case the rest of this log is dropped and
			// whatever was recovered before the break still gets flushed.
			if d.opts.ParanoidChecks {
				return 0, err
			}
			d.eventLog.Printf("ignoring corrupt record in log file %q: %v", filename, err)
			break
		}
		if len(r) < batchHeaderLen {
			if d.opts.ParanoidChecks {
				return 0, base.CorruptionErrorf("ldb: corrupt log file %q", filename)
			}
			d.eventLog.Printf("ignoring undersized batch in log file %q", filename)
			break
		}

		b := &Batch{db: d, cmp: d.cmp, data: append([]byte(nil), r...)}
		seqNum := b.seqNum()
		count := uint64(b.count())
		if seqNum+count-1 > maxSeqNum {
			maxSeqNum = seqNum + count - 1
		}

		if mem == nil {
			mem = newMemTable(d.opts)
		}
		if err := mem.prepare(b); err == arenaskl.ErrArenaFull {
			meta, err := d.writeLevel0Table(fs, mem.NewIter(nil))
			if err != nil {
				return 0, err
			}
			ve.newFiles = append(ve.newFiles, newFileEntry{level: 0, meta: meta})
			delete(d.mu.compact.pendingOutputs, meta.fileNum)
			mem = newMemTable(d.opts)
			if err := mem.prepare(b); err != nil {
				return 0, err
			}
		} else if err != nil {
			return 0, err
		}

		if err := mem.apply(b, seqNum); err != nil {
			return 0, err
		}
		if mem.unref() {
			d.maybeScheduleFlush()
		}
	}

	if mem != nil && !mem.empty() {
		meta, err := d.writeLevel0Table(fs, mem.NewIter(nil))
		if err != nil {
			return 0, err
		}
		ve.newFiles = append(ve.newFiles, newFileEntry{level: 0, meta: meta})
		// Open holds d.mu for its entire duration, so no concurrent
		// deleteObsoleteFiles call can race this delete.
		delete(d.mu.compact.pendingOutputs, meta.fileNum)
	}

	return maxSeqNum, nil
}
