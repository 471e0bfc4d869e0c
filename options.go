// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package ldb

import (
	"time"

	"github.com/mkrump/ldb/internal/base"
	"github.com/mkrump/ldb/internal/storage"
	"github.com/mkrump/ldb/sstable"
	"github.com/prometheus/client_golang/prometheus"
)

// numLevels is MAX+1 from the Data Model's Version description (§3).
const numLevels = 7

// Options holds the knobs for Open (§6), with the stalling thresholds and
// paranoid-checks flag §9's Open Questions say a reimplementation should
// expose.
type Options struct {
	// CreateIfMissing allows Open to create dirname if it does not exist.
	CreateIfMissing bool
	// ErrorIfExists causes Open to fail if dirname already contains a
	// database.
	ErrorIfExists bool

	Comparer *base.Comparer
	Merger   *base.Merger
	Storage  storage.Storage

	WriteBufferSize     int
	MaxOpenFiles        int
	BlockCacheCapacity  int
	BlockSize           int
	BlockRestartInterval int
	MaxFileSize         int64
	Compression         sstable.CompressionType
	FilterPolicy        sstable.FilterPolicy

	L0CompactionThreshold     int
	L0SlowdownWritesThreshold int
	L0StopWritesThreshold     int
	MemTableStopWritesThreshold int
	WriteStallDuration        time.Duration
	ParanoidChecks             bool

	// CommitRateBytesPerSec, CompactionRateBytesPerSec and
	// FlushRateBytesPerSec cap the write throughput of the WAL, compaction
	// output and flush output respectively via golang.org/x/time/rate
	// (§4.J). Zero (the default) leaves that path unthrottled.
	CommitRateBytesPerSec     int
	CompactionRateBytesPerSec int
	FlushRateBytesPerSec      int

	// MetricsRegisterer, if set, causes DB.Metrics to also be exposed as
	// Prometheus collectors (§4.J). Optional; nil disables it.
	MetricsRegisterer prometheus.Registerer
}

// EnsureDefaults fills in every unset field with its documented default
// (§6), mirroring the teacher's own Options.EnsureDefaults.
func (o *Options) EnsureDefaults() *Options {
	if o == nil {
		o = &Options{}
	}
	if o.Comparer == nil {
		o.Comparer = base.DefaultComparer
	}
	if o.Storage == nil {
		o.Storage = storage.Default
	}
	if o.WriteBufferSize <= 0 {
		o.WriteBufferSize = 4 << 20
	}
	if o.MaxOpenFiles == 0 {
		o.MaxOpenFiles = 1000
	}
	if o.BlockSize <= 0 {
		o.BlockSize = 4096
	}
	if o.BlockRestartInterval <= 0 {
		o.BlockRestartInterval = 16
	}
	if o.MaxFileSize <= 0 {
		o.MaxFileSize = 2 << 20
	}
	if o.Compression == 0 {
		o.Compression = sstable.SnappyCompression
	}
	if o.FilterPolicy == nil {
		o.FilterPolicy = sstable.NewBloomFilterPolicy(10)
	}
	if o.L0CompactionThreshold <= 0 {
		o.L0CompactionThreshold = 4
	}
	if o.L0SlowdownWritesThreshold <= 0 {
		o.L0SlowdownWritesThreshold = 8
	}
	if o.L0StopWritesThreshold <= 0 {
		o.L0StopWritesThreshold = 12
	}
	if o.MemTableStopWritesThreshold <= 0 {
		o.MemTableStopWritesThreshold = 2
	}
	if o.WriteStallDuration <= 0 {
		o.WriteStallDuration = 1 * time.Millisecond
	}
	return o
}

func (o *Options) level(i int) int {
	return i
}

// levelByteBudget returns the byte budget for level i, i>=1: Li budget =
// 10^i MiB (§4.G).
func levelByteBudget(i int) int64 {
	budget := int64(10 * 1 << 20)
	for j := 1; j < i; j++ {
		budget *= 10
	}
	return budget
}

// WriteOptions recognises sync (§6): whether Apply must fsync the WAL
// before returning.
type WriteOptions struct {
	Sync bool
}

// GetSync returns whether o requests a synchronous write; a nil
// *WriteOptions means async, matching LevelDB's own default.
func (o *WriteOptions) GetSync() bool {
	return o != nil && o.Sync
}

// ReadOptions carries verify_checksums, fill_cache and an optional pinned
// snapshot (§6). Only Snapshot is read (by DB.NewIter); VerifyChecksums and
// FillCache have no effect.
type ReadOptions struct {
	VerifyChecksums bool
	FillCache       bool
	Snapshot        *Snapshot
}

func (o *ReadOptions) seqNum(defaultSeqNum uint64) uint64 {
	if o == nil || o.Snapshot == nil {
		return defaultSeqNum
	}
	return o.Snapshot.seqNum
}
