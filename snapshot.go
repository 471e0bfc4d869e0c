// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package ldb

import "sync/atomic"

// Snapshot is a point-in-time view of the database: reads through it never
// observe writes committed after the snapshot was taken (§4.H).
//
// A snapshot only pins a sequence number, not the sstables that were live
// when it was taken; a long-lived snapshot can therefore still lose access
// to a key if the on-disk tables backing it are compacted away in the
// meantime. Pinning zombie files for the lifetime of every open snapshot
// is future work (see DESIGN.md).
type Snapshot struct {
	db     *DB
	seqNum uint64
	closed bool
}

// NewSnapshot captures the database's current sequence number and registers
// it with the versionSet's snapshot list so compactions know not to drop a
// version it still needs (§3, §4.H).
func (d *DB) NewSnapshot() *Snapshot {
	seqNum := atomic.LoadUint64(&d.mu.versions.visibleSeqNum)
	d.mu.Lock()
	defer d.mu.Unlock()
	d.mu.versions.addSnapshot(seqNum)
	return &Snapshot{db: d, seqNum: seqNum}
}

// Close releases the snapshot. It is safe to call multiple times.
func (s *Snapshot) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	s.db.mu.versions.removeSnapshot(s.seqNum)
	return nil
}
