// Copyright 2013 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package ldb

import (
	"path/filepath"

	"github.com/mkrump/ldb/internal/base"
	"github.com/mkrump/ldb/sstable"
)

// maxGrandparentOverlapBytes bounds how much level+2 data a level-to-level+1
// compaction may overlap before a lone "move" compaction is rejected in
// favour of an actual merge, to keep later compactions of level+1 cheap
// (§4.G).
func maxGrandparentOverlapBytes(level int) int64 {
	return 10 * levelByteBudget(level+1)
}

// compaction describes one compaction job: inputs[0] is the source level,
// inputs[1] its overlapping files in level+1, inputs[2] the overlapping
// grandparent (level+2) files used only to decide whether a trivial move is
// safe (§4.G).
type compaction struct {
	version *version
	level   int
	inputs  [3][]fileMetadata
}

func ikeyRange(cmp base.Compare, a, b []fileMetadata) (smallest, largest base.InternalKey) {
	first := true
	consider := func(f *fileMetadata) {
		if first || base.InternalCompare(cmp, f.smallest, smallest) < 0 {
			smallest = f.smallest
		}
		if first || base.InternalCompare(cmp, f.largest, largest) > 0 {
			largest = f.largest
		}
		first = false
	}
	for i := range a {
		consider(&a[i])
	}
	for i := range b {
		consider(&b[i])
	}
	return smallest, largest
}

func totalSize(files []fileMetadata) int64 {
	var n int64
	for _, f := range files {
		n += int64(f.size)
	}
	return n
}

// pickCompaction chooses the level with the worst compaction score and
// builds its compaction inputs (§4.G).
func pickCompaction(vs *versionSet) *compaction {
	cur := vs.currentVersion()
	if cur.compactionScore < 1 || cur.compactionLevel < 0 {
		return nil
	}
	c := &compaction{version: cur, level: cur.compactionLevel}
	files := cur.files[c.level]
	picked := 0
	if ptr := cur.compactPointer[c.level]; ptr != nil {
		if idx := searchLevel(vs.cmp, files, ptr); idx < len(files) {
			picked = idx
		}
	}
	c.inputs[0] = []fileMetadata{files[picked]}

	if c.level == 0 {
		smallest, largest := ikeyRange(vs.cmp, c.inputs[0], nil)
		c.inputs[0] = cur.overlaps(0, vs.cmp, smallest.UserKey, largest.UserKey)
	}

	c.setupOtherInputs(vs)
	return c
}

func (c *compaction) setupOtherInputs(vs *versionSet) {
	smallest0, largest0 := ikeyRange(vs.cmp, c.inputs[0], nil)
	c.inputs[1] = c.version.overlaps(c.level+1, vs.cmp, smallest0.UserKey, largest0.UserKey)

	// Expand-without-growth (§4.H): having picked inputs[1], try growing
	// inputs[0] to every level-c.level file overlapping [inputs[0],
	// inputs[1]]'s combined range. Keep the expansion only if inputs[1]
	// comes back the same size; a larger inputs[1] would widen the
	// compaction instead of shrinking the backlog for free.
	if len(c.inputs[1]) > 0 {
		allSmallest, allLargest := ikeyRange(vs.cmp, c.inputs[0], c.inputs[1])
		expanded0 := c.version.overlaps(c.level, vs.cmp, allSmallest.UserKey, allLargest.UserKey)
		if len(expanded0) > len(c.inputs[0]) &&
			totalSize(expanded0)+totalSize(c.inputs[1]) < maxGrandparentOverlapBytes(c.level) {
			newSmallest, newLargest := ikeyRange(vs.cmp, expanded0, nil)
			expanded1 := c.version.overlaps(c.level+1, vs.cmp, newSmallest.UserKey, newLargest.UserKey)
			if len(expanded1) == len(c.inputs[1]) {
				c.inputs[0] = expanded0
				c.inputs[1] = expanded1
			}
		}
	}

	if c.level+2 < numLevels {
		smallest01, largest01 := ikeyRange(vs.cmp, c.inputs[0], c.inputs[1])
		c.inputs[2] = c.version.overlaps(c.level+2, vs.cmp, smallest01.UserKey, largest01.UserKey)
	}
}

// isBaseLevelForUkey reports whether no key/value pair for ukey can exist
// at c.level+2 or higher, which lets the compaction drop a Delete tombstone
// for ukey outright instead of carrying it forward forever (§4.G).
func (c *compaction) isBaseLevelForUkey(cmp base.Compare, ukey []byte) bool {
	for level := c.level + 2; level < numLevels; level++ {
		for _, f := range c.version.files[level] {
			if cmp(ukey, f.largest.UserKey) <= 0 && cmp(ukey, f.smallest.UserKey) >= 0 {
				return false
			}
		}
	}
	return true
}

// maybeScheduleFlush starts a background flush if the memtable queue has an
// immutable memtable ready to write out. d.mu must be held.
func (d *DB) maybeScheduleFlush() {
	if d.mu.compact.flushing || d.mu.closed {
		return
	}
	if len(d.mu.mem.queue) <= 1 {
		return
	}
	if !d.mu.mem.queue[0].readyForFlush() {
		return
	}
	d.mu.compact.flushing = true
	go d.flush()
}

func (d *DB) flush() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.flush1()
	d.mu.compact.flushing = false
	d.maybeScheduleFlush()
	d.maybeScheduleCompaction()
	d.mu.compact.cond.Broadcast()
}

// flush1 writes every contiguous ready-for-flush prefix of the immutable
// memtable queue to one level-0 table (§4.F). d.mu must be held; it is
// dropped and re-acquired for the I/O.
func (d *DB) flush1() error {
	var n int
	for ; n < len(d.mu.mem.queue)-1; n++ {
		if !d.mu.mem.queue[n].readyForFlush() {
			break
		}
	}
	if n == 0 {
		return nil
	}

	var iter internalIterator
	if n == 1 {
		iter = d.mu.mem.queue[0].NewIter(nil)
	} else {
		iters := make([]internalIterator, n)
		for i := range iters {
			iters[i] = d.mu.mem.queue[i].NewIter(nil)
		}
		iter = newMergingIter(d.cmp, iters...)
	}

	meta, err := d.writeLevel0Table(d.opts.Storage, iter)
	if err != nil {
		return err
	}

	err = d.mu.versions.logAndApply(&versionEdit{
		logNumber: d.mu.log.number,
		newFiles:  []newFileEntry{{level: 0, meta: meta}},
	})
	delete(d.mu.compact.pendingOutputs, meta.fileNum)
	if err != nil {
		return err
	}
	d.recordFlush(meta.size)
	d.eventLog.Printf("flushed %d memtable(s) to table %06d (%d bytes)", n, meta.fileNum, meta.size)

	for i := 0; i < n; i++ {
		close(d.mu.mem.queue[i].flushed)
	}
	d.mu.mem.queue = d.mu.mem.queue[n:]

	d.deleteObsoleteFiles()
	return nil
}

// maybeScheduleCompaction starts a background compaction if the current
// version's worst score calls for one. d.mu must be held.
func (d *DB) maybeScheduleCompaction() {
	if d.mu.compact.compacting || d.mu.closed {
		return
	}
	if d.mu.versions.currentVersion().compactionScore < 1 {
		return
	}
	d.mu.compact.compacting = true
	go d.compact()
}

func (d *DB) compact() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.compact1()
	d.mu.compact.compacting = false
	d.maybeScheduleCompaction()
	d.mu.compact.cond.Broadcast()
}

// compact1 runs one compaction: either a trivial move (when level+1 has no
// overlap and level+2 overlap is small) or a real merge of level and
// level+1 into new level+1 files (§4.G). d.mu must be held; dropped and
// re-acquired for the I/O.
func (d *DB) compact1() error {
	c := pickCompaction(&d.mu.versions)
	if c == nil {
		return nil
	}

	nextPointer := base.Successor(d.cmp, nil, c.inputs[0][len(c.inputs[0])-1].largest.UserKey)

	if len(c.inputs[0]) == 1 && len(c.inputs[1]) == 0 &&
		totalSize(c.inputs[2]) <= maxGrandparentOverlapBytes(c.level) {
		meta := c.inputs[0][0]
		err := d.mu.versions.logAndApply(&versionEdit{
			compactPointers: []struct {
				level int
				key   []byte
			}{{level: c.level, key: nextPointer}},
			deletedFiles: []deletedFileEntry{{level: c.level, fileNum: meta.fileNum}},
			newFiles:     []newFileEntry{{level: c.level + 1, meta: meta}},
		})
		if err == nil {
			d.deleteObsoleteFiles()
			d.recordCompaction(true, meta.size, meta.size)
			d.eventLog.Printf("moved table %06d from level %d to level %d", meta.fileNum, c.level, c.level+1)
		}
		return err
	}

	ve, pendingOutputs, err := d.compactDiskTables(c)
	if err != nil {
		return err
	}
	ve.compactPointers = append(ve.compactPointers, struct {
		level int
		key   []byte
	}{level: c.level, key: nextPointer})
	err = d.mu.versions.logAndApply(ve)
	for _, fileNum := range pendingOutputs {
		delete(d.mu.compact.pendingOutputs, fileNum)
	}
	if err != nil {
		return err
	}
	d.deleteObsoleteFiles()

	var bytesRead, bytesWritten uint64
	for i := 0; i < 2; i++ {
		for _, f := range c.inputs[i] {
			bytesRead += f.size
		}
	}
	for _, nf := range ve.newFiles {
		bytesWritten += nf.meta.size
	}
	d.recordCompaction(false, bytesRead, bytesWritten)
	d.eventLog.Printf("compacted level %d: %d bytes read, %d bytes written, %d output table(s)",
		c.level, bytesRead, bytesWritten, len(ve.newFiles))
	return nil
}

// compactionIterator merges c's input files into a single internalIterator,
// newest-first within level 0 and lazily per-file for level > 0 (§4.G).
func compactionIterator(cmp base.Compare, newIter tableNewIter, c *compaction) (internalIterator, error) {
	var iters []internalIterator
	if c.level != 0 {
		iters = append(iters, newLevelIter(cmp, newIter, c.inputs[0]))
	} else {
		for i := range c.inputs[0] {
			it, err := newIter(&c.inputs[0][i])
			if err != nil {
				return nil, base.IOErrorf("ldb: opening table %d: %w", c.inputs[0][i].fileNum, err)
			}
			iters = append(iters, it)
		}
	}
	if len(c.inputs[1]) > 0 {
		iters = append(iters, newLevelIter(cmp, newIter, c.inputs[1]))
	}
	return newMergingIter(cmp, iters...), nil
}

// compactDiskTables merges c's inputs into new level+1 table(s), dropping
// Delete tombstones once isBaseLevelForUkey confirms nothing below can
// still need them (§4.G).
func (d *DB) compactDiskTables(c *compaction) (ve *versionEdit, pendingOutputs []uint64, retErr error) {
	defer func() {
		if retErr != nil {
			for _, fileNum := range pendingOutputs {
				delete(d.mu.compact.pendingOutputs, fileNum)
			}
			pendingOutputs = nil
		}
	}()

	// Read while d.mu is still held; the snapshot list is d.mu-guarded and
	// the merge loop below runs with d.mu dropped for the I/O.
	smallestSnapshot := d.mu.versions.smallestSnapshot()

	d.mu.Unlock()
	defer d.mu.Lock()

	iter, err := compactionIterator(d.cmp, d.newIter, c)
	if err != nil {
		return nil, pendingOutputs, err
	}

	var (
		fileNum  uint64
		filename string
		tw       *sstable.Writer
	)
	defer func() {
		if iter != nil {
			retErr = firstError(retErr, iter.Close())
		}
		if tw != nil {
			retErr = firstError(retErr, tw.Close())
		}
		if retErr != nil && filename != "" {
			d.opts.Storage.Remove(filename)
		}
	}()

	var smallest, largest base.InternalKey
	var currentUserKey []byte
	hasCurrentUserKey := false
	lastSequenceForKey := base.InternalKeySeqNumMax
	for iter.First(); iter.Valid(); iter.Next() {
		ikey := iter.Key()
		drop := false

		if !hasCurrentUserKey || d.cmp(ikey.UserKey, currentUserKey) != 0 {
			// First (newest) occurrence of this user key in the merge: always
			// kept, and resets the per-key state the rest of this loop tracks.
			currentUserKey = append(currentUserKey[:0], ikey.UserKey...)
			hasCurrentUserKey = true
			lastSequenceForKey = base.InternalKeySeqNumMax
		} else if lastSequenceForKey <= smallestSnapshot {
			// The next-newer version of this key is already visible to every
			// live snapshot, so no snapshot can still need this older one
			// (§4.H's "keep the newest entry whose sequence > smallest live
			// snapshot; drop older entries" rule).
			drop = true
		}

		if !drop && ikey.Kind() == base.InternalKeyKindDelete &&
			ikey.SeqNum() <= smallestSnapshot && c.isBaseLevelForUkey(d.cmp, ikey.UserKey) {
			drop = true
		}

		lastSequenceForKey = ikey.SeqNum()
		if drop {
			continue
		}

		if tw == nil {
			d.mu.Lock()
			fileNum = d.mu.versions.nextFileNum()
			d.mu.compact.pendingOutputs[fileNum] = struct{}{}
			pendingOutputs = append(pendingOutputs, fileNum)
			d.mu.Unlock()

			filename = dbFilename(d.dirname, fileTypeTable, fileNum)
			file, err := d.opts.Storage.Create(filename)
			if err != nil {
				return nil, pendingOutputs, err
			}
			file = newRateLimitedFile(file, d.compactController)
			tw = sstable.NewWriter(file, sstable.WriterOptions{
				Compare:              d.cmp,
				BlockSize:            d.opts.BlockSize,
				BlockRestartInterval: d.opts.BlockRestartInterval,
				Compression:          d.opts.Compression,
				FilterPolicy:         d.opts.FilterPolicy,
			})
			smallest = ikey.Clone()
		}

		largest = ikey.Clone()
		if err := tw.Add(ikey, iter.Value()); err != nil {
			return nil, pendingOutputs, err
		}
	}

	if tw == nil {
		// Everything in the input was dropped (all tombstones at the base
		// level); the compaction still needs to remove the obsolete inputs.
		ve = emptyCompactionEdit(c)
		return ve, pendingOutputs, nil
	}

	if err := tw.Close(); err != nil {
		tw = nil
		return nil, pendingOutputs, err
	}
	size, err := tw.Size()
	tw = nil
	if err != nil {
		return nil, pendingOutputs, err
	}

	ve = emptyCompactionEdit(c)
	ve.newFiles = append(ve.newFiles, newFileEntry{
		level: c.level + 1,
		meta: fileMetadata{
			fileNum:  fileNum,
			size:     uint64(size),
			smallest: smallest,
			largest:  largest,
		},
	})
	return ve, pendingOutputs, nil
}

func emptyCompactionEdit(c *compaction) *versionEdit {
	ve := &versionEdit{}
	for i := 0; i < 2; i++ {
		for _, f := range c.inputs[i] {
			ve.deletedFiles = append(ve.deletedFiles, deletedFileEntry{level: c.level + i, fileNum: f.fileNum})
		}
	}
	return ve
}

// deleteObsoleteFiles removes on-disk files no longer referenced by any live
// version or pending compaction output (§4.G). d.mu must be held; dropped
// and re-acquired for the I/O.
func (d *DB) deleteObsoleteFiles() {
	liveFileNums := map[uint64]struct{}{}
	for fileNum := range d.mu.compact.pendingOutputs {
		liveFileNums[fileNum] = struct{}{}
	}
	d.mu.versions.addLiveFileNums(liveFileNums)
	logNumber := d.mu.versions.logNumber
	manifestFileNumber := d.mu.versions.manifestFileNumber

	d.mu.Unlock()
	defer d.mu.Lock()

	fs := d.opts.Storage
	list, err := fs.List(d.dirname)
	if err != nil {
		return
	}
	for _, name := range list {
		fileType, fileNum, ok := parseDBFilename(name)
		if !ok {
			continue
		}
		keep := true
		switch fileType {
		case fileTypeLog:
			keep = fileNum >= logNumber
		case fileTypeManifest:
			keep = fileNum >= manifestFileNumber
		case fileTypeTable:
			_, keep = liveFileNums[fileNum]
		}
		if keep {
			continue
		}
		if fileType == fileTypeTable {
			d.tableCache.evict(fileNum)
		}
		fs.Remove(filepath.Join(d.dirname, name))
	}
}
