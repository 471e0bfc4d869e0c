// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package ldb

import (
	"sync/atomic"

	"github.com/mkrump/ldb/internal/base"
)

// fileMetadata describes one on-disk table (§3).
type fileMetadata struct {
	fileNum  uint64
	size     uint64
	smallest base.InternalKey
	largest  base.InternalKey

	// compactPending is not set or read anywhere in this package; at most one
	// compaction runs at a time (DB.mu.compact.compacting), and pickCompaction
	// does not consult this field.
	compactPending bool
}

func (f *fileMetadata) overlaps(cmp base.Compare, start, end []byte) bool {
	if end != nil && cmp(f.smallest.UserKey, end) >= 0 {
		return false
	}
	if start != nil && cmp(f.largest.UserKey, start) < 0 {
		return false
	}
	return true
}

// version is an immutable snapshot of file metadata across all levels
// (§3). Versions form a doubly-linked list owned by versionSet; a version
// stays alive while any iterator or compaction references it.
type version struct {
	files [numLevels][]fileMetadata

	// compactPointer[i] is the smallest user key not yet covered by the last
	// compaction out of level i, used to round-robin which file picks next
	// (§4.G).
	compactPointer [numLevels][]byte

	refs int32

	// compactionScore and compactionLevel identify the level most in need of
	// compaction, computed once when the version is created (§4.G): L0 scores
	// on file count against L0CompactionThreshold, other levels score on
	// total byte size against their level budget (§4.G's 10^level MiB rule).
	compactionScore float64
	compactionLevel int

	prev, next *version
}

// overlaps returns the files at level whose key range intersects
// [start, end]; for level 0, files overlap pairwise so every file touching
// the range is included, for level > 0 the (non-overlapping, sorted) files
// are scanned linearly since per-level file counts stay modest (§4.G).
func (v *version) overlaps(level int, cmp base.Compare, start, end []byte) []fileMetadata {
	var out []fileMetadata
	for _, f := range v.files[level] {
		if end != nil && cmp(f.smallest.UserKey, end) > 0 {
			if level > 0 {
				break
			}
			continue
		}
		if start != nil && cmp(f.largest.UserKey, start) < 0 {
			continue
		}
		out = append(out, f)
	}
	return out
}

// computeCompactionScore scores each level so pickCompaction can find the
// one most in need of work (§4.G).
func (v *version) computeCompactionScore(opts *Options) {
	bestLevel := -1
	bestScore := float64(0)
	for level := 0; level < numLevels-1; level++ {
		var score float64
		if level == 0 {
			score = float64(len(v.files[0])) / float64(opts.L0CompactionThreshold)
		} else {
			var size int64
			for _, f := range v.files[level] {
				size += int64(f.size)
			}
			score = float64(size) / float64(levelByteBudget(level))
		}
		if score >= 1 && score > bestScore {
			bestScore = score
			bestLevel = level
		}
	}
	v.compactionScore = bestScore
	v.compactionLevel = bestLevel
}

func (v *version) ref() {
	atomic.AddInt32(&v.refs, 1)
}

// unref drops a reference; the caller must not hold DB.mu when doing so for
// a version no longer installed as current (Get and Metrics call it after
// releasing DB.mu).
func (v *version) unref() {
	if atomic.AddInt32(&v.refs, -1) == 0 {
		v.prev.next = v.next
		v.next.prev = v.prev
		v.prev, v.next = nil, nil
	}
}

// unrefLocked is used by versionSet.append, which already serialises access
// to the version list via DB.mu.
func (v *version) unrefLocked() {
	v.unref()
}

// get performs the on-disk portion of DB.Get: L0 files newest-first, then a
// single binary search per level >= 1 (§4.C, §4.G).
func (v *version) get(
	key base.InternalKey, newIter tableNewIter, cmp base.Compare, ro *ReadOptions,
) ([]byte, error) {
	var lastErr error
	for i := 0; i < len(v.files[0]); i++ {
		f := &v.files[0][i]
		if val, err, ok := getFromTable(f, newIter, cmp, key); ok {
			return val, err
		} else if err != nil {
			lastErr = err
		}
	}
	for level := 1; level < len(v.files); level++ {
		files := v.files[level]
		if len(files) == 0 {
			continue
		}
		// Binary search for the file whose range may contain key.
		index := searchLevel(cmp, files, key.UserKey)
		if index >= len(files) {
			continue
		}
		f := &files[index]
		if cmp(key.UserKey, f.smallest.UserKey) < 0 {
			continue
		}
		if val, err, ok := getFromTable(f, newIter, cmp, key); ok {
			return val, err
		} else if err != nil {
			lastErr = err
		}
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, base.ErrNotFound
}

func searchLevel(cmp base.Compare, files []fileMetadata, key []byte) int {
	lo, hi := 0, len(files)
	for lo < hi {
		mid := (lo + hi) / 2
		if cmp(files[mid].largest.UserKey, key) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

func getFromTable(
	f *fileMetadata, newIter tableNewIter, cmp base.Compare, key base.InternalKey,
) ([]byte, error, bool) {
	iter, err := newIter(f)
	if err != nil {
		return nil, err, true
	}
	defer iter.Close()
	iter.SeekGE(key.UserKey)
	for iter.Valid() {
		ik := iter.Key()
		if cmp(ik.UserKey, key.UserKey) != 0 {
			return nil, nil, false
		}
		if ik.SeqNum() <= key.SeqNum() {
			if ik.Kind() == base.InternalKeyKindDelete {
				return nil, base.ErrNotFound, true
			}
			val := append([]byte(nil), iter.Value()...)
			return val, nil, true
		}
		iter.Next()
	}
	return nil, iter.Error(), iter.Error() != nil
}

// versionList is a doubly-linked circular list of versions with a sentinel
// root node, owned exclusively by versionSet (§9).
type versionList struct {
	root version
}

func (l *versionList) init() {
	l.root.next = &l.root
	l.root.prev = &l.root
}

func (l *versionList) empty() bool {
	return l.root.next == &l.root
}

func (l *versionList) back() *version {
	return l.root.prev
}

func (l *versionList) pushBack(v *version) {
	v.prev = l.root.prev
	v.next = &l.root
	v.prev.next = v
	l.root.prev = v
}
