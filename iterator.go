// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package ldb

import "github.com/mkrump/ldb/internal/base"

// Iterator iterates over a DB's key/value pairs in key order (§4.H). It
// filters out keys newer than the iterator's seqNum snapshot, collapses
// every internal-key version of a user key down to the single visible one,
// and resolves chains of Merge operands via Options.Merger.
type Iterator struct {
	cmp    base.Compare
	merger *base.Merger
	iter   *mergingIter
	seqNum uint64
	err    error
	key    []byte
	value  []byte
	valid  bool
}

// NewIter returns an unpositioned iterator over the database as of the time
// NewIter was called (or, with a Snapshot in ReadOptions, as of the
// snapshot).
func (d *DB) NewIter(o *ReadOptions) *Iterator {
	return d.newIterInternal(nil, o)
}

func (d *DB) newIterInternal(batchIter internalIterator, o *ReadOptions) *Iterator {
	d.mu.Lock()
	seqNum := d.mu.versions.visibleSeqNum
	if o != nil {
		seqNum = o.seqNum(seqNum)
	}
	current := d.mu.versions.currentVersion()
	current.ref()
	memtables := d.mu.mem.queue
	d.mu.Unlock()

	it := &Iterator{cmp: d.cmp, merger: d.merger, seqNum: seqNum}

	var iters []internalIterator
	if batchIter != nil {
		iters = append(iters, batchIter)
	}
	for i := len(memtables) - 1; i >= 0; i-- {
		iters = append(iters, memtables[i].NewIter(o))
	}
	for i := len(current.files[0]) - 1; i >= 0; i-- {
		f := &current.files[0][i]
		iter, err := d.newIter(f)
		if err != nil {
			it.err = err
			return it
		}
		iters = append(iters, iter)
	}
	for level := 1; level < numLevels; level++ {
		if len(current.files[level]) == 0 {
			continue
		}
		iters = append(iters, newLevelIter(d.cmp, d.newIter, current.files[level]))
	}

	it.iter = newMergingIter(d.cmp, iters...)
	return it
}

func (i *Iterator) skipUserKey(userKey []byte, forward bool) {
	for i.iter.Valid() && i.cmp(i.iter.Key().UserKey, userKey) == 0 {
		if forward {
			i.iter.Next()
		} else {
			i.iter.Prev()
		}
	}
}

// findNextEntry advances i.iter (already positioned) to the next visible
// user key and resolves its value, handling Delete tombstones and Merge
// operand chains (§3, §4.H).
func (i *Iterator) findNextEntry() {
	i.valid = false
	for i.iter.Valid() {
		k := i.iter.Key()
		if k.SeqNum() > i.seqNum {
			i.iter.Next()
			continue
		}
		userKey := append([]byte(nil), k.UserKey...)
		switch k.Kind() {
		case base.InternalKeyKindDelete:
			i.iter.Next()
			i.skipUserKey(userKey, true)

		case base.InternalKeyKindSet:
			i.key = userKey
			i.value = append([]byte(nil), i.iter.Value()...)
			i.iter.Next()
			i.skipUserKey(userKey, true)
			i.valid = true
			return

		case base.InternalKeyKindMerge:
			operands := [][]byte{append([]byte(nil), i.iter.Value()...)}
			i.iter.Next()
			for i.iter.Valid() {
				k2 := i.iter.Key()
				if i.cmp(k2.UserKey, userKey) != 0 {
					break
				}
				if k2.SeqNum() > i.seqNum {
					i.iter.Next()
					continue
				}
				if k2.Kind() == base.InternalKeyKindMerge {
					operands = append(operands, append([]byte(nil), i.iter.Value()...))
					i.iter.Next()
					continue
				}
				if k2.Kind() == base.InternalKeyKindSet {
					operands = append(operands, append([]byte(nil), i.iter.Value()...))
				}
				i.iter.Next()
				break
			}
			i.skipUserKey(userKey, true)
			i.key = userKey
			if i.merger != nil {
				// operands were gathered newest first; Merge takes them oldest first.
				for l, r := 0, len(operands)-1; l < r; l, r = l+1, r-1 {
					operands[l], operands[r] = operands[r], operands[l]
				}
				i.value = i.merger.Merge(userKey, operands)
			} else {
				i.value = operands[0]
			}
			i.valid = true
			return

		default:
			i.iter.Next()
		}
	}
}

// findPrevEntry is findNextEntry's mirror image for reverse iteration. Merge
// chains are resolved in the same (oldest-operand-first) order regardless
// of scan direction, so operands are gathered then reversed.
func (i *Iterator) findPrevEntry() {
	i.valid = false
	for i.iter.Valid() {
		k := i.iter.Key()
		if k.SeqNum() > i.seqNum {
			i.iter.Prev()
			continue
		}
		userKey := append([]byte(nil), k.UserKey...)

		// Walking backward visits this user key's visible versions from the
		// oldest (smallest internal key is the newest, so it comes last).
		// Collect every version, then reverse so the run reads newest first.
		var kinds []base.InternalKeyKind
		var values [][]byte
		kinds = append(kinds, k.Kind())
		values = append(values, append([]byte(nil), i.iter.Value()...))
		i.iter.Prev()
		for i.iter.Valid() {
			k2 := i.iter.Key()
			if i.cmp(k2.UserKey, userKey) != 0 {
				break
			}
			if k2.SeqNum() > i.seqNum {
				i.iter.Prev()
				continue
			}
			kinds = append(kinds, k2.Kind())
			values = append(values, append([]byte(nil), i.iter.Value()...))
			i.iter.Prev()
		}
		for l, r := 0, len(kinds)-1; l < r; l, r = l+1, r-1 {
			kinds[l], kinds[r] = kinds[r], kinds[l]
			values[l], values[r] = values[r], values[l]
		}

		// kinds/values now run newest-to-oldest.
		if kinds[0] == base.InternalKeyKindDelete {
			continue
		}
		if kinds[0] == base.InternalKeyKindSet {
			i.key = userKey
			i.value = values[0]
			i.valid = true
			return
		}
		// Leading entry is a Merge: gather the contiguous run of Merge entries
		// and reverse to oldest-first before resolving.
		var operands [][]byte
		for j := 0; j < len(kinds); j++ {
			operands = append(operands, values[j])
			if kinds[j] != base.InternalKeyKindMerge {
				break
			}
		}
		for l, r := 0, len(operands)-1; l < r; l, r = l+1, r-1 {
			operands[l], operands[r] = operands[r], operands[l]
		}
		i.key = userKey
		if i.merger != nil {
			i.value = i.merger.Merge(userKey, operands)
		} else {
			i.value = operands[len(operands)-1]
		}
		i.valid = true
		return
	}
}

// SeekGE positions the iterator at the first key >= key.
func (i *Iterator) SeekGE(key []byte) bool {
	if i.err != nil {
		return false
	}
	i.iter.SeekGE(key)
	i.findNextEntry()
	return i.valid
}

// SeekLT positions the iterator at the last key < key.
func (i *Iterator) SeekLT(key []byte) bool {
	if i.err != nil {
		return false
	}
	i.iter.SeekLT(key)
	i.findPrevEntry()
	return i.valid
}

// First positions the iterator at the first key.
func (i *Iterator) First() bool {
	if i.err != nil {
		return false
	}
	i.iter.First()
	i.findNextEntry()
	return i.valid
}

// Last positions the iterator at the last key.
func (i *Iterator) Last() bool {
	if i.err != nil {
		return false
	}
	i.iter.Last()
	i.findPrevEntry()
	return i.valid
}

// Next advances to the next key.
func (i *Iterator) Next() bool {
	if !i.valid {
		return false
	}
	i.findNextEntry()
	return i.valid
}

// Prev moves to the preceding key.
func (i *Iterator) Prev() bool {
	if !i.valid {
		return false
	}
	i.findPrevEntry()
	return i.valid
}

// Key returns the current user key. Only valid when Valid() is true.
func (i *Iterator) Key() []byte { return i.key }

// Value returns the current value. Only valid when Valid() is true.
func (i *Iterator) Value() []byte { return i.value }

// Valid reports whether the iterator is positioned at an entry.
func (i *Iterator) Valid() bool { return i.valid }

// Error returns any accumulated error.
func (i *Iterator) Error() error {
	if i.err != nil {
		return i.err
	}
	if i.iter != nil {
		return i.iter.Error()
	}
	return nil
}

// Close releases the iterator's resources.
func (i *Iterator) Close() error {
	if i.iter != nil {
		return i.iter.Close()
	}
	return nil
}
