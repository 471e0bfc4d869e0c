// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package ldb

import "github.com/mkrump/ldb/internal/base"

// mergingIter merges a set of internalIterators (memtables, batch, sstables)
// into a single stream sorted by internal key, without deduplicating
// user keys across levels — that is Iterator's job, since it alone knows
// which seqNum is visible (§4.C, §4.H).
//
// The number of component iterators is bounded by a handful of memtables
// plus one per level, so a linear scan for the current minimum/maximum is
// simpler and fast enough; it mirrors the small-k merge the teacher's own
// levelIter performs one level at a time.
type mergingIter struct {
	cmp   base.Compare
	iters []internalIterator
	cur   int // index into iters of the current position, -1 if invalid
	dir   int // 1 == forward, -1 == backward
	err   error
}

func newMergingIter(cmp base.Compare, iters ...internalIterator) *mergingIter {
	return &mergingIter{cmp: cmp, iters: iters, cur: -1, dir: 1}
}

func (m *mergingIter) findMin() {
	m.cur = -1
	for i, it := range m.iters {
		if !it.Valid() {
			continue
		}
		if m.cur < 0 || base.InternalCompare(m.cmp, it.Key(), m.iters[m.cur].Key()) < 0 {
			m.cur = i
		}
	}
}

func (m *mergingIter) findMax() {
	m.cur = -1
	for i, it := range m.iters {
		if !it.Valid() {
			continue
		}
		if m.cur < 0 || base.InternalCompare(m.cmp, it.Key(), m.iters[m.cur].Key()) > 0 {
			m.cur = i
		}
	}
}

func (m *mergingIter) SeekGE(key []byte) {
	m.dir = 1
	for _, it := range m.iters {
		it.SeekGE(key)
	}
	m.findMin()
}

func (m *mergingIter) SeekLT(key []byte) {
	m.dir = -1
	for _, it := range m.iters {
		it.SeekLT(key)
	}
	m.findMax()
}

func (m *mergingIter) First() {
	m.dir = 1
	for _, it := range m.iters {
		it.First()
	}
	m.findMin()
}

func (m *mergingIter) Last() {
	m.dir = -1
	for _, it := range m.iters {
		it.Last()
	}
	m.findMax()
}

func (m *mergingIter) Next() bool {
	if m.cur < 0 {
		return false
	}
	if m.dir != 1 {
		// Switching direction: every other iterator must be repositioned to
		// just after the current key before resuming a forward scan.
		key := append([]byte(nil), m.encodedKey()...)
		for i, it := range m.iters {
			if i == m.cur {
				continue
			}
			it.SeekGE(key)
		}
		m.dir = 1
	} else {
		m.iters[m.cur].Next()
	}
	m.findMin()
	return m.cur >= 0
}

func (m *mergingIter) Prev() bool {
	if m.cur < 0 {
		return false
	}
	if m.dir != -1 {
		key := append([]byte(nil), m.encodedKey()...)
		for i, it := range m.iters {
			if i == m.cur {
				continue
			}
			it.SeekLT(key)
		}
		m.dir = -1
	} else {
		m.iters[m.cur].Prev()
	}
	m.findMax()
	return m.cur >= 0
}

func (m *mergingIter) encodedKey() []byte {
	k := m.iters[m.cur].Key()
	buf := make([]byte, k.Size())
	k.Encode(buf)
	return buf
}

func (m *mergingIter) Key() base.InternalKey {
	return m.iters[m.cur].Key()
}

func (m *mergingIter) Value() []byte {
	return m.iters[m.cur].Value()
}

func (m *mergingIter) Valid() bool {
	return m.cur >= 0
}

func (m *mergingIter) Error() error {
	if m.err != nil {
		return m.err
	}
	for _, it := range m.iters {
		if err := it.Error(); err != nil {
			return err
		}
	}
	return nil
}

func (m *mergingIter) Close() error {
	var err error
	for _, it := range m.iters {
		if e := it.Close(); e != nil && err == nil {
			err = e
		}
	}
	return err
}
