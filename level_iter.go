// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package ldb

import "github.com/mkrump/ldb/internal/base"

// levelIter lazily iterates over a level's (non-overlapping, sorted) files,
// opening at most one table at a time via the table cache and hopping to
// the neighbouring file once the current one is exhausted (§4.C, §4.D).
type levelIter struct {
	cmp     base.Compare
	newIter tableNewIter
	files   []fileMetadata
	index   int
	iter    internalIterator
	err     error
}

func newLevelIter(cmp base.Compare, newIter tableNewIter, files []fileMetadata) *levelIter {
	l := &levelIter{}
	l.init(cmp, newIter, files)
	return l
}

func (l *levelIter) init(cmp base.Compare, newIter tableNewIter, files []fileMetadata) {
	l.cmp = cmp
	l.newIter = newIter
	l.files = files
	l.index = -1
	l.iter = nil
}

func (l *levelIter) loadFile(index int) bool {
	if l.iter != nil {
		l.iter.Close()
		l.iter = nil
	}
	if index < 0 || index >= len(l.files) {
		l.index = index
		return false
	}
	it, err := l.newIter(&l.files[index])
	if err != nil {
		l.err = err
		l.index = index
		return false
	}
	l.index = index
	l.iter = it
	return true
}

// findFile returns the index of the first file whose largest key is >= key.
func (l *levelIter) findFile(key []byte) int {
	lo, hi := 0, len(l.files)
	for lo < hi {
		mid := (lo + hi) / 2
		if l.cmp(l.files[mid].largest.UserKey, key) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

func (l *levelIter) SeekGE(key []byte) {
	index := l.findFile(key)
	if !l.loadFile(index) {
		return
	}
	l.iter.SeekGE(key)
	l.skipForward()
}

func (l *levelIter) skipForward() {
	for l.iter == nil || !l.iter.Valid() {
		if l.err != nil || !l.loadFile(l.index+1) {
			l.iter = nil
			return
		}
		l.iter.First()
	}
}

func (l *levelIter) First() {
	if !l.loadFile(0) {
		return
	}
	l.iter.First()
	l.skipForward()
}

func (l *levelIter) Next() bool {
	if l.iter == nil {
		return false
	}
	if l.iter.Next() {
		return true
	}
	l.skipForward()
	return l.iter != nil
}

func (l *levelIter) skipBackward() {
	for l.iter == nil || !l.iter.Valid() {
		if l.err != nil || !l.loadFile(l.index-1) {
			l.iter = nil
			return
		}
		l.iter.Last()
	}
}

func (l *levelIter) SeekLT(key []byte) {
	index := l.findFile(key)
	if index >= len(l.files) {
		index = len(l.files) - 1
	}
	if !l.loadFile(index) {
		return
	}
	l.iter.SeekLT(key)
	l.skipBackward()
}

func (l *levelIter) Last() {
	if !l.loadFile(len(l.files) - 1) {
		return
	}
	l.iter.Last()
	l.skipBackward()
}

func (l *levelIter) Prev() bool {
	if l.iter == nil {
		return false
	}
	if l.iter.Prev() {
		return true
	}
	l.skipBackward()
	return l.iter != nil
}

func (l *levelIter) Key() base.InternalKey { return l.iter.Key() }
func (l *levelIter) Value() []byte         { return l.iter.Value() }
func (l *levelIter) Valid() bool           { return l.iter != nil && l.iter.Valid() }

func (l *levelIter) Error() error {
	if l.err != nil {
		return l.err
	}
	if l.iter != nil {
		return l.iter.Error()
	}
	return nil
}

func (l *levelIter) Close() error {
	if l.iter != nil {
		return l.iter.Close()
	}
	return nil
}
