// Copyright 2017 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package arenaskl implements the concurrent skip list backing the memtable
// (§4.E): a single writer inserts while any number of readers traverse
// without locking, by publishing forward pointers with release ordering and
// reading them with acquire ordering.
package arenaskl

import (
	"sync/atomic"

	"github.com/cockroachdb/errors"
)

// ErrArenaFull is returned by Reserve (called from memTable.prepare; Skiplist.Add
// never returns it) once a memtable's arena has exhausted its write_buffer_size budget. The caller
// (DB.makeRoomForWrite) treats it as a signal to rotate the memtable.
var ErrArenaFull = errors.New("arenaskl: arena full")

// Arena tracks how many bytes a memtable has committed against its
// write_buffer_size budget. Node storage itself is ordinary garbage
// collected memory (see skl.go); Arena's job is solely the size accounting
// the source's bump allocator would otherwise provide, so that
// DB.makeRoomForWrite can cut a memtable over to immutable+flush at the
// configured size rather than growing without bound.
type Arena struct {
	cap uint32
	n   uint32 // atomic
}

// NewArena returns an Arena with the given byte budget.
func NewArena(size uint32) *Arena {
	return &Arena{cap: size}
}

// Size returns the number of bytes reserved so far.
func (a *Arena) Size() uint32 {
	return atomic.LoadUint32(&a.n)
}

// Cap returns the arena's total byte budget.
func (a *Arena) Cap() uint32 {
	return a.cap
}

// Reserve accounts size additional bytes against the budget. It returns
// ErrArenaFull if doing so would exceed the cap; the reservation is not
// rolled back on failure since the memtable is abandoned in that case.
func (a *Arena) Reserve(size uint32) error {
	newSize := atomic.AddUint32(&a.n, size)
	if newSize > a.cap {
		return ErrArenaFull
	}
	return nil
}
