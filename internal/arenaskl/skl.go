package arenaskl

import (
	"math"
	"sync/atomic"
)

const (
	maxHeight = 12
	pValue    = 1 / 4.0
)

// Compare orders two raw keys as stored in the list (the memtable stores
// encoded internal keys here, so this is base.InternalCompare bound to a
// user comparator).
type Compare func(a, b []byte) int

type node struct {
	key   []byte
	value []byte
	next  [maxHeight]atomic.Pointer[node]
}

func newNode(height int, key, value []byte) *node {
	return &node{key: key, value: value}
}

func (n *node) loadNext(h int) *node {
	return n.next[h].Load()
}

func (n *node) storeNext(h int, v *node) {
	n.next[h].Store(v)
}

// Skiplist is a single-writer, multi-reader ordered list. Height selection
// uses a fixed PRNG seeded per list rather than the global math/rand lock,
// since inserts happen on the single write-coordinator goroutine and must
// not contend with anything.
type Skiplist struct {
	arena  *Arena
	cmp    Compare
	head   *node
	height atomic.Int32
	rnd    uint32
}

// NewSkiplist returns an empty list backed by arena, ordered by cmp.
func NewSkiplist(arena *Arena, cmp Compare) *Skiplist {
	s := &Skiplist{
		arena: arena,
		cmp:   cmp,
		head:  newNode(maxHeight, nil, nil),
		rnd:   0xdeadbeef,
	}
	s.height.Store(1)
	return s
}

func (s *Skiplist) next() uint32 {
	// xorshift32; deterministic and allocation-free.
	x := s.rnd
	x ^= x << 13
	x ^= x >> 17
	x ^= x << 5
	s.rnd = x
	return x
}

func (s *Skiplist) randomHeight() int {
	h := 1
	for h < maxHeight && float64(s.next())/float64(math.MaxUint32) < pValue {
		h++
	}
	return h
}

// findSplice fills, for every level, the node immediately before key and the
// node immediately after it.
func (s *Skiplist) findSplice(key []byte, prev, next *[maxHeight]*node) {
	x := s.head
	for h := maxHeight - 1; h >= 0; h-- {
		for {
			nx := x.loadNext(h)
			if nx == nil || s.cmp(nx.key, key) >= 0 {
				break
			}
			x = nx
		}
		prev[h] = x
		next[h] = x.loadNext(h)
	}
}

// Add inserts key/value into the list. It is the caller's (single writer's)
// responsibility to never call Add concurrently with another Add; concurrent
// Get/iteration is always safe. Reserve against the backing arena is the
// caller's responsibility (see memTable.prepare), so Add itself never
// returns ErrArenaFull.
func (s *Skiplist) Add(key, value []byte) {
	var prev, next [maxHeight]*node
	s.findSplice(key, &prev, &next)

	height := s.randomHeight()
	if height > int(s.height.Load()) {
		s.height.Store(int32(height))
	}
	n := newNode(height, key, value)
	for h := 0; h < height; h++ {
		n.next[h].Store(next[h])
		// Release: publish the fully-initialised node before any reader can
		// observe it through head/prev's forward pointer.
		prev[h].next[h].Store(n)
	}
}

// Iterator walks the list. A single Iterator is not safe for concurrent use,
// but distinct Iterators over the same Skiplist may run concurrently with
// each other and with the sole writer's Add calls.
type Iterator struct {
	list *Skiplist
	cur  *node
}

// NewIter returns an unpositioned iterator.
func (s *Skiplist) NewIter() *Iterator {
	return &Iterator{list: s}
}

func (it *Iterator) Valid() bool { return it.cur != nil }

func (it *Iterator) Key() []byte { return it.cur.key }

func (it *Iterator) Value() []byte { return it.cur.value }

// SeekGE positions at the first entry with key >= target.
func (it *Iterator) SeekGE(target []byte) {
	x := it.list.head
	for h := int(it.list.height.Load()) - 1; h >= 0; h-- {
		for {
			nx := x.loadNext(h)
			if nx == nil || it.list.cmp(nx.key, target) >= 0 {
				break
			}
			x = nx
		}
	}
	it.cur = x.loadNext(0)
}

// First positions at the first entry in the list.
func (it *Iterator) First() {
	it.cur = it.list.head.loadNext(0)
}

// Next advances to the following entry.
func (it *Iterator) Next() bool {
	if it.cur == nil {
		return false
	}
	it.cur = it.cur.loadNext(0)
	return it.cur != nil
}
