// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package base holds the types shared by every package in the engine: the
// internal key encoding, the comparer and merger capability interfaces, and
// the error-kind taxonomy. It exists so that sstable, record and the root
// package can all depend on the key format without importing each other.
package base

import (
	"bytes"
	"encoding/binary"
)

// InternalKeyKind enumerates the kind of an internal key.
type InternalKeyKind uint8

// Constants used for the internal key kind byte.
const (
	InternalKeyKindDelete  InternalKeyKind = 0
	InternalKeyKindSet     InternalKeyKind = 1
	InternalKeyKindMerge   InternalKeyKind = 2
	InternalKeyKindLogData InternalKeyKind = 3

	// InternalKeyKindMax is the largest kind used when constructing a search
	// key: since kind sorts descending for a fixed (user key, seqnum) pair,
	// searching with the max kind finds the first (i.e. newest) entry for a
	// key at or below a given sequence number.
	InternalKeyKindMax InternalKeyKind = 0xff

	// InternalKeyKindInvalid is a kind no stored entry uses; Valid reports
	// false for it. (A zero-value InternalKey has kind Delete.)
	InternalKeyKindInvalid InternalKeyKind = 0xfe

	// InternalKeySeqNumMax is the largest valid sequence number.
	InternalKeySeqNumMax = uint64(1)<<56 - 1
)

// String names k for diagnostics (e.g. sstable.Reader.Dump).
func (k InternalKeyKind) String() string {
	switch k {
	case InternalKeyKindDelete:
		return "DEL"
	case InternalKeyKindSet:
		return "SET"
	case InternalKeyKindMerge:
		return "MERGE"
	case InternalKeyKindLogData:
		return "LOGDATA"
	case InternalKeyKindMax:
		return "MAX"
	default:
		return "INVALID"
	}
}

// trailer packs a 56-bit sequence number and an 8-bit kind into the 8 trailer
// bytes that follow every user key on disk and in the memtable.
type trailer = uint64

func makeTrailer(seqNum uint64, kind InternalKeyKind) trailer {
	return (seqNum << 8) | trailer(kind)
}

// InternalKey is a user key augmented with a sequence number and kind. See
// the Data Model: user-key ascending, then sequence descending, then kind
// descending.
type InternalKey struct {
	UserKey []byte
	Trailer uint64
}

// MakeInternalKey returns the internal key (userKey, seqNum, kind).
func MakeInternalKey(userKey []byte, seqNum uint64, kind InternalKeyKind) InternalKey {
	return InternalKey{UserKey: userKey, Trailer: makeTrailer(seqNum, kind)}
}

// MakeSearchKey returns an internal key suitable for seeking: the largest
// possible trailer for the given user key, so that SeekGE(MakeSearchKey(k))
// lands on the newest version of k if one is present.
func MakeSearchKey(userKey []byte) InternalKey {
	return MakeInternalKey(userKey, InternalKeySeqNumMax, InternalKeyKindMax)
}

// SeqNum returns the key's sequence number.
func (k InternalKey) SeqNum() uint64 {
	return k.Trailer >> 8
}

// SetSeqNum overwrites the key's sequence number in place, used to rewrite a
// global sequence number over sstables ingested in bulk.
func (k *InternalKey) SetSeqNum(seqNum uint64) {
	k.Trailer = (seqNum << 8) | (k.Trailer & 0xff)
}

// Kind returns the key's kind.
func (k InternalKey) Kind() InternalKeyKind {
	return InternalKeyKind(k.Trailer & 0xff)
}

// Size returns the encoded length of the key.
func (k InternalKey) Size() int {
	return len(k.UserKey) + 8
}

// Encode writes the encoded key into buf, which must be at least Size()
// bytes long.
func (k InternalKey) Encode(buf []byte) {
	i := copy(buf, k.UserKey)
	binary.LittleEndian.PutUint64(buf[i:], k.Trailer)
}

// Clone returns a deep copy of the key.
func (k InternalKey) Clone() InternalKey {
	if len(k.UserKey) == 0 {
		return k
	}
	u := make([]byte, len(k.UserKey))
	copy(u, k.UserKey)
	return InternalKey{UserKey: u, Trailer: k.Trailer}
}

// Valid returns true if the key has a recognised kind.
func (k InternalKey) Valid() bool {
	return k.Kind() <= InternalKeyKindLogData
}

// DecodeInternalKey decodes an encoded internal key. If b is shorter than
// 8 bytes it returns the zero InternalKey.
func DecodeInternalKey(b []byte) InternalKey {
	n := len(b) - 8
	if n < 0 {
		return InternalKey{}
	}
	return InternalKey{
		UserKey: b[:n:n],
		Trailer: binary.LittleEndian.Uint64(b[n:]),
	}
}

// Compare compares two user keys using cmp, a byte-lexicographic ordering
// unless the caller installed a custom Comparer.
type Compare func(a, b []byte) int

// InternalCompare orders two internal keys per the Data Model: user key
// ascending, sequence number descending, kind descending.
func InternalCompare(userCmp Compare, a, b InternalKey) int {
	if x := userCmp(a.UserKey, b.UserKey); x != 0 {
		return x
	}
	// Reverse order for the trailer so that higher sequence numbers (and, for
	// equal sequence numbers, higher kinds) sort first.
	if a.Trailer > b.Trailer {
		return -1
	}
	if a.Trailer < b.Trailer {
		return 1
	}
	return 0
}

// DefaultCompare is the default byte-lexicographic user key comparator.
func DefaultCompare(a, b []byte) int {
	return bytes.Compare(a, b)
}

// SharedPrefixLen returns the length of the common prefix of a and b, used
// by the block writer to compute each entry's shared_len.
func SharedPrefixLen(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return i
}

// Separator and Successor implement the shortest-separator / shortest-
// successor key-shortening scheme the table writer uses for index entries
// (§4.C): a short separator between consecutive blocks, and a short
// successor for the final index entry, reduce the size of the index block
// without changing its ordering semantics.
func Separator(cmp Compare, dst, a, b []byte) []byte {
	if a == nil {
		return append(dst[:0], b...)
	}
	if b == nil || cmp(a, b) >= 0 {
		return append(dst[:0], a...)
	}
	n := SharedPrefixLen(a, b)
	if n == len(a) || n == len(b) {
		// One is a prefix of the other; no shortening is possible.
		return append(dst[:0], a...)
	}
	// Try to increment a[n] so that a < separator < b.
	if a[n] < 0xff && a[n]+1 < b[n] {
		dst = append(dst[:0], a[:n+1]...)
		dst[n]++
		return dst
	}
	return append(dst[:0], a...)
}

// Successor returns a short key >= a, used for the final index entry (which
// has no following key to separate from).
func Successor(cmp Compare, dst, a []byte) []byte {
	for i, c := range a {
		if c != 0xff {
			dst = append(dst[:0], a[:i+1]...)
			dst[i]++
			return dst
		}
	}
	return append(dst[:0], a...)
}
