package sstable

import (
	"bytes"
	"encoding/binary"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/mkrump/ldb/internal/base"
)

// FilterPolicy is the capability interface §4.B and §9 describe: the core
// never assumes a concrete filter implementation, only this interface,
// injected via Options.FilterPolicy.
type FilterPolicy interface {
	Name() string
	CreateFilter(keys [][]byte) []byte
	KeyMayMatch(key, filter []byte) bool
}

// filterBaseLg is the log2 of the number of data-block bytes each filter
// region covers (§4.B): region i covers file byte range
// [i*2^filterBaseLg, (i+1)*2^filterBaseLg).
const filterBaseLg = 11

// bloomFilterPolicy is the default FilterPolicy, backed by
// github.com/bits-and-blooms/bloom. bitsPerKey controls the false-positive
// rate the way LevelDB's own bloom policy is parameterised; 10 bits/key is
// the conventional ~1% default.
type bloomFilterPolicy struct {
	bitsPerKey uint
}

// NewBloomFilterPolicy returns the default bloom-filter FilterPolicy, with
// approximately bitsPerKey bits of filter per added key.
func NewBloomFilterPolicy(bitsPerKey uint) FilterPolicy {
	if bitsPerKey == 0 {
		bitsPerKey = 10
	}
	return bloomFilterPolicy{bitsPerKey: bitsPerKey}
}

func (p bloomFilterPolicy) Name() string { return "ldb.BuiltinBloomFilter" }

func (p bloomFilterPolicy) CreateFilter(keys [][]byte) []byte {
	n := uint(len(keys))
	if n == 0 {
		n = 1
	}
	f := bloom.New(n*p.bitsPerKey, estimateK(p.bitsPerKey))
	for _, k := range keys {
		f.Add(k)
	}
	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		// WriteTo onto a bytes.Buffer never fails; a failure here would mean
		// the bloom library's invariants broke.
		panic(err)
	}
	return buf.Bytes()
}

func (p bloomFilterPolicy) KeyMayMatch(key, filter []byte) bool {
	if len(filter) == 0 {
		return true
	}
	var f bloom.BloomFilter
	if _, err := f.ReadFrom(bytes.NewReader(filter)); err != nil {
		return true
	}
	return f.Test(key)
}

func estimateK(bitsPerKey uint) uint {
	k := uint(float64(bitsPerKey) * 0.69) // ln(2)
	if k < 1 {
		k = 1
	}
	if k > 30 {
		k = 30
	}
	return k
}

// filterWriter buckets keys by the data block's starting file offset and
// emits one filter region per 2^filterBaseLg bytes of data blocks (§4.B).
type filterWriter struct {
	policy       FilterPolicy
	keys         [][]byte
	filterOffset uint64
	offsets      []uint32
	data         []byte
}

func newFilterWriter(policy FilterPolicy) *filterWriter {
	return &filterWriter{policy: policy}
}

func (f *filterWriter) addKey(key []byte) {
	k := make([]byte, len(key))
	copy(k, key)
	f.keys = append(f.keys, k)
}

// finishBlock is called after each data block is cut, given the file offset
// the next data block will start at. It emits every region that ends at or
// before blockOffset; keys of blocks starting in a later region stay pending.
func (f *filterWriter) finishBlock(blockOffset uint64) {
	for i := f.filterOffset + 1<<filterBaseLg; i <= blockOffset; i += 1 << filterBaseLg {
		f.generateFilter()
	}
}

func (f *filterWriter) generateFilter() {
	f.offsets = append(f.offsets, uint32(len(f.data)))
	if len(f.keys) > 0 {
		f.data = append(f.data, f.policy.CreateFilter(f.keys)...)
	}
	f.keys = f.keys[:0]
	f.filterOffset += 1 << filterBaseLg
}

// finish emits the trailing filter region and the offset table described by
// §4.B: offsets[] || offsets-array-offset:u32 || baseLg:u8.
func (f *filterWriter) finish() []byte {
	if len(f.keys) > 0 {
		f.generateFilter()
	}
	offsetsStart := uint32(len(f.data))
	for _, o := range f.offsets {
		var tmp [4]byte
		binary.LittleEndian.PutUint32(tmp[:], o)
		f.data = append(f.data, tmp[:]...)
	}
	var tmp [5]byte
	binary.LittleEndian.PutUint32(tmp[0:4], offsetsStart)
	tmp[4] = filterBaseLg
	f.data = append(f.data, tmp[:]...)
	return f.data
}

// filterReader answers KeyMayMatch queries against a decoded filter block
// (§4.B). An absent filter block means every lookup assumes may-match.
type filterReader struct {
	policy  FilterPolicy
	data    []byte
	offsets []byte
	num     int
	baseLg  uint8
}

func newFilterReader(policy FilterPolicy, contents []byte) (*filterReader, error) {
	if len(contents) < 5 {
		return nil, base.CorruptionErrorf("sstable: truncated filter block")
	}
	baseLg := contents[len(contents)-1]
	offsetsStart := binary.LittleEndian.Uint32(contents[len(contents)-5 : len(contents)-1])
	if uint32(len(contents)) < offsetsStart+5 {
		return nil, base.CorruptionErrorf("sstable: invalid filter block offset table")
	}
	offsets := contents[offsetsStart : len(contents)-5]
	return &filterReader{
		policy:  policy,
		data:    contents[:offsetsStart],
		offsets: offsets,
		num:     len(offsets) / 4,
		baseLg:  baseLg,
	}, nil
}

func (r *filterReader) mayContain(blockOffset uint64, key []byte) bool {
	index := int(blockOffset >> r.baseLg)
	if index >= r.num {
		return true
	}
	start := binary.LittleEndian.Uint32(r.offsets[index*4:])
	var limit uint32
	if index+1 < r.num {
		limit = binary.LittleEndian.Uint32(r.offsets[(index+1)*4:])
	} else {
		limit = uint32(len(r.data))
	}
	if start > limit || limit > uint32(len(r.data)) {
		return true
	}
	return r.policy.KeyMayMatch(key, r.data[start:limit])
}
