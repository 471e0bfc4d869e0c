package sstable

import (
	"encoding/binary"

	"github.com/mkrump/ldb/internal/base"
)

// tableMagic is the first 64 bits of the SHA-1 of a fixed string, placed at
// the very end of every table so Reader can recognise the format (§3).
const tableMagic uint64 = 0xdb4775248b80fb57

// footerLen is the fixed size of the trailer at the end of every table.
const footerLen = 48

const maxVarintLenU64 = 10

// blockHandle is an (offset, length) pair locating a block within a table
// file; length excludes the 5-byte block trailer (§3).
type blockHandle struct {
	offset, length uint64
}

func (h blockHandle) encode(dst []byte) int {
	n := binary.PutUvarint(dst, h.offset)
	n += binary.PutUvarint(dst[n:], h.length)
	return n
}

func decodeBlockHandle(src []byte) (blockHandle, int, error) {
	offset, n := binary.Uvarint(src)
	if n <= 0 {
		return blockHandle{}, 0, base.CorruptionErrorf("sstable: invalid block handle offset")
	}
	length, m := binary.Uvarint(src[n:])
	if m <= 0 {
		return blockHandle{}, 0, base.CorruptionErrorf("sstable: invalid block handle length")
	}
	return blockHandle{offset: offset, length: length}, n + m, nil
}

// footer is the fixed 48-byte trailer: meta_index_handle || index_handle ||
// zero-pad || magic:u64 (§3).
type footer struct {
	metaIndexHandle blockHandle
	indexHandle     blockHandle
}

func (f footer) encode() []byte {
	buf := make([]byte, footerLen)
	n := f.metaIndexHandle.encode(buf)
	n += f.indexHandle.encode(buf[n:])
	for i := n; i < 2*maxVarintLenU64; i++ {
		buf[i] = 0
	}
	binary.LittleEndian.PutUint64(buf[footerLen-8:], tableMagic)
	return buf
}

func decodeFooter(b []byte) (footer, error) {
	if len(b) != footerLen {
		return footer{}, base.CorruptionErrorf("sstable: invalid footer length %d", len(b))
	}
	if magic := binary.LittleEndian.Uint64(b[footerLen-8:]); magic != tableMagic {
		return footer{}, base.CorruptionErrorf("sstable: not an sstable (bad magic number)")
	}
	metaIndexHandle, n, err := decodeBlockHandle(b)
	if err != nil {
		return footer{}, base.CorruptionErrorf("sstable: invalid footer (bad meta index handle): %w", err)
	}
	indexHandle, _, err := decodeBlockHandle(b[n:])
	if err != nil {
		return footer{}, base.CorruptionErrorf("sstable: invalid footer (bad index handle): %w", err)
	}
	return footer{metaIndexHandle: metaIndexHandle, indexHandle: indexHandle}, nil
}
