package sstable

import "unsafe"

// decodeVarint decodes a uvarint starting at ptr, returning the value and a
// pointer just past it. blockIter uses the unsafe-pointer form (rather than
// a []byte slice and an index) so that repositioning within a block during
// iteration does a single pointer add instead of a slice re-slice, which
// matters on the hot Next()/SeekGE() path.
func decodeVarint(ptr unsafe.Pointer) (uint32, unsafe.Pointer) {
	v := *(*uint8)(ptr)
	if v < 128 {
		return uint32(v), unsafe.Pointer(uintptr(ptr) + 1)
	}
	var result uint32
	var shift uint
	p := ptr
	for {
		b := *(*uint8)(p)
		p = unsafe.Pointer(uintptr(p) + 1)
		result |= (uint32(b) & 0x7f) << shift
		if b < 128 {
			break
		}
		shift += 7
	}
	return result, p
}

// getBytes returns the n bytes starting at ptr as a slice with no copy.
func getBytes(ptr unsafe.Pointer, n int) []byte {
	return unsafe.Slice((*byte)(ptr), n)
}
