package record

import "hash/crc32"

var castagnoliTable = crc32.MakeTable(crc32.Castagnoli)

// crc32CastagnoliWith computes the CRC-32C of typ followed by payload, the
// checksum of a WAL fragment. Package sstable computes block trailer
// checksums itself, over the block bytes followed by the compression tag.
func crc32CastagnoliWith(typ byte, payload []byte) uint32 {
	h := crc32.New(castagnoliTable)
	h.Write([]byte{typ})
	h.Write(payload)
	return h.Sum32()
}
