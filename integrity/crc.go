// Package integrity holds the primitives shared by the allocator,
// writer, and reader: domain-separated CRC32, and the poison pattern
// used to detect silent DMA failures.
package integrity

import "hash/crc32"

// Two distinct seeds for the two CRC domains. They must never collide:
// a block whose header bytes happen to equal another block's payload
// bytes must still produce different CRCs, so a header cannot be
// laundered into a payload region or vice versa.
const (
	headerSeed uint32 = 0x4844_4831 // "HDH1"
	dataSeed   uint32 = 0x4441_5431 // "DAT1"
)

var crcTable = crc32.MakeTable(crc32.Castagnoli)

// HeaderCRC computes the header-domain CRC32 over b.
func HeaderCRC(b []byte) uint32 {
	return crc32.Update(crc32.Update(0, crcTable, seedBytes(headerSeed)), crcTable, b)
}

// DataCRC computes the payload-domain CRC32 over b. The caller must
// pass the entire payload slot, including any zero padding — the slot,
// not just the logical/compressed length.
func DataCRC(b []byte) uint32 {
	return crc32.Update(crc32.Update(0, crcTable, seedBytes(dataSeed)), crcTable, b)
}

func seedBytes(seed uint32) []byte {
	return []byte{byte(seed), byte(seed >> 8), byte(seed >> 16), byte(seed >> 24)}
}
