package block

import (
	"encoding/binary"
	"fmt"

	"hn4.dev/core/integrity"
)

// FormatMagic identifies an HN4 block header. Changing it is a format
// break, same as the theta table or the swizzle constants.
const FormatMagic uint32 = 0x484E3442 // "HN4B"

// Algo identifies the compression algorithm recorded in a header's
// comp_meta field.
type Algo uint8

const (
	AlgoRaw    Algo = 0
	AlgoTCC    Algo = 3
	algoIDMask      = 0xF
	algoIDBits      = 4
)

// HeaderSize is the fixed 48-byte prefix written at the head of every
// allocated physical block.
const HeaderSize = 4 + 16 + 8 + 8 + 4 + 4 + 4

// Header is the in-memory form of a block's on-disk prefix.
type Header struct {
	Magic      uint32
	WellID     [16]byte
	Generation uint64
	SeqIndex   uint64
	CompMeta   uint32 // (compressed_size << 4) | algo_id
	DataCRC    uint32
	HeaderCRC  uint32
}

// PackCompMeta encodes compressedSize and algo into a comp_meta word.
func PackCompMeta(compressedSize uint32, algo Algo) uint32 {
	return (compressedSize << algoIDBits) | uint32(algo&algoIDMask)
}

// UnpackCompMeta splits a comp_meta word back into compressed size and
// algo id.
func UnpackCompMeta(meta uint32) (compressedSize uint32, algo Algo) {
	return meta >> algoIDBits, Algo(meta & algoIDMask)
}

// Encode serializes h into the 48-byte wire form, recomputing
// HeaderCRC over everything that precedes it.
func (h *Header) Encode() []byte {
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], h.Magic)
	copy(buf[4:20], h.WellID[:])
	binary.LittleEndian.PutUint64(buf[20:28], h.Generation)
	binary.LittleEndian.PutUint64(buf[28:36], h.SeqIndex)
	binary.LittleEndian.PutUint32(buf[36:40], h.CompMeta)
	binary.LittleEndian.PutUint32(buf[40:44], h.DataCRC)
	h.HeaderCRC = integrity.HeaderCRC(buf[0:44])
	binary.LittleEndian.PutUint32(buf[44:48], h.HeaderCRC)
	return buf
}

// DecodeHeader parses the 48-byte prefix of buf without validating it;
// callers run header_crc/magic checks via Header.Validate.
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, fmt.Errorf("block: short header: %d bytes", len(buf))
	}
	var h Header
	h.Magic = binary.LittleEndian.Uint32(buf[0:4])
	copy(h.WellID[:], buf[4:20])
	h.Generation = binary.LittleEndian.Uint64(buf[20:28])
	h.SeqIndex = binary.LittleEndian.Uint64(buf[28:36])
	h.CompMeta = binary.LittleEndian.Uint32(buf[36:40])
	h.DataCRC = binary.LittleEndian.Uint32(buf[40:44])
	h.HeaderCRC = binary.LittleEndian.Uint32(buf[44:48])
	return h, nil
}

// VerifyHeaderCRC recomputes header_crc over buf's first 44 bytes and
// compares it against the stored value in buf[44:48].
func VerifyHeaderCRC(buf []byte) bool {
	if len(buf) < HeaderSize {
		return false
	}
	want := binary.LittleEndian.Uint32(buf[44:48])
	return integrity.HeaderCRC(buf[0:44]) == want
}
