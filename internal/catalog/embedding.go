package catalog

import (
	"encoding/binary"
	"errors"
	"math"
)

// ErrBadEmbedding is returned when an embedding blob cannot be decoded
// in either supported format.
var ErrBadEmbedding = errors.New("embedding blob is neither raw float32 nor a legacy pickle")

// EncodeEmbedding serializes a float32 vector as its little-endian byte
// sequence. Nil and empty vectors encode to nil.
func EncodeEmbedding(vec []float32) []byte {
	if len(vec) == 0 {
		return nil
	}
	buf := make([]byte, 4*len(vec))
	for i, f := range vec {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

// DecodeEmbedding deserializes an embedding blob. Two formats are
// accepted: raw little-endian float32 bytes, and legacy Python pickle
// blobs (header 0x80 followed by a protocol byte 0x02..0x05) produced
// by an earlier version of the catalog.
func DecodeEmbedding(blob []byte) ([]float32, error) {
	if len(blob) == 0 {
		return nil, nil
	}

	if len(blob) >= 2 && blob[0] == 0x80 && blob[1] >= 0x02 && blob[1] <= 0x05 {
		return decodePickleEmbedding(blob)
	}

	if len(blob)%4 != 0 {
		return nil, ErrBadEmbedding
	}
	vec := make([]float32, len(blob)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[4*i:]))
	}
	return vec, nil
}

// Pickle opcodes that carry payloads we care about. The legacy blobs
// are numpy array pickles (vector bytes inside a BINBYTES/BINSTRING
// frame) or plain lists of floats (a run of BINFLOAT opcodes).
const (
	opBinFloat       = 'G' // 8-byte big-endian float64
	opShortBinString = 'U' // 1-byte length
	opBinString      = 'T' // 4-byte LE length
	opShortBinBytes  = 'C' // 1-byte length
	opBinBytes       = 'B' // 4-byte LE length
	opBinUnicode     = 'X' // 4-byte LE length
	opFrame          = 0x95
	opBinPut         = 'q' // 1-byte memo index
	opLongBinPut     = 'r' // 4-byte memo index
	opBinGet         = 'h' // 1-byte memo index
	opLongBinGet     = 'j' // 4-byte memo index
	opBinInt         = 'J' // 4-byte signed int
	opBinInt1        = 'K' // 1-byte unsigned int
	opBinInt2        = 'M' // 2-byte unsigned int
)

// decodePickleEmbedding recovers the float32 vector from a legacy
// pickle blob without a full pickle virtual machine: it walks the
// opcode stream collecting BINFLOAT values and sized byte payloads,
// then prefers the largest float32-aligned byte payload and falls back
// to the collected floats.
func decodePickleEmbedding(blob []byte) ([]float32, error) {
	var floats []float32
	var bestPayload []byte

	i := 2 // past header + protocol
	for i < len(blob) {
		op := blob[i]
		i++
		switch op {
		case opFrame:
			// 8-byte frame length, payload follows inline.
			if i+8 > len(blob) {
				return nil, ErrBadEmbedding
			}
			i += 8

		case opBinFloat:
			if i+8 > len(blob) {
				return nil, ErrBadEmbedding
			}
			f := math.Float64frombits(binary.BigEndian.Uint64(blob[i:]))
			floats = append(floats, float32(f))
			i += 8

		case opShortBinString, opShortBinBytes:
			if i >= len(blob) {
				return nil, ErrBadEmbedding
			}
			n := int(blob[i])
			i++
			if i+n > len(blob) {
				return nil, ErrBadEmbedding
			}
			if n > len(bestPayload) && n%4 == 0 && n >= 4 {
				bestPayload = blob[i : i+n]
			}
			i += n

		case opBinString, opBinBytes, opBinUnicode:
			if i+4 > len(blob) {
				return nil, ErrBadEmbedding
			}
			n := int(binary.LittleEndian.Uint32(blob[i:]))
			i += 4
			if n < 0 || i+n > len(blob) {
				return nil, ErrBadEmbedding
			}
			// Unicode payloads are dtype descriptors ("<f4"), never
			// vector data; only byte payloads are candidates.
			if op != opBinUnicode && n > len(bestPayload) && n%4 == 0 && n >= 4 {
				bestPayload = blob[i : i+n]
			}
			i += n

		case opBinPut, opBinGet, opBinInt1:
			i++

		case opBinInt2:
			i += 2

		case opLongBinPut, opLongBinGet, opBinInt:
			i += 4

		default:
			// Opcodes without an argument (MARK, tuple/list builders,
			// STOP, EMPTY_LIST...) need no skipping.
		}
	}

	if len(bestPayload) > 0 {
		vec := make([]float32, len(bestPayload)/4)
		for j := range vec {
			vec[j] = math.Float32frombits(binary.LittleEndian.Uint32(bestPayload[4*j:]))
		}
		return vec, nil
	}
	if len(floats) > 0 {
		return floats, nil
	}
	return nil, ErrBadEmbedding
}
