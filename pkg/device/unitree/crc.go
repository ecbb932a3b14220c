package unitree

import "encoding/binary"

const crcPoly = 0x04C11DB7

// crc32Words computes the word-wise CRC-32 checked by the motor: MSB first
// over little-endian 32-bit words, seeded with all ones, neither input nor
// output reflected and no final XOR. len(p) must be a multiple of 4.
func crc32Words(p []byte) uint32 {
	crc := uint32(0xFFFFFFFF)
	for ; len(p) >= 4; p = p[4:] {
		word := binary.LittleEndian.Uint32(p)
		for bit := uint32(1) << 31; bit != 0; bit >>= 1 {
			msb := crc & 0x80000000
			crc <<= 1
			if msb != 0 {
				crc ^= crcPoly
			}
			if word&bit != 0 {
				crc ^= crcPoly
			}
		}
	}
	return crc
}
