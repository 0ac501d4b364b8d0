package wire

import "hash/crc32"

// Sum computes the integrity checksum over a payload. CRC-32 (IEEE) is
// plenty for detecting accidental corruption; this is not an authentication
// mechanism.
func Sum(payload []byte) uint32 {
	return crc32.ChecksumIEEE(payload)
}

// Check reports whether the checksum claimed in a packet header matches
// the payload that arrived with it.
func Check(claimed uint32, payload []byte) bool {
	return claimed == Sum(payload)
}
