package msgstore

import (
	"encoding/binary"

	"golang.org/x/crypto/blake2b"
)

// Checksum returns the content hash of a serialized payload: the first eight
// bytes of its BLAKE2b-256 digest.
func Checksum(payload []byte) uint64 {
	sum := blake2b.Sum256(payload)
	return binary.BigEndian.Uint64(sum[:8])
}
