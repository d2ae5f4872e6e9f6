package vm

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// xxhashString hashes a symbol name into its stable identity. xxhash is the
// same content-hash family the pack already pulls in (cespare/xxhash/v2 is
// an indirect dependency of ProbeChain-go-probe); using it directly here
// and for MMU.ChecksumState keeps one hashing primitive for both concerns
// instead of reaching for the standard library's FNV by default.
func xxhashString(s string) uint64 {
	return xxhash.Sum64String(s)
}

// checksumDigest accumulates a stable content hash across a sequence of
// byte chunks. It underlies MMU.ChecksumState: equal digests must imply
// equal code+data+symbols, unequal is always safe to assume otherwise.
type checksumDigest struct {
	d *xxhash.Digest
}

func newChecksumDigest() checksumDigest {
	return checksumDigest{d: xxhash.New()}
}

func (c checksumDigest) writeUint64(v uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	c.d.Write(buf[:])
}

func (c checksumDigest) writeString(s string) {
	c.d.Write([]byte(s))
}

func (c checksumDigest) sum() uint64 {
	return c.d.Sum64()
}
