package audio

import (
	"crypto/md5"
	"encoding/hex"
)

// Fingerprint computes the content digest used as dedup identity for
// uploaded bytes. This is a 128-bit non-cryptographic identity, not a
// security boundary: the catalog's unique constraint on the hash is the
// final arbiter, and a collision merely skips an upload.
func Fingerprint(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}
