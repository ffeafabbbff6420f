package checksum

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"

	"github.com/starford/githighlight/internal/models"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Fingerprint digests the commit hashes and their file lists in order.
// Two windows with the same content produce the same fingerprint, so
// clients can skip redraws when a refresh changed nothing.
func Fingerprint(commits []models.CommitRecord) string {
	var buf bytes.Buffer
	for _, c := range commits {
		buf.WriteString(c.Hash)
		buf.WriteByte(0)
		for _, f := range c.ChangedFiles {
			buf.WriteString(f)
			buf.WriteByte(0)
		}
		buf.WriteByte('\n')
	}
	return Sum(buf.Bytes())
}
