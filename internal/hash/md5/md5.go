// Package md5 derives stable archive filenames from URLs.
package md5

import (
	"crypto/md5" //nolint:gosec // naming only, not integrity
	"encoding/hex"
)

// Hasher implements filename hashing using MD5.
type Hasher struct{}

// New returns an MD5 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash hashes the input and returns a hex digest.
func (h *Hasher) Hash(data []byte) string {
	sum := md5.Sum(data) //nolint:gosec // naming only, not integrity
	return hex.EncodeToString(sum[:])
}
