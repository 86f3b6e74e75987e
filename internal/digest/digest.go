// Package digest computes content-addressed identities for raw input files.
package digest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// ChunkSize is the read buffer used when hashing files (1 MiB).
const ChunkSize = 1024 * 1024

// File returns the lowercase hex SHA-256 of the file's bytes. The file is read
// in ChunkSize pieces so arbitrarily large workbooks never sit in memory.
// Identical content always yields the same identity; it is used directly as
// sources.source_id.
func File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}
	defer f.Close()

	id, err := Reader(f)
	if err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}
	return id, nil
}

// Reader hashes everything readable from r.
func Reader(r io.Reader) (string, error) {
	h := sha256.New()
	buf := make([]byte, ChunkSize)
	if _, err := io.CopyBuffer(h, r, buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
