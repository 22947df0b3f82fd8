// Package checksum formats SHA-256 digests as "sha256:<hex>".
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

const prefix = "sha256:"

// SHA256Bytes returns the digest of data.
func SHA256Bytes(data []byte) string {
	sum := sha256.Sum256(data)
	return prefix + hex.EncodeToString(sum[:])
}

// SHA256String returns the digest of s.
func SHA256String(s string) string {
	return SHA256Bytes([]byte(s))
}

// SHA256File streams the file at path and returns its digest and size.
func SHA256File(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, fmt.Errorf("failed to read file: %w", err)
	}
	return prefix + hex.EncodeToString(h.Sum(nil)), n, nil
}
