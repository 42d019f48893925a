package fileutils

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// Sha256File returns the hex encoded SHA-256 digest of the file at path.
func Sha256File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("could not open file to hash: %v", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("could not hash file: %v", err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// Sha256Sum returns the hex encoded SHA-256 digest of data.
func Sha256Sum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
