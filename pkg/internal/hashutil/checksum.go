package hashutil

import (
	"crypto/sha256"
	"fmt"
	"io"
	"os"
)

// Prefix marks the algorithm of every checksum produced here
const Prefix = "sha256:"

// CalculateFileChecksum calculates the SHA256 checksum of a file
func CalculateFileChecksum(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = file.Close()
	}()

	return CalculateReaderChecksum(file)
}

// CalculateReaderChecksum calculates the SHA256 checksum of everything read from r
func CalculateReaderChecksum(r io.Reader) (string, error) {
	hash := sha256.New()
	if _, err := io.Copy(hash, r); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%x", Prefix, hash.Sum(nil)), nil
}

// CalculateChecksum calculates the SHA256 checksum of data
func CalculateChecksum(data []byte) string {
	return fmt.Sprintf("%s%x", Prefix, sha256.Sum256(data))
}

// FromHex formats a bare hex digest (as printed by sha256sum) with Prefix
func FromHex(hex string) string {
	return Prefix + hex
}
