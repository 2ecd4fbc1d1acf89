// Package hash computes content fingerprints and perceptual hashes.
package hash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"

	"github.com/corona10/goimagehash"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"mediacat/internal/mediaerr"
)

// Fingerprint returns the hex SHA-256 of the file's full contents.
// Identical bytes always yield the same value; it is used as the
// thumbnail cache key and as the exact-duplicate signal.
func Fingerprint(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", mediaerr.FromIO(path, fmt.Errorf("open: %w", err))
	}
	defer file.Close()

	sum, err := FingerprintReader(file)
	if err != nil {
		return "", mediaerr.FromIO(path, err)
	}
	return sum, nil
}

// FingerprintReader hashes everything readable from r
func FingerprintReader(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("read: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// PerceptualHash decodes an image and returns its 64-bit pHash.
func PerceptualHash(path string) (uint64, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, mediaerr.FromIO(path, err)
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return 0, mediaerr.New(mediaerr.DecodeError, path, err)
	}
	return PerceptualHashImage(img)
}

// PerceptualHashImage computes the pHash of an already decoded image
func PerceptualHashImage(img image.Image) (uint64, error) {
	h, err := goimagehash.PerceptionHash(img)
	if err != nil {
		return 0, fmt.Errorf("failed to compute hash: %w", err)
	}
	return h.GetHash(), nil
}

// HammingDistance calculates the Hamming distance between two hashes
func HammingDistance(hash1, hash2 uint64) int {
	xor := hash1 ^ hash2
	count := 0
	for xor != 0 {
		count++
		xor &= xor - 1
	}
	return count
}
